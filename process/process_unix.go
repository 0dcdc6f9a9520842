//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureSysProcAttr isolates the child into its own process group on
// Unix-like dev/test platforms, so that a best-effort interrupt or forced
// kill does not propagate to the supervisor itself (grounded on
// other_examples' edirooss-zmux-server processmgr). The production target
// (cdb.exe) only runs on Windows; this file exists so the package builds
// and is testable against the fake-CDB test helper on non-Windows CI.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the child's entire process group
// (the negative-pid convention), reaching grandchildren the plain
// proc.Signal(os.Kill) in signalProcess would miss. Uses x/sys/unix
// rather than stdlib syscall for the signal-number conversion, matching
// the pack's cross-platform-process-management convention.
func killProcessGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	err := unix.Kill(-proc.Pid, unix.SIGKILL)
	if err == unix.ESRCH {
		return nil
	}
	return err
}
