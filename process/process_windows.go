//go:build windows

package process

import (
	"os"
	"os/exec"
)

// configureSysProcAttr is a no-op on Windows: process-group isolation
// via Setpgid has no Windows equivalent field on syscall.SysProcAttr,
// and CDB's own job-object semantics are out of this package's scope.
func configureSysProcAttr(cmd *exec.Cmd) {}

// killProcessGroup is a no-op on Windows; proc.Kill() in signalProcess
// already terminates the one process CDB spawns as (no process-group
// fan-out to chase here).
func killProcessGroup(proc *os.Process) error { return nil }
