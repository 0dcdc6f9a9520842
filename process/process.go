// Package process implements spec.md §4.3's ProcessManager: ownership of
// the child debugger process, its stdin writer, and its raw stdout/stderr
// streams, with lifecycle events distinguishing expected from unexpected
// exit.
//
// Grounded on the teacher's engine/cli/engine.go (spawnCmd, working-
// directory validation) and engine/cli/process.go (process struct:
// stopOnce/finishOnce, cmdDone buffered-1 channel, signalProcess treating
// os.ErrProcessDone as success, SIGTERM-then-grace-then-SIGKILL), plus
// other_examples' edirooss-zmux-server processmgr for process-group
// isolation (Setpgid) and zap field-scoped logging.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of the child process (spec §3 "Process
// state").
type State int

const (
	NotStarted State = iota
	Starting
	Ready
	Stopping
	Exited
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Starting:
		return "Starting"
	case Ready:
		return "Ready"
	case Stopping:
		return "Stopping"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// ExitEvent describes how the child process ended (spec §4.3 "fire an
// exit event carrying exit code and a flag distinguishing expected ...
// from unexpected").
type ExitEvent struct {
	Code       int
	Unexpected bool
	Err        error
}

// gracePeriod is how long Stop waits after the graceful quit command
// before forcing termination (spec §4.3: "up to a configured short
// grace (5 s)").
const gracePeriod = 5 * time.Second

// killWait is how long Stop waits for the forced kill to take effect
// (spec §4.3: "force kill and wait up to 2 s").
const killWait = 2 * time.Second

// quitCommand is written to stdin (followed by a newline via WriteLine)
// during a graceful stop (spec §4.3, §6: "literal q\n on stop").
const quitCommand = "q"

// Manager owns the child process and its standard streams (spec §4.3).
// A Manager must be Start'ed at most once; Stop is idempotent.
type Manager struct {
	log *zap.Logger

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	initOutputConsumed bool

	writeMu sync.Mutex // serializes all stdin writes, including interrupt bytes

	startOnce sync.Once
	stopOnce  sync.Once

	done    chan struct{}
	exitEvt ExitEvent
}

// New returns an idle Manager. log may be nil, in which case a no-op
// logger is substituted (spec §9 "a single logging port passed by
// reference").
func New(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:   log.Named("processmgr"),
		state: NotStarted,
		done:  make(chan struct{}),
	}
}

// resolveExecutable implements spec §4.3's executable resolution order:
// override if provided and existing; else configuredPath; else not-found.
func resolveExecutable(override, configuredPath string) (string, error) {
	var overrideErr error
	if override != "" {
		_, err := os.Stat(override)
		if err == nil {
			return override, nil
		}
		overrideErr = fmt.Errorf("executable override not found: %s: %w", override, err)
	}
	if configuredPath != "" {
		return configuredPath, nil
	}
	if overrideErr != nil {
		return "", overrideErr
	}
	return "", errors.New("no executable path configured")
}

// Start resolves and spawns the child process (spec §4.3). args are the
// target arguments (dump file or remote-target shape is the caller's
// concern, out of scope here per spec §1). env carries symbol-server
// timeout/retry variables and search-path overrides (nil inherits the
// parent environment). Returns (true, nil) on success; (false, err)
// otherwise — err wraps a launch-failure-shaped error the caller can
// classify.
//
// Only the first call spawns a process; a later call has no side effects
// and returns (true, nil) if the process is Ready, else (false, nil).
func (m *Manager) Start(override, configuredPath string, args []string, env []string) (bool, error) {
	var started bool
	var startErr error

	m.startOnce.Do(func() {
		m.mu.Lock()
		m.state = Starting
		m.mu.Unlock()

		binary, err := resolveExecutable(override, configuredPath)
		if err != nil {
			startErr = err
			m.mu.Lock()
			m.state = NotStarted
			m.mu.Unlock()
			return
		}

		cmd := exec.Command(binary, args...)
		cmd.Dir = filepath.Dir(binary)
		cmd.Env = env
		configureSysProcAttr(cmd)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			startErr = fmt.Errorf("stdin pipe: %w", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			startErr = fmt.Errorf("stdout pipe: %w", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			startErr = fmt.Errorf("stderr pipe: %w", err)
			return
		}

		if err := cmd.Start(); err != nil {
			startErr = fmt.Errorf("spawn: %w", err)
			m.mu.Lock()
			m.state = NotStarted
			m.mu.Unlock()
			return
		}

		m.mu.Lock()
		m.cmd = cmd
		m.stdin = stdin
		m.stdout = stdout
		m.stderr = stderr
		// spec §4.3 readiness policy: mark init_output_consumed=true
		// immediately, without attempting to parse the startup banner for
		// a prompt. The first command's sentinel framing naturally
		// discards any pre-start lines.
		m.initOutputConsumed = true
		m.state = Ready
		m.mu.Unlock()

		m.log.Info("process started", zap.String("binary", binary), zap.Int("pid", cmd.Process.Pid))
		go m.waitForExit()
		started = true
	})

	if !started && startErr == nil {
		// startOnce already fired on a prior call.
		m.mu.Lock()
		state := m.state
		m.mu.Unlock()
		return state == Ready, nil
	}
	return started, startErr
}

// waitForExit blocks on the child's exit and records an ExitEvent,
// distinguishing an expected exit (Stop() already in progress) from an
// unexpected one (spec §4.3).
func (m *Manager) waitForExit() {
	waitErr := m.cmd.Wait()

	m.mu.Lock()
	expected := m.state == Stopping
	m.state = Exited
	m.mu.Unlock()

	code := 0
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}

	evt := ExitEvent{Code: code, Unexpected: !expected, Err: waitErr}
	m.mu.Lock()
	m.exitEvt = evt
	m.mu.Unlock()

	if evt.Unexpected {
		m.log.Warn("process exited unexpectedly", zap.Int("code", code), zap.Error(waitErr))
	} else {
		m.log.Info("process exited", zap.Int("code", code))
	}
	close(m.done)
}

// Done returns a channel closed when the child process has exited and
// its ExitEvent is available via ExitEvent.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ExitEvent returns the recorded exit event. Only meaningful after Done()
// has closed.
func (m *Manager) ExitEvent() ExitEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitEvt
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsActive reports whether the process is Ready and has consumed its
// initial output (spec §4.3).
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Ready && m.initOutputConsumed
}

// Stdout returns the child's stdout stream, for exclusive consumption by
// a single pump (spec §5 "exactly one reader each").
func (m *Manager) Stdout() io.ReadCloser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stdout
}

// Stderr returns the child's stderr stream, for exclusive consumption by
// a single pump.
func (m *Manager) Stderr() io.ReadCloser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stderr
}

// WriteLine writes s followed by a newline to the child's stdin. Writes
// are serialized through an internal mutex so that a best-effort
// interrupt byte (see Interrupt) can never interleave mid-write with a
// command's bytes (spec §9 Open Question, resolved).
func (m *Manager) WriteLine(s string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	stdin := m.stdin
	m.mu.Unlock()
	if stdin == nil {
		return errors.New("process: stdin not available")
	}
	if _, err := io.WriteString(stdin, s+"\n"); err != nil {
		return fmt.Errorf("process: write stdin: %w", err)
	}
	return nil
}

// Interrupt sends a best-effort Ctrl-C byte (0x03) followed by a period
// command, used by the executor when a command's cancellation fires
// before the end sentinel is observed (spec §4.5). Serialized through the
// same mutex as WriteLine.
func (m *Manager) Interrupt() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	stdin := m.stdin
	m.mu.Unlock()
	if stdin == nil {
		return errors.New("process: stdin not available")
	}
	if _, err := stdin.Write([]byte{0x03}); err != nil {
		return fmt.Errorf("process: write interrupt byte: %w", err)
	}
	if _, err := io.WriteString(stdin, ".\n"); err != nil {
		return fmt.Errorf("process: write interrupt period: %w", err)
	}
	return nil
}

// Stop terminates the process gracefully, falling back to a forced kill.
// Idempotent: a second call returns nil immediately once the first has
// completed (spec §4.3).
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		cmd := m.cmd
		if cmd == nil {
			// Never started: nothing to stop.
			m.mu.Unlock()
			return
		}
		m.state = Stopping
		m.mu.Unlock()

		_ = m.WriteLine(quitCommand) // best-effort

		select {
		case <-m.done:
			m.log.Info("process stopped gracefully")
			return
		case <-time.After(gracePeriod):
		case <-ctx.Done():
		}

		m.log.Warn("grace period expired, sending SIGKILL")
		if err := killProcessGroup(cmd.Process); err != nil {
			m.log.Debug("process-group kill failed, falling back to single-process kill", zap.Error(err))
			_ = signalProcess(cmd.Process, os.Kill)
		}

		select {
		case <-m.done:
		case <-time.After(killWait):
			m.log.Error("process did not exit after SIGKILL within kill-wait")
		}
	})
	return nil
}

// signalProcess sends sig to proc, treating an already-exited process as
// success (spec §4.3 idempotence; grounded on the teacher's
// signalProcess helper).
func signalProcess(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

