package cdbsup

import "errors"

// Sentinel errors for session and queue operations (spec §7 error kinds).
var (
	// ErrInvalidArgument indicates an empty command, empty id, or a
	// start() call before the session is initialized.
	ErrInvalidArgument = errors.New("cdbsup: invalid argument")

	// ErrInvalidState indicates an operation attempted on a session that
	// has not been started. After Stop, submissions fail with ErrDisposed
	// from the disposed queue instead.
	ErrInvalidState = errors.New("cdbsup: invalid state")

	// ErrNotFound indicates an unknown command id. No current API returns
	// it: GetResult reports an unknown id with the queue.NotFoundText
	// string, and Cancel reports it by returning false.
	ErrNotFound = errors.New("cdbsup: command not found")

	// ErrTimeout indicates a per-command deadline was exceeded.
	ErrTimeout = errors.New("cdbsup: command timed out")

	// ErrIdleTimeout indicates no output line arrived within IdleTimeout
	// while a command was in flight, distinct from the overall
	// CommandTimeout wall clock (spec §3 "idle_timeout", §5 "Timeouts").
	ErrIdleTimeout = errors.New("cdbsup: idle timeout waiting for output")

	// ErrCancelled indicates external or session-wide cancellation.
	ErrCancelled = errors.New("cdbsup: command cancelled")

	// ErrChildIO indicates a stdin write/flush failure or an unexpected
	// stream close while talking to the child process.
	ErrChildIO = errors.New("cdbsup: child process I/O failure")

	// ErrChildExited indicates the child process exited outside of a
	// deliberate stop() call.
	ErrChildExited = errors.New("cdbsup: child process exited unexpectedly")

	// ErrLaunchFailure indicates the child executable was missing or
	// could not be spawned.
	ErrLaunchFailure = errors.New("cdbsup: launch failure")

	// ErrDisposed indicates an operation on a component after it has been
	// disposed (cache, queue). Distinct from ErrInvalidState so callers
	// can tell "never started" from "torn down" if they need to.
	ErrDisposed = errors.New("cdbsup: disposed")
)
