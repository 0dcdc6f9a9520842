package cdbsup

import (
	"fmt"
	"strings"
	"time"
)

// StderrSeparator is inserted between stdout and stderr payload sections
// in a CommandResult's OutputText whenever any stderr lines were captured
// (spec §4.5 item 2, §5 "Ordering guarantees").
const StderrSeparator = "--- STDERR ---"

// CommandResult is the immutable, terminal outcome of one executed
// command (spec §3 "CommandResult"). Once constructed it is never
// mutated; callers may share it freely across goroutines.
type CommandResult struct {
	OutputText           string
	IsSuccess            bool
	ErrorMessage         string
	Duration             time.Duration
	OriginalCommand      string
	QueuedAt             time.Time
	StartedAt            time.Time
	FinishedAt           time.Time
	ApproximateSizeBytes int64
}

// approximateSize estimates the in-memory footprint of a result for the
// cache's byte-bound accounting (spec §4.6 "max_memory_bytes"). It is
// intentionally cheap: len() over the string fields plus a fixed
// per-entry overhead, not a precise byte count.
func approximateSize(outputText, originalCommand, errorMessage string) int64 {
	const perEntryOverhead = 128
	return int64(len(outputText)+len(originalCommand)+len(errorMessage)) + perEntryOverhead
}

// NewSuccessResult builds a successful CommandResult from accumulated
// stdout/stderr payload (spec §4.5 item 2).
func NewSuccessResult(originalCommand string, stdoutLines, stderrLines []string, queuedAt, startedAt, finishedAt time.Time) CommandResult {
	text := joinPayload(stdoutLines, stderrLines)
	return CommandResult{
		OutputText:           text,
		IsSuccess:            true,
		Duration:             finishedAt.Sub(startedAt),
		OriginalCommand:      originalCommand,
		QueuedAt:             queuedAt,
		StartedAt:            startedAt,
		FinishedAt:           finishedAt,
		ApproximateSizeBytes: approximateSize(text, originalCommand, ""),
	}
}

// NewFailureResult builds a failed CommandResult carrying errMsg as the
// reason (spec §4.5 "Failure semantics"). The externally visible
// OutputText is prefixed with a recognizable error phrase derived from
// errMsg (spec §7 "text prefixed by a recognizable error phrase"), since
// get_result only ever returns OutputText — ErrorMessage is never surfaced
// to a caller on its own.
func NewFailureResult(originalCommand, errMsg string, stdoutLines, stderrLines []string, queuedAt, startedAt, finishedAt time.Time) CommandResult {
	elapsed := finishedAt.Sub(startedAt)
	prefix := failurePhrase(errMsg, elapsed)
	payload := joinPayload(stdoutLines, stderrLines)
	text := prefix
	if payload != "" {
		text += "\n" + payload
	}
	return CommandResult{
		OutputText:           text,
		IsSuccess:            false,
		ErrorMessage:         errMsg,
		Duration:             elapsed,
		OriginalCommand:      originalCommand,
		QueuedAt:             queuedAt,
		StartedAt:            startedAt,
		FinishedAt:           finishedAt,
		ApproximateSizeBytes: approximateSize(text, originalCommand, errMsg),
	}
}

// failurePhrase translates an internal sentinel-error message into the
// literal phrase spec §8's scenarios assert get_result returns: "timed
// out" (with elapsed milliseconds) for a command or idle timeout,
// "cancelled" for any cancellation, and "session terminated" for an
// unexpected child exit. Anything else falls back to a generic phrase
// carrying errMsg verbatim, still recognizable as an error by callers
// that only ever see OutputText.
func failurePhrase(errMsg string, elapsed time.Duration) string {
	switch {
	case strings.Contains(errMsg, ErrTimeout.Error()), strings.Contains(errMsg, ErrIdleTimeout.Error()):
		return fmt.Sprintf("command timed out after %dms", elapsed.Milliseconds())
	case strings.Contains(errMsg, ErrCancelled.Error()):
		return "command cancelled"
	case strings.Contains(errMsg, ErrChildExited.Error()):
		return "session terminated: child process exited unexpectedly"
	default:
		return fmt.Sprintf("command failed: %s", errMsg)
	}
}

func joinPayload(stdoutLines, stderrLines []string) string {
	out := joinLines(stdoutLines)
	if len(stderrLines) == 0 {
		return out
	}
	if out != "" {
		out += "\n"
	}
	out += StderrSeparator + "\n" + joinLines(stderrLines)
	return out
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	buf := make([]byte, 0, total)
	for i, l := range lines {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, l...)
	}
	return string(buf)
}
