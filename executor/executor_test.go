package executor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	cdbsup "github.com/CapulusCodeNinja/mcp-nexus-cdb"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/executor"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/pump"
)

// recordingWriter captures every written line and counts interrupts; each
// test's own goroutine reads the last written line and feeds the framed
// command's sentinels back through a lines channel, standing in for the
// real child process plus pump.
type recordingWriter struct {
	mu          sync.Mutex
	written     []string
	interrupted int
	writeErr    error
}

func (w *recordingWriter) WriteLine(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.written = append(w.written, s)
	return nil
}

func (w *recordingWriter) Interrupt() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interrupted++
	return nil
}

func (w *recordingWriter) lastWritten() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.written) == 0 {
		return ""
	}
	return w.written[len(w.written)-1]
}

// extractMarkers pulls the nonce-suffixed start/end markers out of a
// compound line of the shape ".echo START; TEXT; .echo END".
func extractMarkers(compound string) (start, end string) {
	parts := strings.Split(compound, ";")
	start = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), ".echo "))
	end = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[len(parts)-1]), ".echo "))
	return start, end
}

func TestExecuteHappyPath(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line, 8)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Second, 0, 0)

	go func() {
		for {
			compound := w.lastWritten()
			if compound != "" {
				break
			}
			time.Sleep(time.Millisecond)
		}
		start, end := extractMarkers(w.lastWritten())
		lines <- pump.Line{Text: "noise before start"}
		lines <- pump.Line{Text: start}
		lines <- pump.Line{Text: "line one"}
		lines <- pump.Line{Text: "line two", IsStderr: true}
		lines <- pump.Line{Text: end}
	}()

	out := e.Execute(context.Background(), "cmd-1", "version", time.Now())
	if out.State != executor.Completed {
		t.Fatalf("State = %v, want Completed", out.State)
	}
	if !out.Result.IsSuccess {
		t.Errorf("IsSuccess = false, want true")
	}
	if !strings.Contains(out.Result.OutputText, "line one") {
		t.Errorf("OutputText = %q, missing stdout line", out.Result.OutputText)
	}
	if !strings.Contains(out.Result.OutputText, cdbsup.StderrSeparator) || !strings.Contains(out.Result.OutputText, "line two") {
		t.Errorf("OutputText = %q, missing stderr section", out.Result.OutputText)
	}
	if strings.Contains(out.Result.OutputText, "noise before start") {
		t.Errorf("OutputText = %q, pre-start noise should have been discarded", out.Result.OutputText)
	}
}

func TestExecuteWriteFailure(t *testing.T) {
	w := &recordingWriter{writeErr: errors.New("broken pipe")}
	lines := make(chan pump.Line)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Second, 0, 0)

	out := e.Execute(context.Background(), "cmd-1", "version", time.Now())
	if out.State != executor.Failed {
		t.Fatalf("State = %v, want Failed", out.State)
	}
	if out.Result.ErrorMessage == "" {
		t.Error("ErrorMessage is empty, want a descriptive write-failure message")
	}
}

func TestExecuteTimeout(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), 20*time.Millisecond, 0, 0)

	out := e.Execute(context.Background(), "cmd-1", "hang", time.Now())
	if out.State != executor.Failed {
		t.Fatalf("State = %v, want Failed (timeout)", out.State)
	}
	if out.Result.ErrorMessage != cdbsup.ErrTimeout.Error() {
		t.Errorf("ErrorMessage = %q, want %q", out.Result.ErrorMessage, cdbsup.ErrTimeout.Error())
	}
	if !strings.Contains(out.Result.OutputText, "timed out") {
		t.Errorf("OutputText = %q, want it to contain %q", out.Result.OutputText, "timed out")
	}
	if w.interrupted == 0 {
		t.Error("expected a best-effort interrupt on timeout")
	}
}

func TestExecuteIdleTimeoutDistinctFromCommandTimeout(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line, 8)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Hour, 20*time.Millisecond, 0)

	go func() {
		for w.lastWritten() == "" {
			time.Sleep(time.Millisecond)
		}
		start, _ := extractMarkers(w.lastWritten())
		lines <- pump.Line{Text: start}
		// Then go silent past idle_timeout without ever sending the end
		// sentinel; command_timeout is an hour so only idle_timeout can fire.
	}()

	out := e.Execute(context.Background(), "cmd-1", "version", time.Now())
	if out.State != executor.Failed {
		t.Fatalf("State = %v, want Failed (idle timeout)", out.State)
	}
	if out.Result.ErrorMessage != cdbsup.ErrIdleTimeout.Error() {
		t.Errorf("ErrorMessage = %q, want %q", out.Result.ErrorMessage, cdbsup.ErrIdleTimeout.Error())
	}
	if !strings.Contains(out.Result.OutputText, "timed out") {
		t.Errorf("OutputText = %q, want it to contain %q", out.Result.OutputText, "timed out")
	}
}

func TestExecuteExternalCancellation(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Hour, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out := e.Execute(ctx, "cmd-1", "hang", time.Now())
	if out.State != executor.Cancelled {
		t.Fatalf("State = %v, want Cancelled", out.State)
	}
	if !strings.Contains(out.Result.OutputText, "cancelled") {
		t.Errorf("OutputText = %q, want it to contain %q", out.Result.OutputText, "cancelled")
	}
}

func TestExecuteProcessExitMidCommand(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Hour, 0, 0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()

	out := e.Execute(context.Background(), "cmd-1", "version", time.Now())
	if out.State != executor.Failed {
		t.Fatalf("State = %v, want Failed", out.State)
	}
	if out.Result.ErrorMessage != cdbsup.ErrChildExited.Error() {
		t.Errorf("ErrorMessage = %q, want %q", out.Result.ErrorMessage, cdbsup.ErrChildExited.Error())
	}
	if !strings.Contains(out.Result.OutputText, "session terminated") {
		t.Errorf("OutputText = %q, want it to contain %q", out.Result.OutputText, "session terminated")
	}
}

func TestExecuteDrainsResidualOutputAfterEndSentinelWithinOutputReadTimeout(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line, 8)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Second, 0, 50*time.Millisecond)

	go func() {
		for w.lastWritten() == "" {
			time.Sleep(time.Millisecond)
		}
		start, end := extractMarkers(w.lastWritten())
		lines <- pump.Line{Text: start}
		lines <- pump.Line{Text: "on-time stdout"}
		lines <- pump.Line{Text: end}
		// Stray stderr line that lags behind the end sentinel, simulating
		// the two streams' independent pump goroutines racing each other.
		lines <- pump.Line{Text: "late stderr", IsStderr: true}
	}()

	out := e.Execute(context.Background(), "cmd-1", "version", time.Now())
	if out.State != executor.Completed {
		t.Fatalf("State = %v, want Completed", out.State)
	}
	if !strings.Contains(out.Result.OutputText, "late stderr") {
		t.Errorf("OutputText = %q, want it to contain the residual line drained after the end sentinel", out.Result.OutputText)
	}
}

func TestExecuteBatchFramesSingleSentinelPair(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line, 8)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Second, 0, 0)

	go func() {
		for w.lastWritten() == "" {
			time.Sleep(time.Millisecond)
		}
		start, end := extractMarkers(w.lastWritten())
		lines <- pump.Line{Text: start}
		lines <- pump.Line{Text: "batch output"}
		lines <- pump.Line{Text: end}
	}()

	out := e.ExecuteBatch(context.Background(), "batch-1", []string{"r", "kP"}, time.Now())
	if out.State != executor.Completed {
		t.Fatalf("State = %v, want Completed", out.State)
	}
	written := w.lastWritten()
	if strings.Count(written, ".echo") != 2 {
		t.Errorf("compound line = %q, want exactly one sentinel pair (2 .echo occurrences)", written)
	}
}

func TestSerializesConsecutiveExecutions(t *testing.T) {
	w := &recordingWriter{}
	lines := make(chan pump.Line, 8)
	done := make(chan struct{})
	e := executor.New(nil, w, lines, done, cdbsup.DefaultSentinels(), time.Second, 0, 0)

	runOne := func(id string) executor.Outcome {
		go func() {
			for w.lastWritten() == "" {
				time.Sleep(time.Millisecond)
			}
			start, end := extractMarkers(w.lastWritten())
			lines <- pump.Line{Text: start}
			lines <- pump.Line{Text: end}
		}()
		out := e.Execute(context.Background(), id, "version", time.Now())
		w.mu.Lock()
		w.written = nil
		w.mu.Unlock()
		return out
	}

	if out := runOne("a"); out.State != executor.Completed {
		t.Fatalf("first Execute() State = %v, want Completed", out.State)
	}
	if out := runOne("b"); out.State != executor.Completed {
		t.Fatalf("second Execute() State = %v, want Completed", out.State)
	}
}
