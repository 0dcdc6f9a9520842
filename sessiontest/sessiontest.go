package sessiontest

import (
	"strings"
	"testing"
	"time"

	"github.com/CapulusCodeNinja/mcp-nexus-cdb/queue"
)

// Supervisor is the session-level contract this suite exercises.
// Satisfied by *cdbsup.Session; defined independently here so the suite
// never imports the root package, matching the teacher's compliance-test
// packages testing an interface rather than a concrete type.
type Supervisor interface {
	Start(executablePath string, args ...string) (bool, error)
	Stop() (bool, error)
	IsActive() bool
	Submit(commandText string) (string, error)
	SubmitBatch(subcommands []string) (string, error)
	GetResult(commandID string) string
	Cancel(commandID string) bool
	CancelAll(reason string) int
	Status() []queue.StatusEntry
	Stats() queue.Stats
	TriggerCleanup(retention time.Duration) error
}

// RunSupervisorTests runs every applicable subtest against factory()'s
// output, started against binaryPath. The factory is called once per
// subtest to ensure fresh state; binaryPath is expected to behave like
// the package's testdata/fakecdb helper (banner on start, numbered
// prompt after each line, "version" recognized, "q" to quit).
func RunSupervisorTests(t *testing.T, factory func() Supervisor, binaryPath string) {
	t.Helper()
	t.Run("Lifecycle", func(t *testing.T) { runLifecycleTests(t, factory, binaryPath) })
	t.Run("Submission", func(t *testing.T) { runSubmissionTests(t, factory, binaryPath) })
	t.Run("Cancellation", func(t *testing.T) { runCancellationTests(t, factory, binaryPath) })
	t.Run("Introspection", func(t *testing.T) { runIntrospectionTests(t, factory, binaryPath) })
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// runLifecycleTests tests Start/Stop idempotency and IsActive's shape.
func runLifecycleTests(t *testing.T, factory func() Supervisor, binaryPath string) {
	t.Helper()

	t.Run("IsActiveFalseBeforeStart", func(t *testing.T) {
		s := factory()
		if s.IsActive() {
			t.Error("IsActive() = true before Start")
		}
	})

	t.Run("StartReturnsTrueOnSuccess", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		ok, err := s.Start(binaryPath)
		if err != nil || !ok {
			t.Fatalf("Start() = %v, %v, want true, nil", ok, err)
		}
		if !s.IsActive() {
			t.Error("IsActive() = false after successful Start")
		}
	})

	t.Run("StartIsIdempotent", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("first Start() = %v, %v", ok, err)
		}
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Errorf("second Start() = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("StopIsIdempotent", func(t *testing.T) {
		s := factory()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		if ok, err := s.Stop(); err != nil || !ok {
			t.Fatalf("first Stop() = %v, %v", ok, err)
		}
		if ok, err := s.Stop(); err != nil || !ok {
			t.Errorf("second Stop() = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("StopWithoutStartDoesNotPanic", func(t *testing.T) { //nolint:revive // no assertions — panics are the failure signal
		s := factory()
		_, _ = s.Stop()
	})
}

// runSubmissionTests tests Submit/SubmitBatch/GetResult round-tripping
// through a real (fake) child process.
func runSubmissionTests(t *testing.T, factory func() Supervisor, binaryPath string) {
	t.Helper()

	t.Run("SubmitThenGetResultEventuallyResolves", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		id, err := s.Submit("version")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		waitUntil(t, 3*time.Second, func() bool { return s.GetResult(id) != queue.StillExecutingText })
		if got := s.GetResult(id); got == queue.NotFoundText {
			t.Errorf("GetResult() = %q, want resolved output", got)
		}
	})

	t.Run("GetResultUnknownIDReturnsNotFound", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		if got := s.GetResult("no-such-command-id"); got != queue.NotFoundText {
			t.Errorf("GetResult(unknown) = %q, want %q", got, queue.NotFoundText)
		}
	})

	t.Run("SubmitBatchResolvesAllSubcommands", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		id, err := s.SubmitBatch([]string{"version", "version"})
		if err != nil {
			t.Fatalf("SubmitBatch() error = %v", err)
		}
		waitUntil(t, 3*time.Second, func() bool { return s.GetResult(id) != queue.StillExecutingText })
		got := s.GetResult(id)
		if strings.Count(got, "Debugger Version") < 2 {
			t.Errorf("GetResult(batch) = %q, want two repetitions of the scripted response", got)
		}
	})

	t.Run("SubmitBeforeStartReturnsError", func(t *testing.T) {
		s := factory()
		if _, err := s.Submit("version"); err == nil {
			t.Error("Submit() before Start = nil error, want error")
		}
	})
}

// runCancellationTests tests Cancel/CancelAll's visible effect on Status.
func runCancellationTests(t *testing.T, factory func() Supervisor, binaryPath string) {
	t.Helper()

	t.Run("CancelUnknownIDReturnsFalse", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		if s.Cancel("no-such-command-id") {
			t.Error("Cancel(unknown) = true, want false")
		}
	})

	t.Run("CancelAllReturnsNonNegativeCount", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		if n := s.CancelAll("compliance sweep"); n < 0 {
			t.Errorf("CancelAll() = %d, want >= 0", n)
		}
	})

	t.Run("CancelledCommandGetResultContainsCancelledPhrase", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		id, err := s.Submit("version")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		s.Cancel(id)
		waitUntil(t, 3*time.Second, func() bool { return s.GetResult(id) != queue.StillExecutingText })

		got := s.GetResult(id)
		if got == queue.StillExecutingText || got == queue.NotFoundText {
			t.Fatalf("GetResult(cancelled) = %q, want a resolved result", got)
		}
		if !strings.Contains(got, "cancelled") {
			t.Errorf("GetResult(cancelled) = %q, want it to contain %q", got, "cancelled")
		}
	})
}

// runIntrospectionTests tests Status/Stats/TriggerCleanup's basic shape.
func runIntrospectionTests(t *testing.T, factory func() Supervisor, binaryPath string) {
	t.Helper()

	t.Run("StatsReflectsCompletedSubmission", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		id, err := s.Submit("version")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		waitUntil(t, 3*time.Second, func() bool { return s.GetResult(id) != queue.StillExecutingText })

		stats := s.Stats()
		if stats.Queued < 1 {
			t.Errorf("Stats().Queued = %d, want >= 1", stats.Queued)
		}
	})

	t.Run("TriggerCleanupDoesNotError", func(t *testing.T) {
		s := factory()
		defer s.Stop()
		if ok, err := s.Start(binaryPath); err != nil || !ok {
			t.Fatalf("Start() = %v, %v", ok, err)
		}
		if err := s.TriggerCleanup(time.Minute); err != nil {
			t.Errorf("TriggerCleanup() error = %v, want nil", err)
		}
	})
}
