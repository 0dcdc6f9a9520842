package cdbsup

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CapulusCodeNinja/mcp-nexus-cdb/cache"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/executor"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/process"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/pump"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/queue"
)

// CommandPreprocessor rewrites a command's text before it reaches the
// executor — rewriting paths, creating directories the command needs,
// and similar (spec §6 collaborator contract). Must be a pure function
// of its input.
type CommandPreprocessor func(commandText string) string

// Session is spec.md §4.8's composition root: it owns a ProcessManager,
// StreamPump, CommandExecutor, CommandQueue, and ResultCache, and exposes
// the session-level operations a caller actually needs. Grounded on the
// teacher's top-level Engine construction (engine/cli/engine.go) and its
// functional-options pattern (EngineOption).
type Session struct {
	log       *zap.Logger
	cfg       SessionConfig
	sentinels Sentinels

	preprocessor CommandPreprocessor
	sink         queue.NotificationSink
	cacheOpts    cache.Options
	cacheOptsSet bool

	proc  *process.Manager
	pump  *pump.Pump
	cache *cache.ResultCache

	mu      sync.Mutex
	exec    *executor.Executor
	queue   *queue.CommandQueue
	started bool
	stopped bool
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithPreprocessor installs the optional CommandPreprocessor gate (spec
// §4.8, §6). Only consulted when cfg.CommandPreprocessingEnabled is true.
func WithPreprocessor(p CommandPreprocessor) Option {
	return func(s *Session) { s.preprocessor = p }
}

// WithNotificationSink installs a queue.NotificationSink to observe
// command state transitions (spec §6).
func WithNotificationSink(sink queue.NotificationSink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithCacheOptions overrides the ResultCache's bounds and pressure
// providers (spec §4.6). Without this option, cache.DefaultOptions() is
// used and adaptive pressure eviction is disabled.
func WithCacheOptions(opts cache.Options) Option {
	return func(s *Session) { s.cacheOpts, s.cacheOptsSet = opts, true }
}

// New returns an idle Session; call Start to spawn the child process. log
// may be nil.
func New(log *zap.Logger, cfg SessionConfig, opts ...Option) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		log:       log.Named("session"),
		cfg:       cfg,
		sentinels: DefaultSentinels(),
		proc:      process.New(log),
		pump:      pump.New(log),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheOptsSet {
		s.cache = cache.New(s.cacheOpts)
	} else {
		s.cache = cache.New(cache.DefaultOptions())
	}
	return s
}

// Start spawns the child debugger process and wires the executor/queue
// pipeline behind it (spec §4.8 "start(target, args?) → bool"). Start is
// idempotent: a second call while already Ready returns (true, nil)
// without re-spawning.
func (s *Session) Start(executablePath string, args ...string) (bool, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return s.proc.IsActive(), nil
	}
	s.started = true
	s.mu.Unlock()

	ok, err := s.proc.Start(s.cfg.ExecutablePathOverride, executablePath, args, s.buildEnv())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLaunchFailure, err)
	}
	if !ok {
		return false, nil
	}

	s.pump.Start(context.Background(), s.proc.Stdout(), s.proc.Stderr())

	s.mu.Lock()
	s.exec = executor.New(s.log, s.proc, s.pump.Lines(), s.proc.Done(), s.sentinels, s.cfg.CommandTimeout, s.cfg.IdleTimeout, s.cfg.OutputReadTimeout)
	s.queue = queue.New(s.log, s.exec, s.cache, s.sink, s.proc.Done())
	s.mu.Unlock()

	// spec §4.3/§6 startup_delay: the minimum delay after spawn before the
	// first command is sent, independent of any prompt-detection attempt.
	time.Sleep(s.cfg.StartupDelay)

	return true, nil
}

// buildEnv derives the child process's environment: the parent's
// environment plus symbol-server retry count and an optional symbol
// search path override (spec §4.3 "Environment carries symbol-server
// timeout and retry variables and optional symbol-search-path override").
func (s *Session) buildEnv() []string {
	env := os.Environ()
	env = append(env, fmt.Sprintf("CDBSUP_SYMBOL_SERVER_RETRIES=%d", s.cfg.SymbolServerRetries))
	if s.cfg.SymbolSearchPath != "" {
		env = append(env, "_NT_SYMBOL_PATH="+s.cfg.SymbolSearchPath)
	}
	return env
}

// Stop terminates the child process and drains the command queue (spec
// §4.8 "stop() → bool"). Idempotent: a second call returns (true, nil).
func (s *Session) Stop() (bool, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return true, nil
	}
	s.stopped = true
	q := s.queue
	s.mu.Unlock()

	if q != nil {
		q.CancelAll("session stopping")
		q.Dispose()
	}
	if err := s.proc.Stop(context.Background()); err != nil {
		return false, err
	}
	return true, nil
}

// IsActive reports whether the child process is Ready and has consumed
// its initial output (spec §4.3, §4.8).
func (s *Session) IsActive() bool {
	return s.proc.IsActive()
}

// Submit passes command_text through the optional preprocessor (spec §6)
// and places it on the command queue, returning its id.
func (s *Session) Submit(commandText string) (string, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return "", ErrInvalidState
	}
	return q.Submit(s.preprocess(commandText))
}

// SubmitBatch places a semicolon-joined batch of subcommands on the
// queue, executed under a single pair of sentinels (spec §4.5 "Batch
// variant"). Each subcommand individually passes through the optional
// preprocessor.
func (s *Session) SubmitBatch(subcommands []string) (string, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return "", ErrInvalidState
	}
	processed := make([]string, len(subcommands))
	for i, c := range subcommands {
		processed[i] = s.preprocess(c)
	}
	return q.SubmitBatch(processed)
}

func (s *Session) preprocess(commandText string) string {
	if !s.cfg.CommandPreprocessingEnabled {
		return commandText
	}
	if s.preprocessor == nil {
		s.log.Warn("command preprocessing enabled but no preprocessor configured; passing text through unchanged")
		return commandText
	}
	return s.preprocessor(commandText)
}

// GetResult returns command_id's output, a "still executing" sentinel,
// or a "not found" sentinel (spec §4.7 passthrough).
func (s *Session) GetResult(commandID string) string {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return queue.NotFoundText
	}
	return q.GetResult(commandID)
}

// Cancel cancels command_id (spec §4.7 passthrough).
func (s *Session) Cancel(commandID string) bool {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return false
	}
	return q.Cancel(commandID)
}

// CancelAll cancels every non-terminal tracked command (spec §4.7
// passthrough).
func (s *Session) CancelAll(reason string) int {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.CancelAll(reason)
}

// Status enumerates tracked commands (spec §4.7 passthrough).
func (s *Session) Status() []queue.StatusEntry {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil
	}
	return q.Status()
}

// Stats returns the queue's performance counters (spec §4.7, §6
// "stats()/introspection").
func (s *Session) Stats() queue.Stats {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return queue.Stats{}
	}
	return q.Stats()
}

// TriggerCleanup prunes completed tracker entries older than retention
// (spec §4.7 passthrough).
func (s *Session) TriggerCleanup(retention time.Duration) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return ErrInvalidState
	}
	return q.TriggerCleanup(retention)
}
