package queue

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cdbsup "github.com/CapulusCodeNinja/mcp-nexus-cdb"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/executor"
)

// Sentinel strings returned by GetResult (spec §4.7 "a stable 'still
// executing' sentinel string" / "a stable 'not found' sentinel string").
const (
	StillExecutingText = "Command is still executing."
	NotFoundText       = "Command not found."
)

// Executor is the queue's view of spec.md §4.5's CommandExecutor.
// Satisfied by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, id, text string, queuedAt time.Time) executor.Outcome
	ExecuteBatch(ctx context.Context, id string, subcommands []string, queuedAt time.Time) executor.Outcome
}

// Cache is the queue's view of spec.md §4.6's ResultCache. Satisfied by
// *cache.ResultCache.
type Cache interface {
	Store(id string, result cdbsup.CommandResult)
	Get(id string) (cdbsup.CommandResult, bool)
	Dispose()
}

// StateChangeEvent is delivered to a NotificationSink on every tracked
// command state transition (spec §6).
type StateChangeEvent struct {
	CommandID string
	OldState  State
	NewState  State
	At        time.Time
}

// NotificationSink receives state-change events (spec §6, optional
// collaborator).
type NotificationSink interface {
	Notify(StateChangeEvent)
}

type noopSink struct{}

func (noopSink) Notify(StateChangeEvent) {}

// ChannelSink is a NotificationSink backed by a buffered channel, useful
// for a CLI that wants to print state transitions as they happen. Notify
// never blocks: once the buffer is full, further events are dropped
// rather than stalling the queue's processor loop.
type ChannelSink struct {
	ch chan StateChangeEvent
}

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 32
	}
	return &ChannelSink{ch: make(chan StateChangeEvent, buffer)}
}

func (s *ChannelSink) Notify(e StateChangeEvent) {
	select {
	case s.ch <- e:
	default:
	}
}

// Events returns the channel of delivered state-change events.
func (s *ChannelSink) Events() <-chan StateChangeEvent {
	return s.ch
}

// StatusEntry is one row of a Status() snapshot (spec §4.7 "status
// snapshot").
type StatusEntry struct {
	ID            string
	State         State
	QueuePosition int
}

// Stats holds the queue's atomic performance counters (spec §4.7
// "Performance counters").
type Stats struct {
	Queued    int64
	Completed int64
	Failed    int64
	Cancelled int64
}

// CommandQueue is spec.md §4.7's externally visible façade: a FIFO
// submission queue with a single processor loop driving an Executor and
// storing results in a Cache. Grounded on the teacher's atomic-counter
// bookkeeping and select-loop processor shape.
type CommandQueue struct {
	log   *zap.Logger
	exec  Executor
	cache Cache
	sink  NotificationSink

	mu       sync.Mutex
	tracker  map[string]*trackedCommand
	pending  []*trackedCommand
	current  *trackedCommand
	disposed bool

	wake          chan struct{}
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	loopDone      chan struct{}

	totalQueued    atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	totalCancelled atomic.Int64
}

// New returns a running CommandQueue. processDone, if non-nil, is closed
// when the child process exits unexpectedly; any still-pending commands
// are then resolved Failed with "session terminated" semantics (spec
// §4.5 "Failure semantics"). log and sink may be nil.
func New(log *zap.Logger, exec Executor, resultCache Cache, sink NotificationSink, processDone <-chan struct{}) *CommandQueue {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = noopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &CommandQueue{
		log:           log.Named("queue"),
		exec:          exec,
		cache:         resultCache,
		sink:          sink,
		tracker:       make(map[string]*trackedCommand),
		wake:          make(chan struct{}, 1),
		sessionCtx:    ctx,
		sessionCancel: cancel,
		loopDone:      make(chan struct{}),
	}
	go q.run()
	if processDone != nil {
		go q.watchProcessExit(processDone)
	}
	return q
}

// Submit places command_text on the FIFO queue and returns its new id
// (spec §4.7 "submit"). Rejects empty/whitespace text and submission to a
// disposed queue.
func (q *CommandQueue) Submit(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", cdbsup.ErrInvalidArgument
	}
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return "", cdbsup.ErrDisposed
	}
	id := uuid.NewString()
	tc := newTrackedCommand(id, text)
	q.tracker[id] = tc
	q.pending = append(q.pending, tc)
	q.mu.Unlock()

	q.totalQueued.Add(1)
	q.wakeProcessor()
	return id, nil
}

// SubmitBatch places a semicolon-joined batch of subcommands on the FIFO
// queue, executed under a single pair of sentinels (spec §4.5 "Batch
// variant").
func (q *CommandQueue) SubmitBatch(subcommands []string) (string, error) {
	if len(subcommands) == 0 {
		return "", cdbsup.ErrInvalidArgument
	}
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return "", cdbsup.ErrDisposed
	}
	id := uuid.NewString()
	tc := newTrackedBatch(id, subcommands)
	q.tracker[id] = tc
	q.pending = append(q.pending, tc)
	q.mu.Unlock()

	q.totalQueued.Add(1)
	q.wakeProcessor()
	return id, nil
}

func (q *CommandQueue) wakeProcessor() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// GetResult returns the cached output for command_id, a stable "still
// executing" sentinel if it has not yet finished, or a stable "not
// found" sentinel for an unknown id (spec §4.7 "get_result").
func (q *CommandQueue) GetResult(commandID string) string {
	q.mu.Lock()
	tc, ok := q.tracker[commandID]
	q.mu.Unlock()

	if ok {
		switch tc.currentState() {
		case Queued, Executing:
			return StillExecutingText
		}
	}
	if result, found := q.cache.Get(commandID); found {
		return result.OutputText
	}
	return NotFoundText
}

// Cancel triggers cancellation of command_id, returning true iff a
// tracked, non-terminal command was found and its cancellation handle
// triggered (spec §4.7 "cancel").
func (q *CommandQueue) Cancel(commandID string) bool {
	if strings.TrimSpace(commandID) == "" {
		return false
	}
	q.mu.Lock()
	tc, ok := q.tracker[commandID]
	q.mu.Unlock()
	if !ok {
		return false
	}

	switch tc.currentState() {
	case Queued:
		q.mu.Lock()
		for i, p := range q.pending {
			if p.id == commandID {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
		q.mu.Unlock()

		now := time.Now()
		result := cdbsup.NewFailureResult(tc.text, cdbsup.ErrCancelled.Error(), nil, nil, tc.enqueuedAt, now, now)
		old, changed := tc.transitionTo(Cancelled, result)
		if !changed {
			return false
		}
		q.totalCancelled.Add(1)
		q.cache.Store(commandID, result)
		q.notify(commandID, old, Cancelled)
		return true

	case Executing:
		tc.triggerCancel()
		return true

	default:
		return false // already terminal
	}
}

// CancelAll cancels every non-terminal tracked command and returns how
// many were actually transitioned (spec §4.7 "cancel_all").
func (q *CommandQueue) CancelAll(reason string) int {
	q.mu.Lock()
	ids := make([]string, 0, len(q.tracker))
	for id, tc := range q.tracker {
		if !tc.currentState().isTerminal() {
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()

	count := 0
	for _, id := range ids {
		if q.Cancel(id) {
			count++
		}
	}
	return count
}

// Status enumerates all tracked commands with their current state and
// queue position: 0 for the one executing, 1..N for queued ones in FIFO
// order, -1 otherwise (spec §4.7 "status snapshot").
func (q *CommandQueue) Status() []StatusEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	positions := make(map[string]int, len(q.pending))
	for i, tc := range q.pending {
		positions[tc.id] = i + 1
	}

	entries := make([]StatusEntry, 0, len(q.tracker))
	for id, tc := range q.tracker {
		pos := -1
		if q.current != nil && q.current.id == id {
			pos = 0
		} else if p, ok := positions[id]; ok {
			pos = p
		}
		entries = append(entries, StatusEntry{ID: id, State: tc.currentState(), QueuePosition: pos})
	}
	return entries
}

// TriggerCleanup prunes terminal tracked commands whose result finished
// more than retention ago (spec §4.7 "trigger_cleanup"). Errors if the
// queue is disposed.
func (q *CommandQueue) TriggerCleanup(retention time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disposed {
		return cdbsup.ErrDisposed
	}
	cutoff := time.Now().Add(-retention)
	for id, tc := range q.tracker {
		if !tc.currentState().isTerminal() {
			continue
		}
		tc.mu.Lock()
		finishedAt := tc.result.FinishedAt
		tc.mu.Unlock()
		if finishedAt.Before(cutoff) {
			delete(q.tracker, id)
		}
	}
	return nil
}

// Stats returns a snapshot of the queue's atomic performance counters.
func (q *CommandQueue) Stats() Stats {
	return Stats{
		Queued:    q.totalQueued.Load(),
		Completed: q.totalCompleted.Load(),
		Failed:    q.totalFailed.Load(),
		Cancelled: q.totalCancelled.Load(),
	}
}

// Dispose stops the processor loop, cancels every outstanding command
// with a "disposed" reason, and disposes the cache (spec §4.7
// "Disposal").
func (q *CommandQueue) Dispose() {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	q.disposed = true
	q.mu.Unlock()

	q.CancelAll("disposed")
	q.sessionCancel()
	<-q.loopDone
	q.cache.Dispose()
}

// run is the queue's single FIFO processor loop (spec §4.7 "Processor
// loop"): one goroutine dequeues in submission order and drives the
// Executor to completion before picking up the next command.
func (q *CommandQueue) run() {
	defer close(q.loopDone)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			disposed := q.disposed
			q.mu.Unlock()
			if disposed {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-q.sessionCtx.Done():
				return
			}
		}
		tc := q.pending[0]
		q.pending = q.pending[1:]
		q.current = tc
		q.mu.Unlock()

		ctx, cancel := context.WithCancel(q.sessionCtx)
		tc.mu.Lock()
		tc.externalCancel = cancel
		tc.mu.Unlock()

		_, changed := tc.transitionTo(Executing, cdbsup.CommandResult{})
		if !changed {
			// Cancelled while still Queued, in the race window between
			// dequeue and this transition; nothing to execute.
			cancel()
			q.mu.Lock()
			q.current = nil
			q.mu.Unlock()
			continue
		}
		q.notify(tc.id, Queued, Executing)

		var out executor.Outcome
		if tc.isBatch {
			out = q.exec.ExecuteBatch(ctx, tc.id, tc.subcommands, tc.enqueuedAt)
		} else {
			out = q.exec.Execute(ctx, tc.id, tc.text, tc.enqueuedAt)
		}
		cancel()

		var newState State
		switch out.State {
		case executor.Completed:
			newState = Completed
			q.totalCompleted.Add(1)
		case executor.Cancelled:
			newState = Cancelled
			q.totalCancelled.Add(1)
		default:
			newState = Failed
			q.totalFailed.Add(1)
		}

		q.cache.Store(tc.id, out.Result)
		oldState, _ := tc.transitionTo(newState, out.Result)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()

		q.notify(tc.id, oldState, newState)
	}
}

// watchProcessExit fails every still-pending command once the child
// process exits unexpectedly (spec §4.5 "any queued commands resolved as
// Failed with 'session terminated'"). The command currently executing,
// if any, is handled by the Executor itself via its own processDone
// channel.
func (q *CommandQueue) watchProcessExit(done <-chan struct{}) {
	select {
	case <-done:
		q.failAllPending(cdbsup.ErrChildExited.Error())
	case <-q.sessionCtx.Done():
	}
}

func (q *CommandQueue) failAllPending(reason string) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	now := time.Now()
	for _, tc := range pending {
		result := cdbsup.NewFailureResult(tc.text, reason, nil, nil, tc.enqueuedAt, now, now)
		old, changed := tc.transitionTo(Failed, result)
		if changed {
			q.totalFailed.Add(1)
			q.cache.Store(tc.id, result)
			q.notify(tc.id, old, Failed)
		}
	}
}

func (q *CommandQueue) notify(id string, old, newState State) {
	q.sink.Notify(StateChangeEvent{CommandID: id, OldState: old, NewState: newState, At: time.Now()})
}
