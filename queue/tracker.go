// Package queue implements spec.md §4.7's CommandQueue: the externally
// visible façade over submission, cancellation, status introspection, and
// a single FIFO processor loop driving the executor.
package queue

import (
	"context"
	"sync"
	"time"

	cdbsup "github.com/CapulusCodeNinja/mcp-nexus-cdb"
)

// State mirrors spec.md §3's QueuedCommand.state, including the two
// queue-internal states (Queued, Executing) the executor package never
// sees.
type State int

const (
	Queued State = iota
	Executing
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Queued:
		return "Queued"
	case Executing:
		return "Executing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// isTerminal reports whether s is one of Completed/Failed/Cancelled
// (spec §3 "Completed/Failed/Cancelled are terminal").
func (s State) isTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// trackedCommand is CommandQueue's internal representation of one
// QueuedCommand (spec §3). Exclusively owned by the queue's tracker; the
// caller holds only the id returned by Submit.
type trackedCommand struct {
	id          string
	text        string
	subcommands []string // non-nil for batch submissions
	isBatch     bool
	enqueuedAt  time.Time

	mu     sync.Mutex
	state  State
	result cdbsup.CommandResult

	externalCancel context.CancelFunc // set once execution starts; nil while Queued
}

func newTrackedCommand(id, text string) *trackedCommand {
	return &trackedCommand{
		id:         id,
		text:       text,
		enqueuedAt: time.Now(),
		state:      Queued,
	}
}

func newTrackedBatch(id string, subcommands []string) *trackedCommand {
	return &trackedCommand{
		id:          id,
		subcommands: subcommands,
		isBatch:     true,
		enqueuedAt:  time.Now(),
		state:       Queued,
	}
}

func (tc *trackedCommand) currentState() State {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.state
}

// transitionTo moves tc to newState exactly once; a command already in a
// terminal state never transitions again (spec §3 "Completed/Failed/
// Cancelled are terminal"). Returns the old state and whether the
// transition actually happened.
func (tc *trackedCommand) transitionTo(newState State, result cdbsup.CommandResult) (old State, changed bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	old = tc.state
	if old.isTerminal() {
		return old, false
	}
	tc.state = newState
	if newState.isTerminal() {
		tc.result = result
	}
	return old, true
}

// triggerCancel triggers the tracked command's cancellation handle at most
// once (spec §3 "cancellation_handle is triggered at most once"). Safe to
// call regardless of current state.
func (tc *trackedCommand) triggerCancel() {
	tc.mu.Lock()
	cancel := tc.externalCancel
	tc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
