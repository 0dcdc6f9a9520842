// Package parser implements spec.md §4.2's OutputParser: a stateful,
// single-consumer recognizer that classifies each received line as a
// start sentinel, end sentinel, prompt/structural completion, or payload,
// given a per-command context. It is grounded on the teacher's
// classification-before-consumption split (engine/cli/process.go's
// ParseLine vs scanLines) and on the SentinelFilter pattern's
// "check sentinel success before handing the line to the consumer"
// ordering (other_examples/.../sentinelfilter.go.go).
package parser

import (
	"strings"

	"github.com/CapulusCodeNinja/mcp-nexus-cdb/pattern"
)

// Classification identifies what a line means to the currently executing
// command (spec §4.2).
type Classification int

const (
	// Payload is ordinary command output.
	Payload Classification = iota
	// StartSentinel marks the beginning of a command's payload region.
	// Never itself a completion signal (spec §4.2 invariant).
	StartSentinel
	// EndSentinel marks the deterministic, terminal end of a command.
	EndSentinel
	// CompletePrompt is a heuristic completion via the debugger prompt.
	CompletePrompt
	// CompleteStructural is a heuristic completion via a curated
	// ultra-safe structural marker.
	CompleteStructural
)

// IsComplete reports whether c is one of the three classifications that
// terminate a command (spec §4.2 decision order items 1, 3, 4).
func (c Classification) IsComplete() bool {
	return c == EndSentinel || c == CompletePrompt || c == CompleteStructural
}

func (c Classification) String() string {
	switch c {
	case Payload:
		return "Payload"
	case StartSentinel:
		return "StartSentinel"
	case EndSentinel:
		return "EndSentinel"
	case CompletePrompt:
		return "CompletePrompt"
	case CompleteStructural:
		return "CompleteStructural"
	default:
		return "Unknown"
	}
}

// Parser is a stateful, single-consumer line classifier (spec §4.2, §3
// "Parser state"). A Parser must not be used concurrently from more than
// one goroutine; the executor owns it exclusively.
type Parser struct {
	currentCommandID string
	startMarker      string
	endMarker        string
	inCommand        bool
	terminated       bool // true once an end sentinel has been seen for the current command
}

// New returns a Parser with no current command set.
func New() *Parser {
	return &Parser{}
}

// SetCurrentCommand resets per-command state and stores the command's id and
// sentinel markers, per spec §4.2's set_current_command operation. Must
// be called before feeding lines for a new command.
func (p *Parser) SetCurrentCommand(commandID, startMarker, endMarker string) {
	p.currentCommandID = commandID
	p.startMarker = startMarker
	p.endMarker = endMarker
	p.inCommand = false
	p.terminated = false
}

// Reset clears parser state, including the command's markers, and is safe
// to call redundantly. Classify does not call it: after an end sentinel
// the parser stays terminated until SetCurrentCommand is called again.
func (p *Parser) Reset() {
	p.currentCommandID = ""
	p.startMarker = ""
	p.endMarker = ""
	p.inCommand = false
	p.terminated = false
}

// InCommand reports whether a start sentinel has been observed for the
// current command and no terminal classification has occurred yet.
func (p *Parser) InCommand() bool {
	return p.inCommand && !p.terminated
}

// Classify applies spec §4.2's fixed decision order (highest priority
// first): EndSentinel > StartSentinel > Prompt > UltraSafe > Payload.
// Once an end sentinel has been seen, Classify returns Payload for all
// further lines until SetCurrentCommand is called again (spec §4.2
// invariant: "must not emit further completions until set_current_command
// is called again").
func (p *Parser) Classify(line string) Classification {
	if p.terminated {
		return Payload
	}

	if p.endMarker != "" && strings.Contains(line, p.endMarker) {
		p.terminated = true
		p.inCommand = false
		return EndSentinel
	}
	if p.startMarker != "" && strings.Contains(line, p.startMarker) {
		p.inCommand = true
		return StartSentinel
	}
	if pattern.IsPrompt(line) {
		p.inCommand = false
		return CompletePrompt
	}
	if pattern.IsUltraSafeCompletion(line) {
		p.inCommand = false
		return CompleteStructural
	}
	return Payload
}
