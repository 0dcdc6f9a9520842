// Package pattern implements spec.md §4.1's CompletionPatterns: pure
// predicates recognizing the debugger's interactive prompt and a small
// curated set of ultra-stable structural lines that also mark command
// completion. Patterns are compiled once at package init and hold no
// state of their own (spec §4.1 "The implementation may compile these
// patterns once").
package pattern

import (
	"regexp"
	"strings"
)

// promptAtStart matches the CDB prompt: `<digits>:<exactly-three-digits>
// (:<alnum-_->+)?>`, anchored at the start of the line after optional
// leading whitespace. This shape has been stable across 20+ years of the
// debugger and is the most reliable completion signal (spec §4.1).
var promptAtStart = regexp.MustCompile(`^[ \t]*\d+:\d{3}(:[A-Za-z0-9_-]+)?>`)

// promptAtEnd matches the same shape at the very end of the line, after
// an optional trailing newline.
var promptAtEnd = regexp.MustCompile(`\d+:\d{3}(:[A-Za-z0-9_-]+)?>[ \t]*\n?$`)

// ultraSafePrefixes is the curated list of structural markers that are
// binary-like, localization-stable, and cannot appear mid-payload (spec
// §4.1). Compared case-insensitively against the trimmed line's start.
var ultraSafePrefixes = []string{
	"^ ",              // syntax-error caret line, e.g. "^ Syntax error in ..."
	"modload:",        // module-load notification
	"unload module",   // module-unload notification
	"quit:",           // debugger quit acknowledgement
}

// IsPrompt reports whether line contains the CDB prompt shape either at
// its start (after optional leading whitespace) or at its very end.
func IsPrompt(line string) bool {
	return promptAtStart.MatchString(line) || promptAtEnd.MatchString(line)
}

// IsUltraSafeCompletion reports whether the trimmed line begins with one
// of the curated structural markers. These are never natural-language
// fragments (spec §4.1 explicitly excludes things like "Symbol search
// path is:" — a natural-language string that occurs during dump loading
// and must never terminate a command).
func IsUltraSafeCompletion(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	lower := strings.ToLower(trimmed)
	for _, prefix := range ultraSafePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
