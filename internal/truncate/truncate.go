// Package truncate provides UTF-8-safe string truncation, used to bound
// a command's text before it reaches a log line (spec.md
// §8 "approximate_size_bytes is a cheap size estimate"; truncation itself
// is an ambient logging concern, not a spec requirement).
//
// Grounded on the teacher's errfmt/stoputil rune-boundary backtracking
// convention for trimming long strings before they reach a log line or a
// terminal.
package truncate

import "unicode/utf8"

// Suffix is appended to a string truncated by [String].
const Suffix = "... (truncated)"

// String returns s unchanged if it fits within maxBytes; otherwise it
// backtracks from maxBytes to the nearest preceding rune boundary so the
// result never splits a multi-byte UTF-8 sequence, then appends Suffix.
func String(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + Suffix
}
