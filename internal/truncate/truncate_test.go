package truncate

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestStringUnderLimitUnchanged(t *testing.T) {
	if got := String("short", 100); got != "short" {
		t.Errorf("String() = %q, want unchanged", got)
	}
}

func TestStringOverLimitTruncatesWithSuffix(t *testing.T) {
	s := strings.Repeat("a", 50)
	got := String(s, 10)
	if !strings.HasSuffix(got, Suffix) {
		t.Errorf("String() = %q, want suffix %q", got, Suffix)
	}
	if len(got) != 10+len(Suffix) {
		t.Errorf("len(String()) = %d, want %d", len(got), 10+len(Suffix))
	}
}

func TestStringNeverSplitsAMultiByteRune(t *testing.T) {
	// "é" is 2 bytes (U+00E9); place one right at the cut boundary.
	s := "ab" + "é" + "cd"
	got := String(s, 3) // would land mid-rune without backtracking
	trimmed := strings.TrimSuffix(got, Suffix)
	if !utf8.ValidString(trimmed) {
		t.Errorf("String() produced invalid UTF-8: %q", trimmed)
	}
}

func TestStringZeroOrNegativeLimitIsNoop(t *testing.T) {
	if got := String("anything", 0); got != "anything" {
		t.Errorf("String() with maxBytes=0 = %q, want unchanged", got)
	}
}
