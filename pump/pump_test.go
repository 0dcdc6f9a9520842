package pump

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func collectLines(t *testing.T, p *Pump, timeout time.Duration) []Line {
	t.Helper()
	var got []Line
	deadline := time.After(timeout)
	for {
		select {
		case l, ok := <-p.Lines():
			if !ok {
				return got
			}
			got = append(got, l)
		case <-deadline:
			t.Fatal("timed out waiting for pump to close")
		}
	}
}

func TestSplitsOnLFandCRLF(t *testing.T) {
	p := New(nil)
	ctx := context.Background()
	stdout := strings.NewReader("first\nsecond\r\nthird")
	p.Start(ctx, stdout, nil)

	lines := collectLines(t, p, 2*time.Second)
	want := []string{"first", "second", "third"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i, l := range lines {
		if l.Text != want[i] {
			t.Errorf("line %d = %q, want %q", i, l.Text, want[i])
		}
		if strings.ContainsAny(l.Text, "\r\n") {
			t.Errorf("line %d contains a delimiter: %q", i, l.Text)
		}
	}
}

func TestSplitsOnLoneCR(t *testing.T) {
	p := New(nil)
	stdout := strings.NewReader("alpha\rbeta\rgamma")
	p.Start(context.Background(), stdout, nil)

	lines := collectLines(t, p, 2*time.Second)
	want := []string{"alpha", "beta", "gamma"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i, l := range lines {
		if l.Text != want[i] {
			t.Errorf("line %d = %q, want %q", i, l.Text, want[i])
		}
	}
}

func TestStdoutAndStderrBothDeliveredAndTagged(t *testing.T) {
	p := New(nil)
	stdout := strings.NewReader("out1\nout2\n")
	stderr := strings.NewReader("err1\n")
	p.Start(context.Background(), stdout, stderr)

	lines := collectLines(t, p, 2*time.Second)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %+v", len(lines), lines)
	}
	var sawErr, sawOut int
	for _, l := range lines {
		if l.IsStderr {
			sawErr++
			if l.Text != "err1" {
				t.Errorf("stderr line = %q, want err1", l.Text)
			}
		} else {
			sawOut++
		}
	}
	if sawErr != 1 || sawOut != 2 {
		t.Errorf("sawErr=%d sawOut=%d, want 1,2", sawErr, sawOut)
	}
}

func TestChannelClosesWhenBothStreamsClose(t *testing.T) {
	p := New(nil)
	p.Start(context.Background(), strings.NewReader("a\n"), strings.NewReader("b\n"))

	select {
	case <-time.After(2 * time.Second):
		t.Fatal("Lines() channel never closed")
	case <-func() chan struct{} {
		done := make(chan struct{})
		go func() {
			for range p.Lines() {
			}
			close(done)
		}()
		return done
	}():
	}
}

func TestPartialTrailingLineFlushedOnClose(t *testing.T) {
	p := New(nil)
	// No trailing newline: "tail" should still be flushed as a line.
	p.Start(context.Background(), strings.NewReader("complete\ntail"), nil)

	lines := collectLines(t, p, 2*time.Second)
	if len(lines) != 2 || lines[1].Text != "tail" {
		t.Fatalf("got %+v, want [complete tail]", lines)
	}
}

func TestProducerNeverBlocksOnAbsentConsumer(t *testing.T) {
	p := New(nil)
	var sb strings.Builder
	const numLines = 5000
	for i := 0; i < numLines; i++ {
		sb.WriteString("line\n")
	}
	p.Start(context.Background(), strings.NewReader(sb.String()), nil)

	// Deliberately never read Lines() for a while: the internal queue
	// must absorb every line without the stream-reading goroutine ever
	// blocking on a channel send (spec §4.4 "unbounded ... never
	// backpressure the child").
	time.Sleep(100 * time.Millisecond)

	got := collectLines(t, p, 2*time.Second)
	if len(got) != numLines {
		t.Fatalf("got %d lines, want %d", len(got), numLines)
	}
}

func TestStreamCloseEndsPumpWithoutCancellation(t *testing.T) {
	p := New(nil)
	r, w := io.Pipe()
	p.Start(context.Background(), r, nil)

	go func() {
		io.WriteString(w, "one\ntwo\n")
		w.Close()
	}()

	lines := collectLines(t, p, 2*time.Second)
	if len(lines) != 2 || lines[0].Text != "one" || lines[1].Text != "two" {
		t.Fatalf("got %+v, want [one two]", lines)
	}
}
