package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	cdbsup "github.com/CapulusCodeNinja/mcp-nexus-cdb"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/queue"
)

// pollInterval is how often the REPL checks a pending command's result.
// GetResult is a cheap map lookup; polling it is simpler than plumbing a
// completion channel through to an interactive human typing one command
// at a time.
const pollInterval = 50 * time.Millisecond

// runREPL drives s interactively: each line of in is submitted as a
// command, its result printed once resolved, until "exit"/"quit"/EOF.
// ".stats" and ".status" are REPL-local directives, never sent to the
// child process. Grounded on the teacher's examples/interactive/main.go
// read-eval-print loop shape, generalized from multi-turn agent prompts
// to single-shot debugger commands with polled (not streamed) results.
func runREPL(log *zap.Logger, s *cdbsup.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fmt.Fprintln(out, "cdbsup interactive session (type 'exit' to quit, '.stats'/'.status' for introspection)")
	for {
		fmt.Fprint(out, "\ncdb> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			fmt.Fprintln(out, "bye")
			return nil
		case line == ".stats":
			printStats(out, s.Stats())
			continue
		case line == ".status":
			printStatus(out, s.Status())
			continue
		}

		id, err := s.Submit(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, awaitResult(s, id))
	}
	if err := scanner.Err(); err != nil {
		log.Warn("repl input error", zap.Error(err))
		return err
	}
	return nil
}

// awaitResult polls GetResult(id) until it resolves away from the
// "still executing" sentinel.
func awaitResult(s *cdbsup.Session, id string) string {
	for {
		result := s.GetResult(id)
		if result != queue.StillExecutingText {
			return result
		}
		time.Sleep(pollInterval)
	}
}

func printStats(out io.Writer, stats queue.Stats) {
	fmt.Fprintf(out, "queued=%d completed=%d failed=%d cancelled=%d\n",
		stats.Queued, stats.Completed, stats.Failed, stats.Cancelled)
}

func printStatus(out io.Writer, entries []queue.StatusEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "(no tracked commands)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s %s pos=%d\n", e.ID, e.State, e.QueuePosition)
	}
}
