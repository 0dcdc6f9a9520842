// Command fakecdb stands in for cdb.exe in tests. It mimics the parts of
// CDB's behavior this package's tests depend on: an initial banner on
// startup, echoing ".echo X" arguments verbatim, printing a numbered
// prompt after each line it receives, and quitting on "q". It never
// understands real debugger commands — it only has to look enough like
// one for the sentinel-framing and completion-detection machinery to be
// exercised end to end.
//
// Grounded on the teacher's engine/cli/claude/testdata/mock-streaming and
// engine/acp/testdata/mock-acp: a tiny program reading stdin line-by-line,
// writing scripted stdout, and exiting on a control command.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

func main() {
	fmt.Println("Microsoft (R) Windows Debugger Version 10.0 (fake)")
	fmt.Println("Copyright (c) Microsoft Corporation. All rights reserved.")
	fmt.Println()
	fmt.Println("Symbol search path is: srv*")
	fmt.Println("Opening dump file")

	n := 0
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "q" {
			fmt.Println("quit: debugger is exiting")
			return
		}
		handleLine(line)
		n++
		fmt.Printf("%d:%03d> \n", 0, n%1000)
	}
}

// handleLine emulates ".echo X; payload; .echo Y" compound lines: split
// on ";" and for each ".echo <tok>" segment, print <tok> verbatim; for
// any other segment, if it's a recognized fake command, print a scripted
// response, otherwise echo it back as unrecognized-command output.
func handleLine(line string) {
	for _, segment := range strings.Split(line, ";") {
		seg := strings.TrimSpace(segment)
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ".echo ") {
			fmt.Println(strings.TrimPrefix(seg, ".echo "))
			continue
		}
		respondTo(seg)
	}
}

func respondTo(cmd string) {
	switch {
	case cmd == "version":
		fmt.Println("Microsoft (R) Windows Debugger Version 10.0 (fake)")
	case cmd == "hang":
		select {} // never responds; used to test timeouts.
	case strings.HasPrefix(cmd, "sleep "):
		// Not a real sleep (keeping this helper dependency-free); callers
		// use "hang" for timeout tests instead.
		fmt.Printf("^ Syntax error in '%s'\n", cmd)
	case cmd == "crash":
		os.Exit(1)
	default:
		fmt.Printf("^ Syntax error in '%s'\n", cmd)
	}
}
