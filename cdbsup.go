// Package cdbsup supervises a single long-lived interactive Windows
// debugger process (CDB) and converts concurrent, asynchronous client
// command submissions into safely serialized interaction with that
// process's free-form, line-oriented stdin/stdout dialog.
//
// The package exposes an asynchronous "submit command, get id, poll
// result, cancel" interface with explicit lifecycle, deterministic
// completion detection driven by injected sentinel markers, bounded
// waits, and a bounded result cache that survives command completion.
//
// The primary types are:
//
//   - [Session] — composition root for one debugger target
//   - [SessionConfig] — immutable per-session configuration
//   - [CommandResult] — the terminal outcome of one submitted command
//
// Quick start:
//
//	sess := cdbsup.New(logger, cdbsup.DefaultConfig())
//	if ok, err := sess.Start("cdb.exe", "-z", "dump.dmp"); !ok {
//	    log.Fatal(err)
//	}
//	id, err := sess.Submit("version")
//	// ... later, from any goroutine ...
//	text := sess.GetResult(id)
package cdbsup
