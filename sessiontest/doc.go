// Package sessiontest provides a compliance test suite for Supervisor
// implementations — the session-level contract a caller actually drives
// (start, submit, cancel, introspect, stop).
//
// Test authors call [RunSupervisorTests] with a factory function that
// returns a fresh, unstarted implementation under test and the path to a
// debugger-shaped executable to start it against.
//
// Example usage in a package that builds its own Supervisor:
//
//	func TestCompliance(t *testing.T) {
//	    sessiontest.RunSupervisorTests(t, func() sessiontest.Supervisor {
//	        return cdbsup.New(nil, cdbsup.DefaultConfig())
//	    }, fakeCDBPath)
//	}
package sessiontest
