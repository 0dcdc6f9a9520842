package cdbsup

import "fmt"

// Sentinel strings (spec §3, §6). Stable across a release; each may be
// suffixed with a per-command nonce (see [Sentinels.ForCommand]) so that
// payload text containing the literal base string can never be confused
// with command framing (spec §9 Open Question — this repo answers yes).
const (
	startMarkerBase      = "CDBSUP_SENTINEL_COMMAND_START"
	endMarkerBase        = "CDBSUP_SENTINEL_COMMAND_END"
	batchStartMarkerBase = "CDBSUP_SENTINEL_BATCH_START"
	batchEndMarkerBase   = "CDBSUP_SENTINEL_BATCH_END"
	commandSeparator     = ";"
)

// Sentinels holds the process-wide sentinel constants (spec §3). It is
// immutable and safe for concurrent use; tests construct their own
// instance when independence from the package-level defaults is needed
// (spec §9 re-architecture note: "a single immutable, process-wide value
// shared by reference").
type Sentinels struct {
	StartMarker      string
	EndMarker        string
	BatchStartMarker string
	BatchEndMarker   string
	CommandSeparator string
}

// DefaultSentinels returns the package's stable sentinel strings.
func DefaultSentinels() Sentinels {
	return Sentinels{
		StartMarker:      startMarkerBase,
		EndMarker:        endMarkerBase,
		BatchStartMarker: batchStartMarkerBase,
		BatchEndMarker:   batchEndMarkerBase,
		CommandSeparator: commandSeparator,
	}
}

// CommandSentinels holds the nonce-suffixed start/end markers used to
// frame one specific command's output region.
type CommandSentinels struct {
	Start string
	End   string
}

// ForCommand derives per-command sentinels by suffixing the base markers
// with nonce (typically the command's id). Both markers share the same
// nonce, per spec §9's constraint ("an implementation MAY add a nonce so
// long as both markers share it per command").
func (s Sentinels) ForCommand(nonce string) CommandSentinels {
	return CommandSentinels{
		Start: fmt.Sprintf("%s_%s", s.StartMarker, nonce),
		End:   fmt.Sprintf("%s_%s", s.EndMarker, nonce),
	}
}

// ForBatch derives per-batch sentinels the same way, for the batch
// variant of command execution (spec §4.5 "Batch variant").
func (s Sentinels) ForBatch(nonce string) CommandSentinels {
	return CommandSentinels{
		Start: fmt.Sprintf("%s_%s", s.BatchStartMarker, nonce),
		End:   fmt.Sprintf("%s_%s", s.BatchEndMarker, nonce),
	}
}

// FrameCommand builds the compound line written to the child's stdin for
// a single command (spec §4.5 framing: `.echo <START>; <T>; .echo <END>`).
func FrameCommand(cs CommandSentinels, text string) string {
	return fmt.Sprintf(".echo %s; %s; .echo %s", cs.Start, text, cs.End)
}

// FrameBatch builds the compound line for a semicolon-joined batch of
// subcommands, wrapped in a single pair of sentinels (spec §4.5 "Batch
// variant" — no per-subcommand sentinels).
func FrameBatch(cs CommandSentinels, joinedText string) string {
	return fmt.Sprintf(".echo %s; %s; .echo %s", cs.Start, joinedText, cs.End)
}
