// Package logmsg defines the typed log events a session emits and their
// approximate byte cost for history-budget accounting.
package logmsg

// Kind discriminates the variants of LogMsg.
type Kind int

const (
	// KindStdout is a chunk of stdout text. No implicit newline boundary.
	KindStdout Kind = iota
	// KindStderr is a chunk of stderr text. No implicit newline boundary.
	KindStderr
	// KindJSONPatch is an RFC 6902 patch describing an incremental state delta.
	KindJSONPatch
	// KindSessionID carries the agent's own session identifier, emitted once
	// per spawn as soon as the agent reveals it.
	KindSessionID
	// KindFinished is the terminal sentinel; no further events follow.
	KindFinished
)

// finishedCost is the constant cost attributed to a Finished sentinel.
const finishedCost = 8

// textOverhead approximates per-message framing cost beyond the raw payload.
const textOverhead = 4

// LogMsg is a single observable event on a session.
//
// Exactly one of Text or Patch is meaningful, depending on Kind; SessionID
// carries its payload in Text as well. Construct values with the Stdout,
// Stderr, JSONPatch, SessionIDMsg, and Finished helpers rather than composite
// literals, so the zero value is never mistaken for a real event.
type LogMsg struct {
	Kind  Kind
	Text  string
	Patch []byte // raw serialized RFC 6902 patch, when Kind == KindJSONPatch
}

// Stdout builds a stdout text event.
func Stdout(text string) LogMsg { return LogMsg{Kind: KindStdout, Text: text} }

// Stderr builds a stderr text event.
func Stderr(text string) LogMsg { return LogMsg{Kind: KindStderr, Text: text} }

// JSONPatch builds a JSON-patch event from its already-serialized form.
func JSONPatch(patch []byte) LogMsg { return LogMsg{Kind: KindJSONPatch, Patch: patch} }

// SessionIDMsg builds an event carrying the agent's own session identifier.
func SessionIDMsg(id string) LogMsg { return LogMsg{Kind: KindSessionID, Text: id} }

// Finished builds the terminal sentinel.
func Finished() LogMsg { return LogMsg{Kind: KindFinished} }

// IsFinished reports whether msg is the terminal sentinel.
func (m LogMsg) IsFinished() bool { return m.Kind == KindFinished }

// ApproxBytes estimates the cost msg contributes toward a store's history
// budget: the UTF-8 length of the payload plus a small constant for text
// events, the serialized size for patches, and a fixed constant for Finished.
func (m LogMsg) ApproxBytes() int {
	switch m.Kind {
	case KindStdout, KindStderr, KindSessionID:
		return len(m.Text) + textOverhead
	case KindJSONPatch:
		return len(m.Patch)
	case KindFinished:
		return finishedCost
	default:
		return textOverhead
	}
}
