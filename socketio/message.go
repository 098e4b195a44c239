package socketio

import "time"

// Texts of the two synthetic lifecycle events. They travel through the same
// callback as real payloads; inspect Message.Kind to tell them apart from a
// peer that literally sends "connected".
const (
	ConnectedText    = "connected"
	DisconnectedText = "disconnected"
)

// EventKind tags what a Message represents.
type EventKind int

const (
	EventConnected    EventKind = iota // session started, delivered before any payload
	EventMessage                       // one decoded line received from the peer
	EventDisconnected                  // session ended, always the last event
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventMessage:
		return "Message"
	case EventDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Message is one event delivered to a MessageFunc.
type Message struct {
	Kind EventKind
	Text string    // payload line without terminator, or the lifecycle text
	At   time.Time // when the event was produced
}

// IsLifecycle reports whether m is a synthetic connected/disconnected event.
func (m Message) IsLifecycle() bool {
	return m.Kind == EventConnected || m.Kind == EventDisconnected
}

// MessageFunc receives every event of every session. Events of one session
// arrive in order from that session's reader goroutine; events of different
// sessions may interleave, so implementations must be safe for concurrent use.
// The Session argument identifies provenance and can be used to reply.
type MessageFunc func(s *Session, msg Message)

// ErrorFunc is the error sink. It receives a human-readable description of
// bind, dial and write failures and of rejected busy calls.
type ErrorFunc func(message string)
