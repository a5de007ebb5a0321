// Package session models the client's connection and chat session state.
// State is a tagged union; Store is the single mutable cell that holds it and
// notifies observers of every change.
package session

import (
	"github.com/whisper/anonchat/internal/chat"
)

// Kind discriminates the connection states.
type Kind int

const (
	Disconnected Kind = iota // initial; Err may carry the reason
	Connecting
	Idle      // connected, not paired
	Waiting   // partner requested, awaiting match
	InSession // paired; Messages holds the transcript
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case InSession:
		return "in_session"
	default:
		return "unknown"
	}
}

// State is one value of the connection state machine. Err is only set for
// Disconnected and Messages only for InSession.
type State struct {
	Kind     Kind
	Err      error
	Messages []chat.Message
}

// NewDisconnected returns the Disconnected state with an optional error.
func NewDisconnected(err error) State {
	return State{Kind: Disconnected, Err: err}
}

// NewConnecting returns the Connecting state.
func NewConnecting() State { return State{Kind: Connecting} }

// NewIdle returns the Idle state.
func NewIdle() State { return State{Kind: Idle} }

// NewWaiting returns the Waiting state.
func NewWaiting() State { return State{Kind: Waiting} }

// NewInSession returns the InSession state holding messages.
func NewInSession(messages []chat.Message) State {
	if messages == nil {
		messages = []chat.Message{}
	}
	return State{Kind: InSession, Messages: messages}
}

// WithMessage returns an InSession state with m appended. The receiver's
// transcript is left untouched.
func (s State) WithMessage(m chat.Message) State {
	next := make([]chat.Message, len(s.Messages), len(s.Messages)+1)
	copy(next, s.Messages)
	return NewInSession(append(next, m))
}

// String returns the kind, plus the error for a failed Disconnected state.
func (s State) String() string {
	if s.Kind == Disconnected && s.Err != nil {
		return s.Kind.String() + ": " + s.Err.Error()
	}
	return s.Kind.String()
}
