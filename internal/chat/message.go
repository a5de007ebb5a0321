// Package chat holds the UI-facing chat messages exchanged inside a session.
// Messages are created by the connection state machine for every text sent or
// received and are never modified afterwards.
package chat

import (
	"github.com/google/uuid"
)

// Direction tells whether a message was typed locally or came from the partner.
type Direction int

const (
	Sent Direction = iota
	Received
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return "unknown"
	}
}

// Message is one line of the session transcript.
type Message struct {
	ID        uuid.UUID // unique per message, stable for rendering
	Direction Direction
	Text      string
}

// NewSent creates a message typed by the local user.
func NewSent(text string) Message {
	return Message{ID: uuid.New(), Direction: Sent, Text: text}
}

// NewReceived creates a message relayed from the partner.
func NewReceived(text string) Message {
	return Message{ID: uuid.New(), Direction: Received, Text: text}
}
