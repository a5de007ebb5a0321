// Package transport owns the byte-stream connection to the pairing server.
// The Adapter dials, writes encoded frames, feeds inbound bytes through the
// streaming frame decoder, and reports three kinds of events (connected,
// disconnected, received) to a single Sink supplied at construction.
package transport

import (
	"errors"

	"github.com/whisper/anonchat/internal/protocol"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// EventKind identifies a transport event.
type EventKind int

const (
	EventConnected    EventKind = iota // connect attempt finished; Err set on failure
	EventDisconnected                  // connection gone; Err nil for a graceful close
	EventReceived                      // one decoded frame, or a decode failure in Err
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReceived:
		return "received"
	default:
		return "unknown"
	}
}

// Event is delivered to the Sink. Message is only meaningful for a
// successful EventReceived.
type Event struct {
	Kind    EventKind
	Message protocol.Message
	Err     error
}

// Sink receives transport events. Events for one connection are delivered
// one at a time, in order. Implementations should hand the event off to
// their own execution context and return quickly.
type Sink interface {
	HandleTransportEvent(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// HandleTransportEvent calls f(ev).
func (f SinkFunc) HandleTransportEvent(ev Event) { f(ev) }

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Op names the failing transport operation.
type Op string

const (
	OpConnect    Op = "connect"    // dial failed or timed out
	OpDisconnect Op = "disconnect" // connection lost with an I/O error
	OpDecode     Op = "decode"     // inbound frame could not be decoded
	OpEncode     Op = "encode"     // outbound frame could not be encoded
)

// Error wraps a failure with the operation that produced it.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return "transport: " + string(e.Op) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotConnected is returned by Send when there is no open connection.
var ErrNotConnected = errors.New("transport: not connected")

// IsOp reports whether err is a transport Error for op.
func IsOp(err error, op Op) bool {
	var te *Error
	return errors.As(err, &te) && te.Op == op
}
