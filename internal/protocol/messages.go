// Package protocol defines the wire messages exchanged with the pairing
// server and the length-prefixed framing that carries them. Every frame body
// is a JSON object with a single "message" key whose value is a nested,
// externally tagged variant:
//
//	{"message":{"Connection":"End"}}
//	{"message":{"Session":"End"}}
//	{"message":{"Session":"Request"}}
//	{"message":{"Session":"Success"}}
//	{"message":{"Session":{"Value":"<text>"}}}
//
// Decoding is strict: any other shape is rejected with ErrInvalidValue.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Message kinds
// ---------------------------------------------------------------------------

// Kind discriminates the five wire message variants.
type Kind int

const (
	KindConnectionEnd  Kind = iota // server is closing the connection
	KindSessionEnd                 // current chat session ended (either side)
	KindSessionRequest             // client asks to be paired
	KindSessionSuccess             // server found a partner
	KindSessionValue               // chat text within a session
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnectionEnd:
		return "ConnectionEnd"
	case KindSessionEnd:
		return "SessionEnd"
	case KindSessionRequest:
		return "SessionRequest"
	case KindSessionSuccess:
		return "SessionSuccess"
	case KindSessionValue:
		return "SessionValue"
	default:
		return "Unknown"
	}
}

// Message is one wire message. Text is only meaningful for KindSessionValue.
// Messages are comparable with ==.
type Message struct {
	Kind Kind
	Text string
}

// Fixed messages without a payload.
var (
	ConnectionEnd  = Message{Kind: KindConnectionEnd}
	SessionEnd     = Message{Kind: KindSessionEnd}
	SessionRequest = Message{Kind: KindSessionRequest}
	SessionSuccess = Message{Kind: KindSessionSuccess}
)

// SessionValue returns a chat text message.
func SessionValue(text string) Message {
	return Message{Kind: KindSessionValue, Text: text}
}

// String returns a short human-readable form used in logs.
func (m Message) String() string {
	if m.Kind == KindSessionValue {
		return fmt.Sprintf("SessionValue(%q)", m.Text)
	}
	return m.Kind.String()
}

// ---------------------------------------------------------------------------
// JSON keys and values
// ---------------------------------------------------------------------------

const (
	keyMessage    = "message"
	keyConnection = "Connection"
	keySession    = "Session"
	keyValue      = "Value"

	valueEnd     = "End"
	valueRequest = "Request"
	valueSuccess = "Success"
)

// ErrInvalidValue is returned when a body is well-formed JSON but does not
// match any known message shape.
var ErrInvalidValue = errors.New("protocol: invalid value")

// ---------------------------------------------------------------------------
// Body encoding
// ---------------------------------------------------------------------------

// MarshalBody serializes m into its JSON frame body. HTML characters are not
// escaped and non-ASCII text is emitted as raw UTF-8.
func MarshalBody(m Message) ([]byte, error) {
	var inner interface{}

	switch m.Kind {
	case KindConnectionEnd:
		inner = map[string]string{keyConnection: valueEnd}
	case KindSessionEnd:
		inner = map[string]string{keySession: valueEnd}
	case KindSessionRequest:
		inner = map[string]string{keySession: valueRequest}
	case KindSessionSuccess:
		inner = map[string]string{keySession: valueSuccess}
	case KindSessionValue:
		inner = map[string]map[string]string{keySession: {keyValue: m.Text}}
	default:
		return nil, fmt.Errorf("protocol: cannot encode message kind %d: %w", int(m.Kind), ErrInvalidValue)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]interface{}{keyMessage: inner}); err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal body: %w", err)
	}

	// json.Encoder terminates every value with a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// ---------------------------------------------------------------------------
// Body decoding
// ---------------------------------------------------------------------------

// UnmarshalBody parses a JSON frame body into a Message. Malformed JSON
// returns the wrapped syntax error; invalid UTF-8 and any unrecognized shape
// return an error wrapping ErrInvalidValue. No shape ever decodes to a
// default variant.
func UnmarshalBody(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return Message{}, fmt.Errorf("protocol: body is not valid UTF-8: %w", ErrInvalidValue)
	}

	key, raw, err := singleKeyObject(data)
	if err != nil {
		return Message{}, err
	}
	if key != keyMessage {
		return Message{}, fmt.Errorf("protocol: missing %q key: %w", keyMessage, ErrInvalidValue)
	}

	key, raw, err = singleKeyObject(raw)
	if err != nil {
		return Message{}, err
	}

	switch key {
	case keyConnection:
		return decodeConnection(raw)
	case keySession:
		return decodeSession(raw)
	}
	return Message{}, fmt.Errorf("protocol: unknown message variant: %w", ErrInvalidValue)
}

func decodeConnection(raw json.RawMessage) (Message, error) {
	s, ok := decodeString(raw)
	if !ok || s != valueEnd {
		return Message{}, fmt.Errorf("protocol: invalid Connection value %s: %w", raw, ErrInvalidValue)
	}
	return ConnectionEnd, nil
}

func decodeSession(raw json.RawMessage) (Message, error) {
	if s, ok := decodeString(raw); ok {
		switch s {
		case valueEnd:
			return SessionEnd, nil
		case valueRequest:
			return SessionRequest, nil
		case valueSuccess:
			return SessionSuccess, nil
		}
		return Message{}, fmt.Errorf("protocol: invalid Session value %q: %w", s, ErrInvalidValue)
	}

	key, value, err := singleKeyObject(raw)
	if err != nil {
		return Message{}, err
	}
	if key != keyValue {
		return Message{}, fmt.Errorf("protocol: Session object without %q key: %w", keyValue, ErrInvalidValue)
	}
	text, ok := decodeString(value)
	if !ok {
		return Message{}, fmt.Errorf("protocol: Session value is not a string: %w", ErrInvalidValue)
	}
	return SessionValue(text), nil
}

// singleKeyObject decodes raw as a JSON object that must contain exactly one
// member and returns its key and value. Repeated keys are rejected, so members
// are walked token by token rather than unmarshaled into a map. Syntax errors
// are returned as-is (wrapped); shape errors wrap ErrInvalidValue.
func singleKeyObject(raw []byte) (string, json.RawMessage, error) {
	if !json.Valid(raw) {
		return "", nil, fmt.Errorf("protocol: malformed body: %w", syntaxError(raw))
	}
	if firstByte(raw) != '{' {
		return "", nil, fmt.Errorf("protocol: expected object: %w", ErrInvalidValue)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return "", nil, fmt.Errorf("protocol: malformed body: %w", err)
	}

	var (
		key   string
		value json.RawMessage
		n     int
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", nil, fmt.Errorf("protocol: malformed body: %w", err)
		}
		k, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return "", nil, fmt.Errorf("protocol: malformed body: %w", err)
		}
		if n > 0 && k == key {
			return "", nil, fmt.Errorf("protocol: duplicate key %q: %w", k, ErrInvalidValue)
		}
		key, value = k, v
		n++
	}
	if n != 1 {
		return "", nil, fmt.Errorf("protocol: expected exactly one key, got %d: %w", n, ErrInvalidValue)
	}
	return key, value, nil
}

// decodeString decodes raw as a JSON string. A JSON null would otherwise
// unmarshal into "" without error, so the leading quote is checked first.
func decodeString(raw json.RawMessage) (string, bool) {
	if firstByte(raw) != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// firstByte returns the first non-whitespace byte of data, or 0.
func firstByte(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// syntaxError returns the decoder's own error for invalid JSON so callers can
// inspect it with errors.As.
func syntaxError(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return ErrInvalidValue
}
