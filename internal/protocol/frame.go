package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame constants.
const (
	// HeaderSize is the size of the big-endian length prefix in bytes.
	HeaderSize = 2

	// MaxBodySize is the largest body the length prefix can describe.
	MaxBodySize = 65535
)

// ErrFrameTooLarge is returned when an encoded body exceeds MaxBodySize.
var ErrFrameTooLarge = errors.New("protocol: frame body too large")

// Encode serializes m into a complete frame: a 2-byte big-endian body length
// followed by the JSON body. On error no bytes are returned.
func Encode(m Message) ([]byte, error) {
	body, err := MarshalBody(m)
	if err != nil {
		return nil, err
	}
	return EncodeBody(body)
}

// EncodeBody prefixes an already serialized body with its length header.
func EncodeBody(body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(body), MaxBodySize)
	}
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(frame, uint16(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}
