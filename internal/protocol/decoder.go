package protocol

import (
	"encoding/binary"
)

// decoderState is the phase of the streaming decoder.
type decoderState int

const (
	awaitingHeader decoderState = iota
	awaitingBody
)

// Decoder reassembles frames from an arbitrary sequence of byte chunks.
// Bytes are buffered by Append and consumed by Decode one frame at a time;
// the buffer only shrinks as complete frames are consumed.
//
// A Decoder is not safe for concurrent use. After Decode returns an error the
// Decoder is unusable and keeps returning that error.
type Decoder struct {
	buf    []byte
	state  decoderState
	length int   // body length once the header has been read
	err    error // sticky decode failure
}

// NewDecoder creates an empty Decoder awaiting a frame header.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Append adds p to the internal buffer. It never blocks and accepts chunks of
// any size, from a single byte to several frames. p is copied.
func (d *Decoder) Append(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes appended but not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Decode returns the next complete message. ok is false when more bytes are
// needed. Callers must call Decode repeatedly after each Append until ok is
// false to drain every buffered frame.
func (d *Decoder) Decode() (msg Message, ok bool, err error) {
	if d.err != nil {
		return Message{}, false, d.err
	}

	if d.state == awaitingHeader && len(d.buf) >= HeaderSize {
		d.length = int(binary.BigEndian.Uint16(d.buf))
		d.consume(HeaderSize)
		d.state = awaitingBody
	}

	if d.state == awaitingBody && len(d.buf) >= d.length {
		body := d.buf[:d.length]
		m, err := UnmarshalBody(body)
		if err != nil {
			d.err = err
			return Message{}, false, err
		}
		d.consume(d.length)
		d.state = awaitingHeader
		d.length = 0
		return m, true, nil
	}

	return Message{}, false, nil
}

// consume drops the first n buffered bytes. The remaining bytes are moved to
// the front so the backing array is reused instead of growing without bound.
func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
