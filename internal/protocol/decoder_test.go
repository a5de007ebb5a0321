package protocol

import (
	"errors"
	"testing"
)

func mustEncode(t *testing.T, m Message) []byte {
	t.Helper()
	frame, err := Encode(m)
	if err != nil {
		t.Fatalf("encode %v: %v", m, err)
	}
	return frame
}

// expectNothing asserts that Decode reports that more bytes are needed.
func expectNothing(t *testing.T, d *Decoder) {
	t.Helper()
	m, ok, err := d.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no message yet, got %v", m)
	}
}

func expectMessage(t *testing.T, d *Decoder, want Message) {
	t.Helper()
	m, ok, err := d.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected %v, got nothing", want)
	}
	if m != want {
		t.Fatalf("expected %v, got %v", want, m)
	}
}

// ---------------------------------------------------------------------------
// Test: Partial frames decode only once complete
// ---------------------------------------------------------------------------

func TestDecoder_Partial(t *testing.T) {
	want := SessionValue(greeting)
	data := mustEncode(t, want)

	d := NewDecoder()
	d.Append(data[:2])
	expectNothing(t, d)
	d.Append(data[2:8])
	expectNothing(t, d)
	d.Append(data[8:])
	expectMessage(t, d, want)
	expectNothing(t, d)

	if d.Buffered() != 0 {
		t.Errorf("expected empty buffer, got %d bytes", d.Buffered())
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	want := SessionValue(greeting)
	data := mustEncode(t, want)

	d := NewDecoder()
	for i := 0; i < len(data)-1; i++ {
		d.Append(data[i : i+1])
		expectNothing(t, d)
	}
	d.Append(data[len(data)-1:])
	expectMessage(t, d, want)
}

func TestDecoder_ArbitrarySplitsMatchWhole(t *testing.T) {
	want := SessionValue("split me anywhere")
	data := mustEncode(t, want)

	for split := 0; split <= len(data); split++ {
		d := NewDecoder()
		d.Append(data[:split])
		if split < len(data) {
			expectNothing(t, d)
		}
		d.Append(data[split:])
		expectMessage(t, d, want)
	}
}

// ---------------------------------------------------------------------------
// Test: Several frames in one chunk are drained in order
// ---------------------------------------------------------------------------

func TestDecoder_MultipleFrames(t *testing.T) {
	msgs := []Message{SessionSuccess, SessionValue("one"), SessionValue("two"), SessionEnd, ConnectionEnd}

	var chunk []byte
	for _, m := range msgs {
		chunk = append(chunk, mustEncode(t, m)...)
	}
	// Start of a sixth frame that is not complete yet.
	tail := mustEncode(t, SessionRequest)
	chunk = append(chunk, tail[:3]...)

	d := NewDecoder()
	d.Append(chunk)
	for _, m := range msgs {
		expectMessage(t, d, m)
	}
	expectNothing(t, d)

	d.Append(tail[3:])
	expectMessage(t, d, SessionRequest)
	expectNothing(t, d)
}

func TestDecoder_AppendCopiesInput(t *testing.T) {
	data := mustEncode(t, SessionValue("abc"))

	d := NewDecoder()
	d.Append(data)
	for i := range data {
		data[i] = 0
	}
	expectMessage(t, d, SessionValue("abc"))
}

// ---------------------------------------------------------------------------
// Test: Errors
// ---------------------------------------------------------------------------

func TestDecoder_MalformedBody(t *testing.T) {
	d := NewDecoder()
	d.Append(frameOf(`{"message":`))

	_, ok, err := d.Decode()
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
	if ok {
		t.Error("expected ok=false on error")
	}

	// The decoder stays failed even if valid bytes follow.
	d.Append(mustEncode(t, SessionEnd))
	if _, _, err2 := d.Decode(); err2 == nil {
		t.Error("expected decoder to remain failed")
	}
}

func TestDecoder_UnknownShape(t *testing.T) {
	d := NewDecoder()
	d.Append(frameOf(`{"message":{"Session":"Pause"}}`))

	_, _, err := d.Decode()
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestDecoder_EmptyBodyFails(t *testing.T) {
	d := NewDecoder()
	d.Append([]byte{0x00, 0x00})

	if _, _, err := d.Decode(); err == nil {
		t.Fatal("expected error for zero-length body")
	}
}
