package chat

import (
	"strings"
	"testing"
)

func TestNewSentAndReceived(t *testing.T) {
	s := NewSent("hi")
	r := NewReceived("yo")

	if s.Direction != Sent || s.Text != "hi" {
		t.Errorf("unexpected sent message: %+v", s)
	}
	if r.Direction != Received || r.Text != "yo" {
		t.Errorf("unexpected received message: %+v", r)
	}
	if s.ID == r.ID {
		t.Error("expected distinct message IDs")
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSent("x").ID.String()
		if seen[id] {
			t.Fatalf("duplicate id %s after %d messages", id, i)
		}
		seen[id] = true
	}
}

func TestDirectionString(t *testing.T) {
	if Sent.String() != "sent" {
		t.Errorf("expected sent, got %q", Sent.String())
	}
	if Received.String() != "received" {
		t.Errorf("expected received, got %q", Received.String())
	}
	if Direction(7).String() != "unknown" {
		t.Errorf("expected unknown, got %q", Direction(7).String())
	}
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain", "hello", false},
		{"emoji", "👋, \"🌎\"!", false},
		{"empty", "", true},
		{"at_limit", strings.Repeat("a", MaxTextBytes), false},
		{"over_limit", strings.Repeat("a", MaxTextBytes+1), true},
		{"invalid_utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateText() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
