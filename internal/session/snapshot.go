package session

import (
	"time"
)

// Snapshot is the JSON form of a State, shared by the status endpoint and the
// NATS state mirror.
type Snapshot struct {
	State    string            `json:"state"`
	Error    string            `json:"error,omitempty"`
	Messages []SnapshotMessage `json:"messages,omitempty"`
	At       time.Time         `json:"at"`
}

// SnapshotMessage is one transcript line of a Snapshot.
type SnapshotMessage struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Text      string `json:"text"`
}

// NewSnapshot converts s, stamping it with at.
func NewSnapshot(s State, at time.Time) Snapshot {
	snap := Snapshot{State: s.Kind.String(), At: at.UTC()}
	if s.Err != nil {
		snap.Error = s.Err.Error()
	}
	if len(s.Messages) > 0 {
		snap.Messages = make([]SnapshotMessage, len(s.Messages))
		for i, m := range s.Messages {
			snap.Messages[i] = SnapshotMessage{
				ID:        m.ID.String(),
				Direction: m.Direction.String(),
				Text:      m.Text,
			}
		}
	}
	return snap
}
