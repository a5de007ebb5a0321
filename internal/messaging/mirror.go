package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/anonchat/internal/session"
)

// Publisher is the subset of NATSClient the mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StateMirror publishes a JSON snapshot of every state it is handed. Wire
// Publish to Client.Observe.
type StateMirror struct {
	pub     Publisher
	subject string
	log     *zap.Logger
	now     func() time.Time
}

// NewStateMirror creates a mirror publishing to subject (DefaultSubject when
// empty).
func NewStateMirror(pub Publisher, subject string, log *zap.Logger) *StateMirror {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StateMirror{pub: pub, subject: subject, log: log, now: time.Now}
}

// Publish sends st. Failures are logged and otherwise ignored so a broken
// mirror never affects the chat.
func (m *StateMirror) Publish(st session.State) {
	data, err := json.Marshal(session.NewSnapshot(st, m.now()))
	if err != nil {
		m.log.Warn("mirror: encode snapshot", zap.Error(err))
		return
	}
	if err := m.pub.Publish(m.subject, data); err != nil {
		m.log.Warn("mirror: publish", zap.String("subject", m.subject), zap.Error(err))
	}
}

// DecodeSnapshot parses one message from the mirror subject.
func DecodeSnapshot(data []byte) (session.Snapshot, error) {
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("messaging: decode snapshot: %w", err)
	}
	return snap, nil
}

// Watch subscribes to subject and calls fn with every snapshot published
// there. Undecodable messages are logged and skipped.
func (c *NATSClient) Watch(subject string, fn func(session.Snapshot)) error {
	return c.Subscribe(subject, func(data []byte) {
		snap, err := DecodeSnapshot(data)
		if err != nil {
			c.log.Warn("skipping message", zap.String("subject", subject), zap.Error(err))
			return
		}
		fn(snap)
	})
}
