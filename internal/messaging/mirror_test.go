package messaging

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/whisper/anonchat/internal/chat"
	"github.com/whisper/anonchat/internal/session"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestStateMirror_PublishesSnapshots(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewStateMirror(pub, "", nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	st := session.NewInSession(nil).
		WithMessage(chat.NewSent("hi")).
		WithMessage(chat.NewReceived("yo"))
	m.Publish(st)
	m.Publish(session.NewDisconnected(errors.New("refused")))

	if len(pub.payloads) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.payloads))
	}
	if pub.subjects[0] != DefaultSubject {
		t.Errorf("expected subject %q, got %q", DefaultSubject, pub.subjects[0])
	}

	snap, err := DecodeSnapshot(pub.payloads[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "in_session" || !snap.At.Equal(fixed) {
		t.Errorf("unexpected snapshot header %+v", snap)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[0].Direction != "sent" || snap.Messages[1].Text != "yo" {
		t.Errorf("unexpected messages %+v", snap.Messages)
	}
	if snap.Messages[0].ID != st.Messages[0].ID.String() {
		t.Errorf("message id not carried over")
	}

	snap, err = DecodeSnapshot(pub.payloads[1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "disconnected" || snap.Error != "refused" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestStateMirror_PublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	m := NewStateMirror(pub, "custom.subject", nil)
	m.Publish(session.NewIdle())
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("not json")); err == nil {
		t.Error("expected error")
	}
}

// TestNATS_MirrorRoundTrip needs a reachable NATS server (NATS_URL, or the
// default localhost:4222).
func TestNATS_MirrorRoundTrip(t *testing.T) {
	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.Timeout = 500 * time.Millisecond
	cfg.MaxReconnects = 0

	nc, err := NewNATSClient(cfg, nil)
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer nc.Close()

	subject := "anonchat.test." + time.Now().Format("150405.000000")
	got := make(chan session.Snapshot, 1)
	if err := nc.Watch(subject, func(s session.Snapshot) { got <- s }); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	NewStateMirror(nc, subject, nil).Publish(session.NewWaiting())

	select {
	case snap := <-got:
		if snap.State != "waiting" {
			t.Errorf("expected waiting, got %q", snap.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never arrived")
	}

	if err := nc.Unsubscribe(subject); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}
}
