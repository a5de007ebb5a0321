package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/whisper/anonchat/internal/chat"
	"github.com/whisper/anonchat/internal/session"
)

// fakeClient applies intents synchronously to a real store.
type fakeClient struct {
	store      *session.Store
	mu         sync.Mutex
	calls      []string
	connectErr error
	noMatch    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{store: session.NewStore(session.NewDisconnected(nil))}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Connect() {
	f.record("connect")
	f.store.Set(session.NewConnecting())
	if f.connectErr != nil {
		f.store.Set(session.NewDisconnected(f.connectErr))
		return
	}
	f.store.Set(session.NewIdle())
}

func (f *fakeClient) Disconnect() {
	f.record("disconnect")
	f.store.Set(session.NewDisconnected(nil))
}

func (f *fakeClient) RequestPartner() {
	f.record("request")
	if f.store.Get().Kind != session.Idle {
		return
	}
	f.store.Set(session.NewWaiting())
	if !f.noMatch {
		f.store.Set(session.NewInSession(nil))
	}
}

func (f *fakeClient) SendText(text string) {
	f.record("send:" + text)
	if st := f.store.Get(); st.Kind == session.InSession {
		f.store.Set(st.WithMessage(chat.NewSent(text)))
	}
}

func (f *fakeClient) LeaveSession() {
	f.record("leave")
	f.store.Set(session.NewIdle())
}

func (f *fakeClient) State() session.State { return f.store.Get() }

func (f *fakeClient) Subscribe() (<-chan session.State, func()) { return f.store.Subscribe() }

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRenderer_Views(t *testing.T) {
	tests := []struct {
		state session.State
		want  string
	}{
		{session.NewDisconnected(nil), "[Connect: /connect]"},
		{session.NewDisconnected(errors.New("refused")), "Something went wrong: refused"},
		{session.NewConnecting(), "Connecting..."},
		{session.NewIdle(), "[Start Chatting: /start]"},
		{session.NewWaiting(), "Waiting for someone..."},
		{session.NewInSession(nil), "chatting with a stranger"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			var buf bytes.Buffer
			newRenderer(&buf).Render(tt.state)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("render %v = %q, want it to contain %q", tt.state, buf.String(), tt.want)
			}
		})
	}
}

func TestRenderer_TranscriptPrintedIncrementally(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	st := session.NewInSession(nil)
	r.Render(st)
	st = st.WithMessage(chat.NewSent("hi"))
	r.Render(st)
	st = st.WithMessage(chat.NewReceived("yo"))
	r.Render(st)
	r.Render(st)

	out := buf.String()
	if strings.Count(out, "> hi") != 1 || strings.Count(out, "< yo") != 1 {
		t.Errorf("expected each line once, got %q", out)
	}
	if strings.Count(out, "chatting with a stranger") != 1 {
		t.Errorf("expected one heading, got %q", out)
	}
}

func TestRenderer_NewErrorRerenders(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	r.Render(session.NewDisconnected(errors.New("first")))
	r.Render(session.NewDisconnected(errors.New("first")))
	r.Render(session.NewDisconnected(errors.New("second")))

	out := buf.String()
	if strings.Count(out, "first") != 1 || strings.Count(out, "second") != 1 {
		t.Errorf("unexpected output %q", out)
	}
}

func TestHandleLine(t *testing.T) {
	f := newFakeClient()
	var out bytes.Buffer

	if handleLine(f, &out, "hello") {
		t.Fatal("plain text must not quit")
	}
	if !strings.Contains(out.String(), "not in a chat") {
		t.Errorf("expected hint, got %q", out.String())
	}

	for _, line := range []string{"/connect", "/start", "hi there", "   ", "/leave", "/disconnect", "/bogus"} {
		if handleLine(f, &out, line) {
			t.Fatalf("%q must not quit", line)
		}
	}
	if !handleLine(f, &out, "/quit") {
		t.Error("/quit must quit")
	}

	want := []string{"connect", "request", "send:hi there", "leave", "disconnect"}
	if got := f.Calls(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("expected unknown command notice, got %q", out.String())
	}
}

func TestRunChat_EndOfInputLeavesSession(t *testing.T) {
	f := newFakeClient()
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := runChat(ctx, f, strings.NewReader("/start\nhello\n"), &out, true)
	if err != nil {
		t.Fatalf("runChat: %v", err)
	}

	want := []string{"connect", "request", "send:hello", "leave"}
	if got := f.Calls(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestRunChat_ManualDoesNotConnect(t *testing.T) {
	f := newFakeClient()
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := runChat(ctx, f, strings.NewReader(""), &out, false); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if calls := f.Calls(); len(calls) != 0 {
		t.Errorf("expected no intents, got %v", calls)
	}
	if !strings.Contains(out.String(), "[Connect: /connect]") {
		t.Errorf("expected initial view, got %q", out.String())
	}
}
