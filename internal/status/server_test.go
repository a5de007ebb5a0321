package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/whisper/anonchat/internal/chat"
	"github.com/whisper/anonchat/internal/metrics"
	"github.com/whisper/anonchat/internal/session"
)

type fixedSource struct{ st session.State }

func (f fixedSource) State() session.State { return f.st }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := NewServer(":0", fixedSource{session.NewIdle()}, nil)
	rec := get(t, s.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestServer_State(t *testing.T) {
	st := session.NewInSession(nil).WithMessage(chat.NewReceived("hello"))
	s := NewServer(":0", fixedSource{st}, nil)

	rec := get(t, s.Handler(), "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "in_session" || len(snap.Messages) != 1 || snap.Messages[0].Direction != "received" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestServer_StateWithError(t *testing.T) {
	s := NewServer(":0", fixedSource{session.NewDisconnected(errors.New("timed out"))}, nil)

	var snap session.Snapshot
	if err := json.Unmarshal(get(t, s.Handler(), "/state").Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "disconnected" || snap.Error != "timed out" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestServer_Metrics(t *testing.T) {
	metrics.Transitions.WithLabelValues("idle").Inc()
	s := NewServer(":0", fixedSource{session.NewIdle()}, nil)

	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "anonchat_state_transitions_total") {
		t.Error("expected anonchat metrics in output")
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	s := NewServer(":0", fixedSource{session.NewIdle()}, nil)
	if rec := get(t, s.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", fixedSource{session.NewWaiting()}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"waiting"`) {
		t.Errorf("unexpected body %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
