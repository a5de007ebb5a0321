// Package status serves a small read-only HTTP surface next to the chat
// client: liveness, the current connection state, and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/whisper/anonchat/internal/metrics"
	"github.com/whisper/anonchat/internal/session"
)

// StateSource reports the current connection state. *client.Client
// satisfies it.
type StateSource interface {
	State() session.State
}

// Server is the status HTTP server.
type Server struct {
	src     StateSource
	log     *zap.Logger
	handler http.Handler
	srv     *http.Server
	ln      net.Listener
}

// NewServer creates a status server for src. It does not listen until Start.
func NewServer(addr string, src StateSource, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{src: src, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.handler = r

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("status: listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status: serve", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, session.NewSnapshot(s.src.State(), time.Now()))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("status: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
