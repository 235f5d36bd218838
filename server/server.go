// Package server exposes the agent over HTTP: a server-sent-events stream
// for turns and a health probe. Templates, auth, and web sessions are out
// of scope; the user is named by a query parameter.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/richinex/carlos/pipeline"
	"github.com/richinex/carlos/session"
)

// Server serves the streaming turn endpoint backed by the session manager.
type Server struct {
	manager *session.Manager
	logger  *zap.Logger
	http    *http.Server

	// baseCtx parents instance lifecycles so shards outlive single requests.
	baseCtx context.Context
}

// New creates a server listening on addr.
func New(ctx context.Context, manager *session.Manager, addr string, logger *zap.Logger) *Server {
	s := &Server{manager: manager, logger: logger, baseCtx: ctx}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/stream", s.handleStream)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains connections and stops every user session.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.manager.ShutdownAll()
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleStream answers one turn as a server-sent-events stream of pipeline
// events, one `data:` line per event, ending with the done event. A client
// that never sees done must treat the turn as incomplete.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		http.Error(w, "missing prompt", http.StatusBadRequest)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		user = "default"
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	inst, err := s.manager.GetOrCreate(s.baseCtx, user)
	if err != nil {
		s.logger.Error("session create failed", zap.Error(err))
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan pipeline.Event, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- inst.Pipeline.Stream(r.Context(), prompt, events)
		close(events)
	}()

	for ev := range events {
		writeEvent(w, ev)
		flusher.Flush()
	}
	if err := <-errc; err != nil {
		s.logger.Warn("turn finished with error", zap.String("user", user), zap.Error(err))
	}
}

func writeEvent(w http.ResponseWriter, ev pipeline.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
}
