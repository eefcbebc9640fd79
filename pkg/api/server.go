package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/charmed-norris/pkg/client"
	"github.com/cuemby/charmed-norris/pkg/events"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// EventDispatcher dispatches one event by kind
type EventDispatcher interface {
	Dispatch(ctx context.Context, kind events.EventKind) (*events.Outcome, error)
}

// StatusSource returns the persisted unit state
type StatusSource interface {
	Status() (*types.UnitState, error)
}

// Server serves the agent's HTTP API: health, readiness, metrics and the
// /v1 event and status endpoints
type Server struct {
	dispatcher EventDispatcher
	status     StatusSource
	health     *metrics.HealthChecker
	router     chi.Router
	server     *http.Server
	logger     zerolog.Logger
}

// NewServer creates an API server
func NewServer(dispatcher EventDispatcher, status StatusSource, health *metrics.HealthChecker) *Server {
	s := &Server{
		dispatcher: dispatcher,
		status:     status,
		health:     health,
		logger:     log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/health", health.HealthHandler())
	r.Get("/ready", health.ReadyHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/events/{kind}", s.handleEvent)
	})

	s.router = r
	return s
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Stop is called
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %v", err)
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleEvent dispatches the event named in the path. A deferred event is
// 202, a failed handler 409.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	kind := events.ParseKind(chi.URLParam(r, "kind"))

	outcome, err := s.dispatcher.Dispatch(r.Context(), kind)
	if outcome == nil {
		writeJSON(w, http.StatusInternalServerError, client.EventResult{
			Event:  string(kind),
			Result: events.ResultError,
			Error:  fmt.Sprint(err),
		})
		return
	}

	resp := client.EventResult{ID: outcome.Event.ID, Event: string(kind), Result: outcome.Result()}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}

	code := http.StatusOK
	switch {
	case err != nil:
		code = http.StatusConflict
	case outcome.Deferred:
		code = http.StatusAccepted
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.status.Status()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load unit state")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
