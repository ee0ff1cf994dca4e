// Package api exposes the HTTP interface for the sync service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mentionmarkets/rollcall-sync/internal/metrics"
	syncsvc "github.com/mentionmarkets/rollcall-sync/internal/sync"
	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// SyncController is the slice of the orchestrator the API needs.
type SyncController interface {
	Trigger(ctx context.Context) (syncsvc.State, error)
	Status() syncsvc.State
}

// Config controls server behavior.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the orchestrator and the record store.
type Server struct {
	router chi.Router
	sync   SyncController
	store  transcript.Store
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(controller SyncController, store transcript.Store, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	metrics.Init()
	s := &Server{
		sync:   controller,
		store:  store,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", s.triggerSync)
		r.Get("/sync/status", s.syncStatus)
		r.Get("/transcripts", s.listTranscripts)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.store.MaxEventDate(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerSync starts a background run. The response carries the state right
// after the transition; a trigger during an active run gets 409 with the
// live state and leaves the run untouched.
func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	state, err := s.sync.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, syncsvc.ErrAlreadyRunning) {
			s.writeJSON(w, http.StatusConflict, state)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, state)
}

func (s *Server) syncStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) listTranscripts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list transcripts", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	if records == nil {
		records = []transcript.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"transcripts": records,
		"count":       len(records),
	})
}

func parseListFilter(r *http.Request) (transcript.ListFilter, error) {
	var filter transcript.ListFilter
	q := r.URL.Query()
	filter.Category = q.Get("category")
	if v := q.Get("since"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return transcript.ListFilter{}, fmt.Errorf("invalid since date %q", v)
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return transcript.ListFilter{}, fmt.Errorf("invalid until date %q", v)
		}
		filter.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return transcript.ListFilter{}, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	return filter, nil
}
