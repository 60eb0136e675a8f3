// Package server exposes the Cadence reading agent over HTTP.
//
// All request and response bodies are JSON. Validation failures map to
// 400 with the offending field and its allowed range; a forced training
// request with nothing to train on maps to 409.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veloread/cadence/internal/env"
	"github.com/veloread/cadence/internal/health"
	"github.com/veloread/cadence/internal/observe"
	"github.com/veloread/cadence/internal/reading"
	"github.com/veloread/cadence/internal/trainer"
)

// Server is the main HTTP server for the Cadence API.
type Server struct {
	agent   *reading.Agent
	sched   *trainer.Scheduler
	mux     *http.ServeMux
	handler http.Handler
}

// Config wires the collaborators into a [Server].
type Config struct {
	// Agent handles query processing. Required.
	Agent *reading.Agent

	// Scheduler exposes training status and forced passes. Required.
	Scheduler *trainer.Scheduler

	// Health serves the liveness and readiness probes. Optional; probes
	// are registered with no checkers when nil.
	Health *health.Handler

	// Metrics backs the request-duration middleware. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// New creates a Server with all routes registered and the observability
// middleware applied.
func New(cfg Config) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("server: reading agent is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("server: training scheduler is required")
	}
	h := cfg.Health
	if h == nil {
		h = health.New()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	s := &Server{
		agent: cfg.Agent,
		sched: cfg.Scheduler,
		mux:   http.NewServeMux(),
	}
	s.routes(h)
	s.handler = observe.Middleware(m)(s.mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes(h *health.Handler) {
	// Reading agent
	s.mux.HandleFunc("POST /v1/query", s.handleQuery)
	s.mux.HandleFunc("POST /v1/feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	s.mux.HandleFunc("PATCH /v1/settings", s.handlePatchSettings)
	s.mux.HandleFunc("POST /v1/session/reset", s.handleSessionReset)
	s.mux.HandleFunc("GET /v1/sessions", s.handleSessions)

	// Training
	s.mux.HandleFunc("POST /v1/train", s.handleTrain)
	s.mux.HandleFunc("GET /v1/training/status", s.handleTrainingStatus)

	// Probes and metrics
	h.Register(s.mux)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// handleQuery runs one full decision cycle for the posted query record.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q reading.QueryRecord
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.agent.ProcessQuery(r.Context(), &q)
	if err != nil {
		var rangeErr *reading.RangeError
		if errors.As(err, &rangeErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": rangeErr.Error(),
				"field": rangeErr.Field,
				"min":   rangeErr.Min,
				"max":   rangeErr.Max,
			})
			return
		}
		observe.Logger(r.Context()).Error("query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "query processing failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFeedback records listener feedback signals and preferences.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb env.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.agent.UpdateFeedback(fb)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.CurrentSettings())
}

// handlePatchSettings applies a partial settings update. Out-of-range values
// reject the whole patch.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var p reading.SettingsPatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.agent.UpdateSettings(p); err != nil {
		var rangeErr *reading.RangeError
		if errors.As(err, &rangeErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": rangeErr.Error(),
				"field": rangeErr.Field,
				"min":   rangeErr.Min,
				"max":   rangeErr.Max,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.agent.CurrentSettings())
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	s.agent.ResetSession()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"settings": s.agent.CurrentSettings(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.agent.Sessions(),
	})
}

// handleTrain triggers an immediate training pass. With no completed
// episodes there is nothing to train on and the request conflicts with the
// scheduler's state.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if !s.sched.ForceTraining(r.Context()) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": "skipped",
			"reason": "no completed episodes to train on",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  s.sched.Status().Stats,
	})
}

func (s *Server) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      s.sched.Status(),
		"suggestions": s.sched.Suggestions(),
	})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
