// Package api exposes the HTTP interface for the plate checker.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/metrics"
	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
	"github.com/alymdu/shortest-plates/internal/worker"
)

// Controller is the run control the server drives. *worker.Worker satisfies it.
type Controller interface {
	Start() (worker.StartResult, error)
	Stop() worker.StopResult
	Snapshot() progress.Snapshot
}

// Config holds server options.
type Config struct {
	// ControlToken guards /start and /stop when non-empty.
	ControlToken string
	// RequestTimeout bounds every handler. Defaults to 60s.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the worker and result store.
type Server struct {
	router  chi.Router
	ctrl    Controller
	results plates.ResultStore
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl Controller, results plates.ResultStore, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	metrics.Init()
	s := &Server{
		ctrl:    ctrl,
		results: results,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(tokenMiddleware(cfg.ControlToken, logger))
		r.Get("/start", s.start)
		r.Post("/start", s.start)
		r.Get("/stop", s.stop)
		r.Post("/stop", s.stop)
	})

	r.Get("/status", s.status)
	r.Get("/results.json", s.resultsJSON)
	r.Get("/results", s.resultsHTML)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

type controlResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

func (s *Server) start(w http.ResponseWriter, _ *http.Request) {
	res, err := s.ctrl.Start()
	if err != nil {
		metrics.ObserveControl("start", "error")
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to start run")
		return
	}
	status := http.StatusAccepted
	outcome := "started"
	if res.Outcome == worker.AlreadyRunning {
		status = http.StatusOK
		outcome = "already_running"
	}
	metrics.ObserveControl("start", outcome)
	writeJSON(w, s.logger, status, controlResponse{OK: true, Message: res.Outcome.String(), RunID: res.RunID})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	res := s.ctrl.Stop()
	status := http.StatusOK
	outcome := "not_running"
	if res == worker.Stopping {
		status = http.StatusAccepted
		outcome = "stopping"
	}
	metrics.ObserveControl("stop", outcome)
	writeJSON(w, s.logger, status, controlResponse{OK: true, Message: res.String()})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.ctrl.Snapshot())
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("write JSON response", zap.Int("status", status), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]any{"ok": false, "error": msg})
}
