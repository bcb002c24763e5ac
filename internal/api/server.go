// Package api serves the watch-mode status endpoints: liveness, live
// pipeline stats, run history, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/config"
	"github.com/ithan1985/audio2text/internal/state"
)

// StatusSource exposes live pipeline counters (implemented by batch.Watcher).
type StatusSource interface {
	QueueDepth() int
	Processed() int64
	Failed() int64
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, watchDir string, src StatusSource, store *state.Store, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))

	status := &statusHandler{
		cfg:       cfg,
		watchDir:  watchDir,
		src:       src,
		store:     store,
		version:   version,
		startTime: startTime,
	}
	r.Get("/healthz", status.health)
	r.Get("/api/v1/health", status.health)
	r.Get("/api/v1/status", status.status)
	r.Get("/api/v1/runs/{runID}/jobs", status.runJobs)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		http: &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("status server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("status server shutting down")
	return s.http.Shutdown(ctx)
}

type statusHandler struct {
	cfg       *config.Config
	watchDir  string
	src       StatusSource
	store     *state.Store
	version   string
	startTime time.Time
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *statusHandler) health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

type statusResponse struct {
	ModelID     string `json:"model_id"`
	ComputeMode string `json:"compute_mode"`
	WatchDir    string `json:"watch_dir"`
	QueueDepth  int    `json:"queue_depth"`
	Processed   int64  `json:"processed"`
	Failed      int64  `json:"failed"`
}

func (h *statusHandler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		ModelID:     h.cfg.ModelID,
		ComputeMode: h.cfg.ComputeMode,
		WatchDir:    h.watchDir,
	}
	if h.src != nil {
		resp.QueueDepth = h.src.QueueDepth()
		resp.Processed = h.src.Processed()
		resp.Failed = h.src.Failed()
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *statusHandler) runJobs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	jobs, err := h.store.RunJobs(runID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "cannot query run history")
		return
	}
	if jobs == nil {
		jobs = []state.JobRecord{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}
