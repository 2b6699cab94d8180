// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the triage pipeline over HTTP: an on-demand trigger,
// a liveness check that never runs the pipeline, and status endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
	"github.com/bcem/mailtriage/internal/pipeline"
)

// ServiceName is reported by the info and status endpoints.
const ServiceName = "mailtriage"

// ErrBusy is returned by Trigger while another run is in progress.
var ErrBusy = errors.New("a triage run is already in progress")

// Runner executes one triage run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Dependency is an optional backing service checked by the health endpoint.
type Dependency interface {
	Name() string
	Ping(ctx context.Context) error
}

// History returns past run reports.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]models.RunStats, error)
}

// Handler serves the HTTP endpoints.
type Handler struct {
	cfg     *config.Config
	runner  Runner
	deps    []Dependency
	history History

	mu      sync.Mutex
	running bool
	last    *models.RunStats
}

// HandlerConfig holds dependencies for the handler.
type HandlerConfig struct {
	Config       *config.Config
	Runner       Runner // nil when the pipeline could not be built
	Dependencies []Dependency
	History      History // optional
}

// NewHandler creates the HTTP handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		cfg:     cfg.Config,
		runner:  cfg.Runner,
		deps:    cfg.Dependencies,
		history: cfg.History,
	}
}

// Routes returns the service mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.ServeInfo)
	mux.HandleFunc("GET /health", h.ServeHealth)
	mux.HandleFunc("POST /process-emails", h.ServeProcess)
	mux.HandleFunc("GET /api/status", h.ServeStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Trigger runs the pipeline unless a run from this process is already in
// flight. Scheduled and HTTP-triggered runs share it.
func (h *Handler) Trigger(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	if err := h.cfg.Validate(true); err != nil {
		return nil, err
	}
	if h.runner == nil {
		return nil, fmt.Errorf("%w: pipeline not initialised", config.ErrInvalid)
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil, ErrBusy
	}
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	res, err := h.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.last = res.Stats
	h.mu.Unlock()
	return res, nil
}

// processRequest is the optional body of POST /process-emails.
type processRequest struct {
	LookbackDays int  `json:"lookback_days"`
	MaxResults   int  `json:"max_results"`
	DryRun       bool `json:"dry_run"`
}

// ServeProcess runs the pipeline and returns its report.
func (h *Handler) ServeProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req processRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request", "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "request", "invalid JSON body: "+err.Error())
			return
		}
	}

	slog.Info("processing triggered via HTTP", "remote", r.RemoteAddr, "dry_run", req.DryRun)

	// A batch runs to completion even if the caller disconnects.
	res, err := h.Trigger(context.WithoutCancel(r.Context()), pipeline.Request{
		LookbackDays: req.LookbackDays,
		MaxResults:   req.MaxResults,
		DryRun:       req.DryRun,
	})
	switch {
	case errors.Is(err, config.ErrInvalid):
		slog.Error("configuration error", "error", err)
		writeError(w, http.StatusBadRequest, "configuration", err.Error())
		return
	case errors.Is(err, ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
		return
	case err != nil:
		slog.Error("processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing", err.Error())
		return
	}

	code, status := http.StatusOK, "success"
	if res.Stats.Status == models.RunBusy {
		code, status = http.StatusConflict, "busy"
	}

	writeJSON(w, code, map[string]any{
		"status":                  status,
		"message":                 res.Stats.Report(),
		"result":                  res.Stats,
		"records":                 len(res.Records),
		"processing_time_seconds": roundSeconds(time.Since(start)),
		"timestamp":               time.Now().UTC().Format(time.RFC3339),
	})
}

// ServeHealth reports which required settings are present and pings the
// optional backing services. It never runs the pipeline.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	settings := h.cfg.Settings(true)
	missing := h.cfg.Missing(true)

	deps := map[string]string{}
	depsOK := true
	for _, d := range h.deps {
		if err := d.Ping(r.Context()); err != nil {
			deps[d.Name()] = err.Error()
			depsOK = false
			continue
		}
		deps[d.Name()] = "ok"
	}

	status, code := "healthy", http.StatusOK
	switch {
	case len(missing) > 0:
		status, code = "unhealthy", http.StatusInternalServerError
	case !depsOK:
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"settings":     settings,
		"missing":      missing,
		"dependencies": deps,
	})
}

// ServeInfo describes the service.
func (h *Handler) ServeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": ServiceName,
		"status":  "running",
		"endpoints": map[string]string{
			"health":  "GET /health",
			"process": "POST /process-emails",
			"status":  "GET /api/status",
			"metrics": "GET /metrics",
		},
	})
}

// ServeStatus reports the current run state, the last run and, when an
// archive is configured, recent run history.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running, last := h.running, h.last
	h.mu.Unlock()

	resp := map[string]any{
		"service":   ServiceName,
		"running":   running,
		"last_run":  last,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"configuration": map[string]any{
			"mail_source":       h.cfg.Mail.Source,
			"llm_provider":      h.cfg.LLM.Provider,
			"lookback_days":     h.cfg.Pipeline.LookbackDays,
			"max_results":       h.cfg.Pipeline.MaxResults,
			"min_content_chars": h.cfg.Pipeline.MinContentChars,
			"schedule":          h.cfg.Schedule,
			"commands":          len(h.cfg.Pipeline.Taxonomy),
		},
	}

	if h.history != nil {
		runs, err := h.history.RecentRuns(r.Context(), 10)
		if err != nil {
			slog.Warn("load run history", "error", err)
			resp["history_error"] = err.Error()
		} else {
			resp["recent_runs"] = runs
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, map[string]any{
		"status":     "error",
		"error_type": kind,
		"message":    msg,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}

// Serve starts the HTTP server on the given port.
// It binds the port immediately and signals readiness via the first returned
// channel before starting to accept connections. The second channel closes
// once ctx is cancelled and the server has drained.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, <-chan struct{}, error) {
	server := &http.Server{
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, stopped, nil
}
