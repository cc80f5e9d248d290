// Copyright 2025 Tom Barlow
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

// Package server exposes the running engine over a small HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/tombee/stepflow/internal/history"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/runner"
	"github.com/tombee/stepflow/internal/triggers"
	pkgerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

const maxRequestBodySize = 1 * 1024 * 1024 // 1MB

// Catalog lists the programs the server can start.
type Catalog interface {
	workflow.ProgramSource
	List() []*workflow.Program
	Errors() map[string]error
}

// Options wires the server to the engine. Runner and Catalog are
// required; the rest are optional.
type Options struct {
	Runner   *runner.Runner
	Catalog  Catalog
	History  *history.Store
	Triggers *triggers.Scheduler

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server routes API requests to the engine.
type Server struct {
	opts    Options
	logger  *slog.Logger
	started time.Time
}

// New creates a server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:    opts,
		logger:  logger.With(slog.String("component", "server")),
		started: time.Now(),
	}
}

// Handler returns the API with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/programs", s.handleListPrograms)
	mux.HandleFunc("GET /v1/programs/{id}", s.handleGetProgram)
	mux.HandleFunc("POST /v1/programs/{id}/run", s.handleRun)
	mux.HandleFunc("POST /v1/programs/{id}/stop", s.handleStop)
	mux.HandleFunc("GET /v1/runs", s.handleActiveRuns)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /v1/history/{id}", s.handleHistoryEntry)
	mux.HandleFunc("GET /v1/triggers", s.handleTriggers)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	return log.Middleware(s.logger, mux)
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, l net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	s.logger.Info("api listening", slog.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]string{
		"runtime":  runtime.Version(),
		"programs": strconv.Itoa(len(s.opts.Catalog.List())),
		"running":  strconv.Itoa(len(s.opts.Runner.Active())),
	}
	if n := len(s.opts.Catalog.Errors()); n > 0 {
		checks["program_errors"] = strconv.Itoa(n)
	}
	if s.opts.History == nil {
		checks["history"] = "disabled"
	} else {
		checks["history"] = "ok"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Checks:    checks,
	})
}

type programSummary struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Enabled     bool                 `json:"enabled"`
	Trigger     workflow.TriggerType `json:"trigger"`
	Steps       int                  `json:"steps"`
	Running     bool                 `json:"running"`
}

func (s *Server) summary(p *workflow.Program) programSummary {
	return programSummary{
		ID:          p.ID,
		Name:        p.DisplayName(),
		Description: p.Description,
		Enabled:     p.Enabled,
		Trigger:     p.Trigger.Type(),
		Steps:       len(p.Steps),
		Running:     s.opts.Runner.IsRunning(p.ID),
	}
}

func (s *Server) handleListPrograms(w http.ResponseWriter, _ *http.Request) {
	programs := s.opts.Catalog.List()
	resp := struct {
		Programs []programSummary  `json:"programs"`
		Errors   map[string]string `json:"errors,omitempty"`
	}{Programs: make([]programSummary, 0, len(programs))}

	for _, p := range programs {
		resp.Programs = append(resp.Programs, s.summary(p))
	}
	if errs := s.opts.Catalog.Errors(); len(errs) > 0 {
		resp.Errors = make(map[string]string, len(errs))
		for file, err := range errs {
			resp.Errors[file] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	p, ok := s.program(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		programSummary
		Program *workflow.Program `json:"program"`
	}{s.summary(p), p})
}

func (s *Server) program(w http.ResponseWriter, r *http.Request) (*workflow.Program, bool) {
	id := r.PathValue("id")
	p, err := s.opts.Catalog.Program(r.Context(), id)
	if errors.Is(err, workflow.ErrUnknownProgram) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("program %s not found", id))
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return p, true
}

type runResponse struct {
	RunID     string `json:"run_id"`
	ProgramID string `json:"program_id"`
}

// handleRun handles POST /v1/programs/{id}/run. An optional JSON object
// body becomes the trigger data. Disabled programs need ?force=true.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	p, ok := s.program(w, r)
	if !ok {
		return
	}
	if !p.Enabled && r.URL.Query().Get("force") != "true" {
		writeError(w, http.StatusConflict, fmt.Sprintf("program %s is disabled", p.ID))
		return
	}

	var data map[string]any
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("trigger data must be a JSON object: %v", err))
			return
		}
	}
	if data == nil {
		data = p.Trigger.Data()
	}

	runID, err := s.opts.Runner.Start(p, data)
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: runID, ProgramID: p.ID})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.opts.Runner.Stop(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("program %s is not running", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"program_id": id, "stopped": true})
}

type activeRun struct {
	RunID     string    `json:"run_id"`
	ProgramID string    `json:"program_id"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   string    `json:"elapsed"`
}

func (s *Server) handleActiveRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.opts.Runner.Active()
	out := make([]activeRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, activeRun{
			RunID:     run.ID,
			ProgramID: run.ProgramID,
			StartedAt: run.StartedAt,
			Elapsed:   time.Since(run.StartedAt).Round(time.Millisecond).String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	q := r.URL.Query()
	filter := history.Filter{ProgramID: q.Get("program"), State: q.Get("state"), Limit: 50}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.opts.History.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// logs are only returned for single entries
	for i := range entries {
		entries[i].Log = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	entry, err := s.opts.History.Get(r.Context(), r.PathValue("id"))
	var notFound *pkgerrors.NotFoundError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTriggers(w http.ResponseWriter, _ *http.Request) {
	var active []triggers.Status
	if s.opts.Triggers != nil {
		active = s.opts.Triggers.Active()
	}
	if active == nil {
		active = []triggers.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggers": active})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
