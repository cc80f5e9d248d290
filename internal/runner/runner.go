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

// Package runner owns the lifecycle of top-level program runs: one active
// run per program, a scratch directory per run, cancellation, and a cleanup
// path that always posts exactly one terminal event.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/stepflow/internal/history"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// ErrAlreadyRunning is returned by Start when the program already has an
// active run.
var ErrAlreadyRunning = errors.New("program is already running")

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Metrics receives run-level observations.
type Metrics interface {
	RunStarted(ctx context.Context, programID string)
	RunCompleted(ctx context.Context, programID, state string, duration time.Duration)
}

// Options configures a Runner. Every field is optional.
type Options struct {
	// ScratchRoot is where per-run scratch directories are created.
	// Defaults to the system temp directory.
	ScratchRoot string

	Bus      *workflow.Bus
	Metrics  Metrics
	Tracer   trace.Tracer
	Recorder Recorder
	Logger   *slog.Logger
}

// Result describes a finished run.
type Result struct {
	RunID       string
	ProgramID   string
	State       workflow.EventType
	Message     string
	ReturnValue value.Value
	Err         error
	Log         string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Run is an active run.
type Run struct {
	ID        string
	ProgramID string
	StartedAt time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	result  *Result
}

// Runner starts and tracks program runs.
type Runner struct {
	exec   *workflow.Executor
	opts   Options
	base   *slog.Logger
	logger *slog.Logger
	tracer trace.Tracer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Run
}

// New creates a runner over an executor.
func New(exec *workflow.Executor, opts Options) *Runner {
	if opts.ScratchRoot == "" {
		opts.ScratchRoot = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("stepflow.runner")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		exec:   exec,
		opts:   opts,
		base:   logger,
		logger: logger.With("component", "runner"),
		tracer: tracer,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]*Run),
	}
}

// Start launches program in the background and returns the new run id.
func (r *Runner) Start(program *workflow.Program, trigger map[string]any) (string, error) {
	run, err := r.start(program, trigger)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// Run starts program and blocks until it finishes or ctx is done. When
// ctx is done first the run is stopped and its result still returned.
func (r *Runner) Run(ctx context.Context, program *workflow.Program, trigger map[string]any) (*Result, error) {
	run, err := r.start(program, trigger)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		r.Stop(run.ProgramID)
		<-run.done
	}
	return run.result, nil
}

func (r *Runner) start(program *workflow.Program, trigger map[string]any) (*Run, error) {
	if program == nil || program.ID == "" {
		return nil, fmt.Errorf("program id is required")
	}

	r.mu.Lock()
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is shut down: %w", err)
	}
	if _, ok := r.active[program.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", program.ID, ErrAlreadyRunning)
	}
	ctx, cancel := context.WithCancel(r.ctx)
	run := &Run{
		ID:        uuid.New().String(),
		ProgramID: program.ID,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.active[program.ID] = run
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(ctx, run, program, trigger)
	return run, nil
}

// execute is the body of one run. Everything after the executor returns
// happens in the deferred cleanup so that a panic or cancellation cannot
// skip it.
func (r *Runner) execute(ctx context.Context, run *Run, program *workflow.Program, trigger map[string]any) {
	runLog := workflow.NewRunLog()
	logger := slog.New(runLog.Handler(r.base.Handler())).
		With("component", "runner", "run_id", run.ID, "program_id", run.ProgramID)

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("stepflow.program.id", run.ProgramID),
		attribute.String("stepflow.run.id", run.ID),
	))

	var (
		outcome *workflow.Outcome
		runErr  error
		scratch string
	)

	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("panic: %v", p)
			logger.Error("run panicked", "panic", p, "stack", string(debug.Stack()))
		}
		r.finish(context.WithoutCancel(ctx), run, logger, runLog, scratch, outcome, runErr)
		if runErr != nil {
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
		}
		span.End()
	}()

	r.post(ctx, &workflow.Event{Type: workflow.EventRunning, ProgramID: run.ProgramID, RunID: run.ID, StepIndex: -1})
	if r.opts.Metrics != nil {
		r.opts.Metrics.RunStarted(ctx, run.ProgramID)
	}

	scratch, runErr = r.makeScratchDir(run)
	if runErr != nil {
		return
	}
	logger.Debug("scratch directory created", "path", scratch)

	outcome, runErr = r.exec.Execute(ctx, program, workflow.RunOptions{
		RunID:       run.ID,
		ScratchDir:  scratch,
		TriggerData: trigger,
		Log:         runLog,
	})
}

func (r *Runner) makeScratchDir(run *Run) (string, error) {
	name := fmt.Sprintf("exec_%s_%s", sanitize(run.ProgramID), uuid.New().String())
	dir := filepath.Join(r.opts.ScratchRoot, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

func sanitize(id string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return c
	}, id)
}

func (r *Runner) finish(ctx context.Context, run *Run, logger *slog.Logger, runLog *workflow.RunLog,
	scratch string, outcome *workflow.Outcome, runErr error) {
	if scratch != "" {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("failed to remove scratch directory", "path", scratch, "error", err)
		}
	}

	state, message, failedStep := terminalState(runErr)
	r.mu.Lock()
	if state == workflow.EventCancelled && run.stopped && errors.Is(runErr, context.Canceled) {
		message = "stopped"
	}
	r.mu.Unlock()
	switch state {
	case workflow.EventFailure:
		logger.Error("run failed", "error", message)
	case workflow.EventCancelled:
		logger.Warn("run cancelled", "reason", message)
	default:
		logger.Info("run finished")
	}

	res := &Result{
		RunID:       run.ID,
		ProgramID:   run.ProgramID,
		State:       state,
		Message:     message,
		ReturnValue: value.Null,
		Err:         runErr,
		Log:         runLog.String(),
		StartedAt:   run.StartedAt,
		FinishedAt:  time.Now(),
	}
	if outcome != nil {
		res.ReturnValue = outcome.ReturnValue
	}

	r.post(ctx, &workflow.Event{
		Type:      state,
		ProgramID: run.ProgramID,
		RunID:     run.ID,
		StepIndex: failedStep,
		Message:   message,
		Log:       res.Log,
	})

	duration := res.FinishedAt.Sub(res.StartedAt)
	if r.opts.Metrics != nil {
		r.opts.Metrics.RunCompleted(ctx, run.ProgramID, string(state), duration)
	}
	if r.opts.Recorder != nil {
		entry := history.Entry{
			RunID:      run.ID,
			ProgramID:  run.ProgramID,
			State:      string(state),
			Message:    message,
			Log:        res.Log,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Duration:   duration,
		}
		if res.ReturnValue.Kind() != value.KindNull {
			entry.ReturnValue = res.ReturnValue.AsString()
		}
		if err := r.opts.Recorder.Record(ctx, entry); err != nil {
			r.logger.Warn("failed to record run history", "run_id", run.ID, "error", err)
		}
	}

	r.mu.Lock()
	if r.active[run.ProgramID] == run {
		delete(r.active, run.ProgramID)
	}
	run.result = res
	r.mu.Unlock()

	run.cancel()
	close(run.done)
	r.wg.Done()
}

// terminalState maps the executor's error to the state broadcast and the
// index of the failing step, which is -1 unless the run failed.
func terminalState(err error) (workflow.EventType, string, int) {
	var sf *workflow.StepFailure
	switch {
	case err == nil:
		return workflow.EventFinished, "", -1
	case errors.As(err, &sf):
		msg := sf.Title
		if sf.Message != "" {
			msg += ": " + sf.Message
		}
		return workflow.EventFailure, fmt.Sprintf("step %d (%s): %s", sf.PC, sf.StepID, msg), sf.PC
	default:
		return workflow.EventCancelled, err.Error(), -1
	}
}

func (r *Runner) post(ctx context.Context, event *workflow.Event) {
	if err := r.opts.Bus.Post(ctx, event); err != nil {
		r.logger.Debug("event listener failed", "type", event.Type, "error", err)
	}
}

// Stop cancels the active run of a program. It reports whether a run was
// active.
func (r *Runner) Stop(programID string) bool {
	r.mu.Lock()
	run, ok := r.active[programID]
	if ok {
		run.stopped = true
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info("stopping run", "program_id", programID, "run_id", run.ID)
		run.cancel()
	}
	return ok
}

// IsRunning reports whether the program has an active run.
func (r *Runner) IsRunning(programID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[programID]
	return ok
}

// Wait blocks until the program's active run finishes and returns its
// result. It returns nil immediately when nothing is running.
func (r *Runner) Wait(ctx context.Context, programID string) (*Result, error) {
	r.mu.Lock()
	run, ok := r.active[programID]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	select {
	case <-run.done:
		return run.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active returns a snapshot of the active runs ordered by program id.
func (r *Runner) Active() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := make([]Run, 0, len(r.active))
	for _, run := range r.active {
		runs = append(runs, Run{ID: run.ID, ProgramID: run.ProgramID, StartedAt: run.StartedAt})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ProgramID < runs[j].ProgramID })
	return runs
}

// Shutdown cancels every active run, rejects new ones and waits for the
// cleanup of each run to complete or ctx to be done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	for _, run := range r.active {
		run.stopped = true
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
