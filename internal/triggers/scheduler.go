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

// Package triggers starts programs from their interval and file triggers
// while the server runs.
package triggers

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/tombee/stepflow/internal/runner"
	"github.com/tombee/stepflow/internal/tracing"
	"github.com/tombee/stepflow/pkg/workflow"
)

// DefaultDebounce is how long a file must be quiet before its change fires.
const DefaultDebounce = 250 * time.Millisecond

// Starter starts program runs. *runner.Runner satisfies it.
type Starter interface {
	Start(program *workflow.Program, trigger map[string]any) (string, error)
}

// Options configures a Scheduler.
type Options struct {
	// Debounce applies to file triggers. Zero uses DefaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// Status describes one armed trigger.
type Status struct {
	ProgramID string               `json:"program_id" yaml:"program_id"`
	Type      workflow.TriggerType `json:"type" yaml:"type"`
	Since     time.Time            `json:"since" yaml:"since"`
}

// Scheduler arms the triggers of a set of programs and starts runs when
// they fire. Manual programs are ignored.
type Scheduler struct {
	starter  Starter
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	program *workflow.Program
	trigger workflow.TriggerConfig
	since   time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. Call Start before Sync.
func New(starter Starter, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		starter:  starter,
		debounce: opts.Debounce,
		logger:   opts.Logger.With(slog.String("component", "triggers")),
		entries:  make(map[string]*entry),
	}
}

// Start binds the scheduler to ctx. Triggers stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Sync arms the triggers of programs and disarms those of programs that
// are gone, disabled or manual. Triggers whose configuration is unchanged
// keep running undisturbed.
func (s *Scheduler) Sync(programs []*workflow.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	wanted := make(map[string]*workflow.Program, len(programs))
	for _, p := range programs {
		if p.Enabled && p.Trigger.Type() != workflow.TriggerTypeManual {
			wanted[p.ID] = p
		}
	}

	for id, e := range s.entries {
		p, ok := wanted[id]
		if ok && reflect.DeepEqual(e.trigger, *p.Trigger) {
			e.program = p
			delete(wanted, id)
			continue
		}
		s.disarm(id, e)
	}

	for id, p := range wanted {
		if err := s.arm(p); err != nil {
			s.logger.Warn("failed to arm trigger", slog.String("program_id", id), slog.Any("error", err))
		}
	}
}

func (s *Scheduler) arm(p *workflow.Program) error {
	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{
		program: p,
		trigger: *p.Trigger,
		since:   time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	var loop func(context.Context, *entry)
	switch p.Trigger.Type() {
	case workflow.TriggerTypeInterval:
		every, err := p.Trigger.Interval.Duration()
		if err != nil {
			cancel()
			return err
		}
		loop = func(ctx context.Context, e *entry) { s.runInterval(ctx, e, every) }
	case workflow.TriggerTypeFile:
		fw, err := newFileWatch(p.Trigger.File, s.debounce, s.logger)
		if err != nil {
			cancel()
			return err
		}
		loop = func(ctx context.Context, e *entry) { fw.run(ctx, func(data map[string]any) { s.fire(e, data) }) }
	}

	s.entries[p.ID] = e
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(e.done)
		loop(ctx, e)
	}()

	s.logger.Info("trigger armed",
		slog.String("program_id", p.ID),
		slog.String("trigger", string(p.Trigger.Type())))
	return nil
}

// disarm must be called with s.mu held.
func (s *Scheduler) disarm(id string, e *entry) {
	e.cancel()
	delete(s.entries, id)
	s.logger.Info("trigger disarmed", slog.String("program_id", id))
}

func (s *Scheduler) runInterval(ctx context.Context, e *entry, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			data := map[string]any{"time": t.UTC().Format(time.RFC3339)}
			for k, v := range e.trigger.Interval.Data {
				data[k] = v
			}
			s.fire(e, data)
		}
	}
}

func (s *Scheduler) fire(e *entry, data map[string]any) {
	s.mu.Lock()
	p := e.program
	s.mu.Unlock()

	kind := string(e.trigger.Type())
	data["trigger"] = kind

	runID, err := s.starter.Start(p, data)
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		tracing.RecordTrigger(kind, "skipped")
		s.logger.Debug("program still running, trigger skipped", slog.String("program_id", p.ID))
	case err != nil:
		tracing.RecordTrigger(kind, "error")
		s.logger.Error("trigger failed to start program", slog.String("program_id", p.ID), slog.Any("error", err))
	default:
		tracing.RecordTrigger(kind, "started")
		s.logger.Info("trigger started program",
			slog.String("program_id", p.ID),
			slog.String("run_id", runID),
			slog.String("trigger", kind))
	}
}

// Active returns the armed triggers ordered by program id.
func (s *Scheduler) Active() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Status{ProgramID: id, Type: e.trigger.Type(), Since: e.since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramID < out[j].ProgramID })
	return out
}

// Stop disarms every trigger and waits for their goroutines to exit.
// Runs already started are not affected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	for id := range s.entries {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
