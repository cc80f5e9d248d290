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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tombee/stepflow/internal/action"
	"github.com/tombee/stepflow/internal/action/data"
	"github.com/tombee/stepflow/internal/action/logic"
	"github.com/tombee/stepflow/internal/action/net"
	"github.com/tombee/stepflow/internal/action/system"
	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/internal/history"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/runner"
	"github.com/tombee/stepflow/internal/store"
	"github.com/tombee/stepflow/internal/tracing"
	"github.com/tombee/stepflow/pkg/httpclient"
	"github.com/tombee/stepflow/pkg/workflow"
)

// AppOptions configures NewApp.
type AppOptions struct {
	// LogOutput receives log records; nil means stderr.
	LogOutput io.Writer

	// TraceOutput receives spans from console exporters; nil means stderr.
	TraceOutput io.Writer

	// AsyncEvents delivers bus events on their own goroutines.
	AsyncEvents bool

	// SkipHistory leaves the history database closed even when enabled.
	SkipHistory bool

	// OnReload is called after every store load, following the reload
	// metrics.
	OnReload func(store.ReloadStats)
}

// App holds the components a command needs to load and run programs.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Programs *Overlay
	Actions  *workflow.Registry
	Bus      *workflow.Bus
	Tracing  *tracing.Provider
	History  *history.Store
	Executor *workflow.Executor
	Runner   *runner.Runner
}

// NewApp loads configuration from the --config flag and builds every
// component. Close releases them.
func NewApp(ctx context.Context, opts AppOptions) (*App, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, err
	}
	return NewAppWithConfig(ctx, cfg, opts)
}

// NewAppWithConfig builds an App from an already loaded configuration.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	switch {
	case GetQuiet():
		cfg.Log.Level = "error"
	case GetVerbose() && cfg.Log.Level == "info":
		cfg.Log.Level = "debug"
	}
	cfg.Log.Output = opts.LogOutput
	logger := log.New(&cfg.Log)

	app := &App{Config: cfg, Logger: logger}

	var err error
	app.Store, err = store.New(store.Options{
		Dir:     cfg.Programs.Dir,
		Pattern: cfg.Programs.Pattern,
		Logger:  logger,
		OnReload: func(stats store.ReloadStats) {
			tracing.RecordReload(stats.Loaded, stats.Failed)
			if opts.OnReload != nil {
				opts.OnReload(stats)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if err := app.Store.Load(); err != nil {
		return nil, err
	}
	app.Programs = NewOverlay(app.Store)

	v, _, _ := GetVersion()
	app.Tracing, err = tracing.New(ctx, tracingConfig(cfg, v), opts.TraceOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Engine.HTTP.Timeout
	httpCfg.RetryAttempts = cfg.Engine.HTTP.RetryAttempts
	httpCfg.UserAgent = cfg.Engine.HTTP.UserAgent
	if httpCfg.UserAgent == "" {
		httpCfg.UserAgent = "stepflow/" + v
	}
	httpCfg.Logger = logger
	client, err := httpclient.New(httpCfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Actions, err = action.NewRegistry(action.Options{
		Logic: logic.Options{
			WhileMaxIterations: cfg.Engine.WhileMaxIterations,
			Programs:           app.Programs,
		},
		Data: data.Options{JQTimeout: cfg.Engine.JQTimeout},
		System: system.Options{
			ShellEnabled: cfg.Engine.Shell.Enabled,
			ShellTimeout: cfg.Engine.Shell.Timeout,
			MaxDelay:     cfg.Engine.MaxDelay,
		},
		Net: net.Options{Client: client},
	})
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Bus = workflow.NewBus(opts.AsyncEvents)
	metrics := app.Tracing.Metrics()
	app.Executor = workflow.NewExecutor(app.Actions, app.Programs).
		WithLogger(logger).
		WithTracer(app.Tracing.Tracer("stepflow.engine")).
		WithBus(app.Bus).
		WithMetrics(metrics).
		WithDefaultRetry(cfg.Engine.RetryCount, cfg.Engine.RetryInterval)

	runOpts := runner.Options{
		ScratchRoot: cfg.Engine.ScratchDir,
		Bus:         app.Bus,
		Metrics:     metrics,
		Tracer:      app.Tracing.Tracer("stepflow.runner"),
		Logger:      logger,
	}
	if cfg.History.Enabled && !opts.SkipHistory {
		app.History, err = OpenHistory(cfg)
		if err != nil {
			logger.Warn("run history unavailable", log.Error(err))
		} else {
			runOpts.Recorder = app.History
		}
	}
	app.Runner = runner.New(app.Executor, runOpts)
	return app, nil
}

// OpenHistory opens the configured history database, creating its
// directory when needed.
func OpenHistory(cfg *config.Config) (*history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o700); err != nil {
		return nil, err
	}
	return history.Open(history.Config{Path: cfg.History.Path, WAL: true})
}

func tracingConfig(cfg *config.Config, version string) tracing.Config {
	tc := tracing.DefaultConfig()
	tc.Enabled = cfg.Tracing.Enabled
	tc.ServiceName = cfg.Tracing.ServiceName
	tc.ServiceVersion = version
	tc.SamplingRate = cfg.Tracing.SamplingRate
	for _, e := range cfg.Tracing.Exporters {
		tc.Exporters = append(tc.Exporters, tracing.ExporterConfig{
			Type:       e.Type,
			Endpoint:   e.Endpoint,
			Headers:    e.Headers,
			Insecure:   e.Insecure,
			CACertPath: e.CACert,
		})
	}
	return tc
}

// Close shuts down the runner, flushes telemetry and closes history.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runner != nil {
		errs = append(errs, a.Runner.Shutdown(ctx))
	}
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	return errors.Join(errs...)
}

// Overlay is a program source that serves programs loaded from explicit
// files ahead of the store.
type Overlay struct {
	base workflow.ProgramSource

	mu    sync.RWMutex
	extra map[string]*workflow.Program
}

var _ workflow.ProgramSource = (*Overlay)(nil)

func NewOverlay(base workflow.ProgramSource) *Overlay {
	return &Overlay{base: base, extra: make(map[string]*workflow.Program)}
}

// Add makes p resolvable by id, shadowing any stored program.
func (o *Overlay) Add(p *workflow.Program) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra[p.ID] = p
}

func (o *Overlay) Program(ctx context.Context, id string) (*workflow.Program, error) {
	o.mu.RLock()
	p, ok := o.extra[id]
	o.mu.RUnlock()
	if ok {
		return p, nil
	}
	if o.base == nil {
		return nil, fmt.Errorf("%s: %w", id, workflow.ErrUnknownProgram)
	}
	return o.base.Program(ctx, id)
}
