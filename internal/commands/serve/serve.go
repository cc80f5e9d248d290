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

// Package serve implements the serve command.
package serve

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/server"
	"github.com/tombee/stepflow/internal/store"
	"github.com/tombee/stepflow/internal/triggers"
)

// pruneInterval is how often history older than the retention is deleted.
const pruneInterval = time.Hour

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var (
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run triggers and the HTTP API",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Serve keeps the engine running in the foreground. It arms the interval
and file triggers of every enabled program, reloads programs when their
files change and exposes the HTTP API and Prometheus metrics.

Stop it with Ctrl-C or SIGTERM; active runs are cancelled and recorded.`,
		Example: `  # Serve with the configured address
  stepflow serve

  # Serve on another port without watching program files
  stepflow serve --addr 127.0.0.1:8080 --no-watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := cmd.Context()
			if base == nil {
				base = context.Background()
			}
			ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if noWatch {
				cfg.Programs.Watch = false
			}

			l, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
			}
			return Serve(ctx, cfg, l, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address for the HTTP API (default from config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Don't reload programs when their files change")

	return cmd
}

// Serve runs the engine on l until ctx is done. Logs go to logOut.
func Serve(ctx context.Context, cfg *config.Config, l net.Listener, logOut io.Writer) error {
	var (
		mu        sync.Mutex
		scheduler *triggers.Scheduler
		app       *shared.App
	)
	// the store loads once before the scheduler exists; later reloads
	// resync the armed triggers
	onReload := func(store.ReloadStats) {
		mu.Lock()
		s, a := scheduler, app
		mu.Unlock()
		if s != nil && a != nil {
			s.Sync(a.Store.List())
		}
	}

	a, err := shared.NewAppWithConfig(ctx, cfg, shared.AppOptions{
		LogOutput:   logOut,
		AsyncEvents: true,
		OnReload:    onReload,
	})
	if err != nil {
		l.Close()
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.Logger.Warn("shutdown incomplete", log.Error(err))
		}
	}()

	for file, loadErr := range a.Store.Errors() {
		a.Logger.Warn("program file failed to load", "file", file, log.Error(loadErr))
	}

	s := triggers.New(a.Runner, triggers.Options{Logger: a.Logger})
	s.Start(ctx)
	defer s.Stop()

	mu.Lock()
	scheduler, app = s, a
	mu.Unlock()
	s.Sync(a.Store.List())

	v, _, _ := shared.GetVersion()
	a.Logger.Info("stepflow serving",
		"version", v,
		"programs", len(a.Store.List()),
		"triggers", len(s.Active()),
		"addr", l.Addr().String())

	srvOpts := server.Options{
		Runner:   a.Runner,
		Catalog:  a.Store,
		History:  a.History,
		Triggers: s,
		Logger:   a.Logger,
	}
	if cfg.Server.Metrics {
		srvOpts.Metrics = a.Tracing.MetricsHandler()
	}
	srv := server.New(srvOpts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, l, cfg.Server.ShutdownTimeout)
	})
	if cfg.Programs.Watch {
		g.Go(func() error {
			if err := a.Store.Watch(gctx); err != nil {
				a.Logger.Warn("program watcher unavailable", log.Error(err))
			}
			return nil
		})
	}
	if a.History != nil && cfg.History.Retention > 0 {
		g.Go(func() error {
			pruneLoop(gctx, a, cfg.History.Retention)
			return nil
		})
	}

	err = g.Wait()
	a.Logger.Info("stepflow stopping")
	return err
}

// pruneLoop deletes expired history now and then every pruneInterval.
func pruneLoop(ctx context.Context, app *shared.App, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := app.History.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			app.Logger.Warn("history prune failed", log.Error(err))
		case n > 0:
			app.Logger.Info("history pruned", "runs", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
