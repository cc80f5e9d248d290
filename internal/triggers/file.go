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

package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/tombee/stepflow/internal/tracing"
	"github.com/tombee/stepflow/pkg/workflow"
)

func eventName(op fsnotify.Op) (string, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return "created", true
	case op.Has(fsnotify.Write):
		return "modified", true
	case op.Has(fsnotify.Remove):
		return "deleted", true
	case op.Has(fsnotify.Rename):
		return "renamed", true
	}
	return "", false
}

// fileEvent is the data a file trigger hands to its program.
type fileEvent struct {
	Path  string
	Event string
	Size  int64
	MTime time.Time
}

func (e fileEvent) data() map[string]any {
	file := map[string]any{
		"path":  e.Path,
		"name":  filepath.Base(e.Path),
		"dir":   filepath.Dir(e.Path),
		"ext":   filepath.Ext(e.Path),
		"event": e.Event,
		"size":  e.Size,
	}
	if !e.MTime.IsZero() {
		file["mtime"] = e.MTime.UTC().Format(time.RFC3339)
	}
	return map[string]any{"file": file}
}

// fileWatch watches the paths of one file trigger.
type fileWatch struct {
	watcher  *fsnotify.Watcher
	patterns []string
	limiter  *rate.Limiter
	debounce *debouncer
	logger   *slog.Logger
}

func newFileWatch(cfg *workflow.FileTrigger, debounce time.Duration, logger *slog.Logger) (*fileWatch, error) {
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid file pattern %q", p)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(expandHome(p))
		if err == nil {
			err = w.Add(abs)
		}
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	fw := &fileWatch{
		watcher:  w,
		patterns: cfg.Patterns,
		logger:   logger,
	}
	if cfg.MaxPerMinute > 0 {
		fw.limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxPerMinute)/60.0), 1)
	}
	fw.debounce = newDebouncer(debounce)
	return fw, nil
}

// run delivers debounced, rate limited events to fire until ctx is done.
func (fw *fileWatch) run(ctx context.Context, fire func(map[string]any)) {
	defer fw.watcher.Close()
	defer fw.debounce.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			name, ok := eventName(ev.Op)
			if !ok || !fw.matches(ev.Name) {
				continue
			}
			fe := fileEvent{Path: ev.Name, Event: name}
			fw.debounce.add(ev.Name, func() {
				if info, err := os.Stat(fe.Path); err == nil {
					if info.IsDir() {
						return
					}
					fe.Size, fe.MTime = info.Size(), info.ModTime()
				}
				if fw.limiter != nil && !fw.limiter.Allow() {
					tracing.RecordTrigger(string(workflow.TriggerTypeFile), "rate_limited")
					fw.logger.Warn("file trigger rate limited", slog.String("path", fe.Path))
					return
				}
				fire(fe.data())
			})
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("file watcher error", slog.Any("error", err))
		}
	}
}

// matches checks the base name against the trigger patterns. No patterns
// matches everything.
func (fw *fileWatch) matches(path string) bool {
	if len(fw.patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, p := range fw.patterns {
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}

// debouncer runs the latest callback for a key once the key has been
// quiet for the window.
type debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) add(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped || d.timers[key] != t {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

func (d *debouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// stop drops every pending callback.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
