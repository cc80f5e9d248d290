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

// Package store loads program definitions from a directory and keeps them
// current as files change.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/stepflow/pkg/workflow"
)

// DefaultPattern matches program files anywhere below the store directory.
const DefaultPattern = "**/*.{yaml,yml}"

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 200 * time.Millisecond

// ReloadStats summarises one load of the directory.
type ReloadStats struct {
	Loaded int
	Failed int
}

// Options configures a Store.
type Options struct {
	Dir     string
	Pattern string

	// Debounce coalesces bursts of file events into one reload
	Debounce time.Duration

	// OnReload is called after every load, including the first
	OnReload func(ReloadStats)

	Logger *slog.Logger
}

type entry struct {
	program *workflow.Program
	path    string
}

// Store is a directory-backed program source. It is safe for concurrent
// use; a reload replaces the whole set atomically.
type Store struct {
	dir      string
	pattern  string
	debounce time.Duration
	onReload func(ReloadStats)
	logger   *slog.Logger

	mu       sync.RWMutex
	programs map[string]entry
	errs     map[string]error
}

var _ workflow.ProgramSource = (*Store)(nil)

// New creates a store over dir. Call Load to read it.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("program directory is required")
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(opts.Pattern) {
		return nil, fmt.Errorf("invalid program pattern %q", opts.Pattern)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve program directory: %w", err)
	}
	return &Store{
		dir:      dir,
		pattern:  opts.Pattern,
		debounce: opts.Debounce,
		onReload: opts.OnReload,
		logger:   logger.With("component", "store", "dir", dir),
		programs: make(map[string]entry),
		errs:     make(map[string]error),
	}, nil
}

// Dir returns the absolute store directory.
func (s *Store) Dir() string { return s.dir }

// Load reads every matching file. Files that fail to parse, and later
// files declaring an id already taken, are reported by Errors and left out;
// they never fail the load as a whole.
func (s *Store) Load() error {
	paths, err := doublestar.Glob(os.DirFS(s.dir), s.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", s.dir, err)
	}
	sort.Strings(paths)

	programs := make(map[string]entry, len(paths))
	errs := make(map[string]error)
	for _, rel := range paths {
		path := filepath.Join(s.dir, filepath.FromSlash(rel))
		prog, err := loadFile(path)
		if err != nil {
			errs[rel] = err
			continue
		}
		if prev, dup := programs[prog.ID]; dup {
			errs[rel] = fmt.Errorf("program id %q already defined in %s", prog.ID, s.rel(prev.path))
			continue
		}
		programs[prog.ID] = entry{program: prog, path: path}
	}

	s.mu.Lock()
	s.programs = programs
	s.errs = errs
	s.mu.Unlock()

	for rel, err := range errs {
		s.logger.Warn("skipping program file", "file", rel, "error", err)
	}
	s.logger.Debug("programs loaded", "count", len(programs), "failed", len(errs))
	if s.onReload != nil {
		s.onReload(ReloadStats{Loaded: len(programs), Failed: len(errs)})
	}
	return nil
}

func loadFile(path string) (*workflow.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return workflow.ParseDefinition(data)
}

func (s *Store) rel(path string) string {
	if r, err := filepath.Rel(s.dir, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}

// Program returns a program by id.
func (s *Store) Program(_ context.Context, id string) (*workflow.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.programs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, workflow.ErrUnknownProgram)
	}
	return e.program, nil
}

// Path returns the file a program was loaded from.
func (s *Store) Path(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.programs[id]
	return e.path, ok
}

// List returns every loaded program ordered by id.
func (s *Store) List() []*workflow.Program {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Program, 0, len(s.programs))
	for _, e := range s.programs {
		out = append(out, e.program)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Errors returns the load error of every skipped file, keyed by path
// relative to the store directory.
func (s *Store) Errors() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// Matches reports whether a path below the store directory is a program
// file.
func (s *Store) Matches(path string) bool {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		return false
	}
	ok, _ := doublestar.Match(s.pattern, filepath.ToSlash(rel))
	return ok
}

// subdirs lists the store directory and every directory below it.
func (s *Store) subdirs() ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}
