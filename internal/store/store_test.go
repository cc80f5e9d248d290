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

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/workflow"
)

func writeProgram(t *testing.T, dir, rel, id string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := "id: " + id + "\nsteps:\n  - id: hello\n    module: stepflow.system.log\n    parameters:\n      message: hi\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	writeProgram(t, dir, "a.yaml", "alpha")
	writeProgram(t, dir, "nested/deep/b.yml", "beta")
	writeProgram(t, dir, "z_dup.yaml", "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("id: nope"), 0o644))

	var stats ReloadStats
	s, err := New(Options{Dir: dir, OnReload: func(r ReloadStats) { stats = r }})
	require.NoError(t, err)
	require.NoError(t, s.Load())

	ids := []string{}
	for _, p := range s.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"alpha", "beta"}, ids)
	assert.Equal(t, ReloadStats{Loaded: 2, Failed: 2}, stats)

	errs := s.Errors()
	assert.Contains(t, errs, "broken.yaml")
	require.Contains(t, errs, "z_dup.yaml")
	assert.Contains(t, errs["z_dup.yaml"].Error(), "already defined in a.yaml")

	p, err := s.Program(context.Background(), "beta")
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Steps[0].ID)

	path, ok := s.Path("beta")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(s.Dir(), "nested", "deep", "b.yml"), path)

	_, err = s.Program(context.Background(), "gamma")
	assert.ErrorIs(t, err, workflow.ErrUnknownProgram)
}

func TestStore_Options(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Dir: t.TempDir(), Pattern: "[unclosed"})
	assert.Error(t, err)

	s, err := New(Options{Dir: t.TempDir(), Pattern: "*.yaml"})
	require.NoError(t, err)
	assert.True(t, s.Matches(filepath.Join(s.Dir(), "x.yaml")))
	assert.False(t, s.Matches(filepath.Join(s.Dir(), "sub", "x.yaml")))
}

func TestStore_Watch(t *testing.T) {
	dir := t.TempDir()
	writeProgram(t, dir, "a.yaml", "alpha")

	var reloads atomic.Int32
	s, err := New(Options{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		OnReload: func(ReloadStats) { reloads.Add(1) },
	})
	require.NoError(t, err)
	require.NoError(t, s.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeProgram(t, dir, "b.yaml", "beta")

	require.Eventually(t, func() bool {
		_, err := s.Program(context.Background(), "beta")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	require.Eventually(t, func() bool {
		_, err := s.Program(context.Background(), "alpha")
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(3))
}
