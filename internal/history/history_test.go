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

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "history.db"), WAL: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(runID, programID, state string, finished time.Time) Entry {
	return Entry{
		RunID:      runID,
		ProgramID:  programID,
		State:      state,
		StartedAt:  finished.Add(-2 * time.Second),
		FinishedAt: finished,
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	e := entry("r1", "greet", "finished", base)
	e.ReturnValue = "hello"
	e.Log = "[12:00:00.000] I/engine: program started steps=2\n"
	require.NoError(t, s.Record(ctx, e))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "greet", got.ProgramID)
	assert.Equal(t, "finished", got.State)
	assert.Equal(t, "hello", got.ReturnValue)
	assert.Equal(t, e.Log, got.Log)
	assert.Equal(t, 2*time.Second, got.Duration)
	assert.True(t, got.FinishedAt.Equal(base))

	e.State = "failure"
	e.Message = "Boom"
	require.NoError(t, s.Record(ctx, e))
	got, err = s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "failure", got.State)
	assert.Equal(t, "Boom", got.Message)
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	var nf *stepflowerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.ID)
}

func TestStore_RecordRequiresRunID(t *testing.T) {
	s := openTestStore(t)
	err := s.Record(context.Background(), Entry{ProgramID: "p"})
	var ve *stepflowerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestStore_ListAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, entry("a", "one", "finished", base)))
	require.NoError(t, s.Record(ctx, entry("b", "two", "cancelled", base.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, entry("c", "one", "failure", base.Add(2*time.Minute))))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].RunID, all[1].RunID, all[2].RunID})

	one, err := s.List(ctx, Filter{ProgramID: "one", Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "c", one[0].RunID)

	failed, err := s.List(ctx, Filter{State: "failure"})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	n, err := s.Prune(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].RunID)
}
