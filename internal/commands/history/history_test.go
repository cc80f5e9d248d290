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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/cli"
	"github.com/tombee/stepflow/internal/commands/shared"
	runhistory "github.com/tombee/stepflow/internal/history"
)

func setup(t *testing.T) string {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	db := filepath.Join(dir, "history.db")

	st, err := runhistory.Open(runhistory.Config{Path: db})
	require.NoError(t, err)
	now := time.Now()
	entries := []runhistory.Entry{
		{RunID: "run-old-0001", ProgramID: "nightly", State: "finished", StartedAt: now.Add(-50 * 24 * time.Hour), FinishedAt: now.Add(-50*24*time.Hour + time.Second)},
		{RunID: "run-fail-0002", ProgramID: "nightly", State: "failure", Message: "Step failed: boom", Log: "[10:00:00.000] E/engine: boom\n", StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2*time.Hour + 3*time.Second)},
		{RunID: "run-ok-0003", ProgramID: "hello", State: "finished", ReturnValue: "42", StartedAt: now.Add(-time.Minute), FinishedAt: now},
	}
	for _, e := range entries {
		require.NoError(t, st.Record(context.Background(), e))
	}
	require.NoError(t, st.Close())

	cfg := filepath.Join(dir, "config.yaml")
	body := "programs:\n  dir: " + filepath.Join(dir, "programs") + "\nhistory:\n  enabled: true\n  path: " + db + "\n  retention: 720h\n"
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	return cfg
}

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg, "history"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestHistory_List(t *testing.T) {
	cfg := setup(t)
	out, err := run(t, cfg)
	require.NoError(t, err)

	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "run-ok-0")
	assert.Contains(t, out, "Step failed: boom")
}

func TestHistory_ListFilterJSON(t *testing.T) {
	cfg := setup(t)
	out, err := run(t, cfg, "--json", "--program", "nightly", "--state", "failure")
	require.NoError(t, err)

	var resp struct {
		Success bool                `json:"success"`
		Runs    []*runhistory.Entry `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "run-fail-0002", resp.Runs[0].RunID)
	assert.Empty(t, resp.Runs[0].Log)
}

func TestHistory_Show(t *testing.T) {
	cfg := setup(t)
	out, err := run(t, cfg, "show", "run-fail-0002")
	require.NoError(t, err)

	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "failure")
	assert.Contains(t, out, "E/engine: boom")
}

func TestHistory_ShowMissing(t *testing.T) {
	cfg := setup(t)
	_, err := run(t, cfg, "show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: nope")
}

func TestHistory_Prune(t *testing.T) {
	cfg := setup(t)
	out, err := run(t, cfg, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1 run(s)")

	out, err = run(t, cfg, "prune", "--older-than", "1h", "--json")
	require.NoError(t, err)
	var resp map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp["pruned"])

	out, err = run(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "run-ok-0")
	assert.NotContains(t, out, "run-fail")
}

func TestHistory_Disabled(t *testing.T) {
	cfg := setup(t)
	require.NoError(t, os.WriteFile(cfg, []byte("history:\n  enabled: false\n"), 0o600))
	_, err := run(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}
