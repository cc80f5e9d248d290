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

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/action"
	"github.com/tombee/stepflow/internal/history"
	"github.com/tombee/stepflow/internal/runner"
	"github.com/tombee/stepflow/internal/store"
	"github.com/tombee/stepflow/pkg/workflow"
)

const quickProgram = `
id: quick
name: Quick
steps:
  - id: start
    module: stepflow.system.trigger.manual
  - id: done
    module: stepflow.logic.return
    parameters:
      value: "{{start.data.who}}"
`

const slowProgram = `
id: slow
steps:
  - id: wait
    module: stepflow.system.delay
    parameters:
      duration: 60000
`

const disabledProgram = `
id: off
enabled: false
steps:
  - id: wait
    module: stepflow.system.delay
`

type fixture struct {
	srv     *httptest.Server
	runner  *runner.Runner
	history *history.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"quick.yaml": quickProgram,
		"slow.yaml":  slowProgram,
		"off.yaml":   disabledProgram,
		"bad.yaml":   "id: [",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.New(store.Options{Dir: dir, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, st.Load())

	hist, err := history.Open(history.Config{Path: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	reg, err := action.NewRegistry(action.Options{})
	require.NoError(t, err)
	exec := workflow.NewExecutor(reg, st).WithLogger(logger)
	r := runner.New(exec, runner.Options{ScratchRoot: t.TempDir(), Recorder: hist, Logger: logger})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Shutdown(ctx)
	})

	s := New(Options{
		Runner:  r,
		Catalog: st,
		History: hist,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "metrics") }),
		Logger:  logger,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, runner: r, history: hist}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "3", checks["programs"])
	assert.Equal(t, "1", checks["program_errors"])
}

func TestServer_Programs(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/v1/programs", "")
	require.Equal(t, http.StatusOK, status)
	programs := body["programs"].([]any)
	require.Len(t, programs, 3)
	first := programs[0].(map[string]any)
	assert.Equal(t, "off", first["id"])
	assert.Equal(t, false, first["enabled"])
	assert.Contains(t, body["errors"], "bad.yaml")

	status, body = f.do(t, http.MethodGet, "/v1/programs/quick", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Quick", body["name"])
	assert.Equal(t, "manual", body["trigger"])
	assert.NotNil(t, body["program"])

	status, _ = f.do(t, http.MethodGet, "/v1/programs/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RunAndHistory(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/programs/quick/run", `{"who":"ada"}`)
	require.Equal(t, http.StatusAccepted, status)
	runID := body["run_id"].(string)
	require.NotEmpty(t, runID)

	res, err := f.runner.Wait(context.Background(), "quick")
	require.NoError(t, err)
	if res != nil {
		assert.Equal(t, workflow.EventFinished, res.State)
	}

	require.Eventually(t, func() bool {
		status, _ := f.do(t, http.MethodGet, "/v1/history/"+runID, "")
		return status == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	_, body = f.do(t, http.MethodGet, "/v1/history/"+runID, "")
	assert.Equal(t, "finished", body["state"])
	assert.Equal(t, "ada", body["return_value"])
	assert.NotEmpty(t, body["log"])

	status, body = f.do(t, http.MethodGet, "/v1/history?program=quick", "")
	require.Equal(t, http.StatusOK, status)
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].(map[string]any)["log"])

	status, _ = f.do(t, http.MethodGet, "/v1/history/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.do(t, http.MethodGet, "/v1/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_RunErrors(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/v1/programs/quick/run", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := f.do(t, http.MethodPost, "/v1/programs/off/run", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "disabled")

	status, _ = f.do(t, http.MethodPost, "/v1/programs/off/run?force=true", "")
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = f.do(t, http.MethodPost, "/v1/programs/missing/run", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_StopAndActive(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/v1/programs/slow/run", "")
	require.Equal(t, http.StatusAccepted, status)

	status, _ = f.do(t, http.MethodPost, "/v1/programs/slow/run", "")
	assert.Equal(t, http.StatusConflict, status)

	_, body := f.do(t, http.MethodGet, "/v1/runs", "")
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "slow", runs[0].(map[string]any)["program_id"])

	status, _ = f.do(t, http.MethodPost, "/v1/programs/slow/stop", "")
	assert.Equal(t, http.StatusOK, status)

	res, err := f.runner.Wait(context.Background(), "slow")
	require.NoError(t, err)
	if res != nil {
		assert.Equal(t, workflow.EventCancelled, res.State)
	}

	status, _ = f.do(t, http.MethodPost, "/v1/programs/slow/stop", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_TriggersAndMetrics(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/v1/triggers", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["triggers"])

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "metrics", string(data))
}
