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
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/config"
	pkgerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitExecutionFailed, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitInvalidProgram, ExitCode(NewInvalidProgramError("bad", nil)))
	wrapped := pkgerrors.Wrap(NewExecutionError("run failed", nil), "context")
	assert.Equal(t, ExitExecutionFailed, ExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("no such file")
	assert.Equal(t, "load failed: no such file", NewInvalidProgramError("load failed", cause).Error())
	assert.Equal(t, "no such file", (&ExitError{Code: 2, Cause: cause}).Error())
	assert.ErrorIs(t, NewExecutionError("x", cause), cause)
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, &pkgerrors.ValidationError{
		Field:      "steps",
		Message:    "unclosed block",
		Suggestion: "add the matching end step",
	})
	out := buf.String()
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "Suggestion: add the matching end step")

	buf.Reset()
	PrintError(&buf, NewExecutionError("cannot load config", &pkgerrors.ConfigError{Key: "config_file", Reason: "missing"}))
	assert.Contains(t, buf.String(), "Suggestion: check the path given to --config")

	buf.Reset()
	PrintError(&buf, &ExitError{Code: ExitInvalidProgram})
	assert.Empty(t, buf.String())
}

func TestOverlay(t *testing.T) {
	base := NewOverlay(nil)
	base.Add(&workflow.Program{ID: "stored", Name: "from store"})

	o := NewOverlay(base)
	o.Add(&workflow.Program{ID: "stored", Name: "from file"})

	p, err := o.Program(context.Background(), "stored")
	require.NoError(t, err)
	assert.Equal(t, "from file", p.Name)

	_, err = o.Program(context.Background(), "missing")
	assert.ErrorIs(t, err, workflow.ErrUnknownProgram)
}

func TestNewAppWithConfig(t *testing.T) {
	ResetFlagsForTest()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Default()
	cfg.Programs.Dir = filepath.Join(dir, "programs")
	cfg.History.Path = filepath.Join(dir, "data", "history.db")
	cfg.Engine.ScratchDir = dir

	ctx := context.Background()
	app, err := NewAppWithConfig(ctx, cfg, AppOptions{LogOutput: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(ctx) })

	require.NotNil(t, app.History)
	_, ok := app.Actions.Get("stepflow.logic.loop.start")
	assert.True(t, ok)
	_, ok = app.Actions.Get("stepflow.system.shell")
	assert.False(t, ok, "shell is off by default")

	prog, err := workflow.ParseDefinition([]byte(`
id: hello
steps:
  - id: v
    module: stepflow.data.variable.create
    parameters:
      name: greeting
      value: hi
  - id: out
    module: stepflow.logic.return
    parameters:
      value: "{{v.variable}}"
`))
	require.NoError(t, err)
	app.Programs.Add(prog)

	res, err := app.Runner.Run(ctx, prog, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.EventFinished, res.State)
	assert.Equal(t, value.String("hi"), res.ReturnValue)

	entry, err := app.History.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "hello", entry.ProgramID)
}
