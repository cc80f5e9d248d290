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

// Package run implements the run command.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/runner"
	"github.com/tombee/stepflow/pkg/workflow"
)

type options struct {
	data       []string
	dataFile   string
	force      bool
	noProgress bool
	timeout    time.Duration
}

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run [program-id | file.yaml]",
		Short: "Run a program and wait for it to finish",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run executes one program in the foreground and prints its result.

The argument is either the id of a program in the programs directory or a
path to a program file. Without an argument an interactive picker lists
the stored programs.

Trigger data is passed with --data key=value (repeatable) or --data-file.
Without either, the data configured on the program's trigger is used.

Interrupting the command stops the run; the run still reports cancelled.`,
		Example: `  # Run a stored program
  stepflow run nightly-report

  # Run a file with trigger data
  stepflow run ./hello.yaml --data name=world

  # Run a disabled program
  stepflow run archive --force`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.CompletePrograms,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.data, "data", "d", nil, "Trigger data in key=value format")
	cmd.Flags().StringVar(&opts.dataFile, "data-file", "", "JSON or YAML file with trigger data (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Run the program even when it is disabled")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Don't print step progress")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Stop the run after this long")

	return cmd
}

func runProgram(cmd *cobra.Command, args []string, opts options) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.NewApp(ctx, shared.AppOptions{LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.Logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	prog, err := resolveProgram(ctx, app, args)
	if err != nil {
		return err
	}
	if !prog.Enabled && !opts.force {
		return &shared.ExitError{
			Code:    shared.ExitInvalidProgram,
			Message: fmt.Sprintf("program %s is disabled (use --force to run it anyway)", prog.ID),
		}
	}
	if err := workflow.ValidateBlocks(prog.BoundSteps(app.Actions)); err != nil {
		return shared.NewInvalidProgramError(fmt.Sprintf("program %s is invalid", prog.ID), err)
	}

	data, err := triggerData(prog, opts, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if !opts.noProgress && !shared.GetJSON() && !shared.GetQuiet() {
		unsubscribe := app.Bus.Subscribe(newProgressPrinter(cmd.ErrOrStderr(), prog).handle,
			workflow.EventStepProgress, workflow.EventStepRetry)
		defer unsubscribe()
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	res, err := app.Runner.Run(ctx, prog, data)
	if err != nil {
		if errors.Is(err, runner.ErrAlreadyRunning) {
			return shared.NewExecutionError(fmt.Sprintf("program %s is already running", prog.ID), err)
		}
		return shared.NewExecutionError("failed to start run", err)
	}
	return report(cmd.OutOrStdout(), prog, res)
}

// resolveProgram loads the program named by args: a file path, a stored
// program id, or an interactive choice when args is empty.
func resolveProgram(ctx context.Context, app *shared.App, args []string) (*workflow.Program, error) {
	var ref string
	if len(args) == 1 {
		ref = args[0]
	} else {
		picked, err := pickProgram(app.Store.List())
		if err != nil {
			return nil, err
		}
		ref = picked
	}

	if isFileRef(ref) {
		raw, err := os.ReadFile(ref)
		if err != nil {
			return nil, shared.NewInvalidProgramError("failed to read program file", err)
		}
		prog, err := workflow.ParseDefinition(raw)
		if err != nil {
			return nil, shared.NewInvalidProgramError(fmt.Sprintf("failed to load %s", filepath.Base(ref)), err)
		}
		app.Programs.Add(prog)
		return prog, nil
	}

	prog, err := app.Programs.Program(ctx, ref)
	if err != nil {
		if errs := app.Store.Errors(); len(errs) > 0 {
			for file, loadErr := range errs {
				app.Logger.Warn("program file failed to load", "file", file, "error", loadErr)
			}
		}
		return nil, shared.NewInvalidProgramError(fmt.Sprintf("unknown program %q", ref), err)
	}
	return prog, nil
}

func isFileRef(ref string) bool {
	ext := strings.ToLower(filepath.Ext(ref))
	if ext == ".yaml" || ext == ".yml" {
		return true
	}
	if strings.ContainsRune(ref, os.PathSeparator) {
		if info, err := os.Stat(ref); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func pickProgram(programs []*workflow.Program) (string, error) {
	if shared.IsNonInteractive() || shared.GetJSON() {
		return "", &shared.ExitError{
			Code:    shared.ExitInvalidProgram,
			Message: "a program id or file is required in non-interactive mode",
		}
	}
	if len(programs) == 0 {
		return "", &shared.ExitError{Code: shared.ExitInvalidProgram, Message: "no programs found"}
	}

	opts := make([]huh.Option[string], 0, len(programs))
	for _, p := range programs {
		label := p.DisplayName()
		if label != p.ID {
			label = fmt.Sprintf("%s (%s)", label, p.ID)
		}
		if !p.Enabled {
			label += " [disabled]"
		}
		opts = append(opts, huh.NewOption(label, p.ID))
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Program").
				Description("Select the program to run").
				Options(opts...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", &shared.ExitError{Code: shared.ExitExecutionFailed, Message: "cancelled"}
		}
		return "", fmt.Errorf("program picker failed: %w", err)
	}
	return choice, nil
}

func report(w io.Writer, prog *workflow.Program, res *runner.Result) error {
	var returned string
	if res.ReturnValue != nil {
		returned = res.ReturnValue.AsString()
	}

	if shared.GetJSON() {
		resp := response{
			JSONResponse: shared.NewResponse("run"),
			RunID:        res.RunID,
			ProgramID:    res.ProgramID,
			State:        string(res.State),
			Message:      res.Message,
			ReturnValue:  returned,
			Duration:     res.FinishedAt.Sub(res.StartedAt).String(),
		}
		if res.State != workflow.EventFinished {
			resp.Success = false
			resp.Errors = []shared.JSONError{runError(res)}
		}
		if err := shared.EmitJSON(w, resp); err != nil {
			return err
		}
		if res.State != workflow.EventFinished {
			return &shared.ExitError{Code: shared.ExitExecutionFailed}
		}
		return nil
	}

	elapsed := res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond)
	switch res.State {
	case workflow.EventFinished:
		if !shared.GetQuiet() {
			fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s %s in %v", prog.DisplayName(), shared.RenderState(string(res.State)), elapsed)))
		}
		if returned != "" {
			fmt.Fprintln(w, returned)
		}
		return nil
	case workflow.EventCancelled:
		return shared.NewExecutionError(fmt.Sprintf("%s cancelled after %v", prog.DisplayName(), elapsed), res.Err)
	default:
		msg := res.Message
		if msg == "" && res.Err != nil {
			msg = res.Err.Error()
		}
		return shared.NewExecutionError(fmt.Sprintf("%s failed: %s", prog.DisplayName(), msg), nil)
	}
}

type response struct {
	shared.JSONResponse
	RunID       string             `json:"run_id"`
	ProgramID   string             `json:"program_id"`
	State       string             `json:"state"`
	Message     string             `json:"message,omitempty"`
	ReturnValue string             `json:"return_value,omitempty"`
	Duration    string             `json:"duration"`
	Errors      []shared.JSONError `json:"errors,omitempty"`
}

func runError(res *runner.Result) shared.JSONError {
	je := shared.JSONError{Code: shared.ErrorCodeStepFailed, Message: res.Message}
	if res.State == workflow.EventCancelled {
		je.Code = shared.ErrorCodeCancelled
	}
	var sf *workflow.StepFailure
	if errors.As(res.Err, &sf) {
		je.StepID = sf.StepID
	}
	if je.Message == "" && res.Err != nil {
		je.Message = res.Err.Error()
	}
	return je
}
