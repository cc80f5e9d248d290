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

// Package validate implements the validate command.
package validate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Result is the validation outcome for one program or file.
type Result struct {
	ProgramID string           `json:"program_id,omitempty"`
	File      string           `json:"file,omitempty"`
	Valid     bool             `json:"valid"`
	Error     string           `json:"error,omitempty"`
	Issues    []workflow.Issue `json:"issues,omitempty"`
}

type response struct {
	shared.JSONResponse
	Results []Result `json:"results"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var types bool

	cmd := &cobra.Command{
		Use:   "validate [file|program-id]...",
		Short: "Check programs for errors",
		Long: `Validate parses programs and checks block pairing, step ids, triggers and
references to other steps. Arguments are program files or ids of stored
programs; with no arguments every stored program is checked.

Errors make the program unrunnable and exit with status 2. Warnings, such as
steps using unknown modules, are reported but do not fail validation.`,
		Example: `  # Check every stored program
  stepflow validate

  # Check a file before installing it
  stepflow validate ./nightly.yaml

  # Also check property paths against declared output types
  stepflow validate nightly --types --json`,
		ValidArgsFunction: completion.CompletePrograms,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args, types)
		},
	}

	cmd.Flags().BoolVar(&types, "types", false, "Check reference property paths against output types")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string, types bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := shared.NewApp(ctx, shared.AppOptions{LogOutput: cmd.ErrOrStderr(), SkipHistory: true})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	var typeReg *value.Registry
	if types {
		typeReg = value.NewRegistry()
	}

	var results []Result
	if len(args) == 0 {
		results = validateStore(app, typeReg)
	} else {
		for _, arg := range args {
			results = append(results, validateArg(ctx, app, arg, typeReg))
		}
	}

	invalid := 0
	for _, r := range results {
		if !r.Valid {
			invalid++
		}
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		resp := response{JSONResponse: shared.NewResponse("validate"), Results: results}
		resp.Success = invalid == 0
		if err := shared.EmitJSON(out, resp); err != nil {
			return err
		}
	} else {
		printResults(out, results)
	}

	if invalid > 0 {
		if shared.GetJSON() {
			return &shared.ExitError{Code: shared.ExitInvalidProgram}
		}
		return shared.NewInvalidProgramError(fmt.Sprintf("%d of %d program(s) invalid", invalid, len(results)), nil)
	}
	return nil
}

func validateStore(app *shared.App, types *value.Registry) []Result {
	var results []Result
	for _, p := range app.Store.List() {
		path, _ := app.Store.Path(p.ID)
		results = append(results, check(app, p, relTo(app.Store.Dir(), path), types))
	}
	errs := app.Store.Errors()
	files := make([]string, 0, len(errs))
	for f := range errs {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		results = append(results, Result{File: f, Error: errs[f].Error()})
	}
	return results
}

func validateArg(ctx context.Context, app *shared.App, arg string, types *value.Registry) Result {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return Result{File: arg, Error: err.Error()}
		}
		p, err := workflow.ParseDefinition(data)
		if err != nil {
			return Result{File: arg, Error: err.Error()}
		}
		// sub-programs called by this file resolve to it first
		app.Programs.Add(p)
		return check(app, p, arg, types)
	}

	p, err := app.Programs.Program(ctx, arg)
	if err != nil {
		return Result{ProgramID: arg, Error: fmt.Sprintf("program %s not found", arg)}
	}
	path, _ := app.Store.Path(p.ID)
	return check(app, p, relTo(app.Store.Dir(), path), types)
}

func check(app *shared.App, p *workflow.Program, file string, types *value.Registry) Result {
	r := Result{ProgramID: p.ID, File: file, Valid: true}
	err := p.Validate()
	if err == nil {
		err = workflow.ValidateBlocks(p.BoundSteps(app.Actions))
	}
	if err != nil {
		r.Valid = false
		r.Error = err.Error()
		return r
	}
	r.Issues = p.Lint(app.Actions, types)
	for _, issue := range r.Issues {
		if issue.Severity == workflow.SeverityError {
			r.Valid = false
		}
	}
	return r
}

func printResults(w io.Writer, results []Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, shared.RenderInfo("no programs found"))
		return
	}
	for _, r := range results {
		name := r.ProgramID
		if name == "" {
			name = r.File
		} else if r.File != "" {
			name += " " + shared.Muted.Render("("+r.File+")")
		}

		switch {
		case r.Error != "":
			fmt.Fprintln(w, shared.RenderError(name+": "+r.Error))
		case !r.Valid:
			fmt.Fprintln(w, shared.RenderError(name))
		case len(r.Issues) > 0:
			fmt.Fprintln(w, shared.RenderWarn(name))
		default:
			fmt.Fprintln(w, shared.RenderOK(name))
		}
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "    %s\n", issue)
		}
	}
}

func relTo(dir, path string) string {
	if path == "" {
		return ""
	}
	if rel, err := filepath.Rel(dir, path); err == nil {
		return rel
	}
	return path
}
