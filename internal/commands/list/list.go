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

// Package list implements the list command.
package list

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Entry describes one stored program.
type Entry struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool                 `json:"enabled" yaml:"enabled"`
	Trigger     workflow.TriggerType `json:"trigger" yaml:"trigger"`
	Steps       int                  `json:"steps" yaml:"steps"`
	File        string               `json:"file" yaml:"file"`
}

type response struct {
	shared.JSONResponse
	Programs []Entry            `json:"programs"`
	Errors   []shared.JSONError `json:"errors,omitempty"`
}

// NewCommand creates the list command
func NewCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored programs",
		Long: `List shows every program in the programs directory with its trigger and
whether it is enabled. Files that fail to load are reported on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output in YAML format")
	return cmd
}

func runList(cmd *cobra.Command, asYAML bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := shared.NewApp(ctx, shared.AppOptions{LogOutput: cmd.ErrOrStderr(), SkipHistory: true})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	var entries []Entry
	for _, p := range app.Store.List() {
		path, _ := app.Store.Path(p.ID)
		entries = append(entries, Entry{
			ID:          p.ID,
			Name:        p.DisplayName(),
			Description: p.Description,
			Enabled:     p.Enabled,
			Trigger:     p.Trigger.Type(),
			Steps:       len(p.Steps),
			File:        path,
		})
	}

	errs := app.Store.Errors()
	files := make([]string, 0, len(errs))
	for f := range errs {
		files = append(files, f)
	}
	sort.Strings(files)

	out := cmd.OutOrStdout()
	switch {
	case shared.GetJSON():
		resp := response{JSONResponse: shared.NewResponse("list"), Programs: entries}
		if resp.Programs == nil {
			resp.Programs = []Entry{}
		}
		for _, f := range files {
			resp.Errors = append(resp.Errors, shared.JSONError{
				Code:    shared.ErrorCodeInvalidYAML,
				Message: errs[f].Error(),
				File:    f,
			})
		}
		return shared.EmitJSON(out, resp)
	case asYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No programs in %s\n", app.Store.Dir())
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tENABLED\tSTEPS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Name, e.Trigger, strconv.FormatBool(e.Enabled), e.Steps)
		}
		w.Flush()
	}

	for _, f := range files {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(fmt.Sprintf("%s: %v", f, errs[f])))
	}
	return nil
}
