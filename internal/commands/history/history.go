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

// Package history implements the history command.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/completion"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/config"
	runhistory "github.com/tombee/stepflow/internal/history"
	pkgerrors "github.com/tombee/stepflow/pkg/errors"
)

// NewCommand creates the history command group.
func NewCommand() *cobra.Command {
	var (
		program string
		state   string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished runs",
		Long: `History lists finished runs, newest first. Use 'stepflow history show'
to see one run with its log.`,
		Example: `  # Recent runs
  stepflow history

  # Failures of one program
  stepflow history --program nightly --state failure

  # Full record of a run
  stepflow history show 1f0c2a9e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, nil, func(ctx context.Context, st *runhistory.Store) error {
				return listRuns(ctx, cmd.OutOrStdout(), st, runhistory.Filter{ProgramID: program, State: state, Limit: limit})
			})
		},
	}
	cmd.Flags().StringVarP(&program, "program", "p", "", "Only runs of this program")
	cmd.Flags().StringVar(&state, "state", "", "Only runs in this state (finished, failure, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 for all)")

	cmd.RegisterFlagCompletionFunc("state", completion.CompleteRunStates)

	cmd.AddCommand(newShowCommand(), newPruneCommand())
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <run-id>",
		Short:             "Show one run with its log",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, nil, func(ctx context.Context, st *runhistory.Store) error {
				entry, err := st.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return showRun(cmd.OutOrStdout(), entry)
			})
		},
	}
}

func newPruneCommand() *cobra.Command {
	var olderThan, retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs",
		Long:  `Prune deletes runs that finished before --older-than ago, or before the configured retention when the flag is not given.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, &retention, func(ctx context.Context, st *runhistory.Store) error {
				age := olderThan
				if age <= 0 {
					age = retention
				}
				if age <= 0 {
					return errors.New("no retention configured; pass --older-than")
				}
				n, err := st.Prune(ctx, time.Now().Add(-age))
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"pruned": n})
				}
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("pruned %d run(s)", n)))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age of the oldest run to keep (e.g. 720h)")
	return cmd
}

func withStore(cmd *cobra.Command, retention *time.Duration, fn func(context.Context, *runhistory.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("run history is disabled in the configuration")
	}
	if retention != nil {
		*retention = cfg.History.Retention
	}

	st, err := shared.OpenHistory(cfg)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer st.Close()

	err = fn(ctx, st)
	var notFound *pkgerrors.NotFoundError
	if errors.As(err, &notFound) && shared.GetJSON() {
		shared.EmitJSONError(cmd.OutOrStdout(), "history", []shared.JSONError{{
			Code:    shared.ErrorCodeNotFound,
			Message: err.Error(),
		}})
		return &shared.ExitError{Code: shared.ExitExecutionFailed}
	}
	return err
}

func listRuns(ctx context.Context, w io.Writer, st *runhistory.Store, filter runhistory.Filter) error {
	entries, err := st.List(ctx, filter)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		for _, e := range entries {
			e.Log = ""
		}
		resp := struct {
			shared.JSONResponse
			Runs []*runhistory.Entry `json:"runs"`
		}{shared.NewResponse("history"), entries}
		if resp.Runs == nil {
			resp.Runs = []*runhistory.Entry{}
		}
		return shared.EmitJSON(w, resp)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tPROGRAM\tSTATE\tFINISHED\tDURATION\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(e.RunID),
			e.ProgramID,
			shared.RenderState(e.State),
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			e.Duration.Round(time.Millisecond),
			truncate(e.Message, 60))
	}
	return tw.Flush()
}

func showRun(w io.Writer, e *runhistory.Entry) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, e)
	}
	label := func(s string) string { return shared.Muted.Render(fmt.Sprintf("%-13s", s)) }
	fmt.Fprintf(w, "%s%s\n", label("Run ID:"), e.RunID)
	fmt.Fprintf(w, "%s%s\n", label("Program:"), e.ProgramID)
	fmt.Fprintf(w, "%s%s\n", label("State:"), shared.RenderState(e.State))
	if e.Message != "" {
		fmt.Fprintf(w, "%s%s\n", label("Message:"), e.Message)
	}
	if e.ReturnValue != "" {
		fmt.Fprintf(w, "%s%s\n", label("Returned:"), e.ReturnValue)
	}
	fmt.Fprintf(w, "%s%s\n", label("Started:"), e.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "%s%s\n", label("Duration:"), e.Duration.Round(time.Millisecond))
	if e.Log != "" {
		fmt.Fprintf(w, "\n%s\n%s", shared.Header.Render("Log"), e.Log)
		if !strings.HasSuffix(e.Log, "\n") {
			fmt.Fprintln(w)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
