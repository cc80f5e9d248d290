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

package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/history"
)

const (
	maxRunCompletions = 50
	historyTimeout    = 500 * time.Millisecond
)

// CompleteRunIDs completes run ids from the history database, newest first,
// described by program and state.
func CompleteRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		cfg, err := LoadConfigForCompletion()
		if err != nil || cfg == nil || !cfg.History.Enabled {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		st, err := shared.OpenHistory(cfg)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		entries, err := st.List(ctx, history.Filter{Limit: maxRunCompletions})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, fmt.Sprintf("%s\t%s (%s)", e.RunID, e.ProgramID, e.State))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}
