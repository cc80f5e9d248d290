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
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/store"
)

// CompletePrograms completes the first argument with the ids of stored
// programs. File names still complete when nothing matches.
func CompletePrograms(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		cfg, err := LoadConfigForCompletion()
		if err != nil || cfg == nil {
			return nil, cobra.ShellCompDirectiveDefault
		}
		st, err := store.New(store.Options{
			Dir:     cfg.Programs.Dir,
			Pattern: cfg.Programs.Pattern,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil || st.Load() != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}

		var out []string
		for _, p := range st.List() {
			desc := p.DisplayName()
			if !p.Enabled {
				desc += " (disabled)"
			}
			out = append(out, p.ID+"\t"+desc)
		}
		return out, cobra.ShellCompDirectiveDefault
	})
}
