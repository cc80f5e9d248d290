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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// NewRootCommand creates the root command with the global flags.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stepflow",
		Short: "Stepflow - rule-based workflow engine",
		Long: `Stepflow runs programs: ordered lists of steps (triggers and actions)
with loops, conditionals, jumps and sub-program calls, defined in YAML.

Programs live in the programs directory (see --config). Run 'stepflow list'
to see them, 'stepflow run <id>' to run one and 'stepflow serve' to keep
interval and file triggers armed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/stepflow/config.yaml)")

	return cmd
}

// HandleExitError reports err and exits with its exit code
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
