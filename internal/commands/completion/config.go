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
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/config"
)

// CheckFilePermissions verifies that a file is not group or world
// writable. Missing files pass; loading them fails later anyway.
func CheckFilePermissions(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Mode().Perm()&0o022 == 0
}

// LoadConfigForCompletion loads the configuration named by --config, or the
// default one. It returns nil without an error when the file is writable by
// others, so completion quietly does nothing.
func LoadConfigForCompletion() (*config.Config, error) {
	path := shared.GetConfigPath()
	if path == "" {
		path = config.DefaultPath()
	}
	if !CheckFilePermissions(path) {
		return nil, nil
	}
	return config.Load(shared.GetConfigPath())
}

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}
