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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/commands/shared"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "stepflow", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"verbose", "quiet", "json", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")
	v, c, b := GetVersion()
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "abc123", c)
	assert.Equal(t, "2025-12-22", b)
}

func TestHelpJSON(t *testing.T) {
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := NewRootCommand()
	sub := &cobra.Command{Use: "run <program>", Short: "Run a program", RunE: func(*cobra.Command, []string) error { return nil }}
	sub.Flags().Bool("force", false, "Run disabled programs")
	root.AddCommand(sub)
	root.SetHelpCommand(NewHelpCommand(root))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"help", "run", "--json"})
	require.NoError(t, root.Execute())

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Command)
	assert.Equal(t, "run", resp.Command.Name)
	require.Len(t, resp.Command.Flags, 1)
	assert.Equal(t, "force", resp.Command.Flags[0].Name)
	assert.NotEmpty(t, resp.GlobalFlags)

	root.SetArgs([]string{"help", "nope", "--json"})
	assert.Error(t, root.Execute())
}
