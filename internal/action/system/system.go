// Package system provides the builtin system actions: the manual trigger,
// delays, logging and shell commands.
package system

import (
	"time"

	"github.com/tombee/stepflow/pkg/workflow"
)

const category = "system"

// Module ids of the system actions.
const (
	ManualTriggerID = "stepflow.system.trigger.manual"
	DelayID         = "stepflow.system.delay"
	LogID           = "stepflow.system.log"
	ShellID         = "stepflow.system.shell"
)

// Options configures the system actions.
type Options struct {
	// ShellEnabled registers the shell action
	ShellEnabled bool

	// ShellTimeout bounds each command; zero uses DefaultShellTimeout
	ShellTimeout time.Duration

	// MaxDelay bounds the delay action; zero uses DefaultMaxDelay
	MaxDelay time.Duration
}

// Actions returns the system actions. The shell action is only included
// when enabled.
func Actions(opts Options) []workflow.Action {
	actions := []workflow.Action{newManualTrigger(), newDelay(opts.MaxDelay), newLog()}
	if opts.ShellEnabled {
		actions = append(actions, newShell(opts.ShellTimeout))
	}
	return actions
}
