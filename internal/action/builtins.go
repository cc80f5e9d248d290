// Package action assembles the builtin action set.
package action

import (
	"github.com/tombee/stepflow/internal/action/data"
	"github.com/tombee/stepflow/internal/action/logic"
	"github.com/tombee/stepflow/internal/action/net"
	"github.com/tombee/stepflow/internal/action/system"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Options configures the builtin actions.
type Options struct {
	Logic  logic.Options
	Data   data.Options
	System system.Options
	Net    net.Options
}

// RegisterBuiltins registers every builtin action with reg.
func RegisterBuiltins(reg *workflow.Registry, opts Options) error {
	sets := [][]workflow.Action{
		logic.Actions(opts.Logic),
		data.Actions(opts.Data),
		system.Actions(opts.System),
		net.Actions(opts.Net),
	}
	for _, set := range sets {
		for _, a := range set {
			if err := reg.Register(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewRegistry returns a registry holding the builtin actions.
func NewRegistry(opts Options) (*workflow.Registry, error) {
	reg := workflow.NewRegistry()
	if err := RegisterBuiltins(reg, opts); err != nil {
		return nil, err
	}
	return reg, nil
}
