// Package base holds the declarative parts shared by the builtin actions.
package base

import (
	"github.com/tombee/stepflow/pkg/workflow"
)

// Base implements the descriptive half of workflow.Action. Builtin actions
// embed it and add Execute.
type Base struct {
	ActionID string
	Meta     workflow.Metadata
	In       []workflow.InputDefinition
	Out      []workflow.OutputDefinition
}

func (b Base) ID() string                                         { return b.ActionID }
func (b Base) Metadata() workflow.Metadata                        { return b.Meta }
func (b Base) Inputs() []workflow.InputDefinition                 { return b.In }
func (b Base) Outputs(*workflow.Step) []workflow.OutputDefinition { return b.Out }

// New builds a Base with the given id, display name and category.
func New(id, name, category, description string) Base {
	return Base{
		ActionID: id,
		Meta:     workflow.Metadata{Name: name, Category: category, Description: description},
	}
}

// WithInputs returns a copy of b declaring inputs.
func (b Base) WithInputs(inputs ...workflow.InputDefinition) Base {
	b.In = inputs
	return b
}

// WithOutputs returns a copy of b declaring outputs.
func (b Base) WithOutputs(outputs ...workflow.OutputDefinition) Base {
	b.Out = outputs
	return b
}

// Input is shorthand for a required or optional input of a given type.
func Input(id, typeID string, required bool) workflow.InputDefinition {
	return workflow.InputDefinition{ID: id, TypeID: typeID, Required: required}
}

// Block describes a delimiter of the pairing block.
func Block(t workflow.BlockType, pairing string, loop bool) workflow.BlockBehavior {
	return workflow.BlockBehavior{Type: t, PairingID: pairing, Loop: loop}
}

// Missing is the failure returned when a required parameter is absent.
func Missing(param string) workflow.Result {
	return workflow.Failf("Missing parameter", "parameter %q is required", param)
}
