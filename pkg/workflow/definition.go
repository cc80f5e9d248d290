package workflow

import (
	"fmt"
	"slices"

	"github.com/tombee/stepflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Program is an ordered list of steps plus enablement and trigger metadata.
//
// Programs are written in YAML:
//
//	id: greet
//	name: Greet everyone
//	steps:
//	  - id: names
//	    module: stepflow.data.text.split
//	    parameters:
//	      text: "ada,grace,linus"
//	      separator: ","
//	  - id: each
//	    module: stepflow.logic.foreach.start
//	    parameters:
//	      input_list: "{{names.result}}"
//	  - id: hello
//	    module: stepflow.system.log
//	    parameters:
//	      message: "hello {{each.item}}"
//	  - id: each_end
//	    module: stepflow.logic.foreach.end
type Program struct {
	// ID identifies the program; it is the unit of mutual exclusion for runs
	ID string `yaml:"id" json:"id"`

	// Name is a human-readable title
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Description provides human-readable context about the program
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version tracks the definition format (optional, defaults to "1.0")
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Enabled gates automatic triggers; defaults to true
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Trigger describes how the program is started
	Trigger *TriggerConfig `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	// Steps is the flat instruction list
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one instruction: an action reference plus its parameters.
type Step struct {
	ID         string         `yaml:"id" json:"id"`
	ModuleID   string         `yaml:"module" json:"module"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`

	// Block marks the step as a block delimiter. When omitted it is taken
	// from the action's declared block behavior.
	Block *BlockBehavior `yaml:"block,omitempty" json:"block,omitempty"`
}

// BlockType is the role of a step in a block construct.
type BlockType string

const (
	BlockNone   BlockType = ""
	BlockStart  BlockType = "start"
	BlockMiddle BlockType = "middle"
	BlockEnd    BlockType = "end"
)

// BlockBehavior describes a block delimiter.
type BlockBehavior struct {
	Type      BlockType `yaml:"type" json:"type"`
	PairingID string    `yaml:"pairing" json:"pairing"`

	// Loop marks block starts whose body repeats; break and continue
	// target the innermost loop block.
	Loop bool `yaml:"loop,omitempty" json:"loop,omitempty"`

	// IndividuallyDeletable allows RemoveStep to delete a middle or end
	// marker on its own.
	IndividuallyDeletable bool `yaml:"individually_deletable,omitempty" json:"individually_deletable,omitempty"`
}

// UnmarshalYAML applies defaults for fields that are absent.
func (p *Program) UnmarshalYAML(node *yaml.Node) error {
	type rawProgram Program
	raw := rawProgram{Enabled: true, Version: "1.0"}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*p = Program(raw)
	return nil
}

// ParseDefinition parses and validates a program from YAML bytes.
func ParseDefinition(data []byte) (*Program, error) {
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse program definition: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program definition: %w", err)
	}

	return &p, nil
}

// Marshal renders the program as YAML.
func (p *Program) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// DisplayName returns the name, falling back to the id.
func (p *Program) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Validate checks that the program is structurally sound. Block pairing is
// checked only for steps that declare their block behavior; use
// BoundSteps to include action-declared blocks.
func (p *Program) Validate() error {
	if p.ID == "" {
		return &errors.ValidationError{
			Field:      "id",
			Message:    "program id is required",
			Suggestion: "add a unique id to the program definition",
		}
	}

	if p.Trigger != nil {
		if err := p.Trigger.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].id", i),
				Message: "step id is required",
			}
		}
		if seen[step.ID] {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].id", i),
				Message:    fmt.Sprintf("duplicate step id: %s", step.ID),
				Suggestion: "step ids must be unique within a program",
			}
		}
		seen[step.ID] = true

		if step.ModuleID == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].module", i),
				Message: fmt.Sprintf("step %s has no module", step.ID),
			}
		}
		if step.Block != nil {
			switch step.Block.Type {
			case BlockNone, BlockStart, BlockMiddle, BlockEnd:
			default:
				return &errors.ValidationError{
					Field:      fmt.Sprintf("steps[%d].block.type", i),
					Message:    fmt.Sprintf("invalid block type: %s", step.Block.Type),
					Suggestion: "use one of: start, middle, end",
				}
			}
		}
	}

	return ValidateBlocks(p.Steps)
}

// BoundSteps returns a copy of the steps with block behavior filled in from
// the registry for steps that do not declare one.
func (p *Program) BoundSteps(reg *Registry) []Step {
	steps := slices.Clone(p.Steps)
	if reg == nil {
		return steps
	}
	for i := range steps {
		if steps[i].Block != nil {
			continue
		}
		action, ok := reg.Get(steps[i].ModuleID)
		if !ok {
			continue
		}
		if ba, ok := action.(BlockAction); ok {
			b := ba.BlockBehavior()
			if b.Type != BlockNone {
				steps[i].Block = &b
			}
		}
	}
	return steps
}

// StepIndex returns the position of the step with the given id, or -1.
func (p *Program) StepIndex(id string) int {
	return slices.IndexFunc(p.Steps, func(s Step) bool { return s.ID == id })
}
