package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tombee/stepflow/pkg/value"
)

// Action is the implementation behind a step's module id.
type Action interface {
	// ID returns the unique module id, e.g. "stepflow.logic.loop.start"
	ID() string

	// Metadata describes the action for listings
	Metadata() Metadata

	// Inputs declares the parameters the action reads
	Inputs() []InputDefinition

	// Outputs declares what the action records for the given step
	Outputs(step *Step) []OutputDefinition

	// Execute runs the action for the current step of ec
	Execute(ctx context.Context, ec *ExecutionContext, progress ProgressFunc) Result
}

// BlockAction is implemented by actions whose steps delimit a block.
type BlockAction interface {
	Action
	BlockBehavior() BlockBehavior
}

// ProgressFunc reports a progress message for the running step.
type ProgressFunc func(message string)

// Metadata is descriptive information about an action.
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category" yaml:"category"`
}

// InputDefinition declares one action parameter.
type InputDefinition struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	TypeID   string `json:"type" yaml:"type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`

	// Expression marks parameters evaluated as expressions rather than
	// resolved as templates; lint checks their syntax.
	Expression bool `json:"expression,omitempty" yaml:"expression,omitempty"`

	// Accepted lists the type ids a reference bound to this input may have.
	// Empty accepts anything.
	Accepted []string `json:"accepted,omitempty" yaml:"accepted,omitempty"`
}

// OutputDefinition declares one recorded output.
type OutputDefinition struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	TypeID string `json:"type" yaml:"type"`
}

// Output is shorthand for an OutputDefinition.
func Output(id, typeID string) OutputDefinition {
	return OutputDefinition{ID: id, TypeID: typeID}
}

// OutputIDs returns the ids of defs.
func OutputIDs(defs []OutputDefinition) []string {
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

// AnyOutput is the type id used for outputs whose type is only known at runtime.
const AnyOutput = value.TypeAny

// Registry maps module ids to actions. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action. It returns an error if the id is empty or
// already registered.
func (r *Registry) Register(a Action) error {
	if a == nil {
		return fmt.Errorf("cannot register nil action")
	}
	id := a.ID()
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("action id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[id]; exists {
		return fmt.Errorf("action already registered: %s", id)
	}
	r.actions[id] = a
	return nil
}

// MustRegister registers actions and panics on error. It is meant for
// builtin sets assembled at startup.
func (r *Registry) MustRegister(actions ...Action) {
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

// Get looks up an action by module id.
func (r *Registry) Get(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	return a, ok
}

// All returns every registered action ordered by id.
func (r *Registry) All() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Action) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Reset removes every action.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string]Action)
}
