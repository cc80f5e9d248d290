package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow/expression"
)

// ExecutionContext is the view of a run that an action sees while its step
// executes. It is built fresh for every attempt of a step.
type ExecutionContext struct {
	ProgramID string
	RunID     string

	// Step is the step being executed
	Step *Step

	// Parameters holds the step's literal parameters, policy keys excluded
	Parameters map[string]any

	// Magic holds the resolved value of every parameter that contained a
	// reference, keyed by parameter name
	Magic map[string]value.Value

	// Named is the run's named-variable map, shared with sub-programs
	Named map[string]value.Value

	// StepOutputs are the recorded outputs of this invocation, keyed by
	// step id then output id
	StepOutputs map[string]map[string]value.Value

	Loops         *LoopStack
	WorkflowStack []string
	Steps         []Step
	CurrentIndex  int
	ScratchDir    string
	TriggerData   map[string]any
	Logger        *slog.Logger

	exec *Executor
	inv  *invocation
}

// SubProgramResult is what a called program hands back to its caller.
type SubProgramResult struct {
	ReturnValue value.Value
	Variables   map[string]value.Value
}

// NewExecutionContext builds a standalone context over literal parameters.
// It has no executor behind it, so CallProgram fails; expressions use a
// private evaluator. It is intended for exercising actions directly.
func NewExecutionContext(params map[string]any) *ExecutionContext {
	step := &Step{ID: "step", Parameters: params}
	ec := &ExecutionContext{
		Step:        step,
		Parameters:  staticParameters(params),
		Magic:       make(map[string]value.Value),
		Named:       make(map[string]value.Value),
		StepOutputs: make(map[string]map[string]value.Value),
		Loops:       &LoopStack{},
		Steps:       []Step{*step},
		Logger:      slog.New(slog.DiscardHandler),
	}
	ec.resolveParameters(nil)
	return ec
}

// Variable returns the value of a parameter: the resolved reference when
// the parameter contained one, else the literal, else a named variable of
// the same name, else Null.
func (ec *ExecutionContext) Variable(key string) value.Value {
	if v, ok := ec.Magic[key]; ok {
		return v
	}
	if raw, ok := ec.Parameters[key]; ok {
		return value.From(raw)
	}
	if v, ok := ec.Named[key]; ok {
		return v
	}
	return value.Null
}

// Has reports whether the step sets the parameter.
func (ec *ExecutionContext) Has(key string) bool {
	_, ok := ec.Parameters[key]
	return ok
}

// String returns the parameter as a string, or def when it is unset or Null.
func (ec *ExecutionContext) String(key, def string) string {
	v := ec.Variable(key)
	if value.IsNull(v) {
		return def
	}
	return v.AsString()
}

// Number returns the parameter as a number.
func (ec *ExecutionContext) Number(key string) (float64, bool) {
	return ec.Variable(key).AsNumber()
}

// Int returns the parameter truncated to an int, or def when it is not numeric.
func (ec *ExecutionContext) Int(key string, def int) int {
	f, ok := ec.Number(key)
	if !ok {
		return def
	}
	return int(f)
}

// Bool returns the parameter's truthiness, or def when it is unset.
func (ec *ExecutionContext) Bool(key string, def bool) bool {
	v := ec.Variable(key)
	if value.IsNull(v) {
		return def
	}
	return v.AsBoolean()
}

// ParameterRaw returns the literal parameter text before resolution.
func (ec *ExecutionContext) ParameterRaw(key string) (string, bool) {
	raw, ok := ec.Parameters[key]
	if !ok || raw == nil {
		return "", false
	}
	if s, ok := raw.(string); ok {
		return s, true
	}
	return value.From(raw).AsString(), true
}

// Output returns a recorded output, or Null.
func (ec *ExecutionContext) Output(stepID, outputID string) value.Value {
	if v, ok := ec.StepOutputs[stepID][outputID]; ok {
		return v
	}
	return value.Null
}

// SetVariable sets a named variable visible to the rest of the run,
// including callers and callees.
func (ec *ExecutionContext) SetVariable(name string, v any) {
	ec.Named[name] = value.From(v)
}

// CallProgram runs another program and returns its result. The program
// shares this run's named variables and scratch directory.
func (ec *ExecutionContext) CallProgram(ctx context.Context, programID string) (*SubProgramResult, error) {
	if ec.exec == nil || ec.inv == nil {
		return nil, fmt.Errorf("call %s: %w", programID, ErrUnknownProgram)
	}
	return ec.exec.callProgram(ctx, ec.inv, programID)
}

// ExpressionEnv returns the environment expressions are evaluated against.
func (ec *ExecutionContext) ExpressionEnv() map[string]any {
	return expression.BuildEnv(ec.StepOutputs, ec.Named)
}

// Evaluate evaluates a condition. References in raw are resolved first.
func (ec *ExecutionContext) Evaluate(raw string) (bool, error) {
	return ec.evaluator().Evaluate(expression.Preprocess(raw, ec.Lookup), ec.ExpressionEnv())
}

// Calculate evaluates an arithmetic or general expression.
func (ec *ExecutionContext) Calculate(raw string) (any, error) {
	return ec.evaluator().Eval(expression.Preprocess(raw, ec.Lookup), ec.ExpressionEnv())
}

func (ec *ExecutionContext) evaluator() *expression.Evaluator {
	if ec.exec != nil {
		return ec.exec.eval
	}
	return standaloneEvaluator
}

var standaloneEvaluator = expression.New()

// Path resolves a possibly relative file path against the scratch directory.
func (ec *ExecutionContext) Path(p string) string {
	if ec.ScratchDir == "" || p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ec.ScratchDir, p)
}
