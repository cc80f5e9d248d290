package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tombee/stepflow/pkg/errors"
)

// Evaluator evaluates expressions against an environment built with
// BuildEnv. Compiled programs are cached per expression and result kind.
type Evaluator struct {
	mu    sync.RWMutex
	bools map[string]*vm.Program
	anys  map[string]*vm.Program
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		bools: make(map[string]*vm.Program),
		anys:  make(map[string]*vm.Program),
	}
}

// Evaluate evaluates a boolean expression. An empty expression is true.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression, true)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax; comparisons must produce true or false",
		}
	}

	result, err := expr.Run(program, withFunctions(env))
	if err != nil {
		return false, &errors.ValidationError{
			Field:   "condition",
			Message: fmt.Sprintf("expression evaluation failed: %s", err.Error()),
		}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}
	return b, nil
}

// Eval evaluates an expression and returns its result as a plain Go value.
func (e *Evaluator) Eval(expression string, env map[string]any) (any, error) {
	if expression == "" {
		return nil, &errors.ValidationError{Field: "expression", Message: "expression is empty"}
	}

	program, err := e.compile(expression, false)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("failed to compile expression: %s", err.Error()),
		}
	}

	result, err := expr.Run(program, withFunctions(env))
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("expression evaluation failed: %s", err.Error()),
		}
	}
	return result, nil
}

func (e *Evaluator) compile(expression string, asBool bool) (*vm.Program, error) {
	cache := e.anys
	if asBool {
		cache = e.bools
	}

	e.mu.RLock()
	prog, ok := cache[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	opts := []expr.Option{expr.Env(functionEnv()), expr.AllowUndefinedVariables()}
	if asBool {
		opts = append(opts, expr.AsBool())
	}
	prog, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// Check reports whether expression compiles. References are replaced with
// placeholders first so template syntax does not count as an error.
func Check(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := expr.Compile(Preprocess(expression, nil), expr.Env(functionEnv()), expr.AllowUndefinedVariables())
	return err
}

// ClearCache clears the compiled program cache.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.bools = make(map[string]*vm.Program)
	e.anys = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.bools) + len(e.anys)
}
