package logic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Comparison operators accepted by if.start when no condition is given.
const (
	OpEquals      = "=="
	OpNotEquals   = "!="
	OpGreater     = ">"
	OpGreaterEq   = ">="
	OpLess        = "<"
	OpLessEq      = "<="
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
)

type ifStart struct{ base.Base }

func newIfStart() *ifStart {
	return &ifStart{base.New(IfStartID, "If", category, "Run the enclosed steps when a condition holds").
		WithInputs(
			workflow.InputDefinition{ID: "condition", TypeID: value.TypeString, Expression: true},
			workflow.InputDefinition{ID: "left", TypeID: value.TypeAny},
			workflow.InputDefinition{ID: "operator", TypeID: value.TypeString, Default: OpEquals},
			workflow.InputDefinition{ID: "right", TypeID: value.TypeAny},
		).
		WithOutputs(workflow.Output("result", value.TypeBoolean))}
}

func (a *ifStart) BlockBehavior() workflow.BlockBehavior {
	return base.Block(workflow.BlockStart, pairIf, false)
}

func (a *ifStart) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	ok, err := evaluateCondition(ec, ec.Step)
	if err != nil {
		return workflow.Fail("Invalid condition", err.Error())
	}
	if ok {
		return workflow.Succeed(map[string]any{"result": true})
	}

	if mid := workflow.FindBlockMiddle(ec.Steps, ec.CurrentIndex, pairIf); mid >= 0 {
		return workflow.Emit(workflow.Jump{PC: mid + 1})
	}
	return skipBlock(ec, pairIf)
}

type ifMiddle struct{ base.Base }

func newIfMiddle() *ifMiddle {
	return &ifMiddle{base.New(IfMiddleID, "Otherwise", category, "")}
}

func (a *ifMiddle) BlockBehavior() workflow.BlockBehavior {
	b := base.Block(workflow.BlockMiddle, pairIf, false)
	b.IndividuallyDeletable = true
	return b
}

// Execute is reached only when the true branch ran to completion.
func (a *ifMiddle) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	start := workflow.FindBlockStart(ec.Steps, ec.CurrentIndex, pairIf)
	end := workflow.FindBlockEnd(ec.Steps, start, pairIf)
	if start < 0 || end < 0 {
		return workflow.Fail("Broken block", "otherwise without an enclosing if")
	}
	return workflow.Emit(workflow.Jump{PC: end + 1})
}

type ifEnd struct{ base.Base }

func newIfEnd() *ifEnd {
	return &ifEnd{base.New(IfEndID, "End if", category, "")}
}

func (a *ifEnd) BlockBehavior() workflow.BlockBehavior {
	return base.Block(workflow.BlockEnd, pairIf, false)
}

func (a *ifEnd) Execute(context.Context, *workflow.ExecutionContext, workflow.ProgressFunc) workflow.Result {
	return workflow.Succeed(nil)
}

// evaluateCondition evaluates step's condition expression or, when it has
// none, its left/operator/right comparison.
func evaluateCondition(ec *workflow.ExecutionContext, step *workflow.Step) (bool, error) {
	if raw, ok := step.Parameters["condition"].(string); ok && strings.TrimSpace(raw) != "" {
		return ec.Evaluate(raw)
	}

	op := OpEquals
	if raw, ok := step.Parameters["operator"]; ok {
		op = strings.TrimSpace(ec.Resolve(raw).AsString())
	}
	return Compare(ec.Resolve(step.Parameters["left"]), op, ec.Resolve(step.Parameters["right"]))
}

// Compare applies a comparison operator to two values.
func Compare(left value.Value, op string, right value.Value) (bool, error) {
	switch op {
	case OpEquals, "=":
		return value.Equal(left, right), nil
	case OpNotEquals:
		return !value.Equal(left, right), nil
	case OpGreater:
		return value.Compare(left, right) > 0, nil
	case OpGreaterEq:
		return value.Compare(left, right) >= 0, nil
	case OpLess:
		return value.Compare(left, right) < 0, nil
	case OpLessEq:
		return value.Compare(left, right) <= 0, nil
	case OpContains:
		return value.Contains(left, right), nil
	case OpNotContains:
		return !value.Contains(left, right), nil
	case OpStartsWith:
		return strings.HasPrefix(left.AsString(), right.AsString()), nil
	case OpEndsWith:
		return strings.HasSuffix(left.AsString(), right.AsString()), nil
	case OpIsEmpty:
		return isEmpty(left), nil
	case OpIsNotEmpty:
		return !isEmpty(left), nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

func isEmpty(v value.Value) bool {
	switch t := v.(type) {
	case *value.List:
		return t.Len() == 0
	case *value.Dictionary:
		return t.Len() == 0
	}
	return value.IsNull(v) || v.AsString() == ""
}
