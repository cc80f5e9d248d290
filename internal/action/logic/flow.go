package logic

import (
	"context"
	"strconv"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// signalAction emits a fixed control signal.
type signalAction struct {
	base.Base
	signal workflow.ControlSignal
}

func (a *signalAction) Execute(context.Context, *workflow.ExecutionContext, workflow.ProgressFunc) workflow.Result {
	return workflow.Emit(a.signal)
}

func newBreak() *signalAction {
	return &signalAction{base.New(BreakID, "Break", category, "Leave the innermost loop"), workflow.Break{}}
}

func newContinue() *signalAction {
	return &signalAction{base.New(ContinueID, "Continue", category, "Start the next iteration of the innermost loop"), workflow.Continue{}}
}

func newStop() *signalAction {
	return &signalAction{base.New(StopID, "Stop", category, "Stop the program"), workflow.Stop{}}
}

type returnAction struct{ base.Base }

func newReturn() *returnAction {
	return &returnAction{base.New(ReturnID, "Return", category, "Stop the program and hand a value to the caller").
		WithInputs(workflow.InputDefinition{ID: "value", TypeID: value.TypeAny})}
}

func (a *returnAction) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	return workflow.Emit(workflow.Return{Value: ec.Variable("value")})
}

type jumpAction struct{ base.Base }

func newJump() *jumpAction {
	return &jumpAction{base.New(JumpID, "Jump", category, "Continue at another step").
		WithInputs(base.Input("target", value.TypeString, true))}
}

// Execute jumps to the step whose id is target, or to target as a 0-based
// index when no step has that id.
func (a *jumpAction) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	target := strings.TrimSpace(ec.String("target", ""))
	if target == "" {
		return base.Missing("target")
	}
	for i := range ec.Steps {
		if ec.Steps[i].ID == target {
			return workflow.Emit(workflow.Jump{PC: i})
		}
	}
	pc, err := strconv.Atoi(target)
	if err != nil || pc < 0 {
		return workflow.Failf("Unknown jump target", "no step %q", target)
	}
	return workflow.Emit(workflow.Jump{PC: pc})
}
