package logic

import (
	"context"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// loopEnd is shared by the end markers of every loop kind. Iteration is
// driven by the executor from the loop state on top of the stack.
type loopEnd struct {
	base.Base
	pairing string
}

func (a *loopEnd) BlockBehavior() workflow.BlockBehavior {
	return base.Block(workflow.BlockEnd, a.pairing, false)
}

func (a *loopEnd) Execute(context.Context, *workflow.ExecutionContext, workflow.ProgressFunc) workflow.Result {
	return workflow.Emit(workflow.LoopAction{Action: workflow.LoopEnd})
}

type loopStart struct{ base.Base }

func newLoopStart() *loopStart {
	return &loopStart{base.New(LoopStartID, "Repeat", category, "Repeat the enclosed steps a fixed number of times").
		WithInputs(workflow.InputDefinition{ID: "count", TypeID: value.TypeNumber, Required: true, Default: 5,
			Accepted: []string{value.TypeNumber, value.TypeString}}).
		WithOutputs(
			workflow.Output("loop_index", value.TypeNumber),
			workflow.Output("loop_total", value.TypeNumber),
		)}
}

func newLoopEnd() *loopEnd {
	return &loopEnd{Base: base.New(LoopEndID, "End repeat", category, ""), pairing: pairLoop}
}

func (a *loopStart) BlockBehavior() workflow.BlockBehavior {
	return base.Block(workflow.BlockStart, pairLoop, true)
}

func (a *loopStart) Execute(_ context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	total := ec.Int("count", 0)
	if total <= 0 {
		progress("count is zero, skipping loop")
		return skipBlock(ec, pairLoop)
	}
	ec.Loops.Push(&workflow.CountLoop{Total: total})
	return workflow.Succeed(nil)
}

type forEachStart struct{ base.Base }

func newForEachStart() *forEachStart {
	return &forEachStart{base.New(ForEachStartID, "For each", category, "Run the enclosed steps once per list item or character").
		WithInputs(workflow.InputDefinition{ID: "input_list", TypeID: value.TypeList, Required: true}).
		WithOutputs(
			workflow.Output("item", value.TypeAny),
			workflow.Output("index", value.TypeNumber),
		)}
}

func newForEachEnd() *loopEnd {
	return &loopEnd{Base: base.New(ForEachEndID, "End for each", category, ""), pairing: pairForEach}
}

func (a *forEachStart) BlockBehavior() workflow.BlockBehavior {
	return base.Block(workflow.BlockStart, pairForEach, true)
}

func (a *forEachStart) Execute(_ context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	items := forEachItems(ec.Variable("input_list"))
	if len(items) == 0 {
		progress("input is empty, skipping loop")
		return skipBlock(ec, pairForEach)
	}
	progress("iterating over items")
	ec.Loops.Push(&workflow.ForEachLoop{Items: items})
	return workflow.Succeed(nil)
}

// forEachItems returns the items of a list, or the characters of the
// string form of anything else.
func forEachItems(v value.Value) []value.Value {
	if list, ok := v.(*value.List); ok {
		return list.Items()
	}
	var items []value.Value
	for _, r := range v.AsString() {
		items = append(items, value.String(string(r)))
	}
	return items
}

type whileStart struct {
	base.Base
	max int
}

func newWhileStart(max int) *whileStart {
	return &whileStart{
		Base: base.New(WhileStartID, "While", category, "Repeat the enclosed steps while a condition holds").
			WithInputs(workflow.InputDefinition{ID: "condition", TypeID: value.TypeString, Required: true, Expression: true}).
			WithOutputs(workflow.Output("iteration", value.TypeNumber)),
		max: max,
	}
}

func (a *whileStart) BlockBehavior() workflow.BlockBehavior {
	return base.Block(workflow.BlockStart, pairWhile, true)
}

func (a *whileStart) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	ok, err := evaluateCondition(ec, ec.Step)
	if err != nil {
		return workflow.Fail("Invalid condition", err.Error())
	}
	if !ok {
		return skipBlock(ec, pairWhile)
	}
	ec.Loops.Push(&workflow.WhileLoop{Max: a.max})
	return workflow.Succeed(nil)
}

type whileEnd struct{ loopEnd }

func newWhileEnd() *whileEnd {
	return &whileEnd{loopEnd{Base: base.New(WhileEndID, "End while", category, ""), pairing: pairWhile}}
}

// Execute re-evaluates the start step's condition. The loop finishes when
// it fails; reaching the iteration bound while it still holds is a failure.
func (a *whileEnd) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	state, ok := ec.Loops.Peek().(*workflow.WhileLoop)
	start := workflow.FindBlockStart(ec.Steps, ec.CurrentIndex, pairWhile)
	if !ok || start < 0 {
		return workflow.Fail("Broken block", "while end without an active while loop")
	}

	holds, err := evaluateCondition(ec, &ec.Steps[start])
	if err != nil {
		ec.Loops.Pop()
		return workflow.Fail("Invalid condition", err.Error())
	}
	if holds && state.Exhausted() {
		ec.Loops.Pop()
		return workflow.Failf("Loop limit reached", "while loop %s stopped after %d iterations", ec.Steps[start].ID, state.Max)
	}
	state.Finished = !holds
	return workflow.Emit(workflow.LoopAction{Action: workflow.LoopEnd})
}
