// Package logic provides the builtin control-flow actions: counted and
// collection loops, conditionals, while loops, flow control signals and
// sub-program calls.
package logic

import (
	"github.com/tombee/stepflow/pkg/workflow"
)

const category = "logic"

// Module ids of the logic actions.
const (
	LoopStartID    = "stepflow.logic.loop.start"
	LoopEndID      = "stepflow.logic.loop.end"
	ForEachStartID = "stepflow.logic.foreach.start"
	ForEachEndID   = "stepflow.logic.foreach.end"
	IfStartID      = "stepflow.logic.if.start"
	IfMiddleID     = "stepflow.logic.if.middle"
	IfEndID        = "stepflow.logic.if.end"
	WhileStartID   = "stepflow.logic.while.start"
	WhileEndID     = "stepflow.logic.while.end"
	BreakID        = "stepflow.logic.break"
	ContinueID     = "stepflow.logic.continue"
	StopID         = "stepflow.logic.stop"
	ReturnID       = "stepflow.logic.return"
	JumpID         = "stepflow.logic.jump"
	CallProgramID  = "stepflow.logic.call_program"
)

// Pairing ids of the logic blocks.
const (
	pairLoop    = "loop"
	pairForEach = "foreach"
	pairIf      = "if"
	pairWhile   = "while"
)

// DefaultWhileMaxIterations bounds while loops when no limit is configured.
const DefaultWhileMaxIterations = 1000

// Options configures the logic actions.
type Options struct {
	// WhileMaxIterations bounds every while loop; zero uses the default
	WhileMaxIterations int

	// Programs resolves call_program targets for output declarations
	Programs workflow.ProgramSource
}

// Actions returns every logic action.
func Actions(opts Options) []workflow.Action {
	if opts.WhileMaxIterations <= 0 {
		opts.WhileMaxIterations = DefaultWhileMaxIterations
	}
	return []workflow.Action{
		newLoopStart(), newLoopEnd(),
		newForEachStart(), newForEachEnd(),
		newIfStart(), newIfMiddle(), newIfEnd(),
		newWhileStart(opts.WhileMaxIterations), newWhileEnd(),
		newBreak(), newContinue(), newStop(), newReturn(), newJump(),
		newCallProgram(opts.Programs),
	}
}

// skipBlock jumps past the end of the block started by the current step.
func skipBlock(ec *workflow.ExecutionContext, pairing string) workflow.Result {
	end := workflow.FindBlockEnd(ec.Steps, ec.CurrentIndex, pairing)
	if end < 0 {
		return workflow.Failf("Broken block", "no %s end found for step %s", pairing, ec.Step.ID)
	}
	return workflow.Emit(workflow.Jump{PC: end + 1})
}
