package workflow

import "github.com/tombee/stepflow/pkg/value"

// LoopState is the iteration state of one active loop. It is created by a
// loop's start action and advanced by the executor when the loop's end
// marker asks for the next iteration.
type LoopState interface {
	// Advance moves to the next iteration.
	Advance()

	// Done reports whether every iteration has run.
	Done() bool

	// Outputs are the loop variables visible to steps inside the body,
	// recorded under the loop start step's id.
	Outputs() map[string]value.Value

	loopState()
}

// CountLoop runs its body Total times. Current is 0-based.
type CountLoop struct {
	Total   int
	Current int
}

func (l *CountLoop) Advance()   { l.Current++ }
func (l *CountLoop) Done() bool { return l.Current >= l.Total }
func (l *CountLoop) loopState() {}

// Outputs exposes loop_index (1-based) and loop_total.
func (l *CountLoop) Outputs() map[string]value.Value {
	return map[string]value.Value{
		"loop_index": value.Number(l.Current + 1),
		"loop_total": value.Number(l.Total),
	}
}

// ForEachLoop runs its body once per item.
type ForEachLoop struct {
	Items        []value.Value
	CurrentIndex int
}

func (l *ForEachLoop) Advance()   { l.CurrentIndex++ }
func (l *ForEachLoop) Done() bool { return l.CurrentIndex >= len(l.Items) }
func (l *ForEachLoop) loopState() {}

// Outputs exposes index (1-based) and the current item.
func (l *ForEachLoop) Outputs() map[string]value.Value {
	item := value.Null
	if l.CurrentIndex >= 0 && l.CurrentIndex < len(l.Items) {
		item = l.Items[l.CurrentIndex]
	}
	return map[string]value.Value{
		"index": value.Number(l.CurrentIndex + 1),
		"item":  item,
	}
}

// WhileLoop runs its body while a condition holds. The end action sets
// Finished when the condition fails; Max bounds the number of iterations
// when positive.
type WhileLoop struct {
	Max       int
	Iteration int
	Finished  bool
}

func (l *WhileLoop) Advance()   { l.Iteration++ }
func (l *WhileLoop) Done() bool { return l.Finished || (l.Max > 0 && l.Iteration >= l.Max) }
func (l *WhileLoop) loopState() {}

// Exhausted reports whether the iteration bound has been reached.
func (l *WhileLoop) Exhausted() bool { return l.Max > 0 && l.Iteration+1 >= l.Max }

// Outputs exposes iteration (1-based).
func (l *WhileLoop) Outputs() map[string]value.Value {
	return map[string]value.Value{"iteration": value.Number(l.Iteration + 1)}
}

// LoopStack holds the active loops of one program invocation, innermost on
// top. It is not safe for concurrent use; a run owns its stack.
type LoopStack struct {
	states []LoopState
}

// Push makes s the innermost loop.
func (s *LoopStack) Push(state LoopState) {
	s.states = append(s.states, state)
}

// Pop removes and returns the innermost loop, or nil when empty.
func (s *LoopStack) Pop() LoopState {
	if len(s.states) == 0 {
		return nil
	}
	top := s.states[len(s.states)-1]
	s.states[len(s.states)-1] = nil
	s.states = s.states[:len(s.states)-1]
	return top
}

// Peek returns the innermost loop, or nil when empty.
func (s *LoopStack) Peek() LoopState {
	if len(s.states) == 0 {
		return nil
	}
	return s.states[len(s.states)-1]
}

// Len returns the number of active loops.
func (s *LoopStack) Len() int { return len(s.states) }
