package workflow

import "fmt"

// Result is what an action returns for one step. It is one of Success,
// Failure or Signal.
type Result interface {
	result()
}

// Success carries the step's outputs. Values may be plain Go values or
// value.Value; they are converted when recorded.
type Success struct {
	Outputs map[string]any
}

// Failure reports that the step could not complete. PartialOutputs are kept
// when the step is skipped.
type Failure struct {
	Title          string
	Message        string
	PartialOutputs map[string]any
}

// Signal asks the executor to alter control flow.
type Signal struct {
	Signal ControlSignal
}

func (Success) result() {}
func (Failure) result() {}
func (Signal) result()  {}

// Error formats the failure as "title: message".
func (f Failure) Error() string {
	if f.Title == "" {
		return f.Message
	}
	if f.Message == "" {
		return f.Title
	}
	return f.Title + ": " + f.Message
}

// ControlSignal is one of Jump, LoopAction, Break, Continue, Stop or Return.
type ControlSignal interface {
	controlSignal()
}

// Jump moves the program counter to PC.
type Jump struct {
	PC int
}

// LoopActionKind selects what a LoopAction signal does.
type LoopActionKind int

const (
	LoopStart LoopActionKind = iota
	LoopEnd
)

// LoopAction is emitted by loop markers. LoopEnd advances the innermost loop
// and either repeats its body or leaves it.
type LoopAction struct {
	Action LoopActionKind
}

// Break leaves the innermost loop.
type Break struct{}

// Continue skips to the innermost loop's end marker.
type Continue struct{}

// Stop ends the current program invocation.
type Stop struct{}

// Return ends the current program invocation with a value.
type Return struct {
	Value any
}

func (Jump) controlSignal()       {}
func (LoopAction) controlSignal() {}
func (Break) controlSignal()      {}
func (Continue) controlSignal()   {}
func (Stop) controlSignal()       {}
func (Return) controlSignal()     {}

// Succeed builds a Success result.
func Succeed(outputs map[string]any) Result { return Success{Outputs: outputs} }

// Fail builds a Failure result.
func Fail(title, message string) Result { return Failure{Title: title, Message: message} }

// Failf builds a Failure result with a formatted message.
func Failf(title, format string, args ...any) Result {
	return Failure{Title: title, Message: fmt.Sprintf(format, args...)}
}

// Emit builds a Signal result.
func Emit(sig ControlSignal) Result { return Signal{Signal: sig} }
