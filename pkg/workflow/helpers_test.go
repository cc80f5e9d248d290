package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/tombee/stepflow/pkg/value"
)

// testAction is a configurable action for executor tests.
type testAction struct {
	id      string
	block   BlockBehavior
	inputs  []InputDefinition
	outputs []OutputDefinition
	fn      func(ctx context.Context, ec *ExecutionContext) Result
}

func (a *testAction) ID() string                       { return a.id }
func (a *testAction) Metadata() Metadata               { return Metadata{Name: a.id, Category: "test"} }
func (a *testAction) Inputs() []InputDefinition        { return a.inputs }
func (a *testAction) Outputs(*Step) []OutputDefinition { return a.outputs }
func (a *testAction) BlockBehavior() BlockBehavior     { return a.block }
func (a *testAction) Execute(ctx context.Context, ec *ExecutionContext, _ ProgressFunc) Result {
	return a.fn(ctx, ec)
}

// recorder collects the string form of values seen by test.record steps.
type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func jumpPastEnd(ec *ExecutionContext) Result {
	end := FindBlockEnd(ec.Steps, ec.CurrentIndex, ec.Step.Block.PairingID)
	return Emit(Jump{PC: end + 1})
}

func newTestRegistry(rec *recorder) *Registry {
	reg := NewRegistry()
	reg.MustRegister(
		&testAction{
			id:      "test.loop.start",
			block:   BlockBehavior{Type: BlockStart, PairingID: "loop", Loop: true},
			outputs: []OutputDefinition{Output("loop_index", value.TypeNumber), Output("loop_total", value.TypeNumber)},
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				total := ec.Int("count", 0)
				if total <= 0 {
					return jumpPastEnd(ec)
				}
				ec.Loops.Push(&CountLoop{Total: total})
				return Succeed(nil)
			},
		},
		&testAction{
			id:    "test.loop.end",
			block: BlockBehavior{Type: BlockEnd, PairingID: "loop"},
			fn: func(context.Context, *ExecutionContext) Result {
				return Emit(LoopAction{Action: LoopEnd})
			},
		},
		&testAction{
			id:      "test.foreach.start",
			block:   BlockBehavior{Type: BlockStart, PairingID: "foreach", Loop: true},
			outputs: []OutputDefinition{Output("index", value.TypeNumber), Output("item", value.TypeAny)},
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				list, ok := ec.Variable("list").(*value.List)
				if !ok || list.Len() == 0 {
					return jumpPastEnd(ec)
				}
				ec.Loops.Push(&ForEachLoop{Items: list.Items()})
				return Succeed(nil)
			},
		},
		&testAction{
			id:    "test.foreach.end",
			block: BlockBehavior{Type: BlockEnd, PairingID: "foreach"},
			fn: func(context.Context, *ExecutionContext) Result {
				return Emit(LoopAction{Action: LoopEnd})
			},
		},
		&testAction{
			id:     "test.if.start",
			block:  BlockBehavior{Type: BlockStart, PairingID: "if"},
			inputs: []InputDefinition{{ID: "condition", Expression: true}},
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				raw, _ := ec.ParameterRaw("condition")
				ok, err := ec.Evaluate(raw)
				if err != nil {
					return Fail("Invalid condition", err.Error())
				}
				if ok {
					return Succeed(nil)
				}
				if mid := FindBlockMiddle(ec.Steps, ec.CurrentIndex, "if"); mid >= 0 {
					return Emit(Jump{PC: mid + 1})
				}
				return jumpPastEnd(ec)
			},
		},
		&testAction{
			id:    "test.if.else",
			block: BlockBehavior{Type: BlockMiddle, PairingID: "if"},
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				start := FindBlockStart(ec.Steps, ec.CurrentIndex, "if")
				return Emit(Jump{PC: FindBlockEnd(ec.Steps, start, "if") + 1})
			},
		},
		&testAction{
			id:    "test.if.end",
			block: BlockBehavior{Type: BlockEnd, PairingID: "if"},
			fn:    func(context.Context, *ExecutionContext) Result { return Succeed(nil) },
		},
		&testAction{id: "test.break", fn: func(context.Context, *ExecutionContext) Result { return Emit(Break{}) }},
		&testAction{id: "test.continue", fn: func(context.Context, *ExecutionContext) Result { return Emit(Continue{}) }},
		&testAction{id: "test.stop", fn: func(context.Context, *ExecutionContext) Result { return Emit(Stop{}) }},
		&testAction{
			id: "test.return",
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				return Emit(Return{Value: ec.Variable("value")})
			},
		},
		&testAction{
			id: "test.jump",
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				return Emit(Jump{PC: ec.Int("to", 0)})
			},
		},
		&testAction{
			id: "test.depth",
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				if rec != nil {
					rec.add(fmt.Sprintf("depth=%d", ec.Loops.Len()))
				}
				return Succeed(nil)
			},
		},
		&testAction{
			id:      "test.record",
			outputs: []OutputDefinition{Output("value", value.TypeAny)},
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				v := ec.Variable("value")
				if rec != nil {
					rec.add(v.AsString())
				}
				return Succeed(map[string]any{"value": v})
			},
		},
		&testAction{
			id: "test.emit",
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				out := make(map[string]any, len(ec.Parameters))
				for k := range ec.Parameters {
					out[k] = ec.Variable(k)
				}
				return Succeed(out)
			},
		},
		&testAction{
			id: "test.set",
			fn: func(_ context.Context, ec *ExecutionContext) Result {
				ec.SetVariable(ec.String("name", ""), ec.Variable("value"))
				return Succeed(nil)
			},
		},
		&testAction{
			id:      "test.fail",
			outputs: []OutputDefinition{Output("text", value.TypeString), Output("count", value.TypeNumber)},
			fn: func(context.Context, *ExecutionContext) Result {
				return Failure{Title: "Boom", Message: "it broke", PartialOutputs: map[string]any{"count": 2}}
			},
		},
		&testAction{
			id:      "test.call",
			outputs: []OutputDefinition{Output("result", value.TypeAny)},
			fn: func(ctx context.Context, ec *ExecutionContext) Result {
				res, err := ec.CallProgram(ctx, ec.String("program", ""))
				if err != nil {
					return Fail("Sub-program failed", err.Error())
				}
				return Succeed(map[string]any{"result": res.ReturnValue})
			},
		},
		&testAction{
			id: "test.wait",
			fn: func(ctx context.Context, _ *ExecutionContext) Result {
				<-ctx.Done()
				return Fail("Cancelled", ctx.Err().Error())
			},
		},
	)
	return reg
}

// programs is a ProgramSource over a fixed set of programs.
type programs map[string]*Program

func (p programs) Program(_ context.Context, id string) (*Program, error) {
	prog, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownProgram)
	}
	return prog, nil
}

func step(id, module string, params ...any) Step {
	s := Step{ID: id, ModuleID: module}
	if len(params) > 0 {
		s.Parameters = make(map[string]any, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			s.Parameters[params[i].(string)] = params[i+1]
		}
	}
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(t *testing.T, rec *recorder, progs programs) *Executor {
	t.Helper()
	return NewExecutor(newTestRegistry(rec), progs).
		WithLogger(testLogger()).
		WithDefaultRetry(DefaultRetryCount, 0)
}
