package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow/expression"
)

// ErrUnknownProgram is returned when a called program cannot be found.
var ErrUnknownProgram = errors.New("unknown program")

// ProgramSource loads programs by id for sub-program calls.
type ProgramSource interface {
	Program(ctx context.Context, id string) (*Program, error)
}

// StepMetrics receives one observation per step attempt.
type StepMetrics interface {
	RecordStep(ctx context.Context, programID, moduleID, outcome string, duration time.Duration)
}

// Step attempt outcomes reported to StepMetrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSignal  = "signal"
)

// StepFailure is returned by Execute when a step fails under the stop
// policy, or exhausts its retries.
type StepFailure struct {
	ProgramID string
	PC        int
	StepID    string
	ModuleID  string
	Title     string
	Message   string
}

func (f *StepFailure) Error() string {
	msg := f.Title
	if f.Message != "" {
		if msg != "" {
			msg += ": "
		}
		msg += f.Message
	}
	return fmt.Sprintf("program %s step %d (%s) failed: %s", f.ProgramID, f.PC, f.StepID, msg)
}

// RunOptions configures one top-level execution.
type RunOptions struct {
	RunID       string
	ScratchDir  string
	TriggerData map[string]any

	// Log receives a copy of every log record of the run when set
	Log *RunLog
}

// Outcome is the result of a program that ran to its end or stopped itself.
type Outcome struct {
	ReturnValue value.Value
	Stopped     bool
	Variables   map[string]value.Value
	Outputs     map[string]map[string]value.Value
}

// Executor interprets programs. One executor may run many programs
// concurrently; all per-run state lives in the invocation.
type Executor struct {
	actions  *Registry
	programs ProgramSource
	logger   *slog.Logger
	tracer   trace.Tracer
	bus      *Bus
	metrics  StepMetrics
	eval     *expression.Evaluator

	retryCount    int
	retryInterval time.Duration
}

// NewExecutor creates an executor over an action registry. programs may be
// nil when sub-program calls are not needed.
func NewExecutor(actions *Registry, programs ProgramSource) *Executor {
	return &Executor{
		actions:       actions,
		programs:      programs,
		logger:        slog.Default(),
		tracer:        otel.Tracer("stepflow.engine"),
		eval:          expression.New(),
		retryCount:    DefaultRetryCount,
		retryInterval: DefaultRetryInterval,
	}
}

// WithLogger sets a custom logger for the executor.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// WithTracer sets the tracer used for run and step spans.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer
	return e
}

// WithBus sets the bus that receives running, progress and retry events.
func (e *Executor) WithBus(bus *Bus) *Executor {
	e.bus = bus
	return e
}

// WithMetrics sets the step metrics recorder.
func (e *Executor) WithMetrics(m StepMetrics) *Executor {
	e.metrics = m
	return e
}

// WithDefaultRetry sets the retry count and interval used when a retrying
// step does not set its own.
func (e *Executor) WithDefaultRetry(count int, interval time.Duration) *Executor {
	e.retryCount = count
	e.retryInterval = interval
	return e
}

// Actions returns the executor's action registry.
func (e *Executor) Actions() *Registry { return e.actions }

// invocation is the state of one program invocation. A sub-program call
// gets its own invocation sharing the caller's named variables.
type invocation struct {
	program    *Program
	steps      []Step
	pc         int
	outputs    map[string]map[string]value.Value
	named      map[string]value.Value
	loops      *LoopStack
	stack      []string
	runID      string
	scratchDir string
	trigger    map[string]any
	logger     *slog.Logger

	stopped     bool
	returnValue value.Value
}

// Execute runs a top-level program to completion. It returns a *StepFailure
// when a step fails under the stop policy, and the context's error when the
// run is cancelled.
func (e *Executor) Execute(ctx context.Context, program *Program, opts RunOptions) (*Outcome, error) {
	steps, err := e.prepare(program)
	if err != nil {
		return nil, err
	}

	logger := e.logger
	if opts.Log != nil {
		logger = slog.New(opts.Log.Handler(logger.Handler()))
	}
	logger = logger.With("run_id", opts.RunID, "program_id", program.ID)

	inv := &invocation{
		program:    program,
		steps:      steps,
		outputs:    make(map[string]map[string]value.Value),
		named:      make(map[string]value.Value),
		loops:      &LoopStack{},
		stack:      []string{program.ID},
		runID:      opts.RunID,
		scratchDir: opts.ScratchDir,
		trigger:    opts.TriggerData,
		logger:     logger,
	}

	ctx, span := e.tracer.Start(ctx, "program.run", trace.WithAttributes(
		attribute.String("stepflow.program.id", program.ID),
		attribute.String("stepflow.run.id", opts.RunID),
		attribute.Int("stepflow.program.steps", len(steps)),
	))
	defer span.End()

	logger.Info("program started", "steps", len(steps))
	if err := e.run(ctx, inv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	logger.Info("program finished", "stopped", inv.stopped)

	ret := inv.returnValue
	if ret == nil {
		ret = value.Null
	}
	return &Outcome{
		ReturnValue: ret,
		Stopped:     inv.stopped,
		Variables:   inv.named,
		Outputs:     inv.outputs,
	}, nil
}

func (e *Executor) prepare(program *Program) ([]Step, error) {
	if program == nil {
		return nil, &stepflowerrors.ValidationError{Field: "program", Message: "program is nil"}
	}
	steps := program.BoundSteps(e.actions)
	if err := ValidateBlocks(steps); err != nil {
		return nil, fmt.Errorf("program %s: %w", program.ID, err)
	}
	return steps, nil
}

// run is the interpreter loop.
func (e *Executor) run(ctx context.Context, inv *invocation) error {
	for inv.pc = 0; inv.pc >= 0 && inv.pc < len(inv.steps); {
		if err := ctx.Err(); err != nil {
			return err
		}

		pc := inv.pc
		step := &inv.steps[pc]
		e.post(ctx, &Event{Type: EventRunning, ProgramID: inv.program.ID, RunID: inv.runID, StepIndex: pc})

		action, ok := e.actions.Get(step.ModuleID)
		if !ok {
			inv.logger.Warn("unknown module, skipping step", "step_id", step.ID, "step_index", pc, "module_id", step.ModuleID)
			inv.pc++
			continue
		}

		policy := ParsePolicy(step.Parameters, e.retryCount, e.retryInterval)
		res := e.invoke(ctx, inv, pc, action, policy)
		if err := ctx.Err(); err != nil {
			return err
		}

		switch r := res.(type) {
		case Success:
			inv.record(step.ID, r.Outputs)
			inv.pc++

		case Failure:
			if policy.Mode == PolicySkip {
				inv.logger.Warn("step failed, skipping", "step_id", step.ID, "step_index", pc, "error", r.Error())
				inv.skip(step, action, r)
				inv.pc++
				continue
			}
			inv.logger.Error("step failed", "step_id", step.ID, "step_index", pc, "module_id", step.ModuleID, "error", r.Error())
			return &StepFailure{
				ProgramID: inv.program.ID,
				PC:        pc,
				StepID:    step.ID,
				ModuleID:  step.ModuleID,
				Title:     r.Title,
				Message:   r.Message,
			}

		case Signal:
			e.signal(inv, r.Signal)

		default:
			inv.pc++
		}
	}
	return nil
}

// invoke runs a step, retrying failures when the policy asks for it. A
// retry count of n allows up to n+1 attempts.
func (e *Executor) invoke(ctx context.Context, inv *invocation, pc int, action Action, policy Policy) Result {
	step := &inv.steps[pc]
	for attempt := 1; ; attempt++ {
		res := e.attempt(ctx, inv, pc, action)
		if _, failed := res.(Failure); !failed || policy.Mode != PolicyRetry || attempt > policy.RetryCount {
			return res
		}

		inv.logger.Warn("step failed, retrying",
			"step_id", step.ID, "step_index", pc, "attempt", attempt, "interval", policy.RetryInterval)
		e.post(ctx, &Event{
			Type:      EventStepRetry,
			ProgramID: inv.program.ID,
			RunID:     inv.runID,
			StepIndex: pc,
			Message:   fmt.Sprintf("retry %d/%d", attempt, policy.RetryCount),
		})

		select {
		case <-ctx.Done():
			return res
		case <-time.After(policy.RetryInterval):
		}
	}
}

// attempt runs the action once against a freshly resolved context.
func (e *Executor) attempt(ctx context.Context, inv *invocation, pc int, action Action) Result {
	step := &inv.steps[pc]
	inv.injectLoopOutputs(pc)

	ec := &ExecutionContext{
		ProgramID:     inv.program.ID,
		RunID:         inv.runID,
		Step:          step,
		Parameters:    staticParameters(step.Parameters),
		Magic:         make(map[string]value.Value),
		Named:         inv.named,
		StepOutputs:   inv.outputs,
		Loops:         inv.loops,
		WorkflowStack: slices.Clone(inv.stack),
		Steps:         inv.steps,
		CurrentIndex:  pc,
		ScratchDir:    inv.scratchDir,
		TriggerData:   inv.trigger,
		Logger:        inv.logger.With("step_id", step.ID, "step_index", pc, "module_id", step.ModuleID),
		exec:          e,
		inv:           inv,
	}
	ec.resolveParameters(expressionInputs(action))

	progress := func(msg string) {
		ec.Logger.Info(msg)
		e.post(ctx, &Event{
			Type:      EventStepProgress,
			ProgramID: inv.program.ID,
			RunID:     inv.runID,
			StepIndex: pc,
			Message:   msg,
		})
	}

	ctx, span := e.tracer.Start(ctx, "step.execute", trace.WithAttributes(
		attribute.String("stepflow.step.id", step.ID),
		attribute.String("stepflow.step.module", step.ModuleID),
		attribute.Int("stepflow.step.index", pc),
	))
	defer span.End()

	ec.Logger.Debug("executing step")
	start := time.Now()
	res := action.Execute(ctx, ec, progress)
	elapsed := time.Since(start)

	outcome := OutcomeSuccess
	switch r := res.(type) {
	case Failure:
		outcome = OutcomeFailure
		span.SetStatus(codes.Error, r.Error())
	case Signal:
		outcome = OutcomeSignal
		span.SetAttributes(attribute.String("stepflow.step.signal", fmt.Sprintf("%T", r.Signal)))
	}
	if e.metrics != nil {
		e.metrics.RecordStep(ctx, inv.program.ID, step.ModuleID, outcome, elapsed)
	}
	return res
}

func expressionInputs(action Action) map[string]bool {
	var skip map[string]bool
	for _, in := range action.Inputs() {
		if in.Expression {
			if skip == nil {
				skip = make(map[string]bool)
			}
			skip[in.ID] = true
		}
	}
	return skip
}

// leaveLoops pops the state of every loop enclosing from whose body does
// not contain target. A jump to a loop's own start leaves that loop.
func leaveLoops(inv *invocation, from, target int) {
	pos := from
	for inv.loops.Len() > 0 {
		start := EnclosingLoopStart(inv.steps, pos)
		if start < 0 {
			return
		}
		end := FindBlockEnd(inv.steps, start, inv.steps[start].Block.PairingID)
		if end >= 0 && target > start && target <= end {
			return
		}
		inv.loops.Pop()
		pos = start
	}
}

// signal applies a control signal to the program counter.
func (e *Executor) signal(inv *invocation, sig ControlSignal) {
	pc := inv.pc
	switch s := sig.(type) {
	case Jump:
		if s.PC < 0 {
			inv.logger.Warn("jump to negative position ignored", "step_index", pc, "target", s.PC)
			inv.pc++
			return
		}
		leaveLoops(inv, pc, s.PC)
		inv.pc = s.PC

	case LoopAction:
		if s.Action == LoopStart {
			inv.pc++
			return
		}
		e.loopEnd(inv)

	case Break:
		start := EnclosingLoopStart(inv.steps, pc)
		end := -1
		if start >= 0 {
			end = FindBlockEnd(inv.steps, start, inv.steps[start].Block.PairingID)
		}
		if end < 0 {
			inv.logger.Warn("break outside of a loop ignored", "step_index", pc)
			inv.pc++
			return
		}
		inv.loops.Pop()
		inv.pc = end + 1

	case Continue:
		start := EnclosingLoopStart(inv.steps, pc)
		end := -1
		if start >= 0 {
			end = FindBlockEnd(inv.steps, start, inv.steps[start].Block.PairingID)
		}
		if end < 0 {
			inv.logger.Warn("continue outside of a loop ignored", "step_index", pc)
			inv.pc++
			return
		}
		inv.pc = end

	case Stop:
		inv.stopped = true
		inv.pc = len(inv.steps)

	case Return:
		inv.stopped = true
		inv.returnValue = value.From(s.Value)
		inv.pc = len(inv.steps)

	default:
		inv.logger.Warn("unknown control signal ignored", "step_index", pc, "signal", fmt.Sprintf("%T", sig))
		inv.pc++
	}
}

// loopEnd advances the innermost loop and either repeats its body or
// leaves the block.
func (e *Executor) loopEnd(inv *invocation) {
	pc := inv.pc
	top := inv.loops.Peek()
	if top == nil {
		inv.logger.Warn("loop end without an active loop", "step_index", pc)
		inv.pc++
		return
	}

	top.Advance()
	if top.Done() {
		inv.loops.Pop()
		inv.pc++
		return
	}

	var start int
	if b := inv.steps[pc].Block; b != nil && b.Type == BlockEnd {
		start = FindBlockStart(inv.steps, pc, b.PairingID)
	} else {
		start = EnclosingLoopStart(inv.steps, pc)
	}
	if start < 0 {
		inv.logger.Warn("loop start not found, leaving loop", "step_index", pc)
		inv.loops.Pop()
		inv.pc++
		return
	}
	inv.pc = start + 1
}

// callProgram runs a sub-program on behalf of the step currently executing
// in parent.
func (e *Executor) callProgram(ctx context.Context, parent *invocation, id string) (*SubProgramResult, error) {
	if slices.Contains(parent.stack, id) {
		return nil, &stepflowerrors.RecursionError{Chain: slices.Clone(parent.stack), Target: id}
	}
	if e.programs == nil {
		return nil, fmt.Errorf("call %s: %w", id, ErrUnknownProgram)
	}

	program, err := e.programs.Program(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", id, err)
	}
	steps, err := e.prepare(program)
	if err != nil {
		return nil, err
	}

	child := &invocation{
		program:    program,
		steps:      steps,
		outputs:    maps.Clone(parent.outputs),
		named:      parent.named,
		loops:      &LoopStack{},
		stack:      append(slices.Clone(parent.stack), id),
		runID:      parent.runID,
		scratchDir: parent.scratchDir,
		trigger:    parent.trigger,
		logger:     parent.logger.With("sub_program", id),
	}

	ctx, span := e.tracer.Start(ctx, "program.call", trace.WithAttributes(
		attribute.String("stepflow.program.id", id),
		attribute.Int("stepflow.call.depth", len(child.stack)),
	))
	defer span.End()

	e.post(ctx, &Event{Type: EventRunning, ProgramID: id, RunID: parent.runID, StepIndex: -1})
	child.logger.Info("sub-program started")
	if err := e.run(ctx, child); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	child.logger.Info("sub-program finished", "stopped", child.stopped)

	ret := child.returnValue
	if ret == nil {
		ret = value.Null
	}
	return &SubProgramResult{ReturnValue: ret, Variables: maps.Clone(parent.named)}, nil
}

func (e *Executor) post(ctx context.Context, event *Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Post(ctx, event); err != nil {
		e.logger.Debug("event listener failed", "type", event.Type, "error", err)
	}
}

// record merges a step's outputs into its recorded map. The inner map is
// replaced rather than mutated, since a sub-program's outputs start as a
// shallow copy of its caller's.
func (inv *invocation) record(stepID string, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	m := maps.Clone(inv.outputs[stepID])
	if m == nil {
		m = make(map[string]value.Value, len(outputs))
	}
	for k, v := range outputs {
		m[k] = value.From(v)
	}
	inv.outputs[stepID] = m
}

// skip records a skipped failure: the partial outputs, Null for every
// other declared output, plus error and success.
func (inv *invocation) skip(step *Step, action Action, f Failure) {
	m := make(map[string]value.Value, len(f.PartialOutputs)+2)
	for k, v := range f.PartialOutputs {
		m[k] = value.From(v)
	}
	for _, def := range action.Outputs(step) {
		if _, ok := m[def.ID]; !ok {
			m[def.ID] = value.Null
		}
	}
	msg := f.Message
	if msg == "" {
		msg = f.Title
	}
	m["error"] = value.String(msg)
	m["success"] = value.Boolean(false)
	inv.outputs[step.ID] = m
}

// injectLoopOutputs exposes the innermost loop's variables under its start
// step's id before a step inside the loop runs.
func (inv *invocation) injectLoopOutputs(pc int) {
	top := inv.loops.Peek()
	if top == nil {
		return
	}
	start := EnclosingLoopStart(inv.steps, pc)
	if start < 0 {
		return
	}
	inv.outputs[inv.steps[start].ID] = top.Outputs()
}
