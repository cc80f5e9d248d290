package system

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// DefaultMaxDelay bounds a single delay step.
const DefaultMaxDelay = 5 * time.Minute

type manualTrigger struct{ base.Base }

func newManualTrigger() *manualTrigger {
	return &manualTrigger{base.New(ManualTriggerID, "Manual trigger", category, "Entry point for manually started programs").
		WithOutputs(workflow.Output("data", value.TypeDictionary))}
}

// Execute exposes the data the run was started with.
func (a *manualTrigger) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	data := ec.TriggerData
	if data == nil {
		data = map[string]any{}
	}
	return workflow.Succeed(map[string]any{"data": data})
}

type delay struct {
	base.Base
	max time.Duration
}

func newDelay(max time.Duration) *delay {
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return &delay{
		Base: base.New(DelayID, "Delay", category, "Wait before continuing").
			WithInputs(workflow.InputDefinition{ID: "duration", TypeID: value.TypeNumber, Required: true, Default: 1000}),
		max: max,
	}
}

// Execute waits duration milliseconds, or a Go duration string such as
// "1m30s". Cancellation ends the wait early with a failure.
func (a *delay) Execute(ctx context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	d, err := parseDelay(ec.Variable("duration"))
	if err != nil {
		return workflow.Fail("Invalid duration", err.Error())
	}
	if d > a.max {
		return workflow.Failf("Invalid duration", "duration %v exceeds maximum %v", d, a.max)
	}

	progress(fmt.Sprintf("waiting %v", d))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return workflow.Fail("Cancelled", ctx.Err().Error())
	case <-timer.C:
		return workflow.Succeed(nil)
	}
}

func parseDelay(v value.Value) (time.Duration, error) {
	if ms, ok := v.AsNumber(); ok {
		if ms < 0 {
			return 0, fmt.Errorf("duration must not be negative")
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v.AsString()))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v.AsString())
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}

type logAction struct{ base.Base }

func newLog() *logAction {
	return &logAction{base.New(LogID, "Log", category, "Write a message to the run log").
		WithInputs(
			base.Input("message", value.TypeString, true),
			workflow.InputDefinition{ID: "level", TypeID: value.TypeString, Default: "info"},
		).
		WithOutputs(workflow.Output("message", value.TypeString))}
}

func (a *logAction) Execute(ctx context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	msg := ec.String("message", "")
	var level slog.Level
	if err := level.UnmarshalText([]byte(ec.String("level", "info"))); err != nil {
		level = slog.LevelInfo
	}
	ec.Logger.Log(ctx, level, msg, "component", "program", "step_id", ec.Step.ID)
	return workflow.Succeed(map[string]any{"message": msg})
}
