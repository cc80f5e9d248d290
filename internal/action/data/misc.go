package data

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

type uuidAction struct{ base.Base }

func newUUID() *uuidAction {
	return &uuidAction{base.New(UUIDID, "UUID", category, "Generate a random UUID").
		WithOutputs(workflow.Output("uuid", value.TypeString))}
}

func (a *uuidAction) Execute(context.Context, *workflow.ExecutionContext, workflow.ProgressFunc) workflow.Result {
	return workflow.Succeed(map[string]any{"uuid": uuid.NewString()})
}

type dateNow struct {
	base.Base
	now func() time.Time
}

func newDateNow(now func() time.Time) *dateNow {
	return &dateNow{
		Base: base.New(DateNowID, "Current date", category, "Read the current date and time").
			WithInputs(workflow.InputDefinition{ID: "format", TypeID: value.TypeString, Default: time.RFC3339}).
			WithOutputs(
				workflow.Output("date", value.TypeDate),
				workflow.Output("time", value.TypeTime),
				workflow.Output("formatted", value.TypeString),
				workflow.Output("timestamp", value.TypeNumber),
			),
		now: now,
	}
}

// Execute formats with a Go reference-time layout.
func (a *dateNow) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	t := a.now()
	return workflow.Succeed(map[string]any{
		"date":      value.NewDate(t),
		"time":      value.Clock{Hour: t.Hour(), Minute: t.Minute()},
		"formatted": t.Format(ec.String("format", time.RFC3339)),
		"timestamp": t.UnixMilli(),
	})
}
