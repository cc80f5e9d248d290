package data

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/internal/jq"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

type calculate struct{ base.Base }

func newCalculate() *calculate {
	return &calculate{base.New(CalculateID, "Calculate", category, "Evaluate an arithmetic expression").
		WithInputs(workflow.InputDefinition{ID: "expression", TypeID: value.TypeString, Required: true, Expression: true}).
		WithOutputs(workflow.Output("result", value.TypeNumber))}
}

func (a *calculate) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	raw, ok := ec.ParameterRaw("expression")
	if !ok || strings.TrimSpace(raw) == "" {
		return base.Missing("expression")
	}
	out, err := ec.Calculate(raw)
	if err != nil {
		return workflow.Fail("Calculation failed", err.Error())
	}
	return workflow.Succeed(map[string]any{"result": out})
}

type jqAction struct {
	base.Base
	exec *jq.Executor
}

func newJQ(exec *jq.Executor) *jqAction {
	return &jqAction{
		Base: base.New(JQID, "jq", category, "Transform data with a jq query").
			WithInputs(
				base.Input("input", value.TypeAny, true),
				base.Input("query", value.TypeString, true),
			).
			WithOutputs(workflow.Output("result", value.TypeAny)),
		exec: exec,
	}
}

func (a *jqAction) Execute(ctx context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	query, _ := ec.ParameterRaw("query")
	out, err := a.exec.Execute(ctx, query, ec.Variable("input"))
	if err != nil {
		return workflow.Fail("jq failed", err.Error())
	}
	return workflow.Succeed(map[string]any{"result": out})
}

type jsonPath struct{ base.Base }

func newJSONPath() *jsonPath {
	return &jsonPath{base.New(JSONPathID, "JSON path", category, "Read a value from a JSON document by path").
		WithInputs(
			base.Input("json", value.TypeAny, true),
			base.Input("path", value.TypeString, true),
		).
		WithOutputs(
			workflow.Output("result", value.TypeAny),
			workflow.Output("exists", value.TypeBoolean),
		)}
}

// Execute accepts JSON text or any structured value, which is encoded
// first. Paths use gjson syntax, e.g. "items.#.name".
func (a *jsonPath) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	path := ec.String("path", "")
	if path == "" {
		return base.Missing("path")
	}

	doc, err := jsonDocument(ec.Variable("json"))
	if err != nil {
		return workflow.Fail("Invalid JSON", err.Error())
	}
	res := gjson.Get(doc, path)
	return workflow.Succeed(map[string]any{
		"result": value.From(res.Value()),
		"exists": res.Exists(),
	})
}

func jsonDocument(v value.Value) (string, error) {
	if s, ok := v.(value.String); ok {
		if !gjson.Valid(string(s)) {
			return "", &conversionError{value: string(s), typ: "json"}
		}
		return string(s), nil
	}
	data, err := json.Marshal(value.ToNative(v))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
