package data

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/template"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Variable types accepted by variable.create.
const (
	TypeText       = "text"
	TypeNumber     = "number"
	TypeBoolean    = "boolean"
	TypeList       = "list"
	TypeDictionary = "dictionary"
)

type variableCreate struct{ base.Base }

func newVariableCreate() *variableCreate {
	return &variableCreate{base.New(VariableCreateID, "Create variable", category, "Create a named variable or a typed value").
		WithInputs(
			base.Input("name", value.TypeString, false),
			workflow.InputDefinition{ID: "type", TypeID: value.TypeString, Default: TypeText},
			base.Input("value", value.TypeAny, false),
		).
		WithOutputs(workflow.Output("variable", value.TypeAny))}
}

// Execute converts value to the declared type. With a name the result is
// also stored as a named variable.
func (a *variableCreate) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	typ := strings.ToLower(ec.String("type", TypeText))
	v, err := convert(ec.Variable("value"), typ)
	if err != nil {
		return workflow.Fail("Invalid value", err.Error())
	}

	if name := strings.TrimSpace(ec.String("name", "")); name != "" {
		ec.SetVariable(name, v)
	}
	return workflow.Succeed(map[string]any{"variable": v})
}

// convert coerces v to a variable type. Text holding JSON is decoded for
// list and dictionary.
func convert(v value.Value, typ string) (value.Value, error) {
	switch typ {
	case "", TypeText, "string":
		return value.String(v.AsString()), nil
	case TypeNumber:
		if value.IsNull(v) || v.AsString() == "" {
			return value.Number(0), nil
		}
		n, ok := v.AsNumber()
		if !ok {
			return nil, &conversionError{value: v.AsString(), typ: typ}
		}
		return value.Number(n), nil
	case TypeBoolean:
		return value.Boolean(v.AsBoolean()), nil
	case TypeList:
		switch t := v.(type) {
		case *value.List:
			return t, nil
		case value.String:
			return decodeJSON(string(t), typ, func(a any) bool { _, ok := a.([]any); return ok })
		}
		if value.IsNull(v) {
			return value.NewList(), nil
		}
		return value.NewList(v), nil
	case TypeDictionary:
		switch t := v.(type) {
		case *value.Dictionary:
			return t, nil
		case value.String:
			return decodeJSON(string(t), typ, func(a any) bool { _, ok := a.(map[string]any); return ok })
		}
		if value.IsNull(v) {
			return value.NewDictionary(nil), nil
		}
	}
	return nil, &conversionError{value: v.AsString(), typ: typ}
}

func decodeJSON(s, typ string, accept func(any) bool) (value.Value, error) {
	if strings.TrimSpace(s) == "" {
		if typ == TypeList {
			return value.NewList(), nil
		}
		return value.NewDictionary(nil), nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil || !accept(decoded) {
		return nil, &conversionError{value: s, typ: typ}
	}
	return value.From(decoded), nil
}

type conversionError struct {
	value string
	typ   string
}

func (e *conversionError) Error() string {
	return "cannot convert " + strconv.Quote(e.value) + " to " + e.typ
}

type variableGet struct{ base.Base }

func newVariableGet() *variableGet {
	return &variableGet{base.New(VariableGetID, "Get variable", category, "Read a named variable or step output").
		WithInputs(base.Input("source", value.TypeString, true)).
		WithOutputs(workflow.Output("value", value.TypeAny))}
}

// Execute reads source, which is a reference or a bare variable name.
func (a *variableGet) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	raw, ok := ec.ParameterRaw("source")
	if !ok || strings.TrimSpace(raw) == "" {
		return base.Missing("source")
	}

	var v value.Value
	if _, kind := template.Classify(raw); kind == template.KindPlain {
		v = ec.Named[strings.TrimSpace(raw)]
	} else {
		v = ec.Variable("source")
	}
	if value.IsNull(v) {
		return workflow.Failf("Variable not found", "no value for %s", raw)
	}
	return workflow.Succeed(map[string]any{"value": v})
}

type variableModify struct{ base.Base }

func newVariableModify() *variableModify {
	return &variableModify{base.New(VariableModifyID, "Modify variable", category, "Change an existing named variable").
		WithInputs(
			base.Input("variable", value.TypeString, true),
			base.Input("value", value.TypeAny, false),
		)}
}

// Execute accepts the variable as a bare name or a [[name]] reference.
func (a *variableModify) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	raw, _ := ec.ParameterRaw("variable")
	name := strings.TrimSpace(raw)
	if ref, kind := template.Classify(raw); kind == template.KindNamed {
		name = ref.Root()
	}
	if name == "" {
		return base.Missing("variable")
	}
	if _, ok := ec.Named[name]; !ok {
		return workflow.Failf("Variable not found", "named variable %s does not exist", name)
	}
	ec.SetVariable(name, ec.Variable("value"))
	return workflow.Succeed(nil)
}
