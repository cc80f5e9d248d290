package logic

import (
	"context"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// VariableCreateID is the module whose named variables call_program exposes
// as var_<name> outputs.
const VariableCreateID = "stepflow.data.variable.create"

type callProgram struct {
	base.Base
	programs workflow.ProgramSource
}

func newCallProgram(programs workflow.ProgramSource) *callProgram {
	return &callProgram{
		Base: base.New(CallProgramID, "Call program", category, "Run another program and use its result").
			WithInputs(base.Input("program_id", value.TypeString, true)).
			WithOutputs(workflow.Output("result", value.TypeAny)),
		programs: programs,
	}
}

// Outputs declares result plus one var_<name> output per named variable
// the target program creates.
func (a *callProgram) Outputs(step *workflow.Step) []workflow.OutputDefinition {
	outputs := []workflow.OutputDefinition{workflow.Output("result", value.TypeAny)}
	if step == nil || a.programs == nil {
		return outputs
	}
	id, _ := step.Parameters["program_id"].(string)
	if id == "" {
		return outputs
	}
	prog, err := a.programs.Program(context.Background(), id)
	if err != nil {
		return outputs
	}

	seen := make(map[string]bool)
	for _, s := range prog.Steps {
		if s.ModuleID != VariableCreateID {
			continue
		}
		name, _ := s.Parameters["name"].(string)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		typeID, _ := s.Parameters["type"].(string)
		outputs = append(outputs, workflow.Output("var_"+name, variableTypeID(typeID)))
	}
	return outputs
}

func (a *callProgram) Execute(ctx context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	id := strings.TrimSpace(ec.String("program_id", ""))
	if id == "" {
		return base.Missing("program_id")
	}

	progress("calling " + id)
	res, err := ec.CallProgram(ctx, id)
	if err != nil {
		return workflow.Fail("Sub-program failed", err.Error())
	}
	progress(id + " finished")

	outputs := map[string]any{"result": res.ReturnValue}
	for name, v := range res.Variables {
		outputs["var_"+name] = v
	}
	return workflow.Succeed(outputs)
}

// variableTypeID maps a variable.create type name to a value type id.
func variableTypeID(name string) string {
	switch strings.ToLower(name) {
	case "", "text", "string":
		return value.TypeString
	case "number":
		return value.TypeNumber
	case "boolean", "bool":
		return value.TypeBoolean
	case "list":
		return value.TypeList
	case "dictionary", "dict":
		return value.TypeDictionary
	}
	return value.TypeAny
}
