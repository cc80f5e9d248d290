package expression

import "github.com/tombee/stepflow/pkg/value"

// BuildEnv creates an evaluation environment from recorded step outputs and
// named variables:
//
//	{
//	    "steps": {"step_id": {"output_id": ...}},
//	    "vars":  {"name": ...},
//	    "name":  ...,
//	}
//
// Values are converted with value.ToNative.
func BuildEnv(stepOutputs map[string]map[string]value.Value, named map[string]value.Value) map[string]any {
	steps := make(map[string]any, len(stepOutputs))
	for id, outputs := range stepOutputs {
		m := make(map[string]any, len(outputs))
		for k, v := range outputs {
			m[k] = value.ToNative(v)
		}
		steps[id] = m
	}

	vars := make(map[string]any, len(named))
	for k, v := range named {
		vars[k] = value.ToNative(v)
	}

	env := map[string]any{"steps": steps, "vars": vars}
	for k, v := range vars {
		if !reserved[k] {
			env[k] = v
		}
	}
	return env
}
