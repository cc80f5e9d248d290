package expression

import (
	"fmt"
	"maps"

	"github.com/tombee/stepflow/pkg/value"
)

var reserved = map[string]bool{
	"steps":    true,
	"vars":     true,
	"has":      true,
	"includes": true,
	"length":   true,
}

func functionEnv() map[string]any {
	return map[string]any{
		"has":      hasFunc,
		"includes": hasFunc,
		"length":   lengthFunc,
	}
}

func withFunctions(env map[string]any) map[string]any {
	out := make(map[string]any, len(env)+3)
	maps.Copy(out, env)
	maps.Copy(out, functionEnv())
	return out
}

// hasFunc reports list membership, dictionary key presence or substring
// match. Usage: has(vars.tags, "urgent")
func hasFunc(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}
	return value.Contains(value.From(args[0]), value.From(args[1])), nil
}

// lengthFunc returns the element count of a list or dictionary, or the
// character count of anything else.
func lengthFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}
	v := value.From(args[0])
	if value.IsNull(v) {
		return 0, nil
	}
	n, _ := v.Property("length")
	f, _ := n.AsNumber()
	return int(f), nil
}
