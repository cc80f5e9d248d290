package expression

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/stepflow/pkg/template"
	"github.com/tombee/stepflow/pkg/value"
)

// Preprocess replaces every template reference in expression with an expr
// literal of the value resolve returns for it. A nil resolve substitutes an
// untyped placeholder identifier, which is enough for syntax checks.
//
// Example:
//
//	Preprocess(`{{check.status}} == "ok"`, resolve)
//	=> `"ok" == "ok"`
func Preprocess(expression string, resolve func(template.Reference) value.Value) string {
	if !strings.Contains(expression, "{{") && !strings.Contains(expression, "[[") {
		return expression
	}

	var b strings.Builder
	for _, seg := range template.Parse(expression) {
		switch s := seg.(type) {
		case template.Literal:
			b.WriteString(s.Text)
		case template.Reference:
			if resolve == nil {
				b.WriteString(placeholder)
				continue
			}
			b.WriteString(valueToLiteral(value.ToNative(resolve(s))))
		}
	}
	return b.String()
}

// placeholder stands in for references during syntax checks. It is never
// defined, so the checker treats it as an interface value.
const placeholder = "__ref"

// valueToLiteral converts a plain Go value to expr-lang source.
func valueToLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case string:
		return strconv.Quote(t)
	case []any:
		parts := make([]string, len(t))
		for i, it := range t {
			parts[i] = valueToLiteral(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + valueToLiteral(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return strconv.Quote(value.From(t).AsString())
	}
}
