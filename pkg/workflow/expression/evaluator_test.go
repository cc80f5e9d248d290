package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/stepflow/pkg/template"
	"github.com/tombee/stepflow/pkg/value"
)

func testEnv() map[string]any {
	return BuildEnv(
		map[string]map[string]value.Value{
			"check": {"count": value.Number(5), "status": value.String("ok")},
		},
		map[string]value.Value{
			"mode": value.String("strict"),
			"tags": value.NewList(value.String("urgent"), value.String("ops")),
		},
	)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"empty is true", "", true},
		{"step output", "steps.check.count > 3", true},
		{"named var", `vars.mode == "strict"`, true},
		{"top level var", `mode == "lenient"`, false},
		{"has list", `has(tags, "urgent")`, true},
		{"includes alias", `includes(vars.tags, "missing")`, false},
		{"length", "length(tags) == 2", true},
		{"undefined is nil", "missing == nil", true},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, testEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := New()

	_, err := e.Evaluate("steps.check.count >", testEnv())
	assert.Error(t, err)

	_, err = e.Evaluate("steps.check.count + 1", testEnv())
	assert.Error(t, err, "non-boolean result")
}

func TestEval(t *testing.T) {
	e := New()
	got, err := e.Eval("steps.check.count * 2 + 1", testEnv())
	require.NoError(t, err)
	assert.EqualValues(t, 11, got)

	_, err = e.Eval("", testEnv())
	assert.Error(t, err)
}

func TestEvaluator_Cache(t *testing.T) {
	e := New()
	_, _ = e.Evaluate("1 < 2", nil)
	_, _ = e.Evaluate("1 < 2", nil)
	_, _ = e.Eval("1 + 2", nil)
	assert.Equal(t, 2, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestPreprocess(t *testing.T) {
	resolve := func(ref template.Reference) value.Value {
		switch ref.Raw {
		case "{{check.status}}":
			return value.String(`say "hi"`)
		case "[[count]]":
			return value.Number(2.5)
		case "{{list.result}}":
			return value.NewList(value.Number(1), value.String("a"))
		}
		return value.Null
	}

	tests := []struct {
		in   string
		want string
	}{
		{"1 < 2", "1 < 2"},
		{`{{check.status}} == "x"`, `"say \"hi\"" == "x"`},
		{"[[count]] > 2", "2.5 > 2"},
		{"{{missing.x}} == nil", "nil == nil"},
		{"length({{list.result}})", `length([1, "a"])`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Preprocess(tt.in, resolve), tt.in)
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(""))
	assert.NoError(t, Check("{{a.b}} > 3 && [[x]] == nil"))
	assert.Error(t, Check("{{a.b}} >"))
}

func TestStepReferences(t *testing.T) {
	got := StepReferences(`{{check.count}} > steps.other.value && [[named]] == steps.check.x`)
	assert.Equal(t, []string{"check", "other"}, got)
	assert.Empty(t, StepReferences("1 == 1"))
}
