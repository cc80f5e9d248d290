package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/value"
)

func TestExecutionContext_Variable(t *testing.T) {
	ec := NewExecutionContext(map[string]any{
		"n":             "12",
		"flag":          "false",
		"raw":           42,
		"ref":           "{{src.out}}",
		"mixed":         "x={{src.out}}",
		"__retry_count": 2,
	})
	ec.StepOutputs["src"] = map[string]value.Value{"out": value.Number(7)}
	ec.Named["only_named"] = value.String("named")
	ec.Magic = map[string]value.Value{}
	ec.resolveParameters(nil)

	assert.Equal(t, value.Number(7), ec.Variable("ref"))
	assert.Equal(t, value.String("x=7"), ec.Variable("mixed"))
	assert.Equal(t, value.Number(42), ec.Variable("raw"))
	assert.Equal(t, value.String("named"), ec.Variable("only_named"))
	assert.Equal(t, value.Null, ec.Variable("missing"))
	assert.Equal(t, value.Null, ec.Variable(ParamRetryCount), "policy keys are hidden")

	assert.Equal(t, 12, ec.Int("n", 0))
	assert.Equal(t, 5, ec.Int("missing", 5))
	assert.False(t, ec.Bool("flag", true))
	assert.True(t, ec.Bool("missing", true))
	assert.Equal(t, "dflt", ec.String("missing", "dflt"))
	assert.True(t, ec.Has("n"))

	raw, ok := ec.ParameterRaw("ref")
	require.True(t, ok)
	assert.Equal(t, "{{src.out}}", raw)
	raw, ok = ec.ParameterRaw("raw")
	require.True(t, ok)
	assert.Equal(t, "42", raw)
}

func TestExecutionContext_Resolve(t *testing.T) {
	ec := NewExecutionContext(nil)
	ec.StepOutputs["a"] = map[string]value.Value{
		"text": value.String("Hello"),
		"dict": value.NewDictionary(map[string]value.Value{"k": value.String("v")}),
	}
	ec.Named["n"] = value.Number(3)

	tests := []struct {
		raw  any
		want value.Value
	}{
		{"{{a.text}}", value.String("Hello")},
		{"{{ a . text . lowercase }}", value.String("hello")},
		{"{{a.dict.k}}", value.String("v")},
		{"{{a}}", value.Null},
		{"{{a.nope}}", value.Null},
		{"{{ghost.text}}", value.Null},
		{"[[n]]", value.Number(3)},
		{"[[n.abs]]", value.Number(3)},
		{"[[ghost]]", value.Null},
		{"{{a.text}} x[[n]]", value.String("Hello x3")},
		{"{{ghost.text}}!", value.String("!")},
		{"plain", value.String("plain")},
		{12.5, value.Number(12.5)},
		{nil, value.Null},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ec.Resolve(tt.raw), "%v", tt.raw)
	}

	// resolution of a plain string is idempotent
	once := ec.Resolve("no refs").AsString()
	assert.Equal(t, once, ec.Resolve(once).AsString())
}

func TestExecutionContext_Expressions(t *testing.T) {
	ec := NewExecutionContext(nil)
	ec.StepOutputs["s"] = map[string]value.Value{"n": value.Number(4)}
	ec.SetVariable("limit", 3)

	ok, err := ec.Evaluate("{{s.n}} > [[limit]]")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ec.Evaluate("steps.s.n < limit")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := ec.Calculate("{{s.n}} * 2")
	require.NoError(t, err)
	assert.EqualValues(t, 8, got)
}

func TestExecutionContext_Path(t *testing.T) {
	ec := NewExecutionContext(nil)
	assert.Equal(t, "a.txt", ec.Path("a.txt"))

	ec.ScratchDir = "/tmp/run"
	assert.Equal(t, "/tmp/run/a.txt", ec.Path("a.txt"))
	assert.Equal(t, "/etc/hosts", ec.Path("/etc/hosts"))
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   Policy
	}{
		{"defaults", nil, Policy{Mode: PolicyStop, RetryCount: 3, RetryInterval: time.Second}},
		{"skip", map[string]any{ParamErrorPolicy: "SKIP"}, Policy{Mode: PolicySkip, RetryCount: 3, RetryInterval: time.Second}},
		{
			"retry with settings",
			map[string]any{ParamErrorPolicy: "retry", ParamRetryCount: "2", ParamRetryInterval: 250},
			Policy{Mode: PolicyRetry, RetryCount: 2, RetryInterval: 250 * time.Millisecond},
		},
		{"unknown mode", map[string]any{ParamErrorPolicy: "explode"}, Policy{Mode: PolicyStop, RetryCount: 3, RetryInterval: time.Second}},
		{"negative count ignored", map[string]any{ParamRetryCount: -1}, Policy{Mode: PolicyStop, RetryCount: 3, RetryInterval: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePolicy(tt.params, DefaultRetryCount, DefaultRetryInterval))
		})
	}
}
