package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/jq"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

func noProgress(string) {}

func execute(t *testing.T, a workflow.Action, ec *workflow.ExecutionContext) map[string]value.Value {
	t.Helper()
	res := a.Execute(context.Background(), ec, noProgress)
	success, ok := res.(workflow.Success)
	require.True(t, ok, "got %#v", res)
	return value.FromMap(success.Outputs)
}

func failure(t *testing.T, a workflow.Action, ec *workflow.ExecutionContext) workflow.Failure {
	t.Helper()
	res := a.Execute(context.Background(), ec, noProgress)
	f, ok := res.(workflow.Failure)
	require.True(t, ok, "got %#v", res)
	return f
}

func TestVariableCreate(t *testing.T) {
	tests := []struct {
		typ  string
		in   any
		want any
	}{
		{TypeText, 12, "12"},
		{TypeNumber, "3.5", 3.5},
		{TypeNumber, "", 0.0},
		{TypeBoolean, "false", false},
		{TypeList, `["a", 1]`, []any{"a", 1.0}},
		{TypeList, "single", nil},
		{TypeDictionary, `{"k": "v"}`, map[string]any{"k": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			ec := workflow.NewExecutionContext(map[string]any{"name": "v", "type": tt.typ, "value": tt.in})
			if tt.want == nil {
				f := failure(t, newVariableCreate(), ec)
				assert.Equal(t, "Invalid value", f.Title)
				return
			}
			out := execute(t, newVariableCreate(), ec)
			assert.Equal(t, tt.want, value.ToNative(out["variable"]))
			assert.Equal(t, tt.want, value.ToNative(ec.Named["v"]))
		})
	}
}

func TestVariableGetModify(t *testing.T) {
	ec := workflow.NewExecutionContext(map[string]any{"source": "count"})
	ec.Named["count"] = value.Number(1)
	out := execute(t, newVariableGet(), ec)
	assert.Equal(t, value.Number(1), out["value"])

	missing := workflow.NewExecutionContext(map[string]any{"source": "nope"})
	assert.Equal(t, "Variable not found", failure(t, newVariableGet(), missing).Title)

	ec = workflow.NewExecutionContext(map[string]any{"variable": "[[count]]", "value": 5})
	ec.Named["count"] = value.Number(1)
	execute(t, newVariableModify(), ec)
	assert.Equal(t, value.Number(5), ec.Named["count"])

	ec = workflow.NewExecutionContext(map[string]any{"variable": "ghost", "value": 5})
	assert.Equal(t, "Variable not found", failure(t, newVariableModify(), ec).Title)
}

func TestText(t *testing.T) {
	out := execute(t, newTextSplit(), workflow.NewExecutionContext(map[string]any{"text": "a;b;c", "delimiter": ";"}))
	assert.Equal(t, []any{"a", "b", "c"}, value.ToNative(out["result"]))

	out = execute(t, newTextReplace(), workflow.NewExecutionContext(map[string]any{"text": "a1b22", "find": `\d+`, "replace": "#", "regex": true}))
	assert.Equal(t, value.String("a#b#"), out["result"])

	out = execute(t, newTextReplace(), workflow.NewExecutionContext(map[string]any{"text": "a.b.c", "find": ".", "replace": "-"}))
	assert.Equal(t, value.String("a-b-c"), out["result"])

	out = execute(t, newTextJoin(), workflow.NewExecutionContext(map[string]any{"list": []any{"x", 1, true}, "separator": "+"}))
	assert.Equal(t, value.String("x+1+true"), out["result"])
}

func TestTextExtract(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"middle", map[string]any{"start": 1, "end": 3}, "éb"},
		{"middle negative", map[string]any{"start": -2, "end": 10}, "cd"},
		{"middle empty", map[string]any{"start": 3, "end": 1}, ""},
		{"prefix", map[string]any{"mode": ExtractPrefix, "count": 2}, "aé"},
		{"suffix", map[string]any{"mode": ExtractSuffix, "count": 9}, "aébcd"},
		{"char", map[string]any{"mode": ExtractChar, "index": -1}, "d"},
		{"chars", map[string]any{"mode": ExtractChar, "index": 1, "count": 2}, "éb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params["text"] = "aébcd"
			out := execute(t, newTextExtract(), workflow.NewExecutionContext(tt.params))
			assert.Equal(t, value.String(tt.want), out["result"])
		})
	}

	f := failure(t, newTextExtract(), workflow.NewExecutionContext(map[string]any{"text": "x", "mode": "sideways"}))
	assert.Equal(t, "Invalid mode", f.Title)
}

func TestCalculate(t *testing.T) {
	out := execute(t, newCalculate(), workflow.NewExecutionContext(map[string]any{"expression": "2 * (3 + 4)"}))
	assert.Equal(t, value.Number(14), out["result"])

	f := failure(t, newCalculate(), workflow.NewExecutionContext(map[string]any{"expression": "2 *"}))
	assert.Equal(t, "Calculation failed", f.Title)
}

func TestJQAndJSONPath(t *testing.T) {
	input := map[string]any{"items": []any{map[string]any{"n": 1}, map[string]any{"n": 2}}}

	out := execute(t, newJQ(jq.NewExecutor(0, 0)), workflow.NewExecutionContext(map[string]any{"input": input, "query": "[.items[].n] | add"}))
	assert.Equal(t, value.Number(3), out["result"])

	out = execute(t, newJSONPath(), workflow.NewExecutionContext(map[string]any{"json": input, "path": "items.#.n"}))
	assert.Equal(t, []any{1.0, 2.0}, value.ToNative(out["result"]))
	assert.Equal(t, value.Boolean(true), out["exists"])

	out = execute(t, newJSONPath(), workflow.NewExecutionContext(map[string]any{"json": `{"a": {"b": "c"}}`, "path": "a.x"}))
	assert.Equal(t, value.Null, out["result"])
	assert.Equal(t, value.Boolean(false), out["exists"])

	f := failure(t, newJSONPath(), workflow.NewExecutionContext(map[string]any{"json": "{nope", "path": "a"}))
	assert.Equal(t, "Invalid JSON", f.Title)
}

func TestLua(t *testing.T) {
	out := execute(t, newLua(), workflow.NewExecutionContext(map[string]any{
		"script": "return a + b",
		"args":   map[string]any{"a": 1, "b": 2},
	}))
	assert.Equal(t, value.Number(3), out["result"])

	got, err := RunLua(`return {name = string.upper(who), tags = {"x", "y"}}`, map[string]any{"who": "ada"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ADA", "tags": []any{"x", "y"}}, value.ToNative(got))

	got, err = RunLua("return os == nil and io == nil", nil)
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), got)

	_, err = RunLua("return (", nil)
	assert.ErrorIs(t, err, ErrLuaLoad)
	_, err = RunLua(`error("boom")`, nil)
	assert.ErrorIs(t, err, ErrLuaExecution)
}

func TestUUIDAndDate(t *testing.T) {
	out := execute(t, newUUID(), workflow.NewExecutionContext(nil))
	assert.Len(t, out["uuid"].AsString(), 36)

	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	out = execute(t, newDateNow(func() time.Time { return fixed }), workflow.NewExecutionContext(map[string]any{"format": "2006-01-02 15:04"}))
	assert.Equal(t, value.String("2025-03-04 05:06"), out["formatted"])
	assert.Equal(t, "2025-03-04", out["date"].AsString())
	assert.Equal(t, "05:06", out["time"].AsString())
	assert.Equal(t, value.Number(fixed.UnixMilli()), out["timestamp"])
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	ctx := func(params map[string]any) *workflow.ExecutionContext {
		ec := workflow.NewExecutionContext(params)
		ec.ScratchDir = dir
		return ec
	}

	out := execute(t, newFile(), ctx(map[string]any{"path": "out/note.txt", "operation": FileWrite, "content": "hello"}))
	assert.Equal(t, filepath.Join(dir, "out", "note.txt"), out["path"].AsString())

	execute(t, newFile(), ctx(map[string]any{"path": "out/note.txt", "operation": FileAppend, "content": " world"}))

	out = execute(t, newFile(), ctx(map[string]any{"path": "out/note.txt"}))
	assert.Equal(t, value.String("hello world"), out["content"])
	assert.Equal(t, value.Number(11), out["size"])

	out = execute(t, newFile(), ctx(map[string]any{"path": "out/note.txt", "operation": FileExists}))
	assert.Equal(t, value.Boolean(true), out["exists"])

	execute(t, newFile(), ctx(map[string]any{"path": "out/note.txt", "operation": FileDelete}))
	out = execute(t, newFile(), ctx(map[string]any{"path": "out/note.txt", "operation": FileExists}))
	assert.Equal(t, value.Boolean(false), out["exists"])

	f := failure(t, newFile(), ctx(map[string]any{"path": "out/note.txt"}))
	assert.Equal(t, "File not found", f.Title)
}

func TestActions(t *testing.T) {
	reg := workflow.NewRegistry()
	reg.MustRegister(Actions(Options{})...)
	for _, id := range []string{VariableCreateID, TextSplitID, CalculateID, JQID, JSONPathID, LuaID, UUIDID, FileID, DateNowID} {
		_, ok := reg.Get(id)
		assert.True(t, ok, id)
	}
}
