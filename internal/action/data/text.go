package data

import (
	"context"
	"regexp"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Extraction modes of text.extract.
const (
	ExtractMiddle = "middle"
	ExtractPrefix = "prefix"
	ExtractSuffix = "suffix"
	ExtractChar   = "char"
)

type textSplit struct{ base.Base }

func newTextSplit() *textSplit {
	return &textSplit{base.New(TextSplitID, "Split text", category, "Split text into a list").
		WithInputs(
			base.Input("text", value.TypeString, true),
			workflow.InputDefinition{ID: "delimiter", TypeID: value.TypeString, Default: ","},
		).
		WithOutputs(workflow.Output("result", value.TypeList))}
}

func (a *textSplit) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	text := ec.String("text", "")
	if text == "" {
		return workflow.Succeed(map[string]any{"result": value.NewList()})
	}
	delim := ec.String("delimiter", ",")
	if delim == `\n` {
		delim = "\n"
	}
	return workflow.Succeed(map[string]any{"result": strings.Split(text, delim)})
}

type textReplace struct{ base.Base }

func newTextReplace() *textReplace {
	return &textReplace{base.New(TextReplaceID, "Replace text", category, "Replace every occurrence of a string or pattern").
		WithInputs(
			base.Input("text", value.TypeString, true),
			base.Input("find", value.TypeString, true),
			base.Input("replace", value.TypeString, false),
			workflow.InputDefinition{ID: "regex", TypeID: value.TypeBoolean, Default: false},
		).
		WithOutputs(workflow.Output("result", value.TypeString))}
}

func (a *textReplace) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	text := ec.String("text", "")
	find := ec.String("find", "")
	replace := ec.String("replace", "")
	if find == "" {
		return workflow.Succeed(map[string]any{"result": text})
	}

	if !ec.Bool("regex", false) {
		return workflow.Succeed(map[string]any{"result": strings.ReplaceAll(text, find, replace)})
	}
	re, err := regexp.Compile(find)
	if err != nil {
		return workflow.Fail("Invalid pattern", err.Error())
	}
	return workflow.Succeed(map[string]any{"result": re.ReplaceAllString(text, replace)})
}

type textExtract struct{ base.Base }

func newTextExtract() *textExtract {
	return &textExtract{base.New(TextExtractID, "Extract text", category, "Take part of a text by position").
		WithInputs(
			base.Input("text", value.TypeString, true),
			workflow.InputDefinition{ID: "mode", TypeID: value.TypeString, Default: ExtractMiddle},
			base.Input("start", value.TypeNumber, false),
			base.Input("end", value.TypeNumber, false),
			base.Input("index", value.TypeNumber, false),
			base.Input("count", value.TypeNumber, false),
		).
		WithOutputs(workflow.Output("result", value.TypeString))}
}

// Execute counts positions in characters. Negative positions count from
// the end; out-of-range positions are clamped.
func (a *textExtract) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	text := []rune(ec.String("text", ""))
	if len(text) == 0 {
		return workflow.Fail("Invalid text", "source text is empty")
	}

	var result string
	switch mode := ec.String("mode", ExtractMiddle); mode {
	case ExtractMiddle:
		result = substring(text, ec.Int("start", 0), ec.Int("end", 0))
	case ExtractPrefix:
		n := min(max(ec.Int("count", 0), 0), len(text))
		result = string(text[:n])
	case ExtractSuffix:
		n := min(max(ec.Int("count", 0), 0), len(text))
		result = string(text[len(text)-n:])
	case ExtractChar:
		result = charsAt(text, ec.Int("index", 0), ec.Int("count", 1))
	default:
		return workflow.Failf("Invalid mode", "unknown extract mode %q", mode)
	}
	return workflow.Succeed(map[string]any{"result": result})
}

func position(i, length int) int {
	if i < 0 {
		return max(0, length+i)
	}
	return min(i, length)
}

func substring(text []rune, start, end int) string {
	s, e := position(start, len(text)), position(end, len(text))
	if s >= e {
		return ""
	}
	return string(text[s:e])
}

func charsAt(text []rune, index, count int) string {
	if count <= 0 {
		return ""
	}
	s := position(index, len(text))
	e := min(s+count, len(text))
	if s >= e {
		return ""
	}
	return string(text[s:e])
}

type textJoin struct{ base.Base }

func newTextJoin() *textJoin {
	return &textJoin{base.New(TextJoinID, "Join text", category, "Join list items into text").
		WithInputs(
			base.Input("list", value.TypeList, true),
			workflow.InputDefinition{ID: "separator", TypeID: value.TypeString, Default: ","},
		).
		WithOutputs(workflow.Output("result", value.TypeString))}
}

func (a *textJoin) Execute(_ context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	sep := ec.String("separator", ",")
	if sep == `\n` {
		sep = "\n"
	}

	v := ec.Variable("list")
	list, ok := v.(*value.List)
	if !ok {
		return workflow.Succeed(map[string]any{"result": v.AsString()})
	}
	parts := make([]string, list.Len())
	for i, it := range list.Items() {
		parts[i] = it.AsString()
	}
	return workflow.Succeed(map[string]any{"result": strings.Join(parts, sep)})
}
