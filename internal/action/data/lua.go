package data

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

// luaExclude are globals removed from the script environment.
var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

type luaScript struct{ base.Base }

func newLua() *luaScript {
	return &luaScript{base.New(LuaID, "Lua script", category, "Run a sandboxed Lua script").
		WithInputs(
			base.Input("script", value.TypeString, true),
			workflow.InputDefinition{ID: "args", TypeID: value.TypeDictionary},
		).
		WithOutputs(workflow.Output("result", value.TypeAny))}
}

// Execute runs script with each entry of args bound to a local of the same
// name. The script's first return value becomes result.
func (a *luaScript) Execute(ctx context.Context, ec *workflow.ExecutionContext, _ workflow.ProgressFunc) workflow.Result {
	script, ok := ec.ParameterRaw("script")
	if !ok || strings.TrimSpace(script) == "" {
		return base.Missing("script")
	}
	if err := ctx.Err(); err != nil {
		return workflow.Fail("Cancelled", err.Error())
	}

	var args map[string]any
	if d, ok := ec.Variable("args").(*value.Dictionary); ok {
		args, _ = value.ToNative(d).(map[string]any)
	}
	out, err := RunLua(script, args)
	if err != nil {
		return workflow.Fail("Script failed", err.Error())
	}
	return workflow.Succeed(map[string]any{"result": out})
}

// RunLua executes script in a fresh sandboxed state.
func RunLua(script string, args map[string]any) (value.Value, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	slices.Sort(names)

	locals := make([]string, len(names))
	for i, name := range names {
		locals[i] = fmt.Sprintf("local %s = select(%d, ...)", name, i+1)
	}
	src := strings.Join(append(locals, script), "\n")

	l := lua.NewState()
	lua.OpenLibraries(l)
	l.Global("_G")
	for _, name := range luaExclude {
		l.PushNil()
		l.SetField(-2, name)
	}
	l.Pop(1)

	if err := lua.LoadString(l, src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	for _, name := range names {
		goToLua(l, args[name])
	}
	if err := l.ProtectedCall(len(names), 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}
	return value.From(luaToGo(l, -1)), nil
}

func goToLua(l *lua.State, v any) {
	switch t := v.(type) {
	case string:
		l.PushString(t)
	case bool:
		l.PushBoolean(t)
	case int:
		l.PushInteger(t)
	case float64:
		l.PushNumber(t)
	case []any:
		l.CreateTable(len(t), 0)
		for i, item := range t {
			l.PushInteger(i + 1)
			goToLua(l, item)
			l.SetTable(-3)
		}
	case map[string]any:
		l.CreateTable(0, len(t))
		for k, item := range t {
			l.PushString(k)
			goToLua(l, item)
			l.SetTable(-3)
		}
	case nil:
		l.PushNil()
	default:
		l.PushString(fmt.Sprint(t))
	}
}

func luaToGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		return luaTable(l, index)
	}
	return nil
}

// luaTable converts the table at index to a list when every key is a
// number, else to a map.
func luaTable(l *lua.State, index int) any {
	if index < 0 {
		index = l.Top() + index + 1
	}

	length := 0
	array := true
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) != lua.TypeNumber {
			array = false
		}
		length++
		l.Pop(1)
	}

	if array && length > 0 {
		out := make([]any, length)
		for i := 1; i <= length; i++ {
			l.RawGetInt(index, i)
			out[i-1] = luaToGo(l, -1)
			l.Pop(1)
		}
		return out
	}

	out := make(map[string]any, length)
	l.PushNil()
	for l.Next(index) {
		var key string
		if l.TypeOf(-2) == lua.TypeString {
			key, _ = l.ToString(-2)
		} else {
			key = fmt.Sprint(luaToGo(l, -2))
		}
		out[key] = luaToGo(l, -1)
		l.Pop(1)
	}
	return out
}
