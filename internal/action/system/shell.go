package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// DefaultShellTimeout bounds a command when none is configured.
const DefaultShellTimeout = 30 * time.Second

type shell struct {
	base.Base
	timeout time.Duration
}

func newShell(timeout time.Duration) *shell {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	return &shell{
		Base: base.New(ShellID, "Shell command", category, "Run a command on the host").
			WithInputs(
				base.Input("command", value.TypeAny, true),
				base.Input("dir", value.TypeString, false),
				workflow.InputDefinition{ID: "env", TypeID: value.TypeDictionary},
			).
			WithOutputs(
				workflow.Output("stdout", value.TypeString),
				workflow.Output("stderr", value.TypeString),
				workflow.Output("exit_code", value.TypeNumber),
				workflow.Output("duration_ms", value.TypeNumber),
			),
		timeout: timeout,
	}
}

// Execute runs command through sh -c when it is text, or directly when it
// is a list. The working directory defaults to the scratch directory.
func (a *shell) Execute(ctx context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch c := ec.Variable("command").(type) {
	case *value.List:
		if c.Len() == 0 {
			return workflow.Fail("Invalid command", "command list is empty")
		}
		args := make([]string, c.Len())
		for i, it := range c.Items() {
			args[i] = it.AsString()
		}
		cmd = exec.CommandContext(ctx, args[0], args[1:]...)
	default:
		line := strings.TrimSpace(c.AsString())
		if line == "" {
			return base.Missing("command")
		}
		cmd = exec.CommandContext(ctx, "sh", "-c", line)
	}

	cmd.WaitDelay = time.Second
	cmd.Dir = ec.ScratchDir
	if dir := ec.String("dir", ""); dir != "" {
		cmd.Dir = ec.Path(dir)
	}
	if env, ok := ec.Variable("env").(*value.Dictionary); ok {
		cmd.Env = os.Environ()
		for _, k := range env.Keys() {
			v, _ := env.Get(k)
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v.AsString()))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	progress("running command")
	start := time.Now()
	err := cmd.Run()
	outputs := map[string]any{
		"stdout":      strings.TrimSpace(stdout.String()),
		"stderr":      strings.TrimSpace(stderr.String()),
		"exit_code":   0,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err == nil {
		return workflow.Succeed(outputs)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outputs["exit_code"] = exitErr.ExitCode()
	}
	msg := outputs["stderr"].(string)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("command timed out after %v", a.timeout)
	} else if msg == "" {
		msg = err.Error()
	}
	return workflow.Failure{Title: "Command failed", Message: msg, PartialOutputs: outputs}
}
