package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

// File operations.
const (
	FileRead   = "read"
	FileWrite  = "write"
	FileAppend = "append"
	FileDelete = "delete"
	FileExists = "exists"
)

// MaxFileSize bounds reads (100MB).
const MaxFileSize = 100 * 1024 * 1024

type fileAction struct{ base.Base }

func newFile() *fileAction {
	return &fileAction{base.New(FileID, "File", category, "Read, write, append, delete or test a file").
		WithInputs(
			base.Input("path", value.TypeString, true),
			workflow.InputDefinition{ID: "operation", TypeID: value.TypeString, Default: FileRead},
			base.Input("content", value.TypeString, false),
		).
		WithOutputs(
			workflow.Output("content", value.TypeString),
			workflow.Output("size", value.TypeNumber),
			workflow.Output("exists", value.TypeBoolean),
			workflow.Output("path", value.TypeString),
		)}
}

// Execute resolves relative paths against the run's scratch directory.
// Writes go through a temporary file and a rename.
func (a *fileAction) Execute(_ context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	raw := strings.TrimSpace(ec.String("path", ""))
	if raw == "" {
		return base.Missing("path")
	}
	path := ec.Path(raw)
	op := strings.ToLower(ec.String("operation", FileRead))
	ec.Logger.Debug("file operation", "operation", op, "path", path)

	switch op {
	case FileRead:
		info, err := os.Stat(path)
		if err != nil {
			return fileFailure(op, path, err)
		}
		if info.Size() > MaxFileSize {
			return workflow.Failf("File too large", "%s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fileFailure(op, path, err)
		}
		return workflow.Succeed(map[string]any{
			"content": string(data),
			"size":    len(data),
			"exists":  true,
			"path":    path,
		})

	case FileWrite:
		content := ec.String("content", "")
		if err := writeAtomic(path, []byte(content)); err != nil {
			return fileFailure(op, path, err)
		}
		progress(fmt.Sprintf("wrote %d bytes", len(content)))
		return workflow.Succeed(map[string]any{"size": len(content), "exists": true, "path": path})

	case FileAppend:
		content := ec.String("content", "")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fileFailure(op, path, err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fileFailure(op, path, err)
		}
		_, err = f.WriteString(content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fileFailure(op, path, err)
		}
		return workflow.Succeed(map[string]any{"size": len(content), "exists": true, "path": path})

	case FileDelete:
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fileFailure(op, path, err)
		}
		return workflow.Succeed(map[string]any{"exists": false, "path": path})

	case FileExists:
		_, err := os.Stat(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fileFailure(op, path, err)
		}
		return workflow.Succeed(map[string]any{"exists": err == nil, "path": path})
	}
	return workflow.Failf("Invalid operation", "unknown file operation %q", op)
}

func fileFailure(op, path string, err error) workflow.Result {
	if errors.Is(err, fs.ErrNotExist) {
		return workflow.Failf("File not found", "%s: %s does not exist", op, path)
	}
	return workflow.Failf("File operation failed", "%s %s: %v", op, path, err)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".stepflow-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
