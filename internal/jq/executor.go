// Package jq runs jq queries over workflow values.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/itchyny/gojq"

	"github.com/tombee/stepflow/pkg/value"
)

const (
	// DefaultTimeout bounds a single query
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize bounds the JSON size of the input (10MB)
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor compiles and runs jq queries with a timeout and input size limit.
// Compiled queries are cached by source text.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.Mutex
	codes map[string]*gojq.Code
}

// NewExecutor creates an executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		codes:        make(map[string]*gojq.Code),
	}
}

// Execute runs query against input. A query producing one result returns
// it directly; several results come back as a List and none as Null.
func (e *Executor) Execute(ctx context.Context, query string, input value.Value) (value.Value, error) {
	if query == "" {
		return input, nil
	}

	code, err := e.compile(query)
	if err != nil {
		return nil, err
	}

	data, err := e.normalize(input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var results []value.Value
	iter := code.RunWithContext(ctx, data)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("jq: execution timeout after %v", e.timeout)
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, value.From(v))
	}

	switch len(results) {
	case 0:
		return value.Null, nil
	case 1:
		return results[0], nil
	}
	return value.NewList(results...), nil
}

// Validate reports whether query compiles.
func (e *Executor) Validate(query string) error {
	if query == "" {
		return nil
	}
	_, err := e.compile(query)
	return err
}

func (e *Executor) compile(query string) (*gojq.Code, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if code, ok := e.codes[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq query: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	e.codes[query] = code
	return code, nil
}

// normalize converts input to the plain JSON types gojq accepts and checks
// its encoded size. Strings holding JSON documents are decoded first.
func (e *Executor) normalize(input value.Value) (any, error) {
	native := value.ToNative(input)
	if s, ok := native.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			native = decoded
		}
	}

	data, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("jq: failed to encode input: %w", err)
	}
	if int64(len(data)) > e.maxInputSize {
		return nil, fmt.Errorf("jq: input size (%d bytes) exceeds maximum (%d bytes)", len(data), e.maxInputSize)
	}
	return native, nil
}
