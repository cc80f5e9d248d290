package jq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/value"
)

func TestExecutor_Execute(t *testing.T) {
	people := value.From([]any{
		map[string]any{"name": "ada", "age": 36},
		map[string]any{"name": "alan", "age": 41},
	})

	tests := []struct {
		name  string
		query string
		input value.Value
		want  value.Value
	}{
		{"empty query returns input", "", value.String("x"), value.String("x")},
		{"field", ".[0].name", people, value.String("ada")},
		{"map", "map(.age)", people, value.NewList(value.Number(36), value.Number(41))},
		{"several results", ".[].name", people, value.NewList(value.String("ada"), value.String("alan"))},
		{"no results", "empty", people, value.Null},
		{"json text input", ".a", value.String(`{"a": true}`), value.Boolean(true)},
	}

	exec := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exec.Execute(context.Background(), tt.query, tt.input)
			require.NoError(t, err)
			assert.Equal(t, value.ToNative(tt.want), value.ToNative(got))
		})
	}
}

func TestExecutor_Errors(t *testing.T) {
	exec := NewExecutor(0, 0)

	_, err := exec.Execute(context.Background(), ".[", value.Null)
	assert.Error(t, err)

	_, err = exec.Execute(context.Background(), "error(\"nope\")", value.Null)
	assert.ErrorContains(t, err, "nope")

	assert.NoError(t, exec.Validate(".a | length"))
	assert.Error(t, exec.Validate("{"))
}

func TestExecutor_InputSize(t *testing.T) {
	exec := NewExecutor(time.Second, 8)
	_, err := exec.Execute(context.Background(), ".", value.String("this is longer than eight bytes"))
	assert.ErrorContains(t, err, "exceeds maximum")
}
