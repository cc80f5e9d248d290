package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/errors"
)

func TestValidateBlocks(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr string
	}{
		{name: "no blocks", steps: []Step{plain("a"), plain("b")}},
		{name: "nested", steps: nestedSteps()},
		{
			name:    "unclosed start",
			steps:   []Step{marker("s", BlockStart, "loop", true), plain("a")},
			wantErr: "never closed",
		},
		{
			name:    "stray end",
			steps:   []Step{plain("a"), marker("e", BlockEnd, "loop", false)},
			wantErr: "never opened",
		},
		{
			name: "crossed blocks",
			steps: []Step{
				marker("l", BlockStart, "loop", true),
				marker("i", BlockStart, "if", false),
				marker("le", BlockEnd, "loop", false),
				marker("ie", BlockEnd, "if", false),
			},
			wantErr: "reverse order",
		},
		{
			name: "middle outside its block",
			steps: []Step{
				marker("l", BlockStart, "loop", true),
				marker("m", BlockMiddle, "if", false),
				marker("le", BlockEnd, "loop", false),
			},
			wantErr: "middle marker",
		},
		{
			name:    "missing pairing id",
			steps:   []Step{marker("s", BlockStart, "", false)},
			wantErr: "no pairing id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBlocks(tt.steps)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Message, tt.wantErr)
		})
	}
}

func TestInsertStep(t *testing.T) {
	steps := []Step{plain("a"), plain("b")}

	out, err := InsertStep(steps, 1,
		marker("l", BlockStart, "loop", true),
		plain("body"),
		marker("le", BlockEnd, "loop", false),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "l", "body", "le", "b"}, ids(out))
	assert.Equal(t, []string{"a", "b"}, ids(steps), "input is not modified")

	_, err = InsertStep(steps, 1, marker("l", BlockStart, "loop", true))
	assert.Error(t, err, "half a block breaks pairing")

	_, err = InsertStep(steps, 5, plain("x"))
	assert.Error(t, err)
}

func TestRemoveStep(t *testing.T) {
	steps := nestedSteps()

	out, err := RemoveStep(steps, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "a", "l1_end", "tail"}, ids(out), "removing a start removes the block")

	out, err = RemoveStep(steps, 10)
	require.NoError(t, err)
	assert.Len(t, out, 10)

	_, err = RemoveStep(steps, 5)
	assert.Error(t, err, "middle marker is not individually deletable")

	deletable := nestedSteps()
	deletable[5].Block.IndividuallyDeletable = true
	out, err = RemoveStep(deletable, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "a", "l2", "if", "b", "c", "if_end", "l2_end", "l1_end", "tail"}, ids(out))

	_, err = RemoveStep(steps, -1)
	assert.Error(t, err)
}

func ids(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}
