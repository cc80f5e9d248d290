package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetYAML = `
id: greet
name: Greet everyone
trigger:
  interval:
    every: 5m
steps:
  - id: each
    module: test.loop.start
    parameters:
      count: 3
  - id: hello
    module: test.record
    parameters:
      value: "hello {{each.loop_index}}"
      __error_policy: skip
  - id: each_end
    module: test.loop.end
`

func TestParseDefinition(t *testing.T) {
	p, err := ParseDefinition([]byte(greetYAML))
	require.NoError(t, err)

	assert.Equal(t, "greet", p.ID)
	assert.Equal(t, "Greet everyone", p.DisplayName())
	assert.True(t, p.Enabled, "enabled defaults to true")
	assert.Equal(t, "1.0", p.Version)
	assert.Equal(t, TriggerTypeInterval, p.Trigger.Type())
	require.Len(t, p.Steps, 3)
	assert.Equal(t, 3, p.Steps[0].Parameters["count"])
	assert.Equal(t, "skip", p.Steps[1].Parameters[ParamErrorPolicy])
	assert.Equal(t, 2, p.StepIndex("each_end"))
	assert.Equal(t, -1, p.StepIndex("nope"))
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "id: [unterminated"},
		{"missing id", "steps: []"},
		{"duplicate step id", "id: p\nsteps:\n  - {id: a, module: m}\n  - {id: a, module: m}"},
		{"missing module", "id: p\nsteps:\n  - {id: a}"},
		{"bad block type", "id: p\nsteps:\n  - {id: a, module: m, block: {type: sideways, pairing: x}}"},
		{"unclosed declared block", "id: p\nsteps:\n  - {id: a, module: m, block: {type: start, pairing: x}}"},
		{"two triggers", "id: p\ntrigger:\n  manual: {}\n  interval: {every: 1m}\nsteps: []"},
		{"short interval", "id: p\ntrigger:\n  interval: {every: 10ms}\nsteps: []"},
		{"file trigger without paths", "id: p\ntrigger:\n  file: {}\nsteps: []"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestProgram_DisabledRoundTrip(t *testing.T) {
	p, err := ParseDefinition([]byte("id: p\nenabled: false\nsteps: []"))
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	data, err := p.Marshal()
	require.NoError(t, err)
	again, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.False(t, again.Enabled)
}

func TestProgram_BoundSteps(t *testing.T) {
	p, err := ParseDefinition([]byte(greetYAML))
	require.NoError(t, err)

	steps := p.BoundSteps(newTestRegistry(nil))
	require.NotNil(t, steps[0].Block)
	assert.Equal(t, BlockStart, steps[0].Block.Type)
	assert.True(t, steps[0].Block.Loop)
	assert.Nil(t, steps[1].Block)
	assert.Equal(t, BlockEnd, steps[2].Block.Type)
	assert.Nil(t, p.Steps[0].Block, "program steps are not modified")
	assert.NoError(t, ValidateBlocks(steps))
}

func TestTriggerConfig(t *testing.T) {
	var nilTrigger *TriggerConfig
	assert.Equal(t, TriggerTypeManual, nilTrigger.Type())
	assert.Nil(t, nilTrigger.Data())

	manual := &TriggerConfig{Manual: &ManualTrigger{Data: map[string]any{"k": "v"}}}
	assert.Equal(t, TriggerTypeManual, manual.Type())
	assert.Equal(t, "v", manual.Data()["k"])

	file := &TriggerConfig{File: &FileTrigger{Paths: []string{"/tmp"}, MaxPerMinute: -1}}
	assert.Equal(t, TriggerTypeFile, file.Type())
	assert.Error(t, file.Validate())

	d, err := (&IntervalTrigger{Every: "90s"}).Duration()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", d.String())
}
