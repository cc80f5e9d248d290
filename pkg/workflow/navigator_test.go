package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/stepflow/pkg/value"
)

func marker(id string, typ BlockType, pairing string, loop bool) Step {
	return Step{ID: id, ModuleID: "m", Block: &BlockBehavior{Type: typ, PairingID: pairing, Loop: loop}}
}

func plain(id string) Step { return Step{ID: id, ModuleID: "m"} }

// 0 L1 start
// 1   body
// 2   L2 start (same pairing id)
// 3     if start
// 4       body
// 5     if middle
// 6       body
// 7     if end
// 8   L2 end
// 9 L1 end
// 10 tail
func nestedSteps() []Step {
	return []Step{
		marker("l1", BlockStart, "loop", true),
		plain("a"),
		marker("l2", BlockStart, "loop", true),
		marker("if", BlockStart, "if", false),
		plain("b"),
		marker("else", BlockMiddle, "if", false),
		plain("c"),
		marker("if_end", BlockEnd, "if", false),
		marker("l2_end", BlockEnd, "loop", false),
		marker("l1_end", BlockEnd, "loop", false),
		plain("tail"),
	}
}

func TestFindBlockEnd(t *testing.T) {
	steps := nestedSteps()
	assert.Equal(t, 9, FindBlockEnd(steps, 0, "loop"))
	assert.Equal(t, 8, FindBlockEnd(steps, 2, "loop"))
	assert.Equal(t, 7, FindBlockEnd(steps, 3, "if"))
	assert.Equal(t, -1, FindBlockEnd(steps, 3, "missing"))
}

func TestFindBlockStart(t *testing.T) {
	steps := nestedSteps()
	assert.Equal(t, 0, FindBlockStart(steps, 9, "loop"))
	assert.Equal(t, 2, FindBlockStart(steps, 8, "loop"))
	assert.Equal(t, 0, FindBlockStart(steps, 1, "loop"))
	assert.Equal(t, 3, FindBlockStart(steps, 5, "if"))
	assert.Equal(t, -1, FindBlockStart(steps, 10, "loop"))
}

func TestFindBlockMiddle(t *testing.T) {
	steps := nestedSteps()
	assert.Equal(t, 5, FindBlockMiddle(steps, 3, "if"))
	assert.Equal(t, -1, FindBlockMiddle(steps, 0, "loop"))
}

func TestFindNextWithModuleIDs(t *testing.T) {
	steps := []Step{
		{ID: "a", ModuleID: "x"},
		{ID: "b", ModuleID: "y"},
		{ID: "c", ModuleID: "z"},
		{ID: "d", ModuleID: "y"},
	}
	assert.Equal(t, 1, FindNextWithModuleIDs(steps, 0, "y", "z"))
	assert.Equal(t, 3, FindNextWithModuleIDs(steps, 1, "y"))
	assert.Equal(t, -1, FindNextWithModuleIDs(steps, 3, "y"))
	assert.Equal(t, 0, FindNextWithModuleIDs(steps, -5, "x"))
}

func TestEnclosingLoopStart(t *testing.T) {
	steps := nestedSteps()
	tests := []struct {
		pos  int
		want int
	}{
		{0, -1},
		{1, 0},
		{2, 0},
		{4, 2},
		{6, 2},
		{8, 2},
		{9, 0},
		{10, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EnclosingLoopStart(steps, tt.pos), "pos %d", tt.pos)
	}
}

func TestLoopStates(t *testing.T) {
	count := &CountLoop{Total: 2}
	assert.False(t, count.Done())
	assert.Equal(t, value.Number(1), count.Outputs()["loop_index"])
	count.Advance()
	assert.Equal(t, value.Number(2), count.Outputs()["loop_index"])
	count.Advance()
	assert.True(t, count.Done())

	each := &ForEachLoop{Items: nil}
	assert.True(t, each.Done())
	assert.Equal(t, value.Number(1), each.Outputs()["index"])
	assert.Equal(t, value.Null, each.Outputs()["item"])

	while := &WhileLoop{Max: 2}
	assert.False(t, while.Done())
	assert.False(t, while.Exhausted())
	while.Advance()
	assert.True(t, while.Exhausted())
	assert.Equal(t, value.Number(2), while.Outputs()["iteration"])
	while.Advance()
	assert.True(t, while.Done())
	assert.True(t, (&WhileLoop{Finished: true}).Done())

	var stack LoopStack
	assert.Nil(t, stack.Peek())
	assert.Nil(t, stack.Pop())
	stack.Push(count)
	stack.Push(each)
	assert.Equal(t, 2, stack.Len())
	assert.Same(t, each, stack.Pop())
	assert.Same(t, count, stack.Peek())
}
