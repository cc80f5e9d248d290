package workflow

import (
	"fmt"
	"slices"

	"github.com/tombee/stepflow/pkg/errors"
)

// ValidateBlocks checks block pairing over a step list. Every start marker
// needs exactly one end marker with the same pairing id, blocks must nest
// properly, and middle markers must sit directly inside an open block of
// their pairing id. Steps without block behavior are ignored.
func ValidateBlocks(steps []Step) error {
	type open struct {
		pairing string
		pos     int
	}
	var stack []open

	for i, step := range steps {
		b := step.Block
		if b == nil || b.Type == BlockNone {
			continue
		}
		if b.PairingID == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].block.pairing", i),
				Message: fmt.Sprintf("block step %s has no pairing id", step.ID),
			}
		}

		switch b.Type {
		case BlockStart:
			stack = append(stack, open{pairing: b.PairingID, pos: i})

		case BlockMiddle:
			if len(stack) == 0 || stack[len(stack)-1].pairing != b.PairingID {
				return &errors.ValidationError{
					Field:      fmt.Sprintf("steps[%d]", i),
					Message:    fmt.Sprintf("step %s is a middle marker outside a %s block", step.ID, b.PairingID),
					Suggestion: "move the step between the block's start and end markers",
				}
			}

		case BlockEnd:
			if len(stack) == 0 {
				return &errors.ValidationError{
					Field:      fmt.Sprintf("steps[%d]", i),
					Message:    fmt.Sprintf("step %s closes a %s block that was never opened", step.ID, b.PairingID),
					Suggestion: "add the matching start step or remove this end step",
				}
			}
			top := stack[len(stack)-1]
			if top.pairing != b.PairingID {
				return &errors.ValidationError{
					Field: fmt.Sprintf("steps[%d]", i),
					Message: fmt.Sprintf("step %s closes a %s block but step %s opened a %s block",
						step.ID, b.PairingID, steps[top.pos].ID, top.pairing),
					Suggestion: "blocks must be closed in the reverse order they were opened",
				}
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return &errors.ValidationError{
			Field:      fmt.Sprintf("steps[%d]", top.pos),
			Message:    fmt.Sprintf("block opened by step %s is never closed", steps[top.pos].ID),
			Suggestion: "add the matching end step",
		}
	}
	return nil
}

// InsertStep returns a copy of steps with the given steps inserted at pos.
// The edit is rejected when the result would break block pairing, so a
// block is normally inserted as its full set of markers at once.
func InsertStep(steps []Step, pos int, insert ...Step) ([]Step, error) {
	if pos < 0 || pos > len(steps) {
		return nil, &errors.ValidationError{
			Field:   "position",
			Message: fmt.Sprintf("insert position %d out of range [0, %d]", pos, len(steps)),
		}
	}
	out := slices.Insert(slices.Clone(steps), pos, insert...)
	if err := ValidateBlocks(out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveStep returns a copy of steps without the step at pos. Removing a
// start marker removes the whole block including its body. Middle and end
// markers can only be removed on their own when their behavior allows it.
func RemoveStep(steps []Step, pos int) ([]Step, error) {
	if pos < 0 || pos >= len(steps) {
		return nil, &errors.ValidationError{
			Field:   "position",
			Message: fmt.Sprintf("remove position %d out of range [0, %d)", pos, len(steps)),
		}
	}

	b := steps[pos].Block
	if b == nil || b.Type == BlockNone {
		return slices.Delete(slices.Clone(steps), pos, pos+1), nil
	}

	switch b.Type {
	case BlockStart:
		end := FindBlockEnd(steps, pos, b.PairingID)
		if end < 0 {
			return nil, &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d]", pos),
				Message: fmt.Sprintf("block opened by step %s is never closed", steps[pos].ID),
			}
		}
		return slices.Delete(slices.Clone(steps), pos, end+1), nil

	default:
		if !b.IndividuallyDeletable {
			return nil, &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d]", pos),
				Message:    fmt.Sprintf("step %s cannot be removed on its own", steps[pos].ID),
				Suggestion: "remove the block's start step to delete the whole block",
			}
		}
		out := slices.Delete(slices.Clone(steps), pos, pos+1)
		if err := ValidateBlocks(out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
