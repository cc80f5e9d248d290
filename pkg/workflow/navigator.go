package workflow

import "slices"

// Block navigation over the flat step list. Every lookup counts open blocks
// of the requested pairing id only, so nested blocks that share the id are
// skipped correctly. All functions return -1 when nothing matches.

// FindBlockStart scans backward from pos for the start marker that opens the
// block containing pos.
func FindBlockStart(steps []Step, pos int, pairingID string) int {
	open := 0
	for i := min(pos, len(steps)) - 1; i >= 0; i-- {
		b := steps[i].Block
		if b == nil || b.PairingID != pairingID {
			continue
		}
		switch b.Type {
		case BlockEnd:
			open++
		case BlockStart:
			if open == 0 {
				return i
			}
			open--
		}
	}
	return -1
}

// FindBlockEnd scans forward from the start marker at startPos for its
// matching end marker.
func FindBlockEnd(steps []Step, startPos int, pairingID string) int {
	open := 0
	for i := startPos + 1; i < len(steps); i++ {
		b := steps[i].Block
		if b == nil || b.PairingID != pairingID {
			continue
		}
		switch b.Type {
		case BlockStart:
			open++
		case BlockEnd:
			if open == 0 {
				return i
			}
			open--
		}
	}
	return -1
}

// FindBlockMiddle scans forward from the start marker at startPos for a
// middle marker at the same nesting level, stopping at the block's end.
func FindBlockMiddle(steps []Step, startPos int, pairingID string) int {
	open := 0
	for i := startPos + 1; i < len(steps); i++ {
		b := steps[i].Block
		if b == nil || b.PairingID != pairingID {
			continue
		}
		switch b.Type {
		case BlockStart:
			open++
		case BlockMiddle:
			if open == 0 {
				return i
			}
		case BlockEnd:
			if open == 0 {
				return -1
			}
			open--
		}
	}
	return -1
}

// FindNextWithModuleIDs returns the first position after pos whose module is
// one of ids.
func FindNextWithModuleIDs(steps []Step, pos int, ids ...string) int {
	for i := max(pos+1, 0); i < len(steps); i++ {
		if slices.Contains(ids, steps[i].ModuleID) {
			return i
		}
	}
	return -1
}

// EnclosingLoopStart returns the start marker of the innermost loop block
// that contains pos. Non-loop blocks (branches) are looked through.
func EnclosingLoopStart(steps []Step, pos int) int {
	closed := make(map[string]int)
	for i := min(pos, len(steps)) - 1; i >= 0; i-- {
		b := steps[i].Block
		if b == nil {
			continue
		}
		switch b.Type {
		case BlockEnd:
			closed[b.PairingID]++
		case BlockStart:
			if closed[b.PairingID] > 0 {
				closed[b.PairingID]--
				continue
			}
			if b.Loop {
				return i
			}
		}
	}
	return -1
}
