package materialite

import "slices"

// PullMsg asks the sources upstream of a node to send their full contents. Hints are collected
// on the way up and may let a source skip data that the requesting path would filter anyway.
type PullMsg struct {
	ID    uint64
	Hints []Hint
}

// Hint is an advisory entry of a pull message.
type Hint interface {
	HintKind() string
}

// AfterHint is added by an After operator: only values not less than Cursor by Ordering are
// needed.
type AfterHint[T any] struct {
	Cursor   T
	Ordering *Ordering[T]
}

// HintKind implements Hint.
func (AfterHint[T]) HintKind() string { return "after" }

func (m PullMsg) withHint(h Hint) PullMsg {
	return PullMsg{ID: m.ID, Hints: append(slices.Clone(m.Hints), h)}
}

// cleared is forwarded by operators that cannot be hoisted: hints collected below them are not
// valid above them.
func (m PullMsg) cleared() PullMsg {
	return PullMsg{ID: m.ID}
}

// afterBound returns the tightest cursor among the After hints using ord. Hints only survive
// through a contiguous chain of After operators, so each of them is a valid lower bound.
func afterBound[T any](msg PullMsg, ord *Ordering[T]) (T, bool) {
	var (
		bound T
		found bool
	)
	for _, h := range msg.Hints {
		after, ok := h.(AfterHint[T])
		if !ok || after.Ordering != ord {
			continue
		}
		if !found || ord.cmp(after.Cursor, bound) > 0 {
			bound, found = after.Cursor, true
		}
	}
	return bound, found
}

// scanBound merges the pull messages received under one pull id, possibly along several paths.
// The result is the loosest bound of the paths; a path with no usable hint forces a full scan.
func scanBound[T any](msgs []PullMsg, ord *Ordering[T]) (T, bool) {
	var (
		bound T
		zero  T
	)
	if ord == nil || len(msgs) == 0 {
		return zero, false
	}
	for i, msg := range msgs {
		b, ok := afterBound(msg, ord)
		if !ok {
			return zero, false
		}
		if i == 0 || ord.cmp(b, bound) < 0 {
			bound = b
		}
	}
	return bound, true
}

// groupPulls groups pending pull messages by id, keeping the order of first arrival.
func groupPulls(msgs []PullMsg) ([]uint64, map[uint64][]PullMsg) {
	ids := []uint64{}
	groups := map[uint64][]PullMsg{}
	for _, msg := range msgs {
		if _, ok := groups[msg.ID]; !ok {
			ids = append(ids, msg.ID)
		}
		groups[msg.ID] = append(groups[msg.ID], msg)
	}
	return ids, groups
}
