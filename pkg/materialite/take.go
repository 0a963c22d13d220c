package materialite

import (
	"github.com/l7mp/materialite/pkg/multiset"
	"github.com/l7mp/materialite/pkg/treap"
)

// Take keeps the first n values of the stream by cmp, e.g., one page of a list when chained
// after After. Values are treated as a set: values equal by cmp replace each other. When a value
// of the window is deleted the next value fills the window.
//
// Take keeps every value of its input, so that the window can be refilled. The state is built
// from the initial data pulled by the views reading the stream: a Take whose readers all skip
// the initial data only sees later changes.
func (s *Stream[T]) Take(n int, cmp treap.Comparator[T]) *Stream[T] {
	if cmp == nil {
		panic(NewComparatorError("take"))
	}
	if n < 0 {
		panic(NewLimitError("take", n))
	}

	all := treap.New(cmp)
	committed := all
	op := newOperator(s, opTake, func(meta EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[T] {
		if n == 0 {
			return multiset.Empty[T]()
		}
		if meta.Cause == FullRecompute {
			all = all.Clear()
			for v, mult := range in.All() {
				if mult > 0 {
					all = all.Add(v)
				}
			}
			return multiset.FromValues(head(all, n)...)
		}

		before := head(all, n)
		touched := treap.New(cmp)
		for v, mult := range in.All() {
			switch {
			case mult > 0:
				all = all.Add(v)
			case mult < 0:
				all = all.Delete(v)
			default:
				continue
			}
			touched = touched.Add(v)
		}
		if touched.IsEmpty() {
			return multiset.Empty[T]()
		}
		return windowDiff(before, head(all, n), touched)
	})
	op.onCommit = func(Version) { committed = all }
	op.onAbort = func(Version) { all = committed }
	return s.derive(op.output)
}

func head[T any](t *treap.Treap[T], n int) []T {
	ret := make([]T, 0, min(n, t.Len()))
	for v := range t.All() {
		if len(ret) == n {
			break
		}
		ret = append(ret, v)
	}
	return ret
}

// windowDiff merges two sorted windows into the delta turning the first into the second. Values
// present in both windows are only replaced if they were touched by the input.
func windowDiff[T any](before, after []T, touched *treap.Treap[T]) *multiset.Multiset[T] {
	cmp := touched.Comparator()
	var ret []multiset.Entry[T]
	i, j := 0, 0
	for i < len(before) || j < len(after) {
		var c int
		switch {
		case i == len(before):
			c = 1
		case j == len(after):
			c = -1
		default:
			c = cmp(before[i], after[j])
		}
		switch {
		case c < 0:
			ret = append(ret, multiset.Entry[T]{Value: before[i], Multiplicity: -1})
			i++
		case c > 0:
			ret = append(ret, multiset.Entry[T]{Value: after[j], Multiplicity: 1})
			j++
		default:
			if touched.Contains(after[j]) {
				ret = append(ret, multiset.Entry[T]{Value: before[i], Multiplicity: -1},
					multiset.Entry[T]{Value: after[j], Multiplicity: 1})
			}
			i++
			j++
		}
	}
	return multiset.New(ret...)
}
