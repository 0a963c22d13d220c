package materialite

import (
	"slices"

	"github.com/l7mp/materialite/pkg/treap"
)

// ArrayView materializes a stream into a sorted slice. The slice is copied on the first change of
// a version, so slices returned by Value are never modified afterwards.
type ArrayView[T any] struct {
	*view[T, []T]
}

// MaterializeArray attaches an array view ordered by cmp. It panics if cmp is nil.
func (s *Stream[T]) MaterializeArray(cmp treap.Comparator[T], opts ...ViewOption) *ArrayView[T] {
	if cmp == nil {
		panic(NewComparatorError("array-view"))
	}
	apply := func(data []T, deltas []Delta[T]) ([]T, bool) {
		return applyArray(cmp, data, deltas)
	}
	return &ArrayView[T]{newView(s, "array-view", []T{}, apply, opts)}
}

// Len returns the number of values in the last committed version.
func (v *ArrayView[T]) Len() int { return len(v.Value()) }

func applyArray[T any](cmp treap.Comparator[T], data []T, deltas []Delta[T]) ([]T, bool) {
	copied := false
	cow := func() {
		if !copied {
			data, copied = slices.Clone(data), true
		}
	}

	for _, d := range deltas {
		if d.Meta.Cause == FullRecompute {
			data, copied = []T{}, true
		}
		for val, mult := range d.Data.All() {
			i, found := slices.BinarySearchFunc(data, val, (func(a, b T) int)(cmp))
			switch {
			case mult > 0 && found:
				cow()
				data[i] = val
			case mult > 0:
				cow()
				data = slices.Insert(data, i, val)
			case mult < 0 && found:
				cow()
				data = slices.Delete(data, i, i+1)
			}
		}
	}
	return data, copied
}
