package materialite

import "github.com/l7mp/materialite/pkg/treap"

// TreeView materializes a stream into a persistent treap. Snapshots returned by Value stay valid
// and unchanged forever.
type TreeView[T any] struct {
	*view[T, *treap.Treap[T]]
}

// Materialize attaches a tree view ordered by cmp. It panics if cmp is nil.
func (s *Stream[T]) Materialize(cmp treap.Comparator[T], opts ...ViewOption) *TreeView[T] {
	if cmp == nil {
		panic(NewComparatorError("tree-view"))
	}
	return &TreeView[T]{newView(s, "tree-view", treap.New(cmp), applyTree[T], opts)}
}

// Slice returns the values of the last committed version in order.
func (v *TreeView[T]) Slice() []T { return v.Value().Slice() }

// applyTree applies the entries in order: positive entries insert (or replace), negative ones
// delete. Multiplicities beyond the sign are ignored, a tree view is a set.
func applyTree[T any](data *treap.Treap[T], deltas []Delta[T]) (*treap.Treap[T], bool) {
	changed := false
	for _, d := range deltas {
		if d.Meta.Cause == FullRecompute {
			data, changed = data.Clear(), true
		}
		for val, mult := range d.Data.All() {
			switch {
			case mult > 0:
				data, changed = data.Add(val), true
			case mult < 0:
				if next := data.Delete(val); next != data {
					data, changed = next, true
				}
			}
		}
	}
	return data, changed
}
