package materialite

import (
	"github.com/l7mp/materialite/pkg/multiset"
	"github.com/l7mp/materialite/pkg/treap"
)

// SortedSet is a stateful source backed by a persistent treap. Mutations update the treap at once,
// so Value reflects them before the transaction commits; the corresponding deltas are sent
// downstream on commit.
type SortedSet[T any] struct {
	source[T]
	ordering  *Ordering[T]
	tree      *treap.Treap[T]
	committed *treap.Treap[T]
	pending   []multiset.Entry[T]
	recompute bool
	changed   bool
	changedAt Version
	listeners listeners[*treap.Treap[T]]
	// lastScan is the number of values read to answer the last pull, kept for introspection. The
	// running total is exported as a metric.
	lastScan int
}

// NewSortedSet creates a sorted set ordered by cmp. It panics if cmp is nil.
func NewSortedSet[T any](m *Materialite, cmp treap.Comparator[T]) *SortedSet[T] {
	if cmp == nil {
		panic(NewComparatorError("sorted-set"))
	}
	return NewSortedSetWithOrdering(m, NewOrdering("sorted-set", cmp))
}

// NewSortedSetWithOrdering creates a sorted set with a shared ordering.
func NewSortedSetWithOrdering[T any](m *Materialite, ordering *Ordering[T]) *SortedSet[T] {
	if ordering == nil {
		panic(NewComparatorError("sorted-set"))
	}
	s := &SortedSet[T]{ordering: ordering}
	s.tree = treap.New(ordering.cmp)
	s.committed = s.tree
	s.init(m, "sorted-set", s)
	return s
}

// Ordering returns the ordering of the set. Pass it to After to enable range scans on pull.
func (s *SortedSet[T]) Ordering() *Ordering[T] { return s.ordering }

// Stream returns the stream of changes of the set.
func (s *SortedSet[T]) Stream() *Stream[T] { return newStream(s.m, s.writer, s.ordering) }

// Value returns the current contents, including uncommitted mutations.
func (s *SortedSet[T]) Value() *treap.Treap[T] { return s.tree }

// Committed returns the contents as of the last committed version.
func (s *SortedSet[T]) Committed() *treap.Treap[T] { return s.committed }

// Len returns the current number of values.
func (s *SortedSet[T]) Len() int { return s.tree.Len() }

// Add inserts v, replacing an equal value.
func (s *SortedSet[T]) Add(v T) {
	s.mutate(func() { s.add(v) })
}

// AddAll inserts all values in a single transaction.
func (s *SortedSet[T]) AddAll(vs ...T) {
	s.mutate(func() {
		for _, v := range vs {
			s.add(v)
		}
	})
}

func (s *SortedSet[T]) add(v T) {
	if old, ok := s.tree.Get(v); ok {
		s.pending = append(s.pending, multiset.Entry[T]{Value: old, Multiplicity: -1})
	}
	s.tree = s.tree.Add(v)
	s.pending = append(s.pending, multiset.Entry[T]{Value: v, Multiplicity: 1})
	s.changed = true
}

// Delete removes the value equal to v. Deleting a missing value is a no-op.
func (s *SortedSet[T]) Delete(v T) {
	if !s.tree.Contains(v) {
		return
	}
	s.mutate(func() { s.delete(v) })
}

// DeleteAll removes all values in a single transaction.
func (s *SortedSet[T]) DeleteAll(vs ...T) {
	s.mutate(func() {
		for _, v := range vs {
			s.delete(v)
		}
	})
}

func (s *SortedSet[T]) delete(v T) {
	old, ok := s.tree.Get(v)
	if !ok {
		return
	}
	s.tree = s.tree.Delete(v)
	s.pending = append(s.pending, multiset.Entry[T]{Value: old, Multiplicity: -1})
	s.changed = true
}

// RecomputeAll sends the complete contents downstream as a full recompute: views discard their
// state and rebuild it. Changes made in the same transaction are sent first as a difference.
func (s *SortedSet[T]) RecomputeAll() {
	s.mutate(func() { s.recompute = true })
}

// OnChange registers a listener called with the committed contents after every version that
// changed the set.
func (s *SortedSet[T]) OnChange(fn func(*treap.Treap[T])) func() {
	id := s.listeners.add(fn)
	return func() { s.listeners.remove(id) }
}

func (s *SortedSet[T]) queue(v Version) {
	s.writer.queue(EventMetadata{Version: v, Cause: Difference}, multiset.New(s.pending...))
	if s.recompute {
		s.writer.queue(EventMetadata{Version: v, Cause: FullRecompute},
			multiset.FromValues(s.tree.Slice()...))
	}
	s.pending, s.recompute = nil, false

	s.answerPulls(v, s.scan)
}

// scan reads the contents needed by a pull. If every path of the pull ends in After operators
// using the ordering of the set, the scan starts at the loosest cursor.
func (s *SortedSet[T]) scan(msgs []PullMsg) *multiset.Multiset[T] {
	seq := s.tree.All()
	cursor, hoisted := scanBound(msgs, s.ordering)
	if hoisted {
		seq = s.tree.IteratorAfter(cursor)
	}

	var values []T
	for v := range seq {
		values = append(values, v)
	}
	s.lastScan = len(values)
	s.m.metrics.pullScanned.Add(float64(len(values)))
	s.log.V(4).Info("scanned for pull", "hoisted", hoisted, "scanned", len(values), "size", s.tree.Len())
	return multiset.FromValues(values...)
}

func (s *SortedSet[T]) commit(v Version) {
	s.committed = s.tree
	if s.changed {
		s.changedAt = v
	}
	s.changed = false
}

func (s *SortedSet[T]) rollback() {
	s.tree = s.committed
	s.pending = nil
	s.recompute, s.changed = false, false
}

func (s *SortedSet[T]) notifyCommitted(v Version) {
	if s.changedAt == v {
		s.listeners.call(s.committed)
	}
	s.writer.notifyCommitted(v)
}
