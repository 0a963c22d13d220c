package materialite

import (
	"github.com/l7mp/materialite/pkg/multiset"
)

// Stream is a typed handle to the output of a source or an operator. Streams are used to chain
// further operators and to attach views.
type Stream[T any] struct {
	m      *Materialite
	writer *writer[T]
	// key defines value equality when deltas are consolidated.
	key multiset.KeyFunc[T]
	// ordering, if known, lets consolidation use sort-merge instead of hashing.
	ordering *Ordering[T]
}

func newStream[T any](m *Materialite, w *writer[T], ordering *Ordering[T]) *Stream[T] {
	return &Stream[T]{m: m, writer: w, key: multiset.Identity[T], ordering: ordering}
}

func (s *Stream[T]) derive(w *writer[T]) *Stream[T] {
	return &Stream[T]{m: s.m, writer: w, key: s.key, ordering: s.ordering}
}

// Materialite returns the coordinator of the stream.
func (s *Stream[T]) Materialite() *Materialite { return s.m }

// WithKey returns a handle to the same stream that consolidates values by the given key. This is
// needed for effects over non-comparable values.
func (s *Stream[T]) WithKey(key multiset.KeyFunc[T]) *Stream[T] {
	return &Stream[T]{m: s.m, writer: s.writer, key: key}
}

func (s *Stream[T]) consolidate(data *multiset.Multiset[T]) *multiset.Multiset[T] {
	if s.ordering != nil {
		return multiset.ConsolidateSorted(data, s.ordering.cmp)
	}
	return multiset.Consolidate(data, s.key)
}

// Destroy tears down the operator producing the stream if nothing reads it, together with every
// upstream operator that is left without readers. Sources are never destroyed this way.
func (s *Stream[T]) Destroy() {
	if s.writer.len() > 0 {
		return
	}
	if p, ok := s.writer.owner.(prunable); ok {
		p.prune()
	}
}

// Map transforms every value of the stream.
func Map[I, O any](s *Stream[I], f func(I) O) *Stream[O] {
	op := newOperator(s, opMap, func(_ EventMetadata, in *multiset.Multiset[I]) *multiset.Multiset[O] {
		return multiset.Map(in, f)
	})
	return newStream[O](s.m, op.output, nil)
}

// Filter keeps the values satisfying pred.
func (s *Stream[T]) Filter(pred func(T) bool) *Stream[T] {
	op := newOperator(s, opFilter, func(_ EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[T] {
		return in.Filter(pred)
	})
	return s.derive(op.output)
}

// Negate flips the sign of every change. Concatenating a stream with the negation of another
// yields their difference.
func (s *Stream[T]) Negate() *Stream[T] {
	op := newOperator(s, opNegate, func(_ EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[T] {
		return in.Negate()
	})
	return s.derive(op.output)
}

// Concat merges two streams. Every version is emitted once, after both inputs produced it.
func (s *Stream[T]) Concat(other *Stream[T]) *Stream[T] {
	if other.m != s.m {
		panic(newConsistencyError("concat", "streams belong to different coordinators"))
	}
	c := newConcat(s, other)
	ret := s.derive(c.output)
	if other.ordering != s.ordering {
		ret.ordering = nil
	}
	return ret
}

// After keeps the values that are not less than cursor by ord. When the stream is attached to a
// sorted source with the same ordering, pull requests passing through carry the cursor so that
// the source can start its scan there.
func (s *Stream[T]) After(cursor T, ord *Ordering[T]) *Stream[T] {
	if ord == nil {
		panic(NewComparatorError("after"))
	}
	op := newOperator(s, opAfter, func(_ EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[T] {
		return in.Filter(func(v T) bool { return ord.cmp(v, cursor) >= 0 })
	})
	op.hint = func(msg PullMsg) PullMsg {
		return msg.withHint(AfterHint[T]{Cursor: cursor, Ordering: ord})
	}
	return s.derive(op.output)
}

// Debug calls f with every delta passing through.
func (s *Stream[T]) Debug(f func(EventMetadata, *multiset.Multiset[T])) *Stream[T] {
	op := newOperator(s, opDebug, func(meta EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[T] {
		f(meta, in)
		return in
	})
	return s.derive(op.output)
}

// Effect calls f once for every value net added by a committed version. Values added and removed
// within the same transaction, and changes of rolled back or aborted versions, never reach f.
// Full recomputes do not fire f again for values it has already seen: only differences and the
// answer to the effect's own initial pull are buffered. Unless WithoutInitialData is given, f is
// also called for the current contents of the stream.
func (s *Stream[T]) Effect(f func(T), opts ...ViewOption) *Stream[T] {
	cfg := newViewConfig(opts)

	var (
		buffer   []*multiset.Multiset[T]
		buffered Version
		initial  uint64
		answered Version
	)
	op := newOperator(s, opEffect, func(meta EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[T] {
		switch {
		case meta.PullID != 0 && meta.PullID != initial:
			// answers a pull issued downstream
			return in
		case meta.PullID == 0 && meta.Cause == FullRecompute:
			return in
		}
		if meta.PullID != 0 {
			answered = meta.Version
		}
		if meta.Version != buffered {
			buffer, buffered = nil, meta.Version
		}
		buffer = append(buffer, in)
		return in
	})
	op.onCommit = func(v Version) {
		if answered == v {
			initial = 0
		}
		if buffered != v || len(buffer) == 0 {
			return
		}
		net := s.consolidate(multiset.Empty[T]().Concat(buffer...))
		buffer = nil
		for val, mult := range net.All() {
			if mult > 0 {
				f(val)
			}
		}
	}
	op.onAbort = func(Version) { buffer = nil }

	if cfg.initialData {
		s.m.mutate(func() {
			initial = s.m.nextPullID()
			op.input.requestPull(PullMsg{ID: initial})
		})
	}
	return s.derive(op.output)
}

// Size emits the running number of values in the stream, i.e., the sum of multiplicities. The
// result is meant to be materialized with MaterializeValue.
func Size[T any](s *Stream[T]) *Stream[int] {
	var count, committed int
	op := newOperator(s, opSize, func(meta EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[int] {
		old := count
		if meta.Cause == FullRecompute {
			count = 0
		}
		for _, mult := range in.All() {
			count += mult
		}
		switch {
		case meta.Cause == FullRecompute:
			return multiset.FromValues(count)
		case count == old:
			return multiset.Empty[int]()
		default:
			return multiset.New(multiset.Entry[int]{Value: old, Multiplicity: -1},
				multiset.Entry[int]{Value: count, Multiplicity: 1})
		}
	})
	op.onCommit = func(Version) { committed = count }
	op.onAbort = func(Version) { count = committed }
	return newStream[int](s.m, op.output, nil)
}
