package materialite

import "github.com/l7mp/materialite/pkg/multiset"

// reduceGroup is the state of one key: the consolidated input values and the output emitted for
// them.
type reduceGroup[T, O any] struct {
	in  *multiset.Multiset[T]
	out *multiset.Multiset[O]
}

// Reduce groups the stream by key and maps every group to an output multiset with f. When a
// delta touches a group, f is called again with the whole group and the difference between the
// new and the previous output is emitted, retractions first. f is not called for groups that
// became empty, their previous output is retracted.
//
// Groups are consolidated by the key of the stream, see WithKey. Like Take, Reduce builds its
// state from the initial data pulled by its readers.
func Reduce[T any, K, O comparable](s *Stream[T], key func(T) K,
	f func(K, *multiset.Multiset[T]) *multiset.Multiset[O]) *Stream[O] {
	return newReduce(s, opReduce, key, f)
}

// KeyCount is the output of CountBy: the number of values with the given key.
type KeyCount[K comparable] struct {
	Key   K
	Count int
}

// CountBy emits the number of values per key. Keys whose count drops to zero are retracted.
func CountBy[T any, K comparable](s *Stream[T], key func(T) K) *Stream[KeyCount[K]] {
	return newReduce(s, opCount, key, func(k K, in *multiset.Multiset[T]) *multiset.Multiset[KeyCount[K]] {
		count := 0
		for _, mult := range in.All() {
			count += mult
		}
		if count == 0 {
			return nil
		}
		return multiset.FromValues(KeyCount[K]{Key: k, Count: count})
	})
}

func newReduce[T any, K, O comparable](s *Stream[T], kind opKind, key func(T) K,
	f func(K, *multiset.Multiset[T]) *multiset.Multiset[O]) *Stream[O] {
	state := newKeyedState[K, reduceGroup[T, O]]()

	update := func(k K, in *multiset.Multiset[T]) *multiset.Multiset[O] {
		if in.IsEmpty() {
			state.del(k)
			return nil
		}
		out := f(k, in)
		state.set(k, reduceGroup[T, O]{in: in, out: out})
		return out
	}

	op := newOperator(s, kind, func(meta EventMetadata, in *multiset.Multiset[T]) *multiset.Multiset[O] {
		keys, groups := groupBy(in, key)

		if meta.Cause == FullRecompute {
			state.clear()
			ret := multiset.Empty[O]()
			for _, k := range keys {
				ret = ret.Concat(update(k, multiset.Consolidate(groups[k], s.key)))
			}
			return ret
		}

		ret := multiset.Empty[O]()
		for _, k := range keys {
			old, _ := state.get(k)
			next := update(k, multiset.Consolidate(old.in.Concat(groups[k]), s.key))
			ret = ret.Concat(old.out.Negate(), next)
		}
		return multiset.Consolidate(ret, nil)
	})
	op.onCommit = func(Version) { state.commit() }
	op.onAbort = func(Version) { state.abort() }
	return newStream[O](s.m, op.output, nil)
}
