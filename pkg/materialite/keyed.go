package materialite

import "github.com/l7mp/materialite/pkg/multiset"

// keyedState is the per-key state of a stateful operator. Changes made while a version propagates
// are recorded so that an aborted version can be undone. Values are replaced, never mutated in
// place.
type keyedState[K comparable, S any] struct {
	cur  map[K]S
	undo map[K]saved[S]
	// prev is the state of the last committed version once clear was called in this version.
	prev    map[K]S
	cleared bool
}

type saved[S any] struct {
	val S
	ok  bool
}

func newKeyedState[K comparable, S any]() *keyedState[K, S] {
	return &keyedState[K, S]{cur: map[K]S{}, undo: map[K]saved[S]{}}
}

func (st *keyedState[K, S]) get(k K) (S, bool) {
	v, ok := st.cur[k]
	return v, ok
}

func (st *keyedState[K, S]) len() int { return len(st.cur) }

func (st *keyedState[K, S]) set(k K, v S) {
	st.save(k)
	st.cur[k] = v
}

func (st *keyedState[K, S]) del(k K) {
	st.save(k)
	delete(st.cur, k)
}

func (st *keyedState[K, S]) save(k K) {
	if st.cleared {
		return
	}
	if _, ok := st.undo[k]; ok {
		return
	}
	v, ok := st.cur[k]
	st.undo[k] = saved[S]{val: v, ok: ok}
}

// clear drops every key, e.g., before the state is rebuilt from a full recompute.
func (st *keyedState[K, S]) clear() {
	if !st.cleared {
		st.revert()
		st.prev, st.cleared = st.cur, true
	}
	st.cur, st.undo = map[K]S{}, map[K]saved[S]{}
}

func (st *keyedState[K, S]) revert() {
	for k, s := range st.undo {
		if s.ok {
			st.cur[k] = s.val
		} else {
			delete(st.cur, k)
		}
	}
}

func (st *keyedState[K, S]) commit() {
	st.undo, st.prev, st.cleared = map[K]saved[S]{}, nil, false
}

func (st *keyedState[K, S]) abort() {
	if st.cleared {
		st.cur = st.prev
	} else {
		st.revert()
	}
	st.commit()
}

// groupBy splits a delta by key. Keys are returned in the order of their first occurrence.
func groupBy[T any, K comparable](in *multiset.Multiset[T], key func(T) K) ([]K, map[K]*multiset.Multiset[T]) {
	var keys []K
	groups := map[K][]multiset.Entry[T]{}
	for v, mult := range in.All() {
		k := key(v)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], multiset.Entry[T]{Value: v, Multiplicity: mult})
	}
	ret := make(map[K]*multiset.Multiset[T], len(groups))
	for k, es := range groups {
		ret[k] = multiset.New(es...)
	}
	return keys, ret
}
