package materialite

import (
	"github.com/zhangyunhao116/skipmap"

	"github.com/l7mp/materialite/pkg/multiset"
)

// KeyedMap is a stateful source holding one value per key, kept in key order in a skipmap.
// Unlike SortedSet, mutations are buffered and applied to the map when the transaction commits.
type KeyedMap[K, T any] struct {
	source[T]
	key       func(T) K
	data      *skipmap.FuncMap[K, T]
	pending   []mapChange[T]
	undo      []mapUndo[K, T]
	recompute bool
	listeners listeners[*KeyedMap[K, T]]
	changedAt Version
}

type mapChange[T any] struct {
	value  T
	delete bool
}

type mapUndo[K, T any] struct {
	key    K
	old    T
	hadOld bool
}

// NewKeyedMap creates a keyed source. key extracts the key of a value, less orders the keys.
func NewKeyedMap[K, T any](m *Materialite, key func(T) K, less func(a, b K) bool) *KeyedMap[K, T] {
	if key == nil || less == nil {
		panic(NewComparatorError("keyed-map"))
	}
	s := &KeyedMap[K, T]{
		key:  key,
		data: skipmap.NewFunc[K, T](less),
	}
	s.init(m, "keyed-map", s)
	return s
}

// Stream returns the stream of changes of the map.
func (s *KeyedMap[K, T]) Stream() *Stream[T] { return newStream[T](s.m, s.writer, nil) }

// Set stores v under its key, replacing the previous value.
func (s *KeyedMap[K, T]) Set(v T) {
	s.mutate(func() { s.pending = append(s.pending, mapChange[T]{value: v}) })
}

// Delete removes the value stored under the key of v.
func (s *KeyedMap[K, T]) Delete(v T) {
	s.mutate(func() { s.pending = append(s.pending, mapChange[T]{value: v, delete: true}) })
}

// RecomputeAll sends the complete contents downstream as a full recompute.
func (s *KeyedMap[K, T]) RecomputeAll() {
	s.mutate(func() { s.recompute = true })
}

// Get returns the committed value stored under key.
func (s *KeyedMap[K, T]) Get(key K) (T, bool) { return s.data.Load(key) }

// Len returns the number of committed values.
func (s *KeyedMap[K, T]) Len() int { return s.data.Len() }

// Values returns the committed values in key order.
func (s *KeyedMap[K, T]) Values() []T {
	ret := make([]T, 0, s.data.Len())
	s.data.Range(func(_ K, v T) bool {
		ret = append(ret, v)
		return true
	})
	return ret
}

// OnChange registers a listener called after every version that changed the map.
func (s *KeyedMap[K, T]) OnChange(fn func(*KeyedMap[K, T])) func() {
	id := s.listeners.add(fn)
	return func() { s.listeners.remove(id) }
}

func (s *KeyedMap[K, T]) queue(v Version) {
	entries := []multiset.Entry[T]{}
	for _, c := range s.pending {
		k := s.key(c.value)
		old, ok := s.data.Load(k)
		if c.delete && !ok {
			continue
		}
		s.undo = append(s.undo, mapUndo[K, T]{key: k, old: old, hadOld: ok})
		if ok {
			entries = append(entries, multiset.Entry[T]{Value: old, Multiplicity: -1})
		}
		if c.delete {
			s.data.LoadAndDelete(k)
			continue
		}
		s.data.Store(k, c.value)
		entries = append(entries, multiset.Entry[T]{Value: c.value, Multiplicity: 1})
	}
	s.pending = nil

	s.writer.queue(EventMetadata{Version: v, Cause: Difference}, multiset.New(entries...))
	if s.recompute {
		s.recompute = false
		s.writer.queue(EventMetadata{Version: v, Cause: FullRecompute}, multiset.FromValues(s.Values()...))
	}

	s.answerPulls(v, func([]PullMsg) *multiset.Multiset[T] {
		return multiset.FromValues(s.Values()...)
	})
}

func (s *KeyedMap[K, T]) commit(v Version) {
	if len(s.undo) > 0 {
		s.changedAt = v
	}
	s.undo = nil
}

// rollback drops the buffered changes and reverts the ones applied by an aborted version.
func (s *KeyedMap[K, T]) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		u := s.undo[i]
		if u.hadOld {
			s.data.Store(u.key, u.old)
		} else {
			s.data.LoadAndDelete(u.key)
		}
	}
	s.undo, s.pending = nil, nil
	s.recompute = false
}

func (s *KeyedMap[K, T]) notifyCommitted(v Version) {
	if s.changedAt == v {
		s.listeners.call(s)
	}
	s.writer.notifyCommitted(v)
}
