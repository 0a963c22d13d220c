package materialite

import "github.com/l7mp/materialite/pkg/multiset"

// Set is a stateless source: it forwards additions and removals without keeping the values, so a
// pull is answered with an empty delta.
type Set[T any] struct {
	source[T]
	pending []multiset.Entry[T]
}

// NewSet creates a stateless source.
func NewSet[T any](m *Materialite) *Set[T] {
	s := &Set[T]{}
	s.init(m, "set", s)
	return s
}

// Stream returns the stream of changes of the set.
func (s *Set[T]) Stream() *Stream[T] { return newStream[T](s.m, s.writer, nil) }

// Add emits v with multiplicity 1.
func (s *Set[T]) Add(v T) {
	s.mutate(func() {
		s.pending = append(s.pending, multiset.Entry[T]{Value: v, Multiplicity: 1})
	})
}

// Delete emits v with multiplicity -1.
func (s *Set[T]) Delete(v T) {
	s.mutate(func() {
		s.pending = append(s.pending, multiset.Entry[T]{Value: v, Multiplicity: -1})
	})
}

func (s *Set[T]) queue(v Version) {
	s.writer.queue(EventMetadata{Version: v, Cause: Difference}, multiset.New(s.pending...))
	s.pending = nil
	s.answerPulls(v, func([]PullMsg) *multiset.Multiset[T] { return multiset.Empty[T]() })
}

func (s *Set[T]) commit(Version) {}

func (s *Set[T]) rollback() {
	s.pending = nil
}

func (s *Set[T]) notifyCommitted(v Version) { s.writer.notifyCommitted(v) }
