// Package multiset implements the delta currency of the dataflow engine: bags of values tagged with
// signed multiplicities. A positive multiplicity is an insertion, a negative one a removal.
package multiset

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Entry is a single value with its multiplicity.
type Entry[T any] struct {
	Value        T
	Multiplicity int
}

// KeyFunc maps a value to the comparable key that defines value equality during consolidation.
type KeyFunc[T any] func(T) any

// Identity is the default key function: the value is its own key. Only valid for comparable T,
// otherwise consolidation panics at runtime.
func Identity[T any](v T) any { return v }

// Multiset is an immutable bag of entries. The same value may occur in multiple entries until the
// multiset is consolidated. Every operation returns a new multiset.
type Multiset[T any] struct {
	entries []Entry[T]
}

// New creates a multiset from the given entries.
func New[T any](entries ...Entry[T]) *Multiset[T] {
	return &Multiset[T]{entries: slices.Clone(entries)}
}

// Empty returns an empty multiset.
func Empty[T any]() *Multiset[T] {
	return &Multiset[T]{}
}

// FromValues creates a multiset containing each value with multiplicity 1.
func FromValues[T any](values ...T) *Multiset[T] {
	entries := make([]Entry[T], 0, len(values))
	for _, v := range values {
		entries = append(entries, Entry[T]{Value: v, Multiplicity: 1})
	}
	return &Multiset[T]{entries: entries}
}

// Entries returns a copy of the entries in insertion order.
func (m *Multiset[T]) Entries() []Entry[T] {
	if m == nil {
		return nil
	}
	return slices.Clone(m.entries)
}

// All iterates over the entries without copying them.
func (m *Multiset[T]) All() iter.Seq2[T, int] {
	return func(yield func(T, int) bool) {
		if m == nil {
			return
		}
		for _, e := range m.entries {
			if !yield(e.Value, e.Multiplicity) {
				return
			}
		}
	}
}

// Len returns the number of entries (not the sum of multiplicities).
func (m *Multiset[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// IsEmpty is true if the multiset has no entries. A multiset whose entries cancel out is not empty
// until it is consolidated.
func (m *Multiset[T]) IsEmpty() bool { return m.Len() == 0 }

// Map transforms each value, keeping multiplicities.
func Map[T, O any](m *Multiset[T], f func(T) O) *Multiset[O] {
	ret := &Multiset[O]{entries: make([]Entry[O], 0, m.Len())}
	for v, mult := range m.All() {
		ret.entries = append(ret.entries, Entry[O]{Value: f(v), Multiplicity: mult})
	}
	return ret
}

// Filter keeps the entries whose value satisfies pred.
func (m *Multiset[T]) Filter(pred func(T) bool) *Multiset[T] {
	ret := &Multiset[T]{}
	for v, mult := range m.All() {
		if pred(v) {
			ret.entries = append(ret.entries, Entry[T]{Value: v, Multiplicity: mult})
		}
	}
	return ret
}

// Negate flips the sign of every multiplicity.
func (m *Multiset[T]) Negate() *Multiset[T] {
	ret := &Multiset[T]{entries: make([]Entry[T], 0, m.Len())}
	for v, mult := range m.All() {
		ret.entries = append(ret.entries, Entry[T]{Value: v, Multiplicity: -mult})
	}
	return ret
}

// Concat returns the bag union of the multiset and the others.
func (m *Multiset[T]) Concat(others ...*Multiset[T]) *Multiset[T] {
	n := m.Len()
	for _, o := range others {
		n += o.Len()
	}
	ret := &Multiset[T]{entries: make([]Entry[T], 0, n)}
	if m != nil {
		ret.entries = append(ret.entries, m.entries...)
	}
	for _, o := range others {
		if o != nil {
			ret.entries = append(ret.entries, o.entries...)
		}
	}
	return ret
}

// Difference returns m - other, i.e., m concatenated with the negation of other.
func (m *Multiset[T]) Difference(other *Multiset[T]) *Multiset[T] {
	return m.Concat(other.Negate())
}

// Consolidate groups entries by key, sums the multiplicities and drops the groups summing to
// zero. Groups keep the value and position of their first occurrence.
func Consolidate[T any](m *Multiset[T], key KeyFunc[T]) *Multiset[T] {
	if key == nil {
		key = Identity[T]
	}
	index := make(map[any]int, m.Len())
	entries := make([]Entry[T], 0, m.Len())
	for v, mult := range m.All() {
		k := key(v)
		if i, ok := index[k]; ok {
			entries[i].Multiplicity += mult
			continue
		}
		index[k] = len(entries)
		entries = append(entries, Entry[T]{Value: v, Multiplicity: mult})
	}
	return &Multiset[T]{entries: slices.DeleteFunc(entries, isZero[T])}
}

// ConsolidateSorted is the sort-merge version of Consolidate: values are equal when cmp returns 0.
// The result is sorted in ascending order by cmp.
func ConsolidateSorted[T any](m *Multiset[T], cmp func(a, b T) int) *Multiset[T] {
	sorted := m.Entries()
	slices.SortStableFunc(sorted, func(a, b Entry[T]) int { return cmp(a.Value, b.Value) })

	entries := make([]Entry[T], 0, len(sorted))
	for _, e := range sorted {
		if n := len(entries); n > 0 && cmp(entries[n-1].Value, e.Value) == 0 {
			entries[n-1].Multiplicity += e.Multiplicity
			continue
		}
		entries = append(entries, e)
	}
	return &Multiset[T]{entries: slices.DeleteFunc(entries, isZero[T])}
}

// Multiplicity returns the net multiplicity of v in m.
func Multiplicity[T any](m *Multiset[T], v T, key KeyFunc[T]) int {
	if key == nil {
		key = Identity[T]
	}
	k, ret := key(v), 0
	for w, mult := range m.All() {
		if key(w) == k {
			ret += mult
		}
	}
	return ret
}

// Equal reports whether two multisets have the same net multiplicity for every key.
func Equal[T any](a, b *Multiset[T], key KeyFunc[T]) bool {
	if key == nil {
		key = Identity[T]
	}
	counts := map[any]int{}
	for v, mult := range Consolidate(a, key).All() {
		counts[key(v)] += mult
	}
	for v, mult := range Consolidate(b, key).All() {
		counts[key(v)] -= mult
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// String returns a string representation of the multiset for debugging.
func (m *Multiset[T]) String() string {
	if m.IsEmpty() {
		return "∅"
	}

	parts := make([]string, 0, m.Len())
	for v, mult := range m.All() {
		parts = append(parts, fmt.Sprintf("%v×%d", v, mult))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func isZero[T any](e Entry[T]) bool { return e.Multiplicity == 0 }
