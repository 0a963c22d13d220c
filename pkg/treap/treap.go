// Package treap implements a persistent randomized balanced binary search tree.
//
// A Treap is an immutable value: Add and Delete return a new treap that shares every subtree the
// operation did not touch with the receiver. Holding on to an old treap is therefore a cheap and
// permanently valid snapshot.
package treap

import (
	"errors"
	"iter"
	"math/rand/v2"
)

// ErrNilComparator is raised when a treap is created without a comparator.
var ErrNilComparator = errors.New("treap: nil comparator")

// Comparator orders values: negative if a < b, zero if a == b, positive if a > b.
type Comparator[T any] func(a, b T) int

type node[T any] struct {
	value       T
	priority    uint64
	left, right *node[T]
	size        int
}

func (n *node[T]) len() int {
	if n == nil {
		return 0
	}
	return n.size
}

func newNode[T any](value T, priority uint64, left, right *node[T]) *node[T] {
	return &node[T]{
		value:    value,
		priority: priority,
		left:     left,
		right:    right,
		size:     1 + left.len() + right.len(),
	}
}

// Option configures a treap.
type Option func(*config)

type config struct {
	seed   uint64
	seeded bool
}

// WithSeed makes the treap and every treap derived from it draw node priorities from a
// deterministic generator.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed, c.seeded = seed, true
	}
}

// Treap is a persistent sorted set ordered by a comparator. The zero value is not usable, create
// treaps with New.
type Treap[T any] struct {
	cmp      Comparator[T]
	root     *node[T]
	priority func() uint64
}

// New creates an empty treap. It panics if cmp is nil.
func New[T any](cmp Comparator[T], opts ...Option) *Treap[T] {
	if cmp == nil {
		panic(ErrNilComparator)
	}

	c := config{}
	for _, o := range opts {
		o(&c)
	}

	priority := rand.Uint64
	if c.seeded {
		priority = rand.New(rand.NewPCG(c.seed, c.seed^0x9e3779b97f4a7c15)).Uint64
	}

	return &Treap[T]{cmp: cmp, priority: priority}
}

func (t *Treap[T]) withRoot(root *node[T]) *Treap[T] {
	return &Treap[T]{cmp: t.cmp, root: root, priority: t.priority}
}

// Comparator returns the ordering of the treap.
func (t *Treap[T]) Comparator() Comparator[T] { return t.cmp }

// Len returns the number of values in the treap.
func (t *Treap[T]) Len() int { return t.root.len() }

// IsEmpty is true if the treap holds no values.
func (t *Treap[T]) IsEmpty() bool { return t.root == nil }

// Clear returns an empty treap with the same ordering.
func (t *Treap[T]) Clear() *Treap[T] { return t.withRoot(nil) }

// Add returns a treap that contains v. A value equal to v by the comparator is replaced.
func (t *Treap[T]) Add(v T) *Treap[T] {
	return t.withRoot(t.insert(t.root, v))
}

func (t *Treap[T]) insert(n *node[T], v T) *node[T] {
	if n == nil {
		return newNode(v, t.priority(), nil, nil)
	}

	c := t.cmp(v, n.value)
	switch {
	case c == 0:
		return newNode(v, n.priority, n.left, n.right)
	case c < 0:
		left := t.insert(n.left, v)
		if left.priority > n.priority {
			// rotate right
			return newNode(left.value, left.priority, left.left,
				newNode(n.value, n.priority, left.right, n.right))
		}
		return newNode(n.value, n.priority, left, n.right)
	default:
		right := t.insert(n.right, v)
		if right.priority > n.priority {
			// rotate left
			return newNode(right.value, right.priority,
				newNode(n.value, n.priority, n.left, right.left), right.right)
		}
		return newNode(n.value, n.priority, n.left, right)
	}
}

// Delete returns a treap without the value equal to v. If there is no such value the receiver is
// returned unchanged.
func (t *Treap[T]) Delete(v T) *Treap[T] {
	root, ok := t.remove(t.root, v)
	if !ok {
		return t
	}
	return t.withRoot(root)
}

func (t *Treap[T]) remove(n *node[T], v T) (*node[T], bool) {
	if n == nil {
		return nil, false
	}

	c := t.cmp(v, n.value)
	switch {
	case c < 0:
		left, ok := t.remove(n.left, v)
		if !ok {
			return n, false
		}
		return newNode(n.value, n.priority, left, n.right), true
	case c > 0:
		right, ok := t.remove(n.right, v)
		if !ok {
			return n, false
		}
		return newNode(n.value, n.priority, n.left, right), true
	default:
		return merge(n.left, n.right), true
	}
}

// merge joins two treaps where every value in a precedes every value in b.
func merge[T any](a, b *node[T]) *node[T] {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.priority > b.priority:
		return newNode(a.value, a.priority, a.left, merge(a.right, b))
	default:
		return newNode(b.value, b.priority, merge(a, b.left), b.right)
	}
}

func (t *Treap[T]) find(v T) *node[T] {
	n := t.root
	for n != nil {
		c := t.cmp(v, n.value)
		switch {
		case c == 0:
			return n
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

// Contains reports whether a value equal to v is in the treap.
func (t *Treap[T]) Contains(v T) bool { return t.find(v) != nil }

// Get returns the stored value equal to v.
func (t *Treap[T]) Get(v T) (T, bool) {
	if n := t.find(v); n != nil {
		return n.value, true
	}
	var zero T
	return zero, false
}

// Min returns the smallest value.
func (t *Treap[T]) Min() (T, bool) {
	var zero T
	n := t.root
	if n == nil {
		return zero, false
	}
	for n.left != nil {
		n = n.left
	}
	return n.value, true
}

// Max returns the largest value.
func (t *Treap[T]) Max() (T, bool) {
	var zero T
	n := t.root
	if n == nil {
		return zero, false
	}
	for n.right != nil {
		n = n.right
	}
	return n.value, true
}

// At returns the value at the given position in sorted order.
func (t *Treap[T]) At(index int) (T, bool) {
	var zero T
	if index < 0 || index >= t.Len() {
		return zero, false
	}

	n := t.root
	for n != nil {
		l := n.left.len()
		switch {
		case index < l:
			n = n.left
		case index == l:
			return n.value, true
		default:
			index -= l + 1
			n = n.right
		}
	}
	return zero, false
}

// IndexOf returns the position of the value equal to v in sorted order, or -1.
func (t *Treap[T]) IndexOf(v T) int {
	index, n := 0, t.root
	for n != nil {
		c := t.cmp(v, n.value)
		switch {
		case c == 0:
			return index + n.left.len()
		case c < 0:
			n = n.left
		default:
			index += n.left.len() + 1
			n = n.right
		}
	}
	return -1
}

// LowerBound returns the first value that is not less than v.
func (t *Treap[T]) LowerBound(v T) (T, bool) {
	var (
		ret   T
		found bool
	)
	n := t.root
	for n != nil {
		if t.cmp(n.value, v) >= 0 {
			ret, found = n.value, true
			n = n.left
		} else {
			n = n.right
		}
	}
	return ret, found
}

// All iterates over the values in ascending order. The sequence is bound to the treap it was
// obtained from and can be ranged over any number of times.
func (t *Treap[T]) All() iter.Seq[T] {
	root := t.root
	return func(yield func(T) bool) {
		var stack []*node[T]
		for n := root; n != nil; n = n.left {
			stack = append(stack, n)
		}
		walk(stack, yield)
	}
}

// IteratorAfter iterates in ascending order over the values not less than v.
func (t *Treap[T]) IteratorAfter(v T) iter.Seq[T] {
	root, cmp := t.root, t.cmp
	return func(yield func(T) bool) {
		var stack []*node[T]
		n := root
		for n != nil {
			if cmp(n.value, v) >= 0 {
				stack = append(stack, n)
				n = n.left
			} else {
				n = n.right
			}
		}
		walk(stack, yield)
	}
}

// walk runs an in-order traversal from a stack holding the path to the next value.
func walk[T any](stack []*node[T], yield func(T) bool) {
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !yield(n.value) {
			return
		}
		for c := n.right; c != nil; c = c.left {
			stack = append(stack, c)
		}
	}
}

// Slice returns the values in ascending order.
func (t *Treap[T]) Slice() []T {
	ret := make([]T, 0, t.Len())
	for v := range t.All() {
		ret = append(ret, v)
	}
	return ret
}
