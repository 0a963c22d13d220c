package materialite

import (
	"github.com/l7mp/materialite/pkg/multiset"
	"github.com/l7mp/materialite/pkg/treap"
)

// Version identifies one committed (or aborted) transaction. Versions start at 1.
type Version uint64

// Cause tells a consumer how to interpret a delta.
type Cause int

const (
	// Difference deltas are merged into the consumer's state.
	Difference Cause = iota
	// FullRecompute deltas hold the complete contents: the consumer replaces its state.
	FullRecompute
)

func (c Cause) String() string {
	if c == FullRecompute {
		return "full_recompute"
	}
	return "difference"
}

// EventMetadata is attached to every delta travelling on a stream edge.
type EventMetadata struct {
	Version Version
	Cause   Cause
	// PullID is set on the answer to a pull request. Such deltas are only delivered along the
	// path that issued the request.
	PullID uint64
}

// Delta is a multiset of changes with its metadata.
type Delta[T any] struct {
	Meta EventMetadata
	Data *multiset.Multiset[T]
}

// Ordering is a named comparator. Orderings are compared by identity: a pull hint is only used
// by a source whose own ordering is the very same *Ordering.
type Ordering[T any] struct {
	name string
	cmp  treap.Comparator[T]
}

// NewOrdering creates an ordering. It panics if cmp is nil.
func NewOrdering[T any](name string, cmp treap.Comparator[T]) *Ordering[T] {
	if cmp == nil {
		panic(NewComparatorError(name))
	}
	return &Ordering[T]{name: name, cmp: cmp}
}

// Name returns the name of the ordering.
func (o *Ordering[T]) Name() string { return o.name }

// Compare orders two values.
func (o *Ordering[T]) Compare(a, b T) int { return o.cmp(a, b) }

// Comparator returns the underlying comparator.
func (o *Ordering[T]) Comparator() treap.Comparator[T] { return o.cmp }

// NodeKind classifies the vertices of the dataflow graph.
type NodeKind string

const (
	// KindSource nodes hold or forward the input data and start every commit.
	KindSource NodeKind = "source"
	// KindOperator nodes transform the deltas of their inputs.
	KindOperator NodeKind = "operator"
	// KindView nodes materialize a stream into a snapshot.
	KindView NodeKind = "view"
)

// node is the untyped face of a graph vertex.
type node interface {
	ID() string
	Name() string
	Kind() NodeKind
	downstream() []node
	// abort drops everything staged for an aborted version.
	abort(v Version)
}

// upstream is a node that owns a writer and can answer pull requests.
type upstream interface {
	node
	pull(msg PullMsg)
}

// prunable nodes tear themselves down when their output loses its last reader.
type prunable interface {
	prune()
}

// publisher is a view that staged a new snapshot during propagation.
type publisher interface {
	publish(v Version)
	notifyListeners(v Version)
}

// sourceHandle is how the coordinator drives a source through a commit.
type sourceHandle interface {
	upstream
	queue(v Version)
	notify(v Version)
	commit(v Version)
	rollback()
	notifyCommitted(v Version)
	// pendingPulls reports whether pull requests wait for an answer.
	pendingPulls() bool
}
