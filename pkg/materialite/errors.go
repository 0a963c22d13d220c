package materialite

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidComparator is reported when an ordered node is built without a comparator.
	ErrInvalidComparator = errors.New("invalid comparator")
	// ErrDestroyed is reported when a destroyed source is mutated.
	ErrDestroyed = errors.New("node destroyed")
	// ErrInvalidLimit is reported when Take is given a negative limit.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrPanic is reported by an enclosing transaction when a nested one panicked.
	ErrPanic = errors.New("panic in transaction")
)

type ErrComparator = error

func NewComparatorError(node string) ErrComparator {
	return fmt.Errorf("%w: %s requires a non-nil comparator", ErrInvalidComparator, node)
}

type ErrLimit = error

func NewLimitError(node string, n int) ErrLimit {
	return fmt.Errorf("%w: %s limit %d is negative", ErrInvalidLimit, node, n)
}

type ErrDestroyedNode = error

func NewDestroyedError(node string) ErrDestroyedNode {
	return fmt.Errorf("%w: %s", ErrDestroyed, node)
}

type ErrNestedPanic = error

func NewNestedPanicError(r any) ErrNestedPanic {
	return fmt.Errorf("%w: %v", ErrPanic, r)
}

// ConsistencyError signals a malformed or misdriven dataflow graph. It is never returned, the
// engine panics with it.
type ConsistencyError struct {
	Node    string
	Message string
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation at %s: %s", e.Node, e.Message)
}

func newConsistencyError(node, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Node: node, Message: fmt.Sprintf(format, args...)}
}
