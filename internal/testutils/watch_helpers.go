package testutils

import (
	. "github.com/onsi/gomega"
)

// Recorder collects the values passed to a listener or an effect callback.
type Recorder[T any] struct {
	calls [][]T
}

// Listen returns a view listener that records every snapshot.
func (r *Recorder[T]) Listen(data []T) {
	r.calls = append(r.calls, append([]T(nil), data...))
}

// Record returns an effect callback that records every value as a call of its own.
func (r *Recorder[T]) Record(v T) {
	r.calls = append(r.calls, []T{v})
}

// Calls returns the recorded calls in order.
func (r *Recorder[T]) Calls() [][]T { return r.calls }

// Values flattens the recorded calls.
func (r *Recorder[T]) Values() []T {
	ret := []T{}
	for _, c := range r.calls {
		ret = append(ret, c...)
	}
	return ret
}

// Reset forgets the recorded calls.
func (r *Recorder[T]) Reset() { r.calls = nil }

// ExpectCalls asserts the number of recorded calls.
func (r *Recorder[T]) ExpectCalls(n int) {
	ExpectWithOffset(1, r.calls).To(HaveLen(n), "unexpected number of listener calls")
}
