package materialite

import (
	"slices"

	"github.com/l7mp/materialite/pkg/multiset"
)

// writer is the output end of a stream edge. Every reader gets its own FIFO queue, so forks see
// the same sequence of deltas independently.
type writer[T any] struct {
	owner    upstream
	readers  []*reader[T]
	lastSent Version
	sent     int
}

func newWriter[T any](owner upstream) *writer[T] {
	return &writer[T]{owner: owner}
}

// newReader attaches a reader. The reader only sees deltas queued after this call.
func (w *writer[T]) newReader(owner node, onNotify, onCommitted func(Version)) *reader[T] {
	_, root := w.owner.(sourceHandle)
	r := &reader[T]{
		writer:      w,
		owner:       owner,
		root:        root,
		pulls:       map[uint64]struct{}{},
		onNotify:    onNotify,
		onCommitted: onCommitted,
	}
	w.readers = append(w.readers, r)
	return r
}

// removeReader detaches a reader. Removing the last reader prunes the owner of the writer if it
// is an operator.
func (w *writer[T]) removeReader(r *reader[T]) {
	i := slices.Index(w.readers, r)
	if i < 0 {
		return
	}
	w.readers = slices.Delete(slices.Clone(w.readers), i, i+1)
	r.detached = true

	if len(w.readers) == 0 {
		if p, ok := w.owner.(prunable); ok {
			p.prune()
		}
	}
}

// queue appends a delta to the queue of every reader. Deltas answering a pull only go to the
// readers that forwarded that pull.
func (w *writer[T]) queue(meta EventMetadata, data *multiset.Multiset[T]) {
	if meta.Version < w.lastSent {
		panic(newConsistencyError(w.owner.ID(), "version %d sent after version %d", meta.Version,
			w.lastSent))
	}
	w.lastSent = meta.Version
	w.sent++

	for _, r := range w.readers {
		if meta.PullID != 0 && !r.consumePull(meta.PullID) {
			continue
		}
		r.enqueue(Delta[T]{Meta: meta, Data: data})
	}
}

// notify runs the readers for a version. Readers removed during the pass are skipped, readers
// added during the pass are not visited.
func (w *writer[T]) notify(v Version) {
	for _, r := range slices.Clone(w.readers) {
		if !r.detached {
			r.notify(v)
		}
	}
}

// send is queue followed by notify.
func (w *writer[T]) send(meta EventMetadata, data *multiset.Multiset[T]) {
	w.queue(meta, data)
	w.notify(meta.Version)
}

func (w *writer[T]) notifyCommitted(v Version) {
	for _, r := range slices.Clone(w.readers) {
		if !r.detached {
			r.notifyCommitted(v)
		}
	}
}

func (w *writer[T]) downstream() []node {
	ret := make([]node, 0, len(w.readers))
	for _, r := range w.readers {
		ret = append(ret, r.owner)
	}
	return ret
}

func (w *writer[T]) len() int { return len(w.readers) }
