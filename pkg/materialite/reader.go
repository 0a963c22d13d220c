package materialite

import "github.com/l7mp/materialite/pkg/multiset"

// reader is the input end of a stream edge, owned by an operator or a view.
type reader[T any] struct {
	writer *writer[T]
	owner  node
	// root readers read a source directly
	root        bool
	queue       []Delta[T]
	notified    Version
	synthesized Version
	pulls       map[uint64]struct{}
	detached    bool

	onNotify    func(Version)
	onCommitted func(Version)
}

func (r *reader[T]) enqueue(d Delta[T]) {
	r.queue = append(r.queue, d)
}

func (r *reader[T]) notify(v Version) {
	r.notified = v
	r.onNotify(v)
}

// notifyCommitted only reaches the owner if this reader took part in propagating the version.
func (r *reader[T]) notifyCommitted(v Version) {
	if r.notified != v || r.onCommitted == nil {
		return
	}
	r.onCommitted(v)
}

// drain pops the deltas queued for exactly version v, in FIFO order. A root reader with nothing
// queued synthesizes one empty difference per version.
func (r *reader[T]) drain(v Version) []Delta[T] {
	var ret []Delta[T]
	i := 0
	for ; i < len(r.queue); i++ {
		d := r.queue[i]
		if d.Meta.Version < v {
			panic(newConsistencyError(r.owner.ID(), "stale delta for version %d while draining version %d",
				d.Meta.Version, v))
		}
		if d.Meta.Version > v {
			break
		}
		ret = append(ret, d)
	}
	r.queue = r.queue[i:]

	if len(ret) == 0 && r.root && r.synthesized != v {
		r.synthesized = v
		ret = append(ret, Delta[T]{
			Meta: EventMetadata{Version: v, Cause: Difference},
			Data: multiset.Empty[T](),
		})
	}
	return ret
}

// requestPull registers the pull on this reader, so that the answer is delivered here, and
// forwards the request upstream.
func (r *reader[T]) requestPull(msg PullMsg) {
	r.pulls[msg.ID] = struct{}{}
	r.writer.owner.pull(msg)
}

func (r *reader[T]) consumePull(id uint64) bool {
	if _, ok := r.pulls[id]; !ok {
		return false
	}
	delete(r.pulls, id)
	return true
}

// abort drops the deltas of an aborted version.
func (r *reader[T]) abort(v Version) {
	kept := r.queue[:0]
	for _, d := range r.queue {
		if d.Meta.Version < v {
			kept = append(kept, d)
		}
	}
	r.queue = kept
}

func (r *reader[T]) detach() {
	r.writer.removeReader(r)
}
