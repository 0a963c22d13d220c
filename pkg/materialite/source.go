package materialite

import (
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/materialite/pkg/multiset"
)

// source holds what every source kind shares: the root writer, pending pull requests and the
// registration with the coordinator.
type source[T any] struct {
	id        string
	name      string
	m         *Materialite
	log       logr.Logger
	writer    *writer[T]
	pulls     []PullMsg
	destroyed bool
	self      sourceHandle
}

func (s *source[T]) init(m *Materialite, name string, self sourceHandle) {
	s.id = uuid.NewString()
	s.name = name
	s.m = m
	s.log = m.log.WithName(name).WithValues("id", s.id)
	s.self = self
	s.writer = newWriter[T](self)
	m.addSource(self)
}

func (s *source[T]) ID() string          { return s.id }
func (s *source[T]) Name() string        { return s.name }
func (s *source[T]) Kind() NodeKind      { return KindSource }
func (s *source[T]) downstream() []node { return s.writer.downstream() }

// abort is a no-op: the coordinator rolls back the sources of an aborted version.
func (s *source[T]) abort(Version) {}

func (s *source[T]) notify(v Version) { s.writer.notify(v) }

// mutate runs a mutation of the source in the current transaction, or in a new one.
func (s *source[T]) mutate(fn func()) {
	if s.destroyed {
		panic(NewDestroyedError(s.name + " " + s.id))
	}
	s.m.mutate(func() {
		fn()
		s.m.markDirty(s.self)
	})
}

// pull records a pull request. It is answered when the transaction commits.
func (s *source[T]) pull(msg PullMsg) {
	if s.destroyed {
		return
	}
	s.m.mutate(func() {
		s.pulls = append(s.pulls, msg)
		s.m.markDirty(s.self)
	})
}

// pendingPulls survive a rollback: the pulling views and effects are still attached.
func (s *source[T]) pendingPulls() bool { return len(s.pulls) > 0 }

// answerPulls queues one full-recompute delta per pending pull, scoped to the pulling path.
func (s *source[T]) answerPulls(v Version, contents func(msgs []PullMsg) *multiset.Multiset[T]) {
	if len(s.pulls) == 0 {
		return
	}
	ids, groups := groupPulls(s.pulls)
	s.pulls = nil
	for _, id := range ids {
		data := contents(groups[id])
		s.log.V(4).Info("answering pull", "version", v, "pull", id, "entries", data.Len())
		s.writer.queue(EventMetadata{Version: v, Cause: FullRecompute, PullID: id}, data)
	}
}

// DetachPipelines disconnects every operator and view reading the source.
func (s *source[T]) DetachPipelines() {
	for _, r := range s.writer.readers {
		s.writer.removeReader(r)
	}
}

// Destroy detaches the pipelines and unregisters the source. Mutating a destroyed source panics.
func (s *source[T]) Destroy() {
	if s.destroyed {
		return
	}
	s.DetachPipelines()
	s.m.removeSource(s.self)
	s.destroyed = true
	s.log.V(2).Info("source destroyed")
}

// listeners is an ordered set of callbacks owned by a source or a view.
type listeners[D any] struct {
	next int
	fns  []listener[D]
}

type listener[D any] struct {
	id int
	fn func(D)
}

// add registers fn and returns its id.
func (l *listeners[D]) add(fn func(D)) int {
	id := l.next
	l.next++
	l.fns = append(l.fns, listener[D]{id: id, fn: fn})
	return id
}

// remove unregisters a listener and reports whether any listener is left.
func (l *listeners[D]) remove(id int) bool {
	for i, f := range l.fns {
		if f.id == id {
			l.fns = append(l.fns[:i:i], l.fns[i+1:]...)
			break
		}
	}
	return len(l.fns) > 0
}

func (l *listeners[D]) call(data D) {
	for _, f := range l.fns {
		f.fn(data)
	}
}

func (l *listeners[D]) len() int { return len(l.fns) }
