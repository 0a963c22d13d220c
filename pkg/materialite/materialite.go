package materialite

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Materialite.
type Option func(*Materialite)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logr.Logger) Option {
	return func(m *Materialite) { m.log = log }
}

// WithMetrics registers the commit metrics with the given registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Materialite) { m.registerer = reg }
}

// WithName names the instance in logs, metrics and graph renderings.
func WithName(name string) Option {
	return func(m *Materialite) { m.name = name }
}

// Materialite is the transaction coordinator of a dataflow graph. It allocates versions, tracks
// the sources mutated in the current transaction and drives commits.
type Materialite struct {
	id         string
	name       string
	log        logr.Logger
	registerer prometheus.Registerer
	metrics    *metrics

	version    Version
	depth      int
	failed     error
	committing bool
	lastPullID uint64

	sources    []sourceHandle
	dirty      []sourceHandle
	dirtySet   map[sourceHandle]struct{}
	publishers []publisher
}

// New creates a coordinator.
func New(opts ...Option) *Materialite {
	m := &Materialite{
		id:       uuid.NewString(),
		name:     "default",
		log:      logr.Discard(),
		dirtySet: map[sourceHandle]struct{}{},
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.WithName("materialite").WithValues("name", m.name)
	m.metrics = newMetrics(m.registerer, m.name)
	return m
}

// ID returns the unique id of the coordinator.
func (m *Materialite) ID() string { return m.id }

// Name returns the name of the coordinator.
func (m *Materialite) Name() string { return m.name }

// Version returns the last allocated version. Aborted versions are never reused.
func (m *Materialite) Version() Version { return m.version }

// InTx reports whether a transaction is open.
func (m *Materialite) InTx() bool { return m.depth > 0 }

// Tx runs fn in a transaction. Mutations made by fn become visible downstream atomically when the
// outermost transaction returns. If fn, or any transaction nested in it, returns an error or
// panics, the outermost transaction rolls back every source mutated since it started and returns
// the error (or re-panics). Pull requests issued inside the failed transaction, e.g. by a view
// created there, are answered right after the rollback.
func (m *Materialite) Tx(fn func() error) (err error) {
	m.depth++
	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		m.depth--
		if m.depth == 0 {
			m.rollback()
			m.commit()
		} else if m.failed == nil {
			m.failed = NewNestedPanicError(r)
		}
		if r != nil {
			panic(r)
		}
	}()

	err = fn()
	finished = true
	m.depth--

	if err != nil && m.failed == nil {
		m.failed = err
	}
	if m.depth > 0 {
		return err
	}

	if failed := m.failed; failed != nil {
		m.rollback()
		m.commit()
		if err == nil {
			err = failed
		}
		return err
	}

	m.commit()
	return nil
}

// mutate runs fn in the current transaction or, outside of one, as a transaction of its own.
func (m *Materialite) mutate(fn func()) {
	if m.depth > 0 {
		fn()
		return
	}
	_ = m.Tx(func() error { fn(); return nil })
}

func (m *Materialite) addSource(s sourceHandle) {
	m.sources = append(m.sources, s)
	m.metrics.sources.Inc()
}

func (m *Materialite) removeSource(s sourceHandle) {
	i := slices.Index(m.sources, s)
	if i < 0 {
		return
	}
	m.sources = slices.Delete(m.sources, i, i+1)
	if _, ok := m.dirtySet[s]; ok {
		delete(m.dirtySet, s)
		m.dirty = slices.DeleteFunc(m.dirty, func(d sourceHandle) bool { return d == s })
	}
	m.metrics.sources.Dec()
}

func (m *Materialite) markDirty(s sourceHandle) {
	if _, ok := m.dirtySet[s]; ok {
		return
	}
	m.dirtySet[s] = struct{}{}
	m.dirty = append(m.dirty, s)
}

func (m *Materialite) enlist(p publisher) {
	m.publishers = append(m.publishers, p)
}

func (m *Materialite) nextPullID() uint64 {
	m.lastPullID++
	return m.lastPullID
}

// rollback reverts the sources mutated in the transaction. Sources with unanswered pull requests
// stay dirty so that the next commit answers them in a fresh version.
func (m *Materialite) rollback() {
	dirty := m.dirty
	m.dirty, m.dirtySet = nil, map[sourceHandle]struct{}{}
	m.failed = nil
	for _, s := range dirty {
		s.rollback()
	}
	pulls := 0
	for _, s := range dirty {
		if s.pendingPulls() {
			m.markDirty(s)
			pulls++
		}
	}
	m.metrics.rollbacks.Inc()
	m.log.V(2).Info("rolled back transaction", "sources", len(dirty), "pending-pulls", pulls)
}

// commit runs versions until no source is dirty. Mutations made while a version is being
// committed, e.g. by listeners, are committed in a follow-up version.
func (m *Materialite) commit() {
	if m.committing {
		return
	}
	m.committing = true
	defer func() { m.committing = false }()

	for len(m.dirty) > 0 {
		m.commitVersion()
	}
}

func (m *Materialite) commitVersion() {
	dirty := m.dirty
	m.dirty, m.dirtySet = nil, map[sourceHandle]struct{}{}
	m.version++
	v := m.version
	sources := slices.Clone(m.sources)
	start := time.Now()

	m.log.V(2).Info("committing", "version", v, "dirty-sources", len(dirty), "sources", len(sources))

	m.propagate(v, sources, dirty)

	publishers := m.publishers
	m.publishers = nil
	for _, p := range publishers {
		p.publish(v)
	}
	for _, p := range publishers {
		p.notifyListeners(v)
	}

	for _, s := range sources {
		s.notifyCommitted(v)
	}

	m.metrics.commits.Inc()
	m.metrics.commitDuration.Observe(time.Since(start).Seconds())
	m.log.V(2).Info("committed", "version", v, "views", len(publishers))
}

// propagate is phase one of a commit. All sources queue their delta before any of them notifies,
// so that binary operators find both inputs of the version. A panic aborts the version.
func (m *Materialite) propagate(v Version, sources, dirty []sourceHandle) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(fmt.Errorf("%v", r), "aborting version", "version", v)
			m.abort(v, dirty)
			panic(r)
		}
	}()

	for _, s := range sources {
		s.queue(v)
	}
	for _, s := range sources {
		s.notify(v)
	}
	for _, s := range dirty {
		s.commit(v)
	}
}

func (m *Materialite) abort(v Version, dirty []sourceHandle) {
	for _, s := range dirty {
		s.rollback()
	}
	m.walk(func(n node) { n.abort(v) })
	m.publishers = nil
	m.metrics.aborts.Inc()
}

// walk visits every node reachable from a registered source once, parents first.
func (m *Materialite) walk(fn func(node)) {
	seen := map[string]bool{}
	var visit func(n node)
	visit = func(n node) {
		if seen[n.ID()] {
			return
		}
		seen[n.ID()] = true
		fn(n)
		for _, c := range n.downstream() {
			visit(c)
		}
	}
	for _, s := range m.sources {
		visit(s)
	}
}
