package materialite

import (
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// ViewOption configures a view or an effect.
type ViewOption func(*viewConfig)

type viewConfig struct {
	initialData bool
	autoCleanup bool
}

func newViewConfig(opts []ViewOption) viewConfig {
	c := viewConfig{initialData: true, autoCleanup: true}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// WithoutInitialData skips pulling the current contents of the stream when the view is created:
// the view only sees the changes committed afterwards.
func WithoutInitialData() ViewOption {
	return func(c *viewConfig) { c.initialData = false }
}

// WithoutAutoCleanup keeps the view attached when its last listener unsubscribes.
func WithoutAutoCleanup() ViewOption {
	return func(c *viewConfig) { c.autoCleanup = false }
}

// view is the driver shared by all views: it drains the deltas of a version, folds them into a
// staged snapshot with apply, and publishes the snapshot after propagation completes.
type view[T, D any] struct {
	id        string
	name      string
	m         *Materialite
	log       logr.Logger
	reader    *reader[T]
	cfg       viewConfig
	lastRun   Version
	destroyed bool
	listeners listeners[D]

	apply    func(data D, deltas []Delta[T]) (D, bool)
	data     D
	staged   D
	stagedAt Version
	changed  bool
}

func newView[T, D any](s *Stream[T], name string, initial D,
	apply func(D, []Delta[T]) (D, bool), opts []ViewOption) *view[T, D] {
	w := &view[T, D]{
		id:    uuid.NewString(),
		name:  name,
		m:     s.m,
		cfg:   newViewConfig(opts),
		apply: apply,
		data:  initial,
	}
	w.log = s.m.log.WithName(name).WithValues("id", w.id)
	w.reader = s.writer.newReader(w, w.run, nil)

	if w.cfg.initialData {
		w.Pull()
	}
	return w
}

// ID returns the unique id of the view.
func (w *view[T, D]) ID() string { return w.id }

// Name returns the kind of the view.
func (w *view[T, D]) Name() string { return w.name }

// Kind implements node.
func (w *view[T, D]) Kind() NodeKind { return KindView }

func (w *view[T, D]) downstream() []node { return nil }

// Value returns the snapshot of the last committed version.
func (w *view[T, D]) Value() D { return w.data }

// Destroyed reports whether the view has been detached.
func (w *view[T, D]) Destroyed() bool { return w.destroyed }

// On registers a listener called with the new snapshot after every version that changed the
// view. The returned function unsubscribes; removing the last listener destroys the view unless
// the view was created WithoutAutoCleanup.
func (w *view[T, D]) On(fn func(D)) func() {
	id := w.listeners.add(fn)
	return func() {
		if w.listeners.remove(id) || !w.cfg.autoCleanup {
			return
		}
		w.Destroy()
	}
}

// Pull asks the upstream sources for their contents. The view is rebuilt from the answer when the
// current transaction commits, or immediately outside of a transaction.
func (w *view[T, D]) Pull() {
	if w.destroyed {
		return
	}
	w.m.mutate(func() {
		w.reader.requestPull(PullMsg{ID: w.m.nextPullID()})
	})
}

// Destroy detaches the view. Upstream operators left without readers are destroyed as well.
func (w *view[T, D]) Destroy() {
	if w.destroyed {
		return
	}
	w.destroyed = true
	w.log.V(2).Info("view destroyed")
	w.reader.detach()
}

func (w *view[T, D]) run(v Version) {
	if v <= w.lastRun {
		panic(newConsistencyError(w.id, "%s notified for version %d after version %d", w.name, v,
			w.lastRun))
	}
	w.lastRun = v

	deltas := w.reader.drain(v)
	if len(deltas) == 0 {
		panic(newConsistencyError(w.id, "%s notified for version %d with no input", w.name, v))
	}

	next, changed := w.apply(w.data, deltas)
	if !changed {
		return
	}
	w.staged, w.stagedAt = next, v
	w.m.enlist(w)
	w.log.V(4).Info("staged", "version", v, "deltas", len(deltas))
}

func (w *view[T, D]) publish(v Version) {
	if w.stagedAt != v {
		return
	}
	var zero D
	w.data, w.staged = w.staged, zero
	w.changed = true
}

func (w *view[T, D]) notifyListeners(Version) {
	if !w.changed {
		return
	}
	w.changed = false
	w.listeners.call(w.data)
}

func (w *view[T, D]) abort(v Version) {
	w.reader.abort(v)
	if w.stagedAt == v {
		var zero D
		w.staged, w.stagedAt = zero, 0
	}
}
