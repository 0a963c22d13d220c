package materialite

import (
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/materialite/pkg/multiset"
)

// opKind is the closed set of operator kinds.
type opKind int

const (
	opMap opKind = iota
	opFilter
	opNegate
	opAfter
	opDebug
	opEffect
	opSize
	opTake
	opReduce
	opCount
	opConcat
	opJoin
)

var opKindNames = [...]string{
	opMap:    "map",
	opFilter: "filter",
	opNegate: "negate",
	opAfter:  "after",
	opDebug:  "debug",
	opEffect: "effect",
	opSize:   "size",
	opTake:   "take",
	opReduce: "reduce",
	opCount:  "count",
	opConcat: "concat",
	opJoin:   "join",
}

func (k opKind) String() string { return opKindNames[k] }

// operator is a unary dataflow node. Kinds differ only in the functions stored in the operator,
// a single driver (run) drains, transforms and forwards the deltas of every kind.
type operator[I, O any] struct {
	id        string
	kind      opKind
	log       logr.Logger
	input     *reader[I]
	output    *writer[O]
	lastRun   Version
	destroyed bool

	transform func(EventMetadata, *multiset.Multiset[I]) *multiset.Multiset[O]
	// hint rewrites pull messages travelling upstream, nil clears the hints.
	hint     func(PullMsg) PullMsg
	onCommit func(Version)
	onAbort  func(Version)
}

func newOperator[I, O any](in *Stream[I], kind opKind,
	transform func(EventMetadata, *multiset.Multiset[I]) *multiset.Multiset[O]) *operator[I, O] {
	op := &operator[I, O]{
		id:        uuid.NewString(),
		kind:      kind,
		transform: transform,
	}
	op.log = in.m.log.WithName(kind.String()).WithValues("id", op.id)
	op.output = newWriter[O](op)
	op.input = in.writer.newReader(op, op.run, op.committed)
	return op
}

func (op *operator[I, O]) ID() string          { return op.id }
func (op *operator[I, O]) Name() string        { return op.kind.String() }
func (op *operator[I, O]) Kind() NodeKind      { return KindOperator }
func (op *operator[I, O]) downstream() []node { return op.output.downstream() }

func (op *operator[I, O]) run(v Version) {
	if v <= op.lastRun {
		panic(newConsistencyError(op.id, "%s operator notified for version %d after version %d",
			op.kind, v, op.lastRun))
	}
	op.lastRun = v

	deltas := op.input.drain(v)
	if len(deltas) == 0 {
		panic(newConsistencyError(op.id, "%s operator notified for version %d with no input",
			op.kind, v))
	}

	for _, d := range deltas {
		out := op.transform(d.Meta, d.Data)
		op.log.V(4).Info("processed delta", "version", v, "cause", d.Meta.Cause,
			"pull", d.Meta.PullID, "in", d.Data.Len(), "out", out.Len())
		op.output.queue(d.Meta, out)
	}
	op.output.notify(v)
}

func (op *operator[I, O]) committed(v Version) {
	if op.onCommit != nil {
		op.onCommit(v)
	}
	op.output.notifyCommitted(v)
}

func (op *operator[I, O]) pull(msg PullMsg) {
	next := msg.cleared()
	if op.hint != nil {
		next = op.hint(msg)
	}
	op.input.requestPull(next)
}

func (op *operator[I, O]) abort(v Version) {
	op.input.abort(v)
	if op.onAbort != nil {
		op.onAbort(v)
	}
}

func (op *operator[I, O]) prune() {
	if op.destroyed {
		return
	}
	op.destroyed = true
	op.log.V(2).Info("pruning operator")
	op.input.detach()
}

// concat is the binary bag-union operator. It buffers the deltas of each side until both sides
// have been notified for a version, then emits them merged.
type concat[T any] struct {
	id        string
	log       logr.Logger
	inputs    [2]*reader[T]
	output    *writer[T]
	pending   [2][]Delta[T]
	seen      [2]Version
	forwarded Version
	destroyed bool
}

func newConcat[T any](a, b *Stream[T]) *concat[T] {
	c := &concat[T]{id: uuid.NewString()}
	c.log = a.m.log.WithName(opConcat.String()).WithValues("id", c.id)
	c.output = newWriter[T](c)
	c.inputs[0] = a.writer.newReader(c, func(v Version) { c.run(0, v) }, c.committed)
	c.inputs[1] = b.writer.newReader(c, func(v Version) { c.run(1, v) }, c.committed)
	return c
}

func (c *concat[T]) ID() string          { return c.id }
func (c *concat[T]) Name() string        { return opConcat.String() }
func (c *concat[T]) Kind() NodeKind      { return KindOperator }
func (c *concat[T]) downstream() []node { return c.output.downstream() }

func (c *concat[T]) run(side int, v Version) {
	if v <= c.seen[side] {
		panic(newConsistencyError(c.id, "concat input %d notified for version %d after version %d",
			side, v, c.seen[side]))
	}
	c.seen[side] = v

	deltas := c.inputs[side].drain(v)
	if len(deltas) == 0 {
		panic(newConsistencyError(c.id, "concat input %d notified for version %d with no input",
			side, v))
	}
	c.pending[side] = append(c.pending[side], deltas...)

	if c.seen[0] == v && c.seen[1] == v {
		c.flush(v)
	}
}

// flush emits the merged difference of the version, then the merged recompute if any input
// recomputed, then one merged delta per pull answered in the version.
func (c *concat[T]) flush(v Version) {
	type group struct {
		id    uint64
		cause Cause
	}
	order := []group{{0, Difference}, {0, FullRecompute}}
	merged := map[group]*Delta[T]{}
	recomputed := [2]bool{}
	for side := range c.pending {
		for _, d := range c.pending[side] {
			g := group{id: d.Meta.PullID, cause: d.Meta.Cause}
			if g.id != 0 {
				// pull answers are full recomputes of one path
				g.cause = FullRecompute
			} else if g.cause == FullRecompute {
				recomputed[side] = true
			}
			cur, ok := merged[g]
			if !ok {
				if g.id != 0 {
					order = append(order, g)
				}
				merged[g] = &Delta[T]{Meta: EventMetadata{Version: v, Cause: g.cause, PullID: g.id}, Data: d.Data}
				continue
			}
			cur.Data = cur.Data.Concat(d.Data)
		}
	}
	c.pending = [2][]Delta[T]{}
	if recomputed[0] != recomputed[1] {
		c.log.V(1).Info("only one input recomputed, the recompute covers that input only",
			"version", v)
	}

	for _, g := range order {
		if d, ok := merged[g]; ok {
			c.output.queue(d.Meta, d.Data)
		}
	}
	c.output.notify(v)
}

func (c *concat[T]) committed(v Version) {
	if v <= c.forwarded {
		return
	}
	c.forwarded = v
	c.output.notifyCommitted(v)
}

func (c *concat[T]) pull(msg PullMsg) {
	next := msg.cleared()
	c.inputs[0].requestPull(next)
	c.inputs[1].requestPull(next)
}

func (c *concat[T]) abort(v Version) {
	c.inputs[0].abort(v)
	c.inputs[1].abort(v)
	c.pending = [2][]Delta[T]{}
}

func (c *concat[T]) prune() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.log.V(2).Info("pruning operator")
	c.inputs[0].detach()
	c.inputs[1].detach()
}
