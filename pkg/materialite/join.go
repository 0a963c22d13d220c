package materialite

import (
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/materialite/pkg/multiset"
)

// JoinResult is a pair of joined values.
type JoinResult[A, B any] struct {
	Left  A
	Right B
}

// Join is the incremental equi-join of two streams: it emits every pair of values with equal
// keys, with the product of their multiplicities. A difference on either side is joined with the
// state of the other side, so a version costs time proportional to the matching values only. The
// state of each side is consolidated by the key of its stream, see WithKey.
func Join[A, B any, K comparable](a *Stream[A], b *Stream[B],
	keyA func(A) K, keyB func(B) K) *Stream[JoinResult[A, B]] {
	if a.m != b.m {
		panic(newConsistencyError("join", "streams belong to different coordinators"))
	}
	j := &join[A, B, K]{
		id:    uuid.NewString(),
		keyA:  keyA,
		keyB:  keyB,
		left:  newKeyedState[K, *multiset.Multiset[A]](),
		right: newKeyedState[K, *multiset.Multiset[B]](),
	}
	j.log = a.m.log.WithName(opJoin.String()).WithValues("id", j.id)
	j.output = newWriter[JoinResult[A, B]](j)
	j.inA = a.writer.newReader(j, func(v Version) { j.run(0, v) }, j.committed)
	j.inB = b.writer.newReader(j, func(v Version) { j.run(1, v) }, j.committed)
	j.consolidateA = func(ms *multiset.Multiset[A]) *multiset.Multiset[A] {
		return multiset.Consolidate(ms, a.key)
	}
	j.consolidateB = func(ms *multiset.Multiset[B]) *multiset.Multiset[B] {
		return multiset.Consolidate(ms, b.key)
	}
	return newStream[JoinResult[A, B]](a.m, j.output, nil)
}

type join[A, B any, K comparable] struct {
	id        string
	log       logr.Logger
	inA       *reader[A]
	inB       *reader[B]
	output    *writer[JoinResult[A, B]]
	pendingA  []Delta[A]
	pendingB  []Delta[B]
	seen      [2]Version
	forwarded Version
	destroyed bool

	keyA         func(A) K
	keyB         func(B) K
	consolidateA func(*multiset.Multiset[A]) *multiset.Multiset[A]
	consolidateB func(*multiset.Multiset[B]) *multiset.Multiset[B]
	left         *keyedState[K, *multiset.Multiset[A]]
	right        *keyedState[K, *multiset.Multiset[B]]
}

func (j *join[A, B, K]) ID() string          { return j.id }
func (j *join[A, B, K]) Name() string        { return opJoin.String() }
func (j *join[A, B, K]) Kind() NodeKind      { return KindOperator }
func (j *join[A, B, K]) downstream() []node { return j.output.downstream() }

func (j *join[A, B, K]) run(side int, v Version) {
	if v <= j.seen[side] {
		panic(newConsistencyError(j.id, "join input %d notified for version %d after version %d",
			side, v, j.seen[side]))
	}
	j.seen[side] = v

	n := 0
	if side == 0 {
		ds := j.inA.drain(v)
		j.pendingA, n = append(j.pendingA, ds...), len(ds)
	} else {
		ds := j.inB.drain(v)
		j.pendingB, n = append(j.pendingB, ds...), len(ds)
	}
	if n == 0 {
		panic(newConsistencyError(j.id, "join input %d notified for version %d with no input",
			side, v))
	}

	if j.seen[0] == v && j.seen[1] == v {
		j.flush(v)
	}
}

// joinInputs sorts the deltas of one side of a version: the merged difference, the merged
// recompute (nil if the side did not recompute) and the answers per pull.
type joinInputs[T any] struct {
	diff    *multiset.Multiset[T]
	rebuild *multiset.Multiset[T]
	pulls   map[uint64]*multiset.Multiset[T]
}

func splitDeltas[T any](ds []Delta[T], order *[]uint64, seen map[uint64]bool) joinInputs[T] {
	ret := joinInputs[T]{diff: multiset.Empty[T](), pulls: map[uint64]*multiset.Multiset[T]{}}
	for _, d := range ds {
		switch {
		case d.Meta.PullID != 0:
			if !seen[d.Meta.PullID] {
				seen[d.Meta.PullID] = true
				*order = append(*order, d.Meta.PullID)
			}
			ret.pulls[d.Meta.PullID] = ret.pulls[d.Meta.PullID].Concat(d.Data)
		case d.Meta.Cause == FullRecompute:
			ret.rebuild = ret.rebuild.Concat(d.Data)
		default:
			ret.diff = ret.diff.Concat(d.Data)
		}
	}
	return ret
}

// flush emits the join of the differences, then the full join if either side recomputed, then
// the full join of the answers of every pull.
func (j *join[A, B, K]) flush(v Version) {
	var pulls []uint64
	seen := map[uint64]bool{}
	a := splitDeltas(j.pendingA, &pulls, seen)
	b := splitDeltas(j.pendingB, &pulls, seen)
	j.pendingA, j.pendingB = nil, nil

	// (A+dA)x(B+dB) - AxB = dAxB + (A+dA)xdB
	keys, groups := groupBy(a.diff, j.keyA)
	out := j.joinLeft(keys, groups)
	j.apply(keys, groups)
	out = out.Concat(j.joinRight(b.diff))
	j.applyRight(b.diff)
	j.output.queue(EventMetadata{Version: v, Cause: Difference}, out)

	if a.rebuild != nil || b.rebuild != nil {
		if a.rebuild != nil {
			j.rebuildLeft(a.rebuild)
		}
		if b.rebuild != nil {
			j.rebuildRight(b.rebuild)
		}
		j.output.queue(EventMetadata{Version: v, Cause: FullRecompute}, j.joinAll())
	}

	for _, id := range pulls {
		j.rebuildLeft(a.pulls[id])
		j.rebuildRight(b.pulls[id])
		j.log.V(4).Info("answering pull", "version", v, "pull", id)
		j.output.queue(EventMetadata{Version: v, Cause: FullRecompute, PullID: id}, j.joinAll())
	}
	j.output.notify(v)
}

// joinLeft joins a grouped left delta with the right state.
func (j *join[A, B, K]) joinLeft(keys []K,
	groups map[K]*multiset.Multiset[A]) *multiset.Multiset[JoinResult[A, B]] {
	var ret []multiset.Entry[JoinResult[A, B]]
	for _, k := range keys {
		rs, ok := j.right.get(k)
		if !ok {
			continue
		}
		ret = appendPairs(ret, groups[k], rs)
	}
	return multiset.New(ret...)
}

// joinRight joins a right delta with the left state.
func (j *join[A, B, K]) joinRight(delta *multiset.Multiset[B]) *multiset.Multiset[JoinResult[A, B]] {
	var ret []multiset.Entry[JoinResult[A, B]]
	keys, groups := groupBy(delta, j.keyB)
	for _, k := range keys {
		ls, ok := j.left.get(k)
		if !ok {
			continue
		}
		ret = appendPairs(ret, ls, groups[k])
	}
	return multiset.New(ret...)
}

func (j *join[A, B, K]) joinAll() *multiset.Multiset[JoinResult[A, B]] {
	var ret []multiset.Entry[JoinResult[A, B]]
	for k, ls := range j.left.cur {
		if rs, ok := j.right.get(k); ok {
			ret = appendPairs(ret, ls, rs)
		}
	}
	return multiset.New(ret...)
}

func appendPairs[A, B any](ret []multiset.Entry[JoinResult[A, B]], ls *multiset.Multiset[A],
	rs *multiset.Multiset[B]) []multiset.Entry[JoinResult[A, B]] {
	for l, ml := range ls.All() {
		for r, mr := range rs.All() {
			ret = append(ret, multiset.Entry[JoinResult[A, B]]{
				Value:        JoinResult[A, B]{Left: l, Right: r},
				Multiplicity: ml * mr,
			})
		}
	}
	return ret
}

func (j *join[A, B, K]) apply(keys []K, groups map[K]*multiset.Multiset[A]) {
	for _, k := range keys {
		old, _ := j.left.get(k)
		if next := j.consolidateA(old.Concat(groups[k])); next.IsEmpty() {
			j.left.del(k)
		} else {
			j.left.set(k, next)
		}
	}
}

func (j *join[A, B, K]) applyRight(delta *multiset.Multiset[B]) {
	keys, groups := groupBy(delta, j.keyB)
	for _, k := range keys {
		old, _ := j.right.get(k)
		if next := j.consolidateB(old.Concat(groups[k])); next.IsEmpty() {
			j.right.del(k)
		} else {
			j.right.set(k, next)
		}
	}
}

func (j *join[A, B, K]) rebuildLeft(data *multiset.Multiset[A]) {
	j.left.clear()
	keys, groups := groupBy(data, j.keyA)
	j.apply(keys, groups)
}

func (j *join[A, B, K]) rebuildRight(data *multiset.Multiset[B]) {
	j.right.clear()
	j.applyRight(data)
}

func (j *join[A, B, K]) committed(v Version) {
	if v <= j.forwarded {
		return
	}
	j.forwarded = v
	j.left.commit()
	j.right.commit()
	j.output.notifyCommitted(v)
}

func (j *join[A, B, K]) pull(msg PullMsg) {
	next := msg.cleared()
	j.inA.requestPull(next)
	j.inB.requestPull(next)
}

func (j *join[A, B, K]) abort(v Version) {
	j.inA.abort(v)
	j.inB.abort(v)
	j.pendingA, j.pendingB = nil, nil
	j.left.abort()
	j.right.abort()
}

func (j *join[A, B, K]) prune() {
	if j.destroyed {
		return
	}
	j.destroyed = true
	j.log.V(2).Info("pruning operator")
	j.inA.detach()
	j.inB.detach()
}
