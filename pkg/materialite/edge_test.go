package materialite

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/materialite/internal/testutils"
	"github.com/l7mp/materialite/pkg/multiset"
)

// stubNode is a graph node that only records its notifications.
type stubNode struct {
	id        string
	notified  []Version
	committed []Version
}

func (n *stubNode) ID() string         { return n.id }
func (n *stubNode) Name() string       { return "stub" }
func (n *stubNode) Kind() NodeKind     { return KindView }
func (n *stubNode) downstream() []node { return nil }
func (n *stubNode) abort(Version)      {}

func (n *stubNode) attach(w *writer[int]) *reader[int] {
	return w.newReader(n,
		func(v Version) { n.notified = append(n.notified, v) },
		func(v Version) { n.committed = append(n.committed, v) })
}

var _ = Describe("Edges", func() {
	var (
		set *SortedSet[int]
		w   *writer[int]
	)

	meta := func(v Version) EventMetadata { return EventMetadata{Version: v, Cause: Difference} }

	BeforeEach(func() {
		set = NewSortedSet(New(WithLogger(logger)), testutils.Ints)
		w = set.writer
	})

	It("should give every reader its own queue", func() {
		a, b := &stubNode{id: "a"}, &stubNode{id: "b"}
		ra, rb := a.attach(w), b.attach(w)

		w.send(meta(1), multiset.FromValues(1))
		w.send(meta(2), multiset.FromValues(2))
		Expect(a.notified).To(Equal([]Version{1, 2}))
		Expect(b.notified).To(Equal([]Version{1, 2}))

		Expect(ra.drain(1)).To(HaveLen(1))
		Expect(ra.drain(2)).To(HaveLen(1))
		ds := rb.drain(1)
		Expect(ds).To(HaveLen(1))
		Expect(ds[0].Data.Entries()).To(Equal([]multiset.Entry[int]{{Value: 1, Multiplicity: 1}}))
		Expect(rb.queue).To(HaveLen(1))
	})

	It("should drain all deltas of a version in order", func() {
		r := (&stubNode{id: "r"}).attach(w)
		w.queue(meta(1), multiset.FromValues(1))
		w.queue(meta(1), multiset.FromValues(2))
		w.queue(meta(2), multiset.FromValues(3))

		ds := r.drain(1)
		Expect(ds).To(HaveLen(2))
		Expect(ds[0].Data.Entries()[0].Value).To(Equal(1))
		Expect(ds[1].Data.Entries()[0].Value).To(Equal(2))
		Expect(r.queue).To(HaveLen(1))
	})

	It("should panic on a stale delta", func() {
		r := (&stubNode{id: "r"}).attach(w)
		w.queue(meta(5), multiset.FromValues(1))
		Expect(func() { r.drain(6) }).To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})

	It("should panic when versions go backwards", func() {
		w.queue(meta(5), multiset.Empty[int]())
		Expect(func() { w.queue(meta(4), multiset.Empty[int]()) }).To(
			PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})

	It("should synthesize one empty delta per version for source readers", func() {
		r := (&stubNode{id: "r"}).attach(w)
		ds := r.drain(7)
		Expect(ds).To(HaveLen(1))
		Expect(ds[0].Data.IsEmpty()).To(BeTrue())
		Expect(r.drain(7)).To(BeEmpty())
	})

	It("should not show earlier deltas to a new reader", func() {
		w.queue(meta(1), multiset.FromValues(1))
		r := (&stubNode{id: "late"}).attach(w)
		ds := r.drain(1)
		Expect(ds).To(HaveLen(1))
		Expect(ds[0].Data.IsEmpty()).To(BeTrue())
	})

	It("should deliver pull answers to the pulling reader only", func() {
		a, b := &stubNode{id: "a"}, &stubNode{id: "b"}
		ra, rb := a.attach(w), b.attach(w)
		ra.pulls[9] = struct{}{}

		w.queue(EventMetadata{Version: 1, Cause: FullRecompute, PullID: 9}, multiset.FromValues(1))
		Expect(ra.queue).To(HaveLen(1))
		Expect(rb.queue).To(BeEmpty())
		Expect(ra.pulls).To(BeEmpty())
	})

	It("should forward the commit only to readers notified in the version", func() {
		a, b := &stubNode{id: "a"}, &stubNode{id: "b"}
		a.attach(w)
		w.send(meta(1), multiset.Empty[int]())
		b.attach(w)

		w.notifyCommitted(1)
		Expect(a.committed).To(Equal([]Version{1}))
		Expect(b.committed).To(BeEmpty())
	})

	It("should skip readers removed during a pass", func() {
		b := &stubNode{id: "b"}
		var rb *reader[int]
		a := (&stubNode{id: "a"})
		w.newReader(a, func(Version) { rb.detach() }, nil)
		rb = b.attach(w)

		w.send(meta(1), multiset.Empty[int]())
		Expect(b.notified).To(BeEmpty())
		Expect(w.len()).To(Equal(1))
	})

	It("should drop the deltas of an aborted version", func() {
		r := (&stubNode{id: "r"}).attach(w)
		w.queue(meta(1), multiset.FromValues(1))
		w.queue(meta(2), multiset.FromValues(2))
		r.abort(2)
		Expect(r.queue).To(HaveLen(1))
		Expect(r.queue[0].Meta.Version).To(Equal(Version(1)))
	})

	It("should refuse to run an operator with no input", func() {
		op := newOperator(set.Stream(), opFilter,
			func(_ EventMetadata, in *multiset.Multiset[int]) *multiset.Multiset[int] { return in })
		next := newOperator(&Stream[int]{m: set.m, writer: op.output}, opFilter,
			func(_ EventMetadata, in *multiset.Multiset[int]) *multiset.Multiset[int] { return in })
		Expect(func() { next.run(1) }).To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})

	It("should refuse to run an operator twice for a version", func() {
		op := newOperator(set.Stream(), opFilter,
			func(_ EventMetadata, in *multiset.Multiset[int]) *multiset.Multiset[int] { return in })
		op.run(1)
		Expect(func() { op.run(1) }).To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
	})
})

var _ = Describe("Graph", func() {
	It("should list the live nodes and edges", func() {
		m := New(WithLogger(logger), WithName("graph-test"))
		a := NewSortedSet(m, testutils.Ints)
		b := NewSortedSet(m, testutils.Ints)
		merged := a.Stream().Concat(b.Stream().Filter(func(int) bool { return true }))
		view := merged.Materialize(testutils.Ints)

		g := m.Graph()
		Expect(g.Name).To(Equal("graph-test"))
		Expect(g.Nodes).To(HaveLen(5))
		Expect(g.Edges).To(HaveLen(4))

		n, ok := g.Node(view.ID())
		Expect(ok).To(BeTrue())
		Expect(n.Kind).To(Equal(KindView))
		Expect(n.Name).To(Equal("tree-view"))

		n, ok = g.Node(a.ID())
		Expect(ok).To(BeTrue())
		Expect(n.Kind).To(Equal(KindSource))

		kinds := map[NodeKind]int{}
		for _, n := range g.Nodes {
			kinds[n.Kind]++
		}
		Expect(kinds).To(Equal(map[NodeKind]int{KindSource: 2, KindOperator: 2, KindView: 1}))

		_, ok = g.Node("missing")
		Expect(ok).To(BeFalse())
	})
})
