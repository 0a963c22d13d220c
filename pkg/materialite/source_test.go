package materialite

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/materialite/internal/testutils"
	"github.com/l7mp/materialite/pkg/treap"
)

var _ = Describe("Sources", func() {
	var m *Materialite

	BeforeEach(func() {
		m = New(WithLogger(logger))
	})

	Describe("SortedSet", func() {
		var set *SortedSet[testutils.Task]

		BeforeEach(func() {
			set = NewSortedSet(m, testutils.ByID)
		})

		It("should refuse a nil comparator", func() {
			Expect(func() { NewSortedSet[int](m, nil) }).To(PanicWith(MatchError(ErrInvalidComparator)))
		})

		It("should replace values equal by the comparator", func() {
			view := set.Stream().Materialize(testutils.ByID)
			set.AddAll(testutils.TestTasks...)

			updated := testutils.Task{ID: 1, Title: "renamed"}
			set.Add(updated)
			Expect(view.Value().Len()).To(Equal(len(testutils.TestTasks)))
			t, ok := view.Value().Get(testutils.Task{ID: 1})
			Expect(ok).To(BeTrue())
			Expect(t.Title).To(Equal("renamed"))
		})

		It("should ignore deletes of missing values", func() {
			before := m.Version()
			set.Delete(testutils.Task{ID: 42})
			Expect(m.Version()).To(Equal(before))
		})

		It("should call change listeners with the committed contents", func() {
			calls := 0
			unsubscribe := set.OnChange(func(t *treap.Treap[testutils.Task]) {
				calls++
				Expect(t.Len()).To(Equal(calls))
			})
			set.Add(testutils.TestTasks[0])
			set.Add(testutils.TestTasks[1])
			Expect(calls).To(Equal(2))

			Expect(m.Tx(func() error {
				set.Add(testutils.TestTasks[2])
				return errors.New("rollback")
			})).NotTo(Succeed())
			Expect(calls).To(Equal(2))

			unsubscribe()
			set.Add(testutils.TestTasks[2])
			Expect(calls).To(Equal(2))
		})

		It("should rebuild views on a full recompute", func() {
			view := set.Stream().Materialize(testutils.ByID)
			rec := &testutils.Recorder[int]{}
			view.On(func(t *treap.Treap[testutils.Task]) { rec.Record(t.Len()) })

			set.AddAll(testutils.TestTasks...)
			set.RecomputeAll()
			Expect(rec.Values()).To(Equal([]int{len(testutils.TestTasks), len(testutils.TestTasks)}))
		})

		It("should detach its pipelines", func() {
			view := set.Stream().Materialize(testutils.ByID)
			set.Add(testutils.TestTasks[0])
			set.DetachPipelines()
			set.Add(testutils.TestTasks[1])
			Expect(view.Value().Len()).To(Equal(1))
			Expect(m.Graph().Nodes).To(HaveLen(1))
		})

		It("should refuse mutations once destroyed", func() {
			set.Destroy()
			Expect(m.Graph().Nodes).To(BeEmpty())
			Expect(func() { set.Add(testutils.TestTasks[0]) }).To(PanicWith(MatchError(ErrDestroyed)))
		})
	})

	Describe("Set", func() {
		It("should forward changes without keeping state", func() {
			set := NewSet[int](m)
			view := set.Stream().MaterializeArray(testutils.Ints)
			Expect(view.Value()).To(BeEmpty())

			Expect(m.Tx(func() error {
				set.Add(1)
				set.Add(2)
				set.Delete(1)
				return nil
			})).To(Succeed())
			Expect(view.Value()).To(Equal([]int{2}))

			late := set.Stream().MaterializeArray(testutils.Ints)
			Expect(late.Value()).To(BeEmpty())
		})

		It("should drop the changes of a rolled back transaction", func() {
			set := NewSet[int](m)
			view := set.Stream().MaterializeArray(testutils.Ints)
			Expect(m.Tx(func() error {
				set.Add(1)
				return errors.New("rollback")
			})).NotTo(Succeed())
			set.Add(2)
			Expect(view.Value()).To(Equal([]int{2}))
		})
	})

	Describe("KeyedMap", func() {
		var (
			km   *KeyedMap[int, testutils.Task]
			view *TreeView[testutils.Task]
		)

		BeforeEach(func() {
			km = NewKeyedMap(m, func(t testutils.Task) int { return t.ID },
				func(a, b int) bool { return a < b })
			view = km.Stream().Materialize(testutils.ByPriority)
		})

		It("should store one value per key", func() {
			for _, t := range testutils.TestTasks {
				km.Set(t)
			}
			Expect(km.Len()).To(Equal(len(testutils.TestTasks)))
			Expect(view.Value().Len()).To(Equal(len(testutils.TestTasks)))

			km.Set(testutils.Task{ID: 1, Title: "urgent", Priority: -1})
			Expect(km.Len()).To(Equal(len(testutils.TestTasks)))
			first, ok := view.Value().Min()
			Expect(ok).To(BeTrue())
			Expect(first.Title).To(Equal("urgent"))
		})

		It("should apply changes on commit", func() {
			Expect(m.Tx(func() error {
				km.Set(testutils.Task{ID: 7})
				_, ok := km.Get(7)
				Expect(ok).To(BeFalse())
				return nil
			})).To(Succeed())
			_, ok := km.Get(7)
			Expect(ok).To(BeTrue())
		})

		It("should delete by key", func() {
			km.Set(testutils.Task{ID: 1, Title: "a"})
			km.Set(testutils.Task{ID: 2, Title: "b"})
			km.Delete(testutils.Task{ID: 1})
			Expect(km.Values()).To(Equal([]testutils.Task{{ID: 2, Title: "b"}}))
			Expect(view.Value().Len()).To(Equal(1))

			before := m.Version()
			km.Delete(testutils.Task{ID: 1})
			Expect(m.Version()).To(Equal(before + 1))
			Expect(view.Value().Len()).To(Equal(1))
		})

		It("should revert the map when a version is aborted", func() {
			_ = Map(km.Stream(), func(t testutils.Task) int {
				if t.Done {
					panic("done")
				}
				return t.ID
			}).Materialize(testutils.Ints)

			km.Set(testutils.Task{ID: 1, Title: "a"})
			Expect(func() { km.Set(testutils.Task{ID: 1, Done: true}) }).To(PanicWith("done"))
			t, ok := km.Get(1)
			Expect(ok).To(BeTrue())
			Expect(t.Title).To(Equal("a"))
			Expect(view.Value().Len()).To(Equal(1))
		})

		It("should answer pulls with its contents", func() {
			km.Set(testutils.Task{ID: 3})
			km.Set(testutils.Task{ID: 1})
			late := km.Stream().MaterializeArray(testutils.ByID)
			Expect(late.Len()).To(Equal(2))

			changes := 0
			km.OnChange(func(*KeyedMap[int, testutils.Task]) { changes++ })
			km.RecomputeAll()
			Expect(changes).To(Equal(0))
			Expect(late.Len()).To(Equal(2))
		})
	})
})
