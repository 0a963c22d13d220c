package materialite

import (
	"cmp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/materialite/internal/testutils"
	"github.com/l7mp/materialite/pkg/multiset"
)

// panicOn returns a pass-through mapping that panics on v.
func panicOn(v int) func(int) int {
	return func(i int) int {
		if i == v {
			panic("unlucky")
		}
		return i
	}
}

var _ = Describe("Stateful operators", func() {
	var (
		m   *Materialite
		ord *Ordering[int]
		set *SortedSet[int]
	)

	BeforeEach(func() {
		m = New(WithLogger(logger))
		ord = NewOrdering("ints", testutils.Ints)
		set = NewSortedSetWithOrdering(m, ord)
	})

	Context("take", func() {
		It("should keep a page and refill it", func() {
			set.AddAll(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
			page := set.Stream().After(3, ord).Take(3, testutils.Ints).Materialize(testutils.Ints)
			Expect(page.Slice()).To(Equal([]int{3, 4, 5}))
			Expect(set.lastScan).To(Equal(8))

			set.Delete(4)
			Expect(page.Slice()).To(Equal([]int{3, 5, 6}))

			set.Add(0)
			set.Add(11)
			Expect(page.Slice()).To(Equal([]int{3, 5, 6}))

			set.Add(4)
			Expect(page.Slice()).To(Equal([]int{3, 4, 5}))

			set.DeleteAll(3, 4, 5, 6, 7, 8, 9)
			Expect(page.Slice()).To(Equal([]int{10, 11}))
		})

		It("should only emit the changes of the window", func() {
			set.AddAll(1, 2, 3, 4)
			var deltas []*multiset.Multiset[int]
			set.Stream().Take(2, testutils.Ints).Debug(func(meta EventMetadata, d *multiset.Multiset[int]) {
				if meta.PullID == 0 && !d.IsEmpty() {
					deltas = append(deltas, d)
				}
			}).Materialize(testutils.Ints)

			set.Add(5)
			Expect(deltas).To(BeEmpty())

			set.Add(0)
			Expect(deltas).To(HaveLen(1))
			Expect(deltas[0].Entries()).To(ConsistOf(
				multiset.Entry[int]{Value: 0, Multiplicity: 1},
				multiset.Entry[int]{Value: 2, Multiplicity: -1}))
		})

		It("should replace a value updated in place", func() {
			tasks := NewSortedSet(m, testutils.ByID)
			tasks.AddAll(testutils.TestTasks...)
			top := tasks.Stream().Take(2, testutils.ByID).Materialize(testutils.ByID)
			Expect(top.Value().Len()).To(Equal(2))

			tasks.Add(testutils.Task{ID: 2, Title: "renamed"})
			t, ok := top.Value().Get(testutils.Task{ID: 2})
			Expect(ok).To(BeTrue())
			Expect(t.Title).To(Equal("renamed"))
			Expect(top.Value().Len()).To(Equal(2))
		})

		It("should rebuild the window on a full recompute", func() {
			set.AddAll(3, 1, 2)
			view := set.Stream().Take(2, testutils.Ints).Materialize(testutils.Ints)
			set.RecomputeAll()
			Expect(view.Slice()).To(Equal([]int{1, 2}))

			set.Delete(1)
			Expect(view.Slice()).To(Equal([]int{2, 3}))
		})

		It("should restore the window when a version is aborted", func() {
			set.AddAll(1, 5, 9)
			view := Map(set.Stream().Take(2, testutils.Ints), panicOn(0)).Materialize(testutils.Ints)
			Expect(view.Slice()).To(Equal([]int{1, 5}))

			Expect(func() { set.Add(0) }).To(PanicWith("unlucky"))
			Expect(view.Slice()).To(Equal([]int{1, 5}))

			set.Delete(1)
			Expect(view.Slice()).To(Equal([]int{5, 9}))
		})

		It("should emit nothing with a zero limit", func() {
			set.AddAll(1, 2)
			view := set.Stream().Take(0, testutils.Ints).Materialize(testutils.Ints)
			set.Add(3)
			Expect(view.Slice()).To(BeEmpty())
		})

		It("should refuse invalid arguments", func() {
			Expect(func() { set.Stream().Take(-1, testutils.Ints) }).To(PanicWith(MatchError(ErrInvalidLimit)))
			Expect(func() { set.Stream().Take(1, nil) }).To(PanicWith(MatchError(ErrInvalidComparator)))
		})
	})

	Context("count and reduce", func() {
		byKey := func(a, b KeyCount[int]) int { return cmp.Compare(a.Key, b.Key) }
		parity := func(i int) int { return i % 2 }

		It("should count values per key", func() {
			set.AddAll(1, 2, 3)
			counts := CountBy(set.Stream(), parity).Materialize(byKey)
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 2}}))

			set.Add(5)
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 3}}))

			set.Delete(2)
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 1, Count: 3}}))
		})

		It("should keep the counts over a full recompute", func() {
			set.AddAll(1, 2, 3)
			counts := CountBy(set.Stream(), parity).Materialize(byKey)
			set.RecomputeAll()
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 2}}))

			set.Add(4)
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 2}, {Key: 1, Count: 2}}))
		})

		It("should restore the counts when a version is aborted", func() {
			set.AddAll(1, 2)
			counts := CountBy(Map(set.Stream(), panicOn(13)), parity).Materialize(byKey)
			Expect(func() {
				_ = m.Tx(func() error {
					set.Add(3)
					set.Add(13)
					return nil
				})
			}).To(PanicWith("unlucky"))
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 1}}))

			set.Add(3)
			Expect(counts.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 2}}))
		})

		It("should restore the counts when a downstream operator aborts", func() {
			set.AddAll(1, 2)
			counts := CountBy(set.Stream(), parity)
			view := Map(counts, func(c KeyCount[int]) KeyCount[int] {
				if c.Count > 2 {
					panic("unlucky")
				}
				return c
			}).Materialize(byKey)

			set.Add(3)
			Expect(func() { set.Add(5) }).To(PanicWith("unlucky"))
			Expect(view.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 2}}))

			set.Delete(1)
			Expect(view.Slice()).To(Equal([]KeyCount[int]{{Key: 0, Count: 1}, {Key: 1, Count: 1}}))
		})

		It("should reduce groups with a custom function", func() {
			set.AddAll(1, 2, 3, 4)
			sums := Reduce(set.Stream(), parity, func(_ int, in *multiset.Multiset[int]) *multiset.Multiset[int] {
				sum := 0
				for v, mult := range in.All() {
					sum += v * mult
				}
				return multiset.FromValues(sum)
			}).Materialize(testutils.Ints)
			Expect(sums.Slice()).To(Equal([]int{4, 6}))

			set.Add(6)
			Expect(sums.Slice()).To(Equal([]int{4, 12}))

			set.DeleteAll(1, 3)
			Expect(sums.Slice()).To(Equal([]int{12}))
		})
	})

	Context("join", func() {
		type flagged = JoinResult[testutils.Task, int]
		byPair := func(a, b flagged) int {
			if c := cmp.Compare(a.Left.ID, b.Left.ID); c != 0 {
				return c
			}
			return cmp.Compare(a.Right, b.Right)
		}
		ids := func(rs []flagged) []int {
			ret := []int{}
			for _, r := range rs {
				ret = append(ret, r.Left.ID)
			}
			return ret
		}

		var (
			tasks *SortedSet[testutils.Task]
			flags *SortedSet[int]
		)

		BeforeEach(func() {
			tasks = NewSortedSet(m, testutils.ByID)
			flags = NewSortedSet(m, testutils.Ints)
		})

		join := func() *Stream[flagged] {
			return Join(tasks.Stream(), flags.Stream(),
				func(t testutils.Task) int { return t.ID }, func(i int) int { return i })
		}

		It("should join the current contents", func() {
			tasks.AddAll(testutils.TestTasks...)
			flags.AddAll(2, 4, 7)
			view := join().Materialize(byPair)
			Expect(ids(view.Slice())).To(Equal([]int{2, 4}))
		})

		It("should maintain the join incrementally", func() {
			view := join().Materialize(byPair)

			tasks.AddAll(testutils.TestTasks...)
			Expect(view.Slice()).To(BeEmpty())

			flags.Add(3)
			Expect(ids(view.Slice())).To(Equal([]int{3}))

			Expect(m.Tx(func() error {
				tasks.Add(testutils.Task{ID: 5, Title: "new"})
				flags.Add(5)
				flags.Delete(3)
				return nil
			})).To(Succeed())
			Expect(ids(view.Slice())).To(Equal([]int{5}))

			tasks.Add(testutils.Task{ID: 5, Title: "renamed"})
			Expect(view.Slice()).To(HaveLen(1))
			Expect(view.Slice()[0].Left.Title).To(Equal("renamed"))

			tasks.Delete(testutils.Task{ID: 5})
			Expect(view.Slice()).To(BeEmpty())
		})

		It("should answer a late view", func() {
			joined := join()
			first := joined.Materialize(byPair)
			tasks.AddAll(testutils.TestTasks...)
			flags.AddAll(1, 2)

			second := joined.Materialize(byPair)
			Expect(ids(second.Slice())).To(Equal([]int{1, 2}))
			Expect(ids(first.Slice())).To(Equal([]int{1, 2}))

			flags.Add(3)
			Expect(ids(second.Slice())).To(Equal([]int{1, 2, 3}))
		})

		It("should restore the indexes when a version is aborted", func() {
			tasks.AddAll(testutils.TestTasks...)
			view := Map(join(), func(r flagged) flagged {
				if r.Right == 13 {
					panic("unlucky")
				}
				return r
			}).Materialize(byPair)

			Expect(func() {
				_ = m.Tx(func() error {
					tasks.Add(testutils.Task{ID: 13})
					flags.AddAll(1, 13)
					return nil
				})
			}).To(PanicWith("unlucky"))
			Expect(view.Slice()).To(BeEmpty())

			flags.Add(1)
			Expect(ids(view.Slice())).To(Equal([]int{1}))
			tasks.Add(testutils.Task{ID: 13})
			Expect(ids(view.Slice())).To(Equal([]int{1}))
		})

		It("should refuse streams of different coordinators", func() {
			other := NewSortedSet(New(), testutils.Ints)
			Expect(func() {
				Join(tasks.Stream(), other.Stream(),
					func(t testutils.Task) int { return t.ID }, func(i int) int { return i })
			}).To(PanicWith(BeAssignableToTypeOf(&ConsistencyError{})))
		})
	})
})
