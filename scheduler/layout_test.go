package scheduler_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tedsuo/fitmesh/scheduler"
)

var _ = Describe("Assign", func() {
	DescribeTable("effective group count",
		func(pool, requested, mc, groups int) {
			Expect(scheduler.Assign(pool, requested, mc).Groups).To(HaveLen(groups))
		},
		Entry("single Monte Carlo iteration", 16, 4, 1, 1),
		Entry("request above mc+2", 16, 8, 5, 1),
		Entry("request at mc+2", 16, 7, 5, 7),
		Entry("plain request", 16, 4, 10, 4),
		Entry("zero requested", 16, 0, 10, 1),
		Entry("more groups than ranks", 2, 4, 10, 2),
	)

	It("holds the pool invariants for every pool and request", func() {
		for pool := 1; pool <= 40; pool++ {
			for requested := -1; requested <= 12; requested++ {
				for mc := 0; mc <= 10; mc++ {
					layout := scheduler.Assign(pool, requested, mc)
					groups := len(layout.Groups)

					Expect(groups).To(BeNumerically(">=", 1))
					Expect(groups * layout.CoresPerGroup).To(BeNumerically("<=", pool))
					if mc < 2 {
						Expect(groups).To(Equal(1))
					}

					seen := map[int]bool{}
					for _, g := range layout.Groups {
						Expect(g.Ranks).To(HaveLen(layout.CoresPerGroup))
						Expect(g.SubMaster).To(Equal(g.Ranks[0]))
						for _, r := range g.Ranks {
							Expect(seen).NotTo(HaveKey(r))
							seen[r] = true
						}
					}
					for _, r := range layout.Idle {
						Expect(seen).NotTo(HaveKey(r))
						seen[r] = true
					}
					Expect(seen).To(HaveLen(pool))
				}
			}
		}
	})

	Describe("a split pool", func() {
		var layout scheduler.Layout

		BeforeEach(func() {
			layout = scheduler.Assign(10, 3, 7)
		})

		It("gives each group a contiguous block and leaves the remainder idle", func() {
			Expect(layout.CoresPerGroup).To(Equal(3))
			Expect(layout.Groups[1].Ranks).To(Equal([]int{3, 4, 5}))
			Expect(layout.Groups[1].Workers()).To(Equal([]int{4, 5}))
			Expect(layout.Idle).To(Equal([]int{9}))
		})

		It("assigns roles", func() {
			Expect(layout.Role(0)).To(Equal(scheduler.Supervisor))
			Expect(layout.Role(3)).To(Equal(scheduler.SubMaster))
			Expect(layout.Role(7)).To(Equal(scheduler.Worker))
			Expect(layout.Role(9)).To(Equal(scheduler.Idle))
		})

		It("finds the group of a rank", func() {
			group, ok := layout.GroupOf(7)
			Expect(ok).To(BeTrue())
			Expect(group.ID).To(Equal(2))
			_, ok = layout.GroupOf(9)
			Expect(ok).To(BeFalse())
		})

		It("slices the Monte Carlo iterations across groups", func() {
			Expect(layout.Slice(0, 7)).To(Equal([]int{0, 3, 6}))
			Expect(layout.Slice(1, 7)).To(Equal([]int{1, 4}))
			Expect(layout.Slice(2, 7)).To(Equal([]int{2, 5}))
		})
	})
})
