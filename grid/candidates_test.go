package grid_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/jobspec"
)

var _ = Describe("Candidates", func() {
	buckets := []jobspec.Bucket{
		{SMin: 1, SMax: 2, Axis2Min: 1, Axis2Max: 2},
		{SMin: 3, SMax: 5, Axis2Min: 1, Axis2Max: 3},
	}

	Describe("Lattice", func() {
		It("indexes every point of every bucket", func() {
			candidates := grid.Lattice(buckets, 4, 2, 0.5)
			Expect(candidates).To(HaveLen(16))
			for i, c := range candidates {
				Expect(c.Index).To(Equal(i))
				b := buckets[c.Bucket]
				Expect(c.S).To(BeNumerically(">=", b.SMin))
				Expect(c.S).To(BeNumerically("<", b.SMax))
				Expect(c.K).To(BeNumerically(">=", b.Axis2Min))
				Expect(c.K).To(BeNumerically("<", b.Axis2Max))
				Expect(c.Curve()).To(BeFalse())
			}
		})

		It("shifts the lattice with the offset", func() {
			first := grid.Lattice(buckets[:1], 2, 2, 0.5)
			second := grid.Lattice(buckets[:1], 2, 2, 0.25)
			Expect(first[0].S).To(BeNumerically("~", 1.25, 1e-12))
			Expect(second[0].S).To(BeNumerically("~", 1.125, 1e-12))
		})
	})

	Describe("Curves", func() {
		It("pairs every start with every end", func() {
			curves := grid.Curves(buckets[1], 3)
			Expect(curves).To(HaveLen(9))
			Expect(curves[0]).To(Equal(grid.Candidate{Index: 0, S: 3, K: 1, EndS: 5, EndK: 1}))
			Expect(curves[8]).To(Equal(grid.Candidate{Index: 8, S: 3, K: 3, EndS: 5, EndK: 3}))
			Expect(curves[5].Curve()).To(BeTrue())
		})

		It("narrows the region around a curve", func() {
			narrowed := grid.Narrow(buckets[1], grid.Candidate{K: 2, EndK: 2.5}, 0.5)
			Expect(narrowed.Axis2Min).To(BeNumerically("~", 1.5, 1e-12))
			Expect(narrowed.Axis2Max).To(BeNumerically("~", 3.0, 1e-12))
			Expect(narrowed.SMin).To(Equal(3.0))
		})
	})
})

var _ = Describe("CheckGridSize", func() {
	datasets := []*jobspec.DataSet{{SimPoints: 100, Speedsteps: []jobspec.Speedstep{{Scans: 10}}}}
	buckets := []jobspec.Bucket{{SMin: 1, SMax: 25, Axis2Min: 1, Axis2Max: 4}}

	It("refines the radial grid for large s", func() {
		est := grid.NewFootprintEstimator(0)
		Expect(est.ModelFootprint(datasets, 25)).To(Equal(int64(300 * 10 * 8)))
		Expect(est.ModelFootprint(datasets, 5)).To(Equal(int64(100 * 10 * 8)))
	})

	It("accepts a grid within the limit", func() {
		Expect(grid.CheckGridSize(grid.NewFootprintEstimator(24000*100), datasets, buckets, 100)).To(Succeed())
	})

	It("rejects a grid over the limit", func() {
		err := grid.CheckGridSize(grid.NewFootprintEstimator(24000*100), datasets, buckets, 101)
		var validationErr *jobspec.ValidationError
		Expect(err).To(BeAssignableToTypeOf(validationErr))
		Expect(err.Error()).To(HavePrefix("Grid size too large"))
	})

	It("is disabled without a limit", func() {
		Expect(grid.CheckGridSize(grid.NewFootprintEstimator(0), datasets, buckets, 1e9)).To(Succeed())
	})
})
