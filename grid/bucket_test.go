package grid_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/jobspec"
)

var _ = Describe("LimitBucket", func() {
	DescribeTable("clamps s away from zero",
		func(in, out jobspec.Bucket) {
			limited := grid.LimitBucket(in, jobspec.YVbar)
			Expect(limited.SMin).To(BeNumerically("~", out.SMin, 1e-12))
			Expect(limited.SMax).To(BeNumerically("~", out.SMax, 1e-12))
		},
		Entry("positive bucket below the floor", jobspec.Bucket{SMin: 0.01, SMax: 0.05}, jobspec.Bucket{SMin: 0.1, SMax: 0.1001}),
		Entry("positive bucket", jobspec.Bucket{SMin: 1, SMax: 10}, jobspec.Bucket{SMin: 1, SMax: 10}),
		Entry("negative bucket above the ceiling", jobspec.Bucket{SMin: -0.05, SMax: 0}, jobspec.Bucket{SMin: -0.1001, SMax: -0.1}),
		Entry("mostly positive straddle", jobspec.Bucket{SMin: -1, SMax: 5}, jobspec.Bucket{SMin: 0.1, SMax: 5}),
		Entry("narrow positive straddle", jobspec.Bucket{SMin: -0.05, SMax: 0.1}, jobspec.Bucket{SMin: 0.1, SMax: 0.2}),
		Entry("mostly negative straddle", jobspec.Bucket{SMin: -5, SMax: 1}, jobspec.Bucket{SMin: -5, SMax: -0.1}),
		Entry("narrow negative straddle", jobspec.Bucket{SMin: -0.1, SMax: 0.05}, jobspec.Bucket{SMin: -0.2, SMax: -0.1}),
	)

	It("keeps f/f0 at or above one", func() {
		limited := grid.LimitBucket(jobspec.Bucket{SMin: 1, SMax: 2, Axis2Min: 0.5, Axis2Max: 0.8}, jobspec.YFF0)
		Expect(limited.Axis2Min).To(Equal(1.0))
		Expect(limited.Axis2Max).To(BeNumerically("~", 1.0001, 1e-12))
	})

	It("leaves vbar alone", func() {
		limited := grid.LimitBucket(jobspec.Bucket{SMin: 1, SMax: 2, Axis2Min: 0.5, Axis2Max: 0.8}, jobspec.YVbar)
		Expect(limited.Axis2Min).To(Equal(0.5))
		Expect(limited.Axis2Max).To(Equal(0.8))
	})

	It("never straddles zero on either axis", func() {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 10000; i++ {
			a, b := rng.Float64()*40-20, rng.Float64()*40-20
			c, d := rng.Float64()*8-4, rng.Float64()*8-4
			in := jobspec.Bucket{SMin: min(a, b), SMax: max(a, b), Axis2Min: min(c, d), Axis2Max: max(c, d)}

			out := grid.LimitBucket(in, jobspec.YFF0)

			Expect(out.SMin).To(BeNumerically("<", out.SMax), "%+v", in)
			positive := out.SMin >= 0.1
			negative := out.SMax <= -0.1
			Expect(positive || negative).To(BeTrue(), "%+v -> %+v", in, out)
			Expect(out.Axis2Min).To(BeNumerically(">=", 1.0))
			Expect(out.Axis2Min).To(BeNumerically("<", out.Axis2Max))
		}
	})
})

var _ = Describe("Overlaps", func() {
	bucket := func(sMin, sMax, kMin, kMax float64) jobspec.Bucket {
		return jobspec.Bucket{SMin: sMin, SMax: sMax, Axis2Min: kMin, Axis2Max: kMax}
	}

	It("reports intersections wider and taller than the tolerance", func() {
		buckets := []jobspec.Bucket{bucket(1, 2, 1, 2), bucket(1.9995, 3, 1.9995, 3)}
		overlaps := grid.Overlaps(buckets)
		Expect(overlaps).To(HaveLen(1))
		Expect(overlaps[0].I).To(Equal(0))
		Expect(overlaps[0].J).To(Equal(1))
		Expect(overlaps[0].Width).To(BeNumerically("~", 0.0005, 1e-12))
		Expect(grid.CheckOverlap(buckets)).To(MatchError("Buckets overlap"))
	})

	It("ignores intersections thinner than the tolerance", func() {
		buckets := []jobspec.Bucket{bucket(1, 2, 1, 2), bucket(2-1e-7, 3, 1, 2)}
		Expect(grid.Overlaps(buckets)).To(BeEmpty())
		Expect(grid.CheckOverlap(buckets)).To(Succeed())
	})

	It("ignores intersections flatter than the tolerance", func() {
		buckets := []jobspec.Bucket{bucket(1, 2, 1, 2), bucket(1, 2, 2-1e-7, 3)}
		Expect(grid.Overlaps(buckets)).To(BeEmpty())
	})

	It("never compares a bucket with itself", func() {
		Expect(grid.Overlaps([]jobspec.Bucket{bucket(1, 2, 1, 2)})).To(BeEmpty())
	})

	It("is symmetric", func() {
		a, b, c := bucket(1, 3, 1, 3), bucket(2, 4, 2, 4), bucket(10, 11, 1, 2)
		forward := grid.Overlaps([]jobspec.Bucket{a, b, c})
		reverse := grid.Overlaps([]jobspec.Bucket{c, b, a})
		Expect(forward).To(HaveLen(1))
		Expect(reverse).To(HaveLen(1))
		Expect(forward[0].Width).To(Equal(reverse[0].Width))
		Expect(forward[0].Height).To(Equal(reverse[0].Height))
	})

	It("finds the extent of a bucket set", func() {
		extent := grid.Extent([]jobspec.Bucket{bucket(1, 2, 1, 4), bucket(5, 8, 2, 3)})
		Expect(extent).To(Equal(bucket(1, 8, 1, 4)))
	})
})
