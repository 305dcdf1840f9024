package grid

import (
	"fmt"
	"math"

	"github.com/tedsuo/fitmesh/jobspec"
)

// SizeEstimator prices the simulation of a single model for a set of
// datasets. CheckGridSize multiplies it by the number of candidate models.
type SizeEstimator interface {
	ModelFootprint(datasets []*jobspec.DataSet, sMax float64) int64
	Limit() int64
}

// FootprintEstimator assumes one float64 per radial point and scan, with the
// radial grid refined for every ReferenceS of the largest s value.
type FootprintEstimator struct {
	LimitBytes int64
	ReferenceS float64
}

func NewFootprintEstimator(limitBytes int64) FootprintEstimator {
	return FootprintEstimator{LimitBytes: limitBytes, ReferenceS: 10}
}

func (e FootprintEstimator) ModelFootprint(datasets []*jobspec.DataSet, sMax float64) int64 {
	refinement := 1.0
	if e.ReferenceS > 0 {
		refinement = math.Max(1, math.Ceil(math.Abs(sMax)/e.ReferenceS))
	}

	var total int64
	for _, ds := range datasets {
		points := int64(float64(ds.SimPoints) * refinement)
		total += points * int64(ds.Scans()) * 8
	}
	return total
}

func (e FootprintEstimator) Limit() int64 {
	return e.LimitBytes
}

// CheckGridSize fails when models candidate simulations of the datasets do
// not fit in the estimator's limit. A limit of zero disables the check.
func CheckGridSize(est SizeEstimator, datasets []*jobspec.DataSet, buckets []jobspec.Bucket, models int) error {
	limit := est.Limit()
	if limit <= 0 {
		return nil
	}

	sMax := 0.0
	for _, b := range buckets {
		sMax = math.Max(sMax, math.Abs(b.SMax))
	}

	required := est.ModelFootprint(datasets, sMax) * int64(models)
	if required > limit {
		return &jobspec.ValidationError{
			Message: fmt.Sprintf("Grid size too large: %d models need %d bytes, limit is %d", models, required, limit),
		}
	}
	return nil
}
