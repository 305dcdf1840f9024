package grid

import (
	"math"

	"github.com/tedsuo/fitmesh/jobspec"
)

// Candidate is one model the kernel scores. Point models (2DSA, GA) use S and
// K; parametric curves (PCSA) run from (S, K) to (EndS, EndK).
type Candidate struct {
	Index  int     `json:"index"`
	Bucket int     `json:"bucket"`
	S      float64 `json:"s"`
	K      float64 `json:"k"`
	EndS   float64 `json:"end_s,omitempty"`
	EndK   float64 `json:"end_k,omitempty"`
}

func (c Candidate) Curve() bool {
	return c.EndS != 0 || c.EndK != 0
}

// Lattice places sPoints x kPoints models in every bucket. The offset, in
// [0, 1), shifts the lattice within its cells so that successive iterations
// sample different points of the same buckets.
func Lattice(buckets []jobspec.Bucket, sPoints, kPoints int, offset float64) []Candidate {
	sPoints = max(sPoints, 1)
	kPoints = max(kPoints, 1)
	offset = offset - math.Floor(offset)

	candidates := make([]Candidate, 0, len(buckets)*sPoints*kPoints)
	for b, bucket := range buckets {
		ds := (bucket.SMax - bucket.SMin) / float64(sPoints)
		dk := (bucket.Axis2Max - bucket.Axis2Min) / float64(kPoints)
		for i := 0; i < sPoints; i++ {
			for j := 0; j < kPoints; j++ {
				candidates = append(candidates, Candidate{
					Index:  len(candidates),
					Bucket: b,
					S:      bucket.SMin + (float64(i)+offset)*ds,
					K:      bucket.Axis2Min + (float64(j)+offset)*dk,
				})
			}
		}
	}
	return candidates
}

// Curves enumerates every pairing of start and end second-axis values across
// the s range of region, variations values at each end.
func Curves(region jobspec.Bucket, variations int) []Candidate {
	variations = max(variations, 1)
	values := make([]float64, variations)
	if variations == 1 {
		values[0] = (region.Axis2Min + region.Axis2Max) / 2
	} else {
		step := (region.Axis2Max - region.Axis2Min) / float64(variations-1)
		for i := range values {
			values[i] = region.Axis2Min + float64(i)*step
		}
	}

	candidates := make([]Candidate, 0, variations*variations)
	for _, start := range values {
		for _, end := range values {
			candidates = append(candidates, Candidate{
				Index: len(candidates),
				S:     region.SMin,
				K:     start,
				EndS:  region.SMax,
				EndK:  end,
			})
		}
	}
	return candidates
}

// Narrow shrinks the second axis of region around a curve, keeping factor of
// its height and staying inside the original region.
func Narrow(region jobspec.Bucket, best Candidate, factor float64) jobspec.Bucket {
	half := (region.Axis2Max - region.Axis2Min) * factor / 2
	low := math.Min(best.K, best.EndK) - half
	high := math.Max(best.K, best.EndK) + half
	narrowed := region
	narrowed.Axis2Min = math.Max(region.Axis2Min, low)
	narrowed.Axis2Max = math.Min(region.Axis2Max, high)
	return narrowed
}
