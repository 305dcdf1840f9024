/*
Package grid normalizes the buckets of a job, rejects bucket sets that
overlap, and lays out the candidate models that a grid-style analysis
evaluates.
*/
package grid

import (
	"fmt"

	"github.com/tedsuo/fitmesh/jobspec"
)

// overlapTolerance is the smallest intersection width and height that counts
// as a real overlap. Anything smaller is floating noise from the documents.
const overlapTolerance = 1e-6

// LimitBucket moves a bucket out of the physically forbidden neighborhood of
// zero: s never straddles zero, and f/f0 never drops below 1.
func LimitBucket(b jobspec.Bucket, ytype jobspec.YType) jobspec.Bucket {
	switch {
	case b.SMin > 0:
		b.SMin = max(0.1, b.SMin)
		b.SMax = max(b.SMin+0.0001, b.SMax)
	case b.SMax <= 0:
		b.SMax = min(-0.1, b.SMax)
		b.SMin = min(b.SMax-0.0001, b.SMin)
	case b.SMin+b.SMax >= 0:
		b.SMin = 0.1
		b.SMax = max(0.2, b.SMax)
	default:
		b.SMax = -0.1
		b.SMin = min(-0.2, b.SMin)
	}

	if ytype == jobspec.YFF0 {
		b.Axis2Min = max(1.0, b.Axis2Min)
		b.Axis2Max = max(b.Axis2Min+0.0001, b.Axis2Max)
	}
	return b
}

func LimitBuckets(buckets []jobspec.Bucket, ytype jobspec.YType) []jobspec.Bucket {
	limited := make([]jobspec.Bucket, len(buckets))
	for i, b := range buckets {
		limited[i] = LimitBucket(b, ytype)
	}
	return limited
}

// Overlap describes the intersection of buckets I and J, with I < J.
type Overlap struct {
	I, J   int
	Width  float64
	Height float64
}

func (o Overlap) String() string {
	return fmt.Sprintf("buckets %d and %d intersect (%g x %g)", o.I+1, o.J+1, o.Width, o.Height)
}

// Overlaps tests every pair of buckets and returns the ones whose
// intersection exceeds the tolerance on both axes.
func Overlaps(buckets []jobspec.Bucket) []Overlap {
	overlaps := []Overlap{}
	for i := 0; i < len(buckets); i++ {
		for j := i + 1; j < len(buckets); j++ {
			width, height := intersection(buckets[i], buckets[j])
			if width > overlapTolerance && height > overlapTolerance {
				overlaps = append(overlaps, Overlap{I: i, J: j, Width: width, Height: height})
			}
		}
	}
	return overlaps
}

func intersection(a, b jobspec.Bucket) (float64, float64) {
	width := min(a.SMax, b.SMax) - max(a.SMin, b.SMin)
	height := min(a.Axis2Max, b.Axis2Max) - max(a.Axis2Min, b.Axis2Min)
	return max(width, 0), max(height, 0)
}

func CheckOverlap(buckets []jobspec.Bucket) error {
	if len(Overlaps(buckets)) > 0 {
		return &jobspec.ValidationError{Message: "Buckets overlap"}
	}
	return nil
}

// Extent is the smallest bucket enclosing every bucket.
func Extent(buckets []jobspec.Bucket) jobspec.Bucket {
	if len(buckets) == 0 {
		return jobspec.Bucket{}
	}
	extent := buckets[0]
	for _, b := range buckets[1:] {
		extent.SMin = min(extent.SMin, b.SMin)
		extent.SMax = max(extent.SMax, b.SMax)
		extent.Axis2Min = min(extent.Axis2Min, b.Axis2Min)
		extent.Axis2Max = max(extent.Axis2Max, b.Axis2Max)
	}
	return extent
}
