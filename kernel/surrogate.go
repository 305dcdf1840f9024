/*
Package kernel provides stand-in numeric collaborators for the coordinator: a
surrogate kernel whose variance surface has known minima, and a breeder with
plain genetic operators. They exercise every path of a distributed fit
without simulating sedimentation.
*/
package kernel

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/jobspec"
)

const (
	varianceFloor = 1e-8
	curveSamples  = 16
)

// Surrogate scores a candidate by its distance to the nearest hidden solute,
// measured in units of the bucket that holds the solute.
type Surrogate struct {
	Solutes []Solute
	// Noise scales the deterministic perturbation of Monte Carlo iterations
	// other than the first.
	Noise float64
	// Delay is spent on every evaluation.
	Delay time.Duration
}

type Solute struct {
	S, K           float64
	ScaleS, ScaleK float64
}

// NewSurrogate hides one solute in every bucket, placed by seed.
func NewSurrogate(buckets []jobspec.Bucket, seed int64) *Surrogate {
	rng := rand.New(rand.NewSource(seed))
	solutes := make([]Solute, len(buckets))
	for i, b := range buckets {
		solutes[i] = Solute{
			S:      b.SMin + (0.25+0.5*rng.Float64())*(b.SMax-b.SMin),
			K:      b.Axis2Min + (0.25+0.5*rng.Float64())*(b.Axis2Max-b.Axis2Min),
			ScaleS: math.Max(b.SMax-b.SMin, varianceFloor),
			ScaleK: math.Max(b.Axis2Max-b.Axis2Min, varianceFloor),
		}
	}
	return &Surrogate{Solutes: solutes, Noise: 1e-4}
}

func (s *Surrogate) Evaluate(ctx context.Context, task fit.Task) (fit.Score, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return fit.Score{}, ctx.Err()
		}
	}

	c := task.Candidate
	var distance float64
	if c.Curve() {
		for i := 0; i < curveSamples; i++ {
			t := float64(i) / float64(curveSamples-1)
			distance += s.distance(c.S+t*(c.EndS-c.S), c.K+t*(c.EndK-c.K))
		}
		distance /= curveSamples
	} else {
		distance = s.distance(c.S, c.K)
	}

	variance := distance +
		task.Alpha*1e-3*(c.S*c.S+c.K*c.K) +
		task.Run.Meniscus*task.Run.Meniscus
	if task.Run.MCIteration > 0 {
		variance += s.Noise * perturbation(task.Run.MCIteration, c.Index)
	}
	return fit.Score{Index: c.Index, Variance: math.Max(variance, varianceFloor)}, nil
}

func (s *Surrogate) distance(sv, kv float64) float64 {
	nearest := math.Inf(1)
	for _, solute := range s.Solutes {
		ds := (sv - solute.S) / solute.ScaleS
		dk := (kv - solute.K) / solute.ScaleK
		nearest = math.Min(nearest, ds*ds+dk*dk)
	}
	if math.IsInf(nearest, 1) {
		return 0
	}
	return nearest
}

// perturbation is a reproducible value in [0, 1) for a Monte Carlo
// iteration and candidate.
func perturbation(mc, index int) float64 {
	h := fnv.New64a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(mc) >> (8 * i))
		buf[8+i] = byte(uint64(index) >> (8 * i))
	}
	h.Write(buf[:])
	return float64(h.Sum64()>>11) / float64(1<<53)
}

var _ fit.Kernel = (*Surrogate)(nil)
