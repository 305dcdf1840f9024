package kernel

import (
	"math"
	"math/rand"
	"sync"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/jobspec"
)

// mutationStep is the standard deviation of a mutation, as a share of the
// bucket's extent.
const mutationStep = 0.05

type Breeder struct {
	buckets   []jobspec.Bucket
	crossover float64
	mutation  float64
	elitism   int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBreeder reads the crossover and mutation rates (percent) and the elitism
// count from params.
func NewBreeder(buckets []jobspec.Bucket, params jobspec.Parameters) *Breeder {
	return &Breeder{
		buckets:   buckets,
		crossover: float64(params.Crossover) / 100,
		mutation:  float64(params.Mutation) / 100,
		elitism:   params.Elitism,
		rng:       rand.New(rand.NewSource(params.Seed)),
	}
}

func (b *Breeder) Seed(population int) []grid.Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	candidates := make([]grid.Candidate, population)
	for i := range candidates {
		bucket := b.rng.Intn(len(b.buckets))
		extent := b.buckets[bucket]
		candidates[i] = grid.Candidate{
			Bucket: bucket,
			S:      extent.SMin + b.rng.Float64()*(extent.SMax-extent.SMin),
			K:      extent.Axis2Min + b.rng.Float64()*(extent.Axis2Max-extent.Axis2Min),
		}
	}
	return candidates
}

// Breed keeps the elite unchanged and fills the rest of the generation with
// children of tournament-selected parents.
func (b *Breeder) Breed(ranked []grid.Candidate, population int) []grid.Candidate {
	if len(ranked) == 0 {
		return b.Seed(population)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]grid.Candidate, 0, population)
	for i := 0; i < min(b.elitism, len(ranked), population); i++ {
		next = append(next, ranked[i])
	}
	for len(next) < population {
		child := b.tournament(ranked)
		if b.rng.Float64() < b.crossover {
			other := b.tournament(ranked)
			if other.Bucket == child.Bucket {
				child.S = (child.S + other.S) / 2
				child.K = (child.K + other.K) / 2
			}
		}
		if b.rng.Float64() < b.mutation {
			child = b.mutate(child)
		}
		next = append(next, child)
	}
	return next
}

// tournament returns the better of two random members; ranked is best first.
func (b *Breeder) tournament(ranked []grid.Candidate) grid.Candidate {
	i, j := b.rng.Intn(len(ranked)), b.rng.Intn(len(ranked))
	return ranked[min(i, j)]
}

func (b *Breeder) mutate(c grid.Candidate) grid.Candidate {
	extent := b.buckets[c.Bucket]
	c.S = clamp(c.S+b.rng.NormFloat64()*mutationStep*(extent.SMax-extent.SMin), extent.SMin, extent.SMax)
	c.K = clamp(c.K+b.rng.NormFloat64()*mutationStep*(extent.Axis2Max-extent.Axis2Min), extent.Axis2Min, extent.Axis2Max)
	return c
}

func clamp(x, low, high float64) float64 {
	return math.Max(low, math.Min(high, x))
}

var _ fit.Breeder = (*Breeder)(nil)
