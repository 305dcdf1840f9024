package fit

import (
	"context"
	"fmt"

	"github.com/tedsuo/fitmesh/grid"
)

// Run identifies one complete fit: a Monte Carlo iteration at one meniscus
// position.
type Run struct {
	MCIteration   int     `json:"mc_iteration"`
	MeniscusPoint int     `json:"meniscus_point"`
	Meniscus      float64 `json:"meniscus"`
}

func (r Run) ID() string {
	return fmt.Sprintf("mc%03d_mp%02d", r.MCIteration+1, r.MeniscusPoint+1)
}

type Task struct {
	Run       Run            `json:"run"`
	Iteration int            `json:"iteration"`
	Alpha     float64        `json:"alpha"`
	Candidate grid.Candidate `json:"candidate"`
}

type Score struct {
	Index    int     `json:"index"`
	Variance float64 `json:"variance"`
}

// Kernel simulates a candidate model against the datasets and returns the
// variance of its residuals. Ranks hosted by one process share a kernel, so
// Evaluate must be safe for concurrent use.
type Kernel interface {
	Evaluate(ctx context.Context, task Task) (Score, error)
}

// Breeder supplies the genetic operators of population-style analyses.
type Breeder interface {
	Seed(population int) []grid.Candidate
	// Breed builds the next generation from the current one, ranked best first.
	Breed(ranked []grid.Candidate, population int) []grid.Candidate
}

type Reporter interface {
	Send(text string, append bool)
}
