package fit

import (
	"math"
	"sort"

	"github.com/tedsuo/fitmesh/grid"
)

// modelSize is the number of best candidates kept as the model of a run.
const modelSize = 10

type Solute struct {
	grid.Candidate
	Variance float64 `json:"variance"`
}

type RunResult struct {
	Group      int      `json:"group"`
	Run        Run      `json:"run"`
	Alpha      float64  `json:"alpha"`
	Iterations int      `json:"iterations"`
	Variance   float64  `json:"variance"`
	RMSD       float64  `json:"rmsd"`
	Best       Solute   `json:"best"`
	Model      []Solute `json:"model"`
	Converged  bool     `json:"converged"`
	Stopped    bool     `json:"stopped"`
	Resumed    bool     `json:"resumed"`
}

// GroupResult is what a sub-master hands to the supervisor once its slice of
// Monte Carlo iterations is done.
type GroupResult struct {
	Group       int         `json:"group"`
	Runs        []RunResult `json:"runs"`
	PlannedMC   int         `json:"planned_mc"`
	CompletedMC int         `json:"completed_mc"`
	Reduced     bool        `json:"reduced"`
	Stopped     bool        `json:"stopped"`
}

// rank sorts solutes best first, by index among equal variances.
func rank(solutes []Solute) {
	sort.SliceStable(solutes, func(i, j int) bool {
		if solutes[i].Variance != solutes[j].Variance {
			return solutes[i].Variance < solutes[j].Variance
		}
		return solutes[i].Index < solutes[j].Index
	})
}

func candidatesOf(solutes []Solute) []grid.Candidate {
	candidates := make([]grid.Candidate, len(solutes))
	for i, s := range solutes {
		candidates[i] = s.Candidate
	}
	return candidates
}

// mergeModel keeps the best modelSize distinct solutes of model and ranked.
func mergeModel(model, ranked []Solute) []Solute {
	type point struct{ s, k, endS, endK float64 }
	seen := map[point]bool{}
	merged := make([]Solute, 0, len(model)+len(ranked))
	for _, solute := range append(append([]Solute{}, model...), ranked...) {
		p := point{solute.S, solute.K, solute.EndS, solute.EndK}
		if seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, solute)
	}
	rank(merged)
	return merged[:min(modelSize, len(merged))]
}

func newRunResult(state State, run Run, model []Solute) RunResult {
	result := RunResult{
		Group:      state.Group,
		Run:        run,
		Alpha:      state.Alpha,
		Iterations: state.Iteration + 1,
		Stopped:    state.Stopped,
	}
	if !math.IsInf(state.Varimin, 0) {
		result.Variance = state.Varimin
		result.RMSD = state.RMSD
		result.Best = Solute{Candidate: state.Best, Variance: state.Varimin}
	}
	result.Model = model
	return result
}

// Merge collects the runs of every group, ordered by Monte Carlo iteration
// and meniscus point.
func Merge(groups []GroupResult) []RunResult {
	runs := []RunResult{}
	for _, g := range groups {
		runs = append(runs, g.Runs...)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].Run.MCIteration != runs[j].Run.MCIteration {
			return runs[i].Run.MCIteration < runs[j].Run.MCIteration
		}
		return runs[i].Run.MeniscusPoint < runs[j].Run.MeniscusPoint
	})
	return runs
}
