package fit

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"

	"github.com/tedsuo/fitmesh/grid"
)

type Stage string

const (
	StageInit      Stage = "INIT"
	StagePrescan   Stage = "PRESCAN"
	StageFitting   Stage = "FITTING"
	StageStopped   Stage = "STOPPED"
	StageConverged Stage = "CONVERGED"
	StagePackaging Stage = "PACKAGING"
	StageDone      Stage = "DONE"
	StageAborted   Stage = "ABORTED"
)

var transitions = map[Stage][]Stage{
	StageInit:      {StagePrescan, StageFitting, StagePackaging},
	StagePrescan:   {StageFitting, StageStopped, StagePackaging},
	StageFitting:   {StageStopped, StageConverged},
	StageStopped:   {StageFitting, StagePrescan, StagePackaging},
	StageConverged: {StageFitting, StagePrescan, StagePackaging},
	StagePackaging: {StageDone},
}

func (s Stage) Terminal() bool {
	return s == StageDone || s == StageAborted
}

func (s Stage) CanTransition(to Stage) bool {
	if to == StageAborted {
		return !s.Terminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// State is the FitState of one master group.
type State struct {
	Group int   `json:"group"`
	Stage Stage `json:"stage"`

	SetCount    int `json:"set_count"`
	Iteration   int `json:"iteration"`
	MCIteration int `json:"mc_iteration"`
	MeniscusRun int `json:"meniscus_run"`

	Varimin   float64        `json:"varimin"`
	RMSD      float64        `json:"rmsd"`
	BestIndex int            `json:"best_index"`
	Best      grid.Candidate `json:"best"`
	Alpha     float64        `json:"alpha"`

	Fingerprint Fingerprint `json:"fingerprint"`
	PrescanDone bool        `json:"prescan_done"`
	Stopped     bool        `json:"stopped"`
}

func NewState(group int) State {
	s := State{Group: group, Stage: StageInit}
	s.Reset()
	return s
}

// Reset clears the best model and the counters of the current stage.
func (s *State) Reset() {
	s.SetCount = 0
	s.Iteration = 0
	s.Varimin = math.Inf(1)
	s.RMSD = 0
	s.BestIndex = -1
	s.Best = grid.Candidate{}
	s.Stopped = false
}

// Observe records a score and reports whether it became the best. Only a
// strictly smaller variance replaces varimin.
func (s *State) Observe(score Score, candidate grid.Candidate) bool {
	if !(score.Variance < s.Varimin) {
		return false
	}
	s.Varimin = score.Variance
	s.RMSD = math.Sqrt(score.Variance)
	s.BestIndex = score.Index
	s.Best = candidate
	return true
}

func (s *State) Transition(to Stage) error {
	if !s.Stage.CanTransition(to) {
		return errors.Errorf("group %d: invalid fit stage transition %s -> %s", s.Group, s.Stage, to)
	}
	s.Stage = to
	return nil
}

// Snapshot is a copy safe to marshal: an untouched varimin reads as zero.
func (s State) Snapshot() State {
	if math.IsInf(s.Varimin, 0) {
		s.Varimin = 0
	}
	return s
}

// MarshalJSON encodes the snapshot, so an untouched varimin never reaches
// the encoder as infinity.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	return json.Marshal(plain(s.Snapshot()))
}
