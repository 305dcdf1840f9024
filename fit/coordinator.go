package fit

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/jobspec"
	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/metrics"
	"github.com/tedsuo/fitmesh/scheduler"
)

const (
	// narrowFactor is the share of the second axis a PCSA iteration keeps
	// around the best curve of the previous one.
	narrowFactor = 0.5
	stopTimeout  = 5 * time.Second
)

type Config struct {
	Parameters jobspec.Parameters
	Buckets    []jobspec.Bucket
	Group      scheduler.Group
	// Slice lists the Monte Carlo iterations this group runs.
	Slice []int
	// Start is when the job started; the wall-time budget counts from it.
	Start     time.Time
	BatchSize int
}

type Deps struct {
	Kernel    Kernel
	Breeder   Breeder
	Transport mesh.Transport
	Mailbox   *mesh.Mailbox
	Reporter  Reporter
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Coordinator drives the fit of one master group from its sub-master. It is
// the only writer of the group's State; other goroutines read published
// snapshots and may call StopFit.
type Coordinator struct {
	config Config
	deps   Deps
	logger logrus.FieldLogger

	state          State
	prescanResults map[float64]RunResult

	snapshot atomic.Pointer[State]
	stop     atomic.Bool
	epoch    atomic.Int64
}

func NewCoordinator(config Config, deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if config.Start.IsZero() {
		config.Start = deps.Now()
	}
	c := &Coordinator{
		config: config,
		deps:   deps,
		logger: deps.Logger.WithFields(logrus.Fields{
			"component": "fit",
			"group":     config.Group.ID,
			"rank":      config.Group.SubMaster,
		}),
		state: NewState(config.Group.ID),
	}
	c.publish()
	return c
}

func (c *Coordinator) Group() int {
	return c.config.Group.ID
}

// Snapshot returns the last published state of the group.
func (c *Coordinator) Snapshot() State {
	s := *c.snapshot.Load()
	s.Stopped = s.Stopped || c.stop.Load()
	return s
}

func (c *Coordinator) publish() {
	s := c.state.Snapshot()
	c.snapshot.Store(&s)
}

// Configure replaces the fit configuration between fits.
func (c *Coordinator) Configure(params jobspec.Parameters, buckets []jobspec.Bucket) error {
	if c.state.Stage == StageFitting || c.state.Stage.Terminal() {
		return errors.Errorf("group %d: cannot reconfigure a fit in stage %s", c.config.Group.ID, c.state.Stage)
	}
	c.config.Parameters = params
	c.config.Buckets = buckets
	return nil
}

func (c *Coordinator) fingerprint() Fingerprint {
	return NewFingerprint(c.config.Parameters, grid.Extent(c.config.Buckets))
}

func (c *Coordinator) begin(stage Stage, run Run, alpha float64) error {
	if err := c.state.Transition(stage); err != nil {
		return err
	}
	c.epoch.Add(1)
	c.stop.Store(false)
	c.state.Reset()
	c.state.Alpha = alpha
	c.state.MCIteration = run.MCIteration
	c.state.MeniscusRun = run.MeniscusPoint
	c.publish()
	return nil
}

// StartFit runs a fresh fit. A fit interrupted by StopFit returns what it
// found so far, marked Stopped.
func (c *Coordinator) StartFit(ctx context.Context, run Run, alpha float64) (RunResult, error) {
	if err := c.begin(StageFitting, run, alpha); err != nil {
		return RunResult{}, err
	}
	return c.iterate(ctx, run, 0, c.iterationLimit(), nil)
}

// Prescan evaluates the first iteration once per regularization value and
// picks the alpha the fit continues with. The fingerprint of the
// configuration is captured before the first evaluation.
func (c *Coordinator) Prescan(ctx context.Context, run Run, alphas []float64) (float64, error) {
	if len(alphas) == 0 {
		return 0, errors.New("prescan needs at least one alpha")
	}
	if err := c.begin(StagePrescan, run, alphas[0]); err != nil {
		return 0, err
	}
	c.state.Fingerprint = c.fingerprint()
	c.state.PrescanDone = false
	c.prescanResults = map[float64]RunResult{}

	for _, alpha := range alphas {
		c.state.Reset()
		c.state.Alpha = alpha
		result, err := c.iterate(ctx, run, 0, 1, nil)
		if err != nil {
			return 0, err
		}
		if result.Stopped {
			return 0, ErrStopped
		}
		c.prescanResults[alpha] = result
	}

	alpha := chooseAlpha(alphas, c.prescanResults, c.config.Parameters.ConvergenceRatio)
	c.state.PrescanDone = true
	c.state.Alpha = alpha
	c.publish()

	c.logger.WithField("alpha", alpha).Info("regularization scan done")
	c.deps.Reporter.Send(fmt.Sprintf("Regularization scan of %d values selected alpha %g", len(alphas), alpha), true)
	return alpha, nil
}

// chooseAlpha picks the largest alpha whose variance stays within ratio of
// the smallest variance of the scan.
func chooseAlpha(alphas []float64, results map[float64]RunResult, ratio float64) float64 {
	best := math.Inf(1)
	for _, alpha := range alphas {
		best = math.Min(best, results[alpha].Variance)
	}
	chosen := alphas[0]
	for _, alpha := range alphas {
		if results[alpha].Variance <= best*(1+ratio) && alpha >= chosen {
			chosen = alpha
		}
	}
	return chosen
}

// ResumeFit continues the prescan result of alpha. When no prescan finished,
// or the fingerprint differs from the one captured when the prescan began, it
// starts a fresh fit instead and reports resumed as false.
func (c *Coordinator) ResumeFit(ctx context.Context, run Run, alpha float64) (RunResult, bool, error) {
	seed, scanned := c.prescanResults[alpha]
	if !c.state.PrescanDone || !scanned || c.fingerprint() != c.state.Fingerprint {
		c.logger.WithField("alpha", alpha).Info("no matching prescan, starting a fresh fit")
		c.state.PrescanDone = false
		result, err := c.StartFit(ctx, run, alpha)
		return result, false, err
	}

	if err := c.begin(StageFitting, run, alpha); err != nil {
		return RunResult{}, false, err
	}
	if len(seed.Model) > 0 {
		c.state.Observe(Score{Index: seed.Best.Index, Variance: seed.Variance}, seed.Best.Candidate)
	}
	result, err := c.iterate(ctx, run, 1, c.iterationLimit(), seed.Model)
	result.Resumed = true
	return result, true, err
}

// StopFit asks the running fit to stop after the candidates in flight. It is
// safe to call from any goroutine.
func (c *Coordinator) StopFit() {
	c.stop.Store(true)
	c.signalStop(c.epoch.Load())
}

// Complete marks the group's results as handed over.
func (c *Coordinator) Complete() error {
	err := c.state.Transition(StageDone)
	c.publish()
	return err
}

func (c *Coordinator) Abandon() {
	if c.state.Transition(StageAborted) == nil {
		c.publish()
	}
}

// Run fits every Monte Carlo iteration of the group's slice at every
// meniscus point, preceded by a regularization scan when one is configured.
func (c *Coordinator) Run(ctx context.Context) (GroupResult, error) {
	params := c.config.Parameters
	slice := append([]int{}, c.config.Slice...)
	result := GroupResult{Group: c.config.Group.ID, PlannedMC: len(slice)}
	points := max(1, params.MeniscusPoints)

	alpha := 0.0
	if params.RegularizationOption == jobspec.RegularizationFixed {
		alpha = params.Alpha
	}
	resume := false
	if alphas := params.Alphas(); len(alphas) > 0 && len(slice) > 0 {
		chosen, err := c.Prescan(ctx, Run{MCIteration: slice[0]}, alphas)
		if errors.Is(err, ErrStopped) {
			result.Stopped = true
			return result, c.finish()
		}
		if err != nil {
			return result, err
		}
		alpha, resume = chosen, true
	}

	for done := 0; done < len(slice); done++ {
		for p := 0; p < points; p++ {
			run := Run{MCIteration: slice[done], MeniscusPoint: p, Meniscus: c.meniscusOffset(p)}

			var runResult RunResult
			var err error
			if resume {
				runResult, _, err = c.ResumeFit(ctx, run, alpha)
				resume = false
			} else {
				runResult, err = c.StartFit(ctx, run, alpha)
			}
			if err != nil {
				return result, err
			}

			result.Runs = append(result.Runs, runResult)
			c.deps.Metrics.RecordFitRun(c.config.Group.ID)
			c.deps.Reporter.Send(fmt.Sprintf("Run %s finished: RMSD %.6e after %d iteration(s)",
				run.ID(), runResult.RMSD, runResult.Iterations), true)

			if runResult.Stopped {
				result.Stopped = true
				return result, c.finish()
			}
		}
		result.CompletedMC++

		if keep := c.budget(done+1, len(slice)); keep < len(slice) {
			c.logger.WithFields(logrus.Fields{"planned": len(slice), "kept": keep}).Warn("reducing Monte Carlo iterations to fit the wall-time limit")
			c.deps.Reporter.Send(fmt.Sprintf("Monte Carlo iterations reduced from %d to %d to fit the wall-time limit", len(slice), keep), true)
			c.deps.Metrics.RecordMCReduction()
			slice = slice[:keep]
			result.Reduced = true
		}
	}
	return result, c.finish()
}

func (c *Coordinator) finish() error {
	err := c.state.Transition(StagePackaging)
	c.publish()
	return err
}

// budget returns how many Monte Carlo iterations of planned still fit in the
// wall-time limit, projecting from the pace of the completed ones.
func (c *Coordinator) budget(completed, planned int) int {
	limit := time.Duration(c.config.Parameters.MaxWallTime) * time.Minute
	if limit <= 0 || completed <= 0 || completed >= planned {
		return planned
	}
	elapsed := c.deps.Now().Sub(c.config.Start)
	perIteration := elapsed / time.Duration(completed)
	if perIteration <= 0 {
		return planned
	}
	if elapsed+perIteration*time.Duration(planned-completed) <= limit {
		return planned
	}
	affordable := int((limit - elapsed) / perIteration)
	return completed + max(0, affordable)
}

func (c *Coordinator) meniscusOffset(point int) float64 {
	params := c.config.Parameters
	if params.MeniscusPoints < 2 {
		return 0
	}
	step := params.MeniscusRange / float64(params.MeniscusPoints-1)
	return -params.MeniscusRange/2 + float64(point)*step
}

func (c *Coordinator) iterationLimit() int {
	if c.config.Parameters.Analysis.PopulationStyle() {
		return max(1, c.config.Parameters.Generations)
	}
	return max(1, c.config.Parameters.MaxIterations)
}

// iterate runs iterations [from, limit) of a fit, stopping early once the
// relative improvement of varimin drops to the convergence ratio.
func (c *Coordinator) iterate(ctx context.Context, run Run, from, limit int, ranked []Solute) (RunResult, error) {
	group := c.config.Group.ID
	region := grid.Extent(c.config.Buckets)
	model := mergeModel(nil, ranked)
	converged := false

	for it := from; it < limit && !converged; it++ {
		if c.stop.Load() {
			break
		}
		c.state.Iteration = it
		previous := c.state.Varimin

		candidates, err := c.candidates(it, ranked, &region)
		if err != nil {
			return RunResult{}, err
		}
		tasks := make([]Task, len(candidates))
		for i, candidate := range candidates {
			tasks[i] = Task{Run: run, Iteration: it, Alpha: c.state.Alpha, Candidate: candidate}
		}

		solutes := make([]Solute, 0, len(candidates))
		err = c.evaluate(ctx, tasks, func(scores []Score) {
			c.state.SetCount++
			for _, score := range scores {
				if score.Index < 0 || score.Index >= len(candidates) {
					continue
				}
				candidate := candidates[score.Index]
				c.state.Observe(score, candidate)
				solutes = append(solutes, Solute{Candidate: candidate, Variance: score.Variance})
			}
			c.deps.Metrics.RecordCandidates(group, len(scores))
			if c.state.BestIndex >= 0 {
				c.deps.Metrics.RecordBest(group, c.state.Varimin, c.state.RMSD)
			}
			c.publish()
		})
		if errors.Is(err, ErrStopped) {
			break
		}
		if err != nil {
			return RunResult{}, err
		}

		rank(solutes)
		ranked = solutes
		model = mergeModel(model, solutes)
		c.deps.Metrics.RecordIteration(group)
		c.deps.Reporter.Send(fmt.Sprintf("MC %d, meniscus %d, iteration %d: RMSD %.6e",
			run.MCIteration+1, run.MeniscusPoint+1, it+1, c.state.RMSD), false)

		converged = improvementBelow(previous, c.state.Varimin, c.config.Parameters.ConvergenceRatio)
	}

	c.state.Stopped = c.stop.Load()
	result := newRunResult(c.state, run, model)
	result.Converged = converged

	var err error
	switch {
	case c.state.Stopped:
		err = c.state.Transition(StageStopped)
	case c.state.Stage == StageFitting:
		err = c.state.Transition(StageConverged)
	}
	c.publish()
	return result, err
}

func improvementBelow(previous, current, ratio float64) bool {
	if math.IsInf(previous, 0) || previous <= 0 {
		return false
	}
	return (previous-current)/previous <= ratio
}

func (c *Coordinator) candidates(it int, ranked []Solute, region *jobspec.Bucket) ([]grid.Candidate, error) {
	params := c.config.Parameters

	var candidates []grid.Candidate
	switch {
	case params.Analysis.PopulationStyle():
		if c.deps.Breeder == nil {
			return nil, errors.Errorf("%s analysis needs a breeder", params.Analysis)
		}
		if len(ranked) == 0 {
			candidates = c.deps.Breeder.Seed(max(1, params.Population))
		} else {
			candidates = c.deps.Breeder.Breed(candidatesOf(ranked), max(1, params.Population))
		}
	case params.Analysis == jobspec.PCSA:
		if it > 0 && c.state.BestIndex >= 0 {
			*region = grid.Narrow(*region, c.state.Best, narrowFactor)
		}
		candidates = grid.Curves(*region, params.VariationsCount)
	default:
		offset := float64(it) / float64(c.iterationLimit())
		candidates = grid.Lattice(c.config.Buckets, params.SGridPoints, params.Axis2GridPoints, offset)
	}

	for i := range candidates {
		candidates[i].Index = i
	}
	return candidates, nil
}
