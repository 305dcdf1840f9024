package fitmesh

import (
	"path/filepath"

	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/jobspec"
	"github.com/tedsuo/fitmesh/scheduler"
)

// Plan is a parsed and validated job together with the layout of its pool.
type Plan struct {
	Job        *jobspec.Job
	Layout     scheduler.Layout
	Candidates int
}

// Prepare parses and validates a job for a pool of poolSize ranks. Dataset
// files are looked up in dataDir, or next to the experiment document when
// dataDir is empty. The returned plan carries the parsed job whenever parsing
// succeeded, even if validation failed.
func Prepare(jobDoc, experimentDoc, dataDir string, poolSize int, estimator grid.SizeEstimator) (*Plan, error) {
	job, err := jobspec.Parse(jobDoc, experimentDoc)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Job: job}

	if dataDir == "" {
		dataDir = filepath.Dir(experimentDoc)
	}
	for _, ds := range job.DataSets {
		if err := ds.VerifyFiles(dataDir); err != nil {
			return plan, err
		}
		ds.FillCorrections()
	}

	job.Buckets = grid.LimitBuckets(job.Buckets, job.YType)
	if err := grid.CheckOverlap(job.Buckets); err != nil {
		return plan, err
	}
	if err := fit.ValidateOptions(job.Parameters, len(job.DataSets)); err != nil {
		return plan, err
	}

	plan.Candidates = fit.CandidateCount(job.Parameters, job.Buckets)
	if err := grid.CheckGridSize(estimator, job.DataSets, job.Buckets, plan.Candidates); err != nil {
		return plan, err
	}

	plan.Layout = scheduler.Assign(poolSize, job.Parameters.GroupCount, job.Parameters.MCIterations)
	return plan, nil
}
