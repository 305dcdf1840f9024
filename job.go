package fitmesh

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"

	"github.com/tedsuo/fitmesh/config"
	"github.com/tedsuo/fitmesh/failure"
	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/grid"
	"github.com/tedsuo/fitmesh/inspector"
	"github.com/tedsuo/fitmesh/kernel"
	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/metrics"
	"github.com/tedsuo/fitmesh/progress"
	"github.com/tedsuo/fitmesh/results"
	"github.com/tedsuo/fitmesh/status"
)

// StopSignal makes a running job stop its fits and package what it found.
var StopSignal os.Signal = syscall.SIGUSR1

type Options struct {
	JobDocument        string
	ExperimentDocument string
	Config             config.Config

	// Kernel scores candidates. A surrogate kernel is used when nil.
	Kernel  fit.Kernel
	Breeder fit.Breeder
	// Sink receives supervisor progress. When nil, progress goes to the UDP
	// endpoint of the job document, if it names one.
	Sink      progress.Sink
	Estimator grid.SizeEstimator
	Registry  *prometheus.Registry
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Job is the ifrit Runner of a whole fit: every rank this process hosts,
// plus the mesh server, status endpoint and inspector when configured.
type Job struct {
	options Options
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	fits    *fit.Registry

	mu     sync.Mutex
	report *results.Report
}

func NewJob(options Options) *Job {
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.Registry == nil {
		options.Registry = prometheus.NewRegistry()
	}
	if options.Estimator == nil {
		options.Estimator = grid.NewFootprintEstimator(int64(options.Config.MemoryLimitMB) << 20)
	}
	return &Job{
		options: options,
		logger:  options.Logger.WithField("component", "job"),
		metrics: metrics.New(options.Registry),
		fits:    fit.NewRegistry(),
	}
}

// Report is what the supervisor packaged, once the job has succeeded.
func (j *Job) Report() (results.Report, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.report == nil {
		return results.Report{}, false
	}
	return *j.report, true
}

func (j *Job) setReport(report results.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = &report
}

// States returns the fit state of every group this process leads.
func (j *Job) States() []fit.State {
	return j.fits.Snapshots()
}

// ExitCode is the process exit code for the error a job returned.
func (j *Job) ExitCode(err error) int {
	if err != nil {
		return failure.CodeFor(err)
	}
	if report, ok := j.Report(); ok {
		return report.ExitCode()
	}
	return failure.CodeSuccess
}

func (j *Job) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	start := j.options.Now()
	cfg := j.options.Config

	plan, err := Prepare(j.options.JobDocument, j.options.ExperimentDocument, cfg.WorkDir, cfg.PoolSize, j.options.Estimator)
	if err != nil {
		return j.refuse(plan, err)
	}
	j.logger.WithFields(logrus.Fields{
		"analysis":   plan.Job.Analysis,
		"request":    plan.Job.Request.ID,
		"candidates": plan.Candidates,
		"layout":     plan.Layout.String(),
	}).Info("job validated")

	transport, server, hosted, err := j.transport(plan)
	if err != nil {
		return err
	}
	if network, ok := transport.(*mesh.Network); ok {
		defer network.Close()
	}

	var reporter *progress.Reporter
	if hosted[0] {
		sink, closeSink := j.sink(plan)
		defer closeSink()
		reporter = progress.NewSupervisor(progress.Prefix(plan.Job.Database, plan.Job.Request.ID), sink, cfg.Progress.QueueSize, j.options.Logger, j.metrics)
		defer reporter.Close()
	}

	ranks := grouper.Members{}
	for rank := 0; rank < plan.Layout.PoolSize; rank++ {
		if hosted[rank] {
			ranks = append(ranks, grouper.Member{
				Name:   rankName(rank),
				Runner: j.newRank(rank, plan, transport, reporter, start),
			})
		}
	}

	members := grouper.Members{}
	if server != nil {
		members = append(members, grouper.Member{Name: "mesh", Runner: server})
	}
	if cfg.StatusAddress != "" {
		members = append(members, grouper.Member{Name: "status", Runner: j.statusServer(plan, reporter, start)})
	}
	if cfg.Inspector.Path != "" {
		members = append(members, grouper.Member{Name: "inspector", Runner: inspector.New(cfg.Inspector.Path, j.fits, j.options.Logger)})
	}
	// Ranks end by protocol, never because another rank exited.
	members = append(members, grouper.Member{Name: "ranks", Runner: grouper.NewParallel(nil, ranks)})

	process := ifrit.Background(grouper.NewOrdered(os.Interrupt, members))
	exited := process.Wait()

	select {
	case <-process.Ready():
		close(ready)
	case err := <-exited:
		return j.interpret(err)
	}

	for {
		select {
		case sig := <-signals:
			if sig == StopSignal {
				j.logger.Info("stopping every fit")
				j.fits.StopAll()
				continue
			}
			process.Signal(sig)
		case err := <-exited:
			return j.interpret(err)
		}
	}
}

// refuse ends a job that failed before any rank started. Only the node of
// the supervisor reports it.
func (j *Job) refuse(plan *Plan, err error) error {
	code, message := failure.CodeFor(err), failure.MessageFor(err)
	j.logger.WithError(err).WithField("code", code).Error("job rejected")

	if plan != nil && j.hostsSupervisor() {
		sink, closeSink := j.sink(plan)
		reporter := progress.NewSupervisor(progress.Prefix(plan.Job.Database, plan.Job.Request.ID), sink, 1, j.options.Logger, j.metrics)
		reporter.Send(message, false)
		reporter.Close()
		closeSink()
	}
	j.metrics.RecordAbort(code)
	return &failure.ExitError{Code: code, Message: message}
}

func (j *Job) hostsSupervisor() bool {
	placement := j.options.Config.Mesh
	if !placement.Distributed() {
		return true
	}
	if len(placement.Hosted) == 0 {
		return placement.Peers[0] == ""
	}
	for _, rank := range placement.Hosted {
		if rank == 0 {
			return true
		}
	}
	return false
}

// transport connects the ranks of the pool: in process when every rank runs
// here, through the mesh server otherwise.
func (j *Job) transport(plan *Plan) (mesh.Transport, ifrit.Runner, map[int]bool, error) {
	cfg := j.options.Config.Mesh
	size := plan.Layout.PoolSize
	hosted := map[int]bool{}

	if !cfg.Distributed() {
		for rank := 0; rank < size; rank++ {
			hosted[rank] = true
		}
		return mesh.NewLocal(size, cfg.MailboxDepth), nil, hosted, nil
	}

	ranks := cfg.Hosted
	if len(ranks) == 0 {
		for rank := 0; rank < size; rank++ {
			if cfg.Peers[rank] == "" {
				ranks = append(ranks, rank)
			}
		}
	}
	network, err := mesh.NewNetwork(size, ranks, cfg.Peers)
	if err != nil {
		return nil, nil, nil, err
	}
	for rank := 0; rank < size; rank++ {
		hosted[rank] = network.Hosts(rank)
	}
	return network, mesh.NewServer(cfg.Listen, cfg.MaxConnections, network.Local()), hosted, nil
}

func (j *Job) sink(plan *Plan) (progress.Sink, func()) {
	if j.options.Sink != nil {
		return j.options.Sink, func() {}
	}
	address := plan.Job.Endpoint.Address()
	if address == "" {
		return progress.Discard, func() {}
	}
	sink, err := progress.DialUDP(address)
	if err != nil {
		j.logger.WithError(err).Warn("progress endpoint unavailable, discarding progress")
		return progress.Discard, func() {}
	}
	return sink, func() { sink.Close() }
}

func (j *Job) statusServer(plan *Plan, reporter *progress.Reporter, start time.Time) ifrit.Runner {
	runID := plan.Job.Request.GUID
	if id, err := uuid.NewV4(); err == nil {
		runID = id.String()
	}
	source := status.Source{
		RunID:   runID,
		Request: plan.Job.Database + "-" + plan.Job.Request.ID,
		Started: start,
		Layout:  plan.Layout,
		States:  j.fits,
	}
	if reporter != nil {
		source.Progress = reporter
	}
	return status.NewServer(j.options.Config.StatusAddress, source, j.options.Registry, j.options.Logger)
}

func (j *Job) kernel(plan *Plan) (fit.Kernel, fit.Breeder) {
	k, b := j.options.Kernel, j.options.Breeder
	if k == nil {
		surrogate := kernel.NewSurrogate(plan.Job.Buckets, j.options.Config.Kernel.Seed)
		surrogate.Noise = j.options.Config.Kernel.Noise
		surrogate.Delay = j.options.Config.Kernel.Delay
		k = surrogate
	}
	if b == nil {
		b = kernel.NewBreeder(plan.Job.Buckets, plan.Job.Parameters)
	}
	return k, b
}

func (j *Job) outputDir() string {
	if dir := j.options.Config.OutputDir; dir != "" {
		return dir
	}
	if dir := j.options.Config.WorkDir; dir != "" {
		return dir
	}
	return filepath.Dir(j.options.ExperimentDocument)
}

// interpret turns the exit of the process group into the job's error: the
// shared abort of the ranks when there was one.
func (j *Job) interpret(err error) error {
	if err == nil {
		return nil
	}
	if exitErr := firstExitError(err); exitErr != nil {
		return exitErr
	}
	return errors.WithStack(err)
}

func firstExitError(err error) *failure.ExitError {
	var trace grouper.ErrorTrace
	if errors.As(err, &trace) {
		for _, event := range trace {
			if exitErr := firstExitError(event.Err); exitErr != nil {
				return exitErr
			}
		}
		return nil
	}
	var exitErr *failure.ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return nil
}
