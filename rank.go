package fitmesh

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/failure"
	"github.com/tedsuo/fitmesh/fit"
	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/progress"
	"github.com/tedsuo/fitmesh/results"
	"github.com/tedsuo/fitmesh/scheduler"
)

func rankName(rank int) string {
	return fmt.Sprintf("rank-%d", rank)
}

// rankRunner is one member of the pool. Its role decides what it does; every
// role ends either on the supervisor's shutdown or in the shared abort.
type rankRunner struct {
	rank   int
	role   scheduler.Role
	group  scheduler.Group
	plan   *Plan
	start  time.Time
	job    *Job
	logger logrus.FieldLogger

	transport mesh.Transport
	mailbox   *mesh.Mailbox
	reporter  *progress.Reporter
	handler   *failure.Handler

	coordinator *fit.Coordinator
	worker      *fit.Worker
	packager    *results.Packager
}

func (j *Job) newRank(rank int, plan *Plan, transport mesh.Transport, supervisor *progress.Reporter, start time.Time) *rankRunner {
	cfg := j.options.Config
	role := plan.Layout.Role(rank)
	group, grouped := plan.Layout.GroupOf(rank)

	fields := logrus.Fields{"rank": rank, "role": role.String()}
	if grouped {
		fields["group"] = group.ID
	}
	logger := j.options.Logger.WithFields(fields)

	r := &rankRunner{
		rank:      rank,
		role:      role,
		group:     group,
		plan:      plan,
		start:     start,
		job:       j,
		logger:    logger,
		transport: transport,
		mailbox:   mesh.NewMailbox(transport, rank, logger),
	}

	switch role {
	case scheduler.Supervisor:
		r.reporter = supervisor
	case scheduler.SubMaster:
		r.reporter = progress.NewRelay(rank, group.ID, transport, cfg.Progress.QueueSize, logger, j.metrics)
	default:
		r.reporter = progress.NewSilent(rank, group.ID)
	}

	r.handler = &failure.Handler{
		Rank:      rank,
		Transport: transport,
		Mailbox:   r.mailbox,
		Reporter:  r.reporter,
		Metrics:   j.metrics,
		Logger:    logger,
		Timeout:   cfg.AbortTimeout,
	}

	kernel, breeder := j.kernel(plan)
	switch role {
	case scheduler.Supervisor, scheduler.SubMaster:
		params := plan.Job.Parameters
		r.coordinator = fit.NewCoordinator(fit.Config{
			Parameters: params,
			Buckets:    plan.Job.Buckets,
			Group:      group,
			Slice:      plan.Layout.Slice(group.ID, params.MCIterations),
			Start:      start,
			BatchSize:  cfg.BatchSize,
		}, fit.Deps{
			Kernel:    kernel,
			Breeder:   breeder,
			Transport: transport,
			Mailbox:   r.mailbox,
			Reporter:  r.reporter,
			Metrics:   j.metrics,
			Logger:    logger,
			Now:       j.options.Now,
		})
		j.fits.Register(r.coordinator)
	case scheduler.Worker:
		r.worker = &fit.Worker{
			Rank:      rank,
			Kernel:    kernel,
			Transport: transport,
			Mailbox:   r.mailbox,
			Logger:    logger,
		}
	}

	if role == scheduler.Supervisor {
		r.packager = &results.Packager{
			Dir:         j.outputDir(),
			ArchiveName: cfg.ArchiveName,
			GraceDelay:  cfg.GraceDelay,
			Logger:      logger,
			Now:         j.options.Now,
		}
	}
	return r
}

func (r *rankRunner) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.mailbox.Pump(ctx)
	if r.reporter.Role() == progress.Relay {
		defer r.reporter.Close()
	}

	roleCtx, stopRole := context.WithCancel(ctx)
	defer stopRole()
	done := make(chan error, 1)
	go func() { done <- r.play(roleCtx) }()

	close(ready)

	for {
		select {
		case err := <-done:
			if err == nil {
				return nil
			}
			r.logger.WithError(err).Error("rank failed")
			r.abandon()
			return r.handler.Abort(failure.MessageFor(err), failure.CodeFor(err))

		case env := <-r.mailbox.Receive(mesh.Abort):
			stopRole()
			<-done
			r.abandon()
			return r.handler.Join(env)

		case sig := <-signals:
			// The ranks group signals nil when a sibling exits. Ranks end by
			// protocol, so only a real signal interrupts.
			if sig == nil {
				continue
			}
			stopRole()
			<-done
			r.abandon()
			return r.handler.Abort(failure.MessageFor(failure.ErrInterrupted), failure.CodeFor(failure.ErrInterrupted))
		}
	}
}

func (r *rankRunner) abandon() {
	if r.coordinator != nil {
		r.coordinator.Abandon()
	}
}

func (r *rankRunner) play(ctx context.Context) error {
	switch r.role {
	case scheduler.Supervisor:
		return r.supervise(ctx)
	case scheduler.SubMaster:
		return r.lead(ctx)
	case scheduler.Worker:
		return r.worker.Run(ctx)
	default:
		return r.awaitShutdown(ctx)
	}
}

// lead fits the group's slice and hands the result to the supervisor.
func (r *rankRunner) lead(ctx context.Context) error {
	result, err := r.coordinator.Run(ctx)
	if err != nil {
		return err
	}
	if err := r.coordinator.Complete(); err != nil {
		return err
	}
	r.reporter.Flush()

	env, err := mesh.NewEnvelope(r.rank, r.plan.Layout.Supervisor(), r.group.ID, mesh.GroupDone, result)
	if err != nil {
		return err
	}
	if err := r.transport.Send(ctx, env); err != nil {
		return err
	}
	return r.awaitShutdown(ctx)
}

func (r *rankRunner) awaitShutdown(ctx context.Context) error {
	select {
	case <-r.mailbox.Receive(mesh.Shutdown):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// supervise fits group 0, collects every other group, packages the results
// and shuts the pool down.
func (r *rankRunner) supervise(ctx context.Context) error {
	relayCtx, stopRelay := context.WithCancel(ctx)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		r.relay(relayCtx)
	}()
	defer func() {
		stopRelay()
		<-relayed
	}()

	own, err := r.coordinator.Run(ctx)
	if err != nil {
		return err
	}
	if err := r.coordinator.Complete(); err != nil {
		return err
	}

	groups, err := r.collect(ctx, own)
	if err != nil {
		return err
	}
	stopRelay()
	<-relayed
	r.relayPending()
	r.reporter.Flush()

	summary := results.Summary{
		Job:        r.plan.Job,
		PoolSize:   r.plan.Layout.PoolSize,
		GroupCount: len(groups),
		Start:      r.start,
		Runs:       fit.Merge(groups),
	}
	for _, g := range groups {
		summary.Reduced = summary.Reduced || g.Reduced
	}

	report, err := r.packager.Package(ctx, summary)
	if err != nil {
		return err
	}
	r.job.setReport(report)
	r.reporter.Send(fmt.Sprintf("Finished: %d run(s) packaged", len(summary.Runs)), false)
	r.reporter.Flush()

	shutdown, err := mesh.NewEnvelope(r.rank, 0, 0, mesh.Shutdown, struct{}{})
	if err != nil {
		return err
	}
	return mesh.Broadcast(ctx, r.transport, shutdown)
}

func (r *rankRunner) collect(ctx context.Context, own fit.GroupResult) ([]fit.GroupResult, error) {
	groups := []fit.GroupResult{own}
	for len(groups) < len(r.plan.Layout.Groups) {
		select {
		case env := <-r.mailbox.Receive(mesh.GroupDone):
			var result fit.GroupResult
			if err := env.Decode(&result); err != nil {
				return nil, err
			}
			r.logger.WithFields(logrus.Fields{"from": env.From, "runs": len(result.Runs)}).Info("group finished")
			groups = append(groups, result)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return groups, nil
}

func (r *rankRunner) relay(ctx context.Context) {
	for {
		select {
		case env := <-r.mailbox.Receive(mesh.Progress):
			r.relayOne(env)
		case <-ctx.Done():
			return
		}
	}
}

func (r *rankRunner) relayPending() {
	for {
		select {
		case env := <-r.mailbox.Receive(mesh.Progress):
			r.relayOne(env)
		default:
			return
		}
	}
}

func (r *rankRunner) relayOne(env mesh.Envelope) {
	if err := r.reporter.Relay(env); err != nil {
		r.logger.WithError(err).WithField("from", env.From).Warn("dropping malformed progress")
	}
}
