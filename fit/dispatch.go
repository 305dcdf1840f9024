package fit

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tedsuo/fitmesh/mesh"
)

type workBody struct {
	Epoch int64  `json:"epoch"`
	Batch int    `json:"batch"`
	Tasks []Task `json:"tasks"`
}

type resultBody struct {
	Epoch   int64      `json:"epoch"`
	Batch   int        `json:"batch"`
	Scores  []Score    `json:"scores"`
	Stopped bool       `json:"stopped"`
	Error   *wireError `json:"error,omitempty"`
}

type stopBody struct {
	Epoch int64 `json:"epoch"`
}

func (c *Coordinator) batchSize(tasks, workers int) int {
	if c.config.BatchSize > 0 {
		return c.config.BatchSize
	}
	per := workers * 4
	return max(1, (tasks+per-1)/per)
}

func split(tasks []Task, size int) [][]Task {
	batches := [][]Task{}
	for start := 0; start < len(tasks); start += size {
		batches = append(batches, tasks[start:min(start+size, len(tasks))])
	}
	return batches
}

// evaluate scores tasks on the group's workers, handing a new batch to a
// worker as soon as it returns one. Without workers the sub-master evaluates
// the tasks itself. observe is called once per returned batch.
func (c *Coordinator) evaluate(ctx context.Context, tasks []Task, observe func([]Score)) error {
	workers := c.config.Group.Workers()
	if len(workers) == 0 {
		return c.evaluateLocally(ctx, tasks, observe)
	}

	epoch := c.epoch.Load()
	batches := split(tasks, c.batchSize(len(tasks), len(workers)))
	next, outstanding := 0, 0

	dispatch := func(worker int) error {
		env, err := mesh.NewEnvelope(c.config.Group.SubMaster, worker, c.config.Group.ID, mesh.Work, workBody{
			Epoch: epoch,
			Batch: next,
			Tasks: batches[next],
		})
		if err != nil {
			return err
		}
		if err := c.deps.Transport.Send(ctx, env); err != nil {
			return errors.Wrapf(err, "sending batch %d to rank %d", next, worker)
		}
		next++
		outstanding++
		return nil
	}

	for _, worker := range workers {
		if next == len(batches) {
			break
		}
		if err := dispatch(worker); err != nil {
			return err
		}
	}

	var failure error
	for outstanding > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env := <-c.deps.Mailbox.Receive(mesh.Result):
			var body resultBody
			if err := env.Decode(&body); err != nil {
				return err
			}
			if body.Epoch != epoch {
				continue
			}
			outstanding--

			if body.Error != nil && failure == nil {
				failure = body.Error.kernelError()
				c.signalStop(epoch)
			}
			if len(body.Scores) > 0 {
				observe(body.Scores)
			}
			if failure == nil && !c.stop.Load() && next < len(batches) {
				if err := dispatch(env.From); err != nil {
					return err
				}
			}
		}
	}

	if failure != nil {
		return failure
	}
	if c.stop.Load() {
		return ErrStopped
	}
	return nil
}

func (c *Coordinator) evaluateLocally(ctx context.Context, tasks []Task, observe func([]Score)) error {
	for _, task := range tasks {
		if c.stop.Load() {
			return ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		score, err := c.deps.Kernel.Evaluate(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return AsKernelError(err)
		}
		score.Index = task.Candidate.Index
		observe([]Score{score})
	}
	return nil
}

// signalStop tells every worker of the group to drop the rest of its batch
// for epoch.
func (c *Coordinator) signalStop(epoch int64) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for _, worker := range c.config.Group.Workers() {
		env, err := mesh.NewEnvelope(c.config.Group.SubMaster, worker, c.config.Group.ID, mesh.Stop, stopBody{Epoch: epoch})
		if err == nil {
			err = c.deps.Transport.Send(ctx, env)
		}
		if err != nil {
			c.logger.WithError(err).WithField("worker", worker).Warn("failed to send stop")
		}
	}
}
