package fit

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/mesh"
)

// Worker evaluates the batches its sub-master sends until it is shut down.
// Between candidates it checks for a stop of the batch's epoch.
type Worker struct {
	Rank      int
	Kernel    Kernel
	Transport mesh.Transport
	Mailbox   *mesh.Mailbox
	Logger    logrus.FieldLogger

	stoppedEpoch int64
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.Mailbox.Receive(mesh.Shutdown):
			return nil

		case env := <-w.Mailbox.Receive(mesh.Stop):
			w.noteStop(env)

		case env := <-w.Mailbox.Receive(mesh.Work):
			if err := w.work(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) work(ctx context.Context, env mesh.Envelope) error {
	var body workBody
	if err := env.Decode(&body); err != nil {
		return err
	}

	reply := resultBody{Epoch: body.Epoch, Batch: body.Batch}
	for _, task := range body.Tasks {
		if w.stopRequested(body.Epoch) {
			reply.Stopped = true
			break
		}
		score, err := w.Kernel.Evaluate(ctx, task)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			kernelErr := AsKernelError(err)
			w.Logger.WithError(err).WithField("candidate", task.Candidate.Index).Error("kernel failed")
			reply.Error = &wireError{Code: kernelErr.Code, Message: kernelErr.Err.Error()}
			break
		}
		score.Index = task.Candidate.Index
		reply.Scores = append(reply.Scores, score)
	}

	out, err := mesh.NewEnvelope(w.Rank, env.From, env.Group, mesh.Result, reply)
	if err != nil {
		return err
	}
	return errors.Wrapf(w.Transport.Send(ctx, out), "returning batch %d", body.Batch)
}

func (w *Worker) stopRequested(epoch int64) bool {
	for {
		select {
		case env := <-w.Mailbox.Receive(mesh.Stop):
			w.noteStop(env)
		default:
			return w.stoppedEpoch >= epoch
		}
	}
}

func (w *Worker) noteStop(env mesh.Envelope) {
	var body stopBody
	if err := env.Decode(&body); err != nil {
		w.Logger.WithError(err).Warn("ignoring malformed stop")
		return
	}
	if body.Epoch > w.stoppedEpoch {
		w.stoppedEpoch = body.Epoch
	}
}
