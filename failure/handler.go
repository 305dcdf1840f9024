package failure

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/metrics"
)

const DefaultTimeout = time.Minute

type Reporter interface {
	Send(text string, append bool)
	Flush()
}

type Handler struct {
	Rank      int
	Transport mesh.Transport
	Mailbox   *mesh.Mailbox
	Reporter  Reporter
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	// Timeout bounds the wait at the barrier.
	Timeout time.Duration
}

// Abort is called by the rank that hit a fatal condition. A rank other than
// the supervisor hands the message to the supervisor and joins the barrier.
func (h *Handler) Abort(message string, code int) error {
	ctx, cancel := h.context()
	defer cancel()

	verdict := mesh.Verdict{Code: code, Message: message}
	if h.Rank != 0 {
		env, err := mesh.NewEnvelope(h.Rank, 0, 0, mesh.Abort, verdict)
		if err == nil {
			err = h.Transport.Send(ctx, env)
		}
		if err != nil {
			h.Logger.WithError(err).Error("failed to hand abort to the supervisor")
		}
		return h.barrier(ctx, verdict)
	}

	h.Logger.WithField("code", code).Error(message)
	h.Reporter.Send(message, false)
	h.Reporter.Flush()
	h.Metrics.RecordAbort(code)

	env, err := mesh.NewEnvelope(0, 0, 0, mesh.Abort, verdict)
	if err == nil {
		err = mesh.Broadcast(ctx, h.Transport, env)
	}
	if err != nil {
		h.Logger.WithError(err).Error("failed to broadcast abort")
	}
	return h.barrier(ctx, verdict)
}

// Join is called by a rank that received an abort. On the supervisor it
// reports and spreads the abort of the rank that sent it.
func (h *Handler) Join(env mesh.Envelope) error {
	var verdict mesh.Verdict
	if err := env.Decode(&verdict); err != nil {
		verdict = mesh.Verdict{Code: CodeInternal, Message: err.Error()}
	}
	if h.Rank == 0 {
		return h.Abort(verdict.Message, verdict.Code)
	}

	ctx, cancel := h.context()
	defer cancel()
	return h.barrier(ctx, verdict)
}

func (h *Handler) barrier(ctx context.Context, verdict mesh.Verdict) error {
	released, err := mesh.Barrier{Transport: h.Transport, Mailbox: h.Mailbox}.Wait(ctx, verdict)
	if err != nil {
		h.Logger.WithError(err).Warn("abort barrier did not complete")
		released = verdict
	}
	if released.Code == 0 {
		released.Code = verdict.Code
	}
	return &ExitError{Code: released.Code, Message: released.Message}
}

func (h *Handler) context() (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
