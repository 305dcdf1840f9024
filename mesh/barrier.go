package mesh

import (
	"context"

	"github.com/pkg/errors"
)

// Verdict is what every rank leaves a barrier with.
type Verdict struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Barrier synchronizes every rank of a transport at rank 0. No rank leaves
// Wait before every rank has entered it.
type Barrier struct {
	Transport Transport
	Mailbox   *Mailbox
}

// Wait blocks until every rank has arrived. Rank 0 decides the verdict: its
// own when it carries a nonzero code, otherwise the first nonzero code that
// arrived.
func (b Barrier) Wait(ctx context.Context, verdict Verdict) (Verdict, error) {
	rank := b.Mailbox.Rank
	if rank != 0 {
		arrival, err := NewEnvelope(rank, 0, 0, Arrive, verdict)
		if err != nil {
			return verdict, err
		}
		if err := b.Transport.Send(ctx, arrival); err != nil {
			return verdict, errors.Wrap(err, "arriving at barrier")
		}

		select {
		case env := <-b.Mailbox.Receive(Release):
			var released Verdict
			if err := env.Decode(&released); err != nil {
				return verdict, err
			}
			return released, nil
		case <-ctx.Done():
			return verdict, errors.Wrap(ctx.Err(), "waiting for barrier release")
		}
	}

	arrived := map[int]bool{}
	for len(arrived) < b.Transport.Size()-1 {
		select {
		case env := <-b.Mailbox.Receive(Arrive):
			var other Verdict
			if err := env.Decode(&other); err != nil {
				return verdict, err
			}
			if verdict.Code == 0 && other.Code != 0 {
				verdict = other
			}
			arrived[env.From] = true
		case <-ctx.Done():
			return verdict, errors.Wrapf(ctx.Err(), "waiting for barrier: %d of %d arrived", len(arrived), b.Transport.Size()-1)
		}
	}

	release, err := NewEnvelope(0, 0, 0, Release, verdict)
	if err != nil {
		return verdict, err
	}
	return verdict, errors.Wrap(Broadcast(ctx, b.Transport, release), "releasing barrier")
}
