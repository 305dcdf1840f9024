package mesh

import "context"

const DefaultMailboxDepth = 1024

// Local delivers envelopes through one buffered channel per rank. Envelopes
// sent by one goroutine to one rank are received in the order they were sent.
type Local struct {
	mailboxes []chan Envelope
}

func NewLocal(size, depth int) *Local {
	if depth <= 0 {
		depth = DefaultMailboxDepth
	}
	mailboxes := make([]chan Envelope, size)
	for i := range mailboxes {
		mailboxes[i] = make(chan Envelope, depth)
	}
	return &Local{mailboxes: mailboxes}
}

func (l *Local) Send(ctx context.Context, env Envelope) error {
	if env.To < 0 || env.To >= len(l.mailboxes) {
		return UnknownRankError{Rank: env.To, Size: len(l.mailboxes)}
	}
	select {
	case l.mailboxes[env.To] <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Inbox(rank int) <-chan Envelope {
	if rank < 0 || rank >= len(l.mailboxes) {
		return nil
	}
	return l.mailboxes[rank]
}

func (l *Local) Size() int {
	return len(l.mailboxes)
}
