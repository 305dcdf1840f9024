package mesh

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mailbox sorts the inbox of one rank into one channel per kind, so that a
// rank busy waiting for results still sees an abort.
type Mailbox struct {
	Rank int

	inbox    <-chan Envelope
	channels map[Kind]chan Envelope
	logger   logrus.FieldLogger
}

func NewMailbox(t Transport, rank int, logger logrus.FieldLogger) *Mailbox {
	channels := make(map[Kind]chan Envelope, len(kindNames))
	for kind := range kindNames {
		channels[kind] = make(chan Envelope, DefaultMailboxDepth)
	}
	return &Mailbox{
		Rank:     rank,
		inbox:    t.Inbox(rank),
		channels: channels,
		logger:   logger.WithField("rank", rank),
	}
}

func (m *Mailbox) Receive(kind Kind) <-chan Envelope {
	return m.channels[kind]
}

// Pump sorts envelopes until ctx is done.
func (m *Mailbox) Pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-m.inbox:
			ch, ok := m.channels[env.Kind]
			if !ok {
				m.logger.WithField("kind", env.Kind).Warn("dropping envelope of unknown kind")
				continue
			}
			select {
			case ch <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}
