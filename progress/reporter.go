/*
Package progress forwards status text to the external supervisor endpoint.

Only two ranks ever talk: the supervisor delivers to the endpoint itself, and
the sub-master of every other group relays its text to the supervisor, which
re-delivers it with the group tagged. Delivery never blocks the caller and is
never retried; a full queue drops the message.
*/
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tedsuo/fitmesh/mesh"
	"github.com/tedsuo/fitmesh/metrics"
)

const (
	DefaultQueueSize = 64
	relayTimeout     = 5 * time.Second
)

type Role int

const (
	Silent Role = iota
	Relay
	Supervisor
)

// Status is the last message a reporter delivered.
type Status struct {
	Group  int       `json:"group"`
	Text   string    `json:"text"`
	Append bool      `json:"append"`
	At     time.Time `json:"at"`
}

type relayBody struct {
	Frame []byte `json:"frame"`
}

type message struct {
	text   string
	append bool
}

type Reporter struct {
	role   Role
	rank   int
	group  int
	prefix string

	sink      Sink
	transport mesh.Transport

	queue   chan message
	pending sync.WaitGroup
	done    chan struct{}

	closeMu sync.Mutex
	closed  bool

	lastMu sync.Mutex
	last   Status

	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// Prefix is the tag the supervisor puts in front of every message.
func Prefix(database, requestID string) string {
	return fmt.Sprintf("%s-%s: ", database, requestID)
}

// NewSupervisor returns the reporter of rank 0, delivering to sink.
func NewSupervisor(prefix string, sink Sink, queueSize int, logger logrus.FieldLogger, m *metrics.Metrics) *Reporter {
	r := newReporter(Supervisor, 0, 0, queueSize, logger, m)
	r.prefix = prefix
	r.sink = sink
	go r.drain()
	return r
}

// NewRelay returns the reporter of the sub-master of group, which forwards to
// the supervisor over transport.
func NewRelay(rank, group int, transport mesh.Transport, queueSize int, logger logrus.FieldLogger, m *metrics.Metrics) *Reporter {
	r := newReporter(Relay, rank, group, queueSize, logger, m)
	r.transport = transport
	go r.drain()
	return r
}

// NewSilent returns a reporter that drops everything.
func NewSilent(rank, group int) *Reporter {
	r := &Reporter{role: Silent, rank: rank, group: group, done: make(chan struct{})}
	close(r.done)
	return r
}

func newReporter(role Role, rank, group, queueSize int, logger logrus.FieldLogger, m *metrics.Metrics) *Reporter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Reporter{
		role:    role,
		rank:    rank,
		group:   group,
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
		logger:  logger.WithFields(logrus.Fields{"component": "progress", "rank": rank, "group": group}),
		metrics: m,
	}
}

func (r *Reporter) Role() Role {
	return r.role
}

// Send queues text for delivery and returns at once.
func (r *Reporter) Send(text string, append bool) {
	if r.role == Silent {
		return
	}

	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}

	r.pending.Add(1)
	select {
	case r.queue <- message{text: text, append: append}:
	default:
		r.pending.Done()
		r.metrics.RecordProgressDropped()
		r.logger.WithField("text", text).Debug("progress queue full, dropping message")
	}
}

// Relay re-delivers a message forwarded by the sub-master of another group.
func (r *Reporter) Relay(env mesh.Envelope) error {
	var body relayBody
	if err := env.Decode(&body); err != nil {
		return err
	}
	frame, err := DecodeFrame(body.Frame)
	if err != nil {
		return err
	}
	r.metrics.RecordProgressRelayed(frame.Group)
	r.Send(fmt.Sprintf("(pmg %d) %s", frame.Group, frame.Text), frame.Append)
	return nil
}

// Flush waits until every queued message has been handed off.
func (r *Reporter) Flush() {
	r.pending.Wait()
}

// Close flushes the queue and stops the reporter.
func (r *Reporter) Close() {
	if r.role == Silent {
		return
	}
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.closeMu.Unlock()
	<-r.done
}

func (r *Reporter) Last() Status {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	return r.last
}

func (r *Reporter) drain() {
	defer close(r.done)
	for msg := range r.queue {
		if err := r.deliver(msg); err != nil {
			r.metrics.RecordProgressDropped()
			r.logger.WithError(err).Debug("progress delivery failed")
		} else {
			r.metrics.RecordProgressSent()
			r.lastMu.Lock()
			r.last = Status{Group: r.group, Text: msg.text, Append: msg.append, At: time.Now()}
			r.lastMu.Unlock()
		}
		r.pending.Done()
	}
}

func (r *Reporter) deliver(msg message) error {
	if r.role == Supervisor {
		return r.sink.Deliver(r.prefix + msg.text)
	}

	env, err := mesh.NewEnvelope(r.rank, 0, r.group, mesh.Progress, relayBody{
		Frame: EncodeFrame(Frame{Group: r.group, Append: msg.append, Text: msg.text}),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	return r.transport.Send(ctx, env)
}
