/*
Package mesh carries envelopes between ranks.

A rank is one member of the worker pool. Ranks never share memory: everything
they know about each other arrives in an Envelope through a Transport. Ranks
hosted by the same process use a Local transport; ranks spread over several
nodes use a Network transport, which keeps local delivery in process and
reaches the other nodes over gRPC.
*/
package mesh

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	Work Kind = iota + 1
	Result
	Progress
	GroupDone
	Stop
	Abort
	Arrive
	Release
	Shutdown
)

var kindNames = map[Kind]string{
	Work:      "work",
	Result:    "result",
	Progress:  "progress",
	GroupDone: "group-done",
	Stop:      "stop",
	Abort:     "abort",
	Arrive:    "barrier",
	Release:   "release",
	Shutdown:  "shutdown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Envelope struct {
	From  int             `json:"from"`
	To    int             `json:"to"`
	Group int             `json:"group"`
	Kind  Kind            `json:"kind"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// NewEnvelope encodes body as JSON. A nil body leaves the envelope empty.
func NewEnvelope(from, to, group int, kind Kind, body interface{}) (Envelope, error) {
	env := Envelope{From: from, To: to, Group: group, Kind: kind}
	if body == nil {
		return env, nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "encoding %s body", kind)
	}
	env.Body = encoded
	return env, nil
}

func (e Envelope) Decode(v interface{}) error {
	if len(e.Body) == 0 {
		return errors.Errorf("%s envelope from rank %d has no body", e.Kind, e.From)
	}
	return errors.Wrapf(json.Unmarshal(e.Body, v), "decoding %s body", e.Kind)
}

type Transport interface {
	Send(ctx context.Context, env Envelope) error
	Inbox(rank int) <-chan Envelope
	Size() int
}

// Broadcast sends a copy of env to every rank except the sender.
func Broadcast(ctx context.Context, t Transport, env Envelope) error {
	for rank := 0; rank < t.Size(); rank++ {
		if rank == env.From {
			continue
		}
		env.To = rank
		if err := t.Send(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

type UnknownRankError struct {
	Rank int
	Size int
}

func (e UnknownRankError) Error() string {
	return fmt.Sprintf("rank %d outside of pool of %d", e.Rank, e.Size)
}
