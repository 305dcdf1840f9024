package mesh

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Network is a Transport for a pool spread over several nodes. Ranks hosted by
// this node are delivered in process; every other rank is reached through the
// node address listed in peers.
type Network struct {
	local  *Local
	hosted map[int]bool
	peers  map[int]string

	connsMu sync.Mutex
	conns   map[string]*grpc.ClientConn
}

func NewNetwork(size int, hosted []int, peers map[int]string) (*Network, error) {
	n := &Network{
		local:  NewLocal(size, DefaultMailboxDepth),
		hosted: make(map[int]bool, len(hosted)),
		peers:  peers,
		conns:  map[string]*grpc.ClientConn{},
	}
	for _, rank := range hosted {
		if rank < 0 || rank >= size {
			return nil, UnknownRankError{Rank: rank, Size: size}
		}
		n.hosted[rank] = true
	}
	for rank := 0; rank < size; rank++ {
		if !n.hosted[rank] && peers[rank] == "" {
			return nil, errors.Errorf("rank %d is neither hosted here nor listed as a peer", rank)
		}
	}
	return n, nil
}

// Local exposes the mailboxes of the hosted ranks, for the server.
func (n *Network) Local() *Local {
	return n.local
}

func (n *Network) Hosts(rank int) bool {
	return n.hosted[rank]
}

func (n *Network) Send(ctx context.Context, env Envelope) error {
	if n.hosted[env.To] {
		return n.local.Send(ctx, env)
	}
	address, ok := n.peers[env.To]
	if !ok {
		return UnknownRankError{Rank: env.To, Size: n.local.Size()}
	}

	conn, err := n.dial(address)
	if err != nil {
		return err
	}
	err = conn.Invoke(ctx, deliverMethod, &env, &Ack{}, grpc.WaitForReady(true))
	return errors.Wrapf(err, "delivering %s to rank %d at %s", env.Kind, env.To, address)
}

func (n *Network) dial(address string) (*grpc.ClientConn, error) {
	n.connsMu.Lock()
	defer n.connsMu.Unlock()

	if conn, ok := n.conns[address]; ok {
		return conn, nil
	}
	conn, err := grpc.Dial(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", address)
	}
	n.conns[address] = conn
	return conn, nil
}

func (n *Network) Inbox(rank int) <-chan Envelope {
	return n.local.Inbox(rank)
}

func (n *Network) Size() int {
	return n.local.Size()
}

func (n *Network) Close() error {
	n.connsMu.Lock()
	defer n.connsMu.Unlock()

	var result *multierror.Error
	for address, conn := range n.conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "closing %s", address))
		}
		delete(n.conns, address)
	}
	return result.ErrorOrNil()
}
