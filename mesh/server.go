package mesh

import (
	"context"
	"net"
	"os"

	"github.com/tedsuo/ifrit"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
)

const deliverMethod = "/fitmesh.Mesh/Deliver"

type Ack struct{}

type deliverer interface {
	Deliver(ctx context.Context, env *Envelope) (*Ack, error)
}

var meshServiceDesc = grpc.ServiceDesc{
	ServiceName: "fitmesh.Mesh",
	HandlerType: (*deliverer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fitmesh/mesh",
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(deliverer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(deliverer).Deliver(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// localDeliverer hands envelopes received from other nodes to the mailboxes
// of the ranks hosted here.
type localDeliverer struct {
	local *Local
}

func (d localDeliverer) Deliver(ctx context.Context, env *Envelope) (*Ack, error) {
	return &Ack{}, d.local.Send(ctx, *env)
}

type meshServer struct {
	address        string
	maxConnections int
	local          *Local
}

// NewServer serves the Deliver call for the ranks whose mailboxes live in
// local. maxConnections bounds the number of inbound peer connections; zero
// means unbounded.
func NewServer(address string, maxConnections int, local *Local) ifrit.Runner {
	return &meshServer{
		address:        address,
		maxConnections: maxConnections,
		local:          local,
	}
}

func (s *meshServer) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	if s.maxConnections > 0 {
		listener = netutil.LimitListener(listener, s.maxConnections)
	}

	server := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	server.RegisterService(&meshServiceDesc, localDeliverer{local: s.local})

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.Serve(listener)
	}()

	close(ready)

	select {
	case err = <-serverErrChan:
		return err

	case sig := <-signals:
		if sig == os.Kill {
			server.Stop()
		} else {
			server.GracefulStop()
		}
		return nil
	}
}
