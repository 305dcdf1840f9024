package progress

import (
	"net"

	"github.com/pkg/errors"
)

// Sink delivers supervisor text to the external endpoint.
type Sink interface {
	Deliver(text string) error
}

type UDPSink struct {
	conn *net.UDPConn
}

func DialUDP(address string) (*UDPSink, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving progress endpoint %s", address)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing progress endpoint %s", address)
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) Deliver(text string) error {
	_, err := s.conn.Write([]byte(text))
	return errors.WithStack(err)
}

func (s *UDPSink) Close() error {
	return s.conn.Close()
}

type discardSink struct{}

func (discardSink) Deliver(string) error { return nil }

// Discard is the sink of a job without a progress endpoint.
var Discard Sink = discardSink{}
