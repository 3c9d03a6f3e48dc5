package channel

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// Socket is one bound UDP endpoint with a fixed receive timeout.
type Socket struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// Bind opens a UDP socket on addr ("host:port", empty host binds all
// interfaces) with SO_REUSEADDR set before bind.
func Bind(ctx context.Context, addr string, timeout time.Duration) (*Socket, error) {
	lc := net.ListenConfig{Control: controlReuseAddr}

	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, &NetworkError{Op: "bind", Addr: addr, Err: err}
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, &NetworkError{Op: "bind", Addr: addr, Err: errors.New("not a UDP socket")}
	}

	return &Socket{conn: conn, timeout: timeout}, nil
}

// Receive reads one datagram into buf, waiting at most the socket timeout.
func (s *Socket) Receive(buf []byte) (int, *net.UDPAddr, error) {
	return s.ReceiveDeadline(buf, time.Now().Add(s.timeout))
}

func (s *Socket) ReceiveDeadline(buf []byte, deadline time.Time) (int, *net.UDPAddr, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, classify(err)
	}

	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, classify(err)
	}
	return n, addr, nil
}

func (s *Socket) Send(b []byte, peer *net.UDPAddr) error {
	if _, err := s.conn.WriteToUDP(b, peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrNotReady
		}
		return &NetworkError{Op: "send", Addr: peer.String(), Err: err}
	}
	return nil
}

func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Socket) Close() error {
	return s.conn.Close()
}

func classify(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrNotReady
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return err
}

// LocalIPFor returns the local address the OS would use to reach remoteIP,
// or "(unknown)". No packet is sent.
func LocalIPFor(remoteIP string) string {
	conn, err := net.Dial("udp4", net.JoinHostPort(remoteIP, "9"))
	if err != nil {
		return "(unknown)"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
