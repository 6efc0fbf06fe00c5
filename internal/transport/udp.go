package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/polymorfiq/dns-server/internal/dnserr"
)

// UDPTransport implements Transport over a unicast UDP socket. The same
// type serves two roles: a listener socket bound to a fixed local address
// (the resolver's client-facing port), and an ephemeral socket used to
// probe a single upstream server.
type UDPTransport struct {
	conn net.PacketConn
}

// NewUDPListener binds a UDP socket to addr (host:port) for receiving
// client queries. Platform-specific socket options (SO_REUSEPORT where
// available) are applied via PlatformControl so multiple resolver
// processes can share the same listen address.
func NewUDPListener(addr string) (*UDPTransport, error) {
	lc := net.ListenConfig{Control: PlatformControl}

	conn, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, &dnserr.NetworkError{
			Operation: "listen udp",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind %s", addr),
		}
	}

	return &UDPTransport{conn: conn}, nil
}

// NewUDPClient opens an ephemeral UDP socket for sending queries to a
// single upstream server and receiving its reply.
func NewUDPClient() (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, &dnserr.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   "failed to open ephemeral UDP socket",
		}
	}

	return &UDPTransport{conn: conn}, nil
}

// Send transmits packet to dest, respecting ctx cancellation.
func (t *UDPTransport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &dnserr.NetworkError{
			Operation: "send message",
			Err:       ctx.Err(),
			Details:   "context canceled before send",
		}
	default:
	}

	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return &dnserr.NetworkError{
			Operation: "send message",
			Err:       err,
			Details:   fmt.Sprintf("failed to send %d bytes to %s", len(packet), dest),
		}
	}

	if n != len(packet) {
		return &dnserr.NetworkError{
			Operation: "send message",
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(packet)),
			Details:   "incomplete transmission",
		}
	}

	return nil
}

// Receive waits for a single datagram, respecting ctx cancellation and
// deadline.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, &dnserr.NetworkError{
			Operation: "receive message",
			Err:       ctx.Err(),
			Details:   "context canceled before receive",
		}
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, &dnserr.NetworkError{
				Operation: "set read timeout",
				Err:       err,
				Details:   fmt.Sprintf("failed to set deadline %v", deadline),
			}
		}
	}

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buffer := *bufPtr

	n, srcAddr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, &dnserr.NetworkError{
				Operation: "receive message",
				Err:       err,
				Details:   "timeout",
			}
		}

		return nil, nil, &dnserr.NetworkError{
			Operation: "receive message",
			Err:       err,
			Details:   "failed to read from socket",
		}
	}

	result := make([]byte, n)
	copy(result, buffer[:n])
	return result, srcAddr, nil
}

// LocalAddr returns the socket's bound local address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close releases the underlying socket.
func (t *UDPTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	if err := t.conn.Close(); err != nil {
		return &dnserr.NetworkError{
			Operation: "close socket",
			Err:       err,
			Details:   "failed to close UDP connection",
		}
	}

	return nil
}
