package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// TCPTransport implements Transport over a single TCP connection framed
// per RFC 1035 §4.2.2: each message is prefixed with its length as a
// 2-octet unsigned integer in network byte order.
type TCPTransport struct {
	conn net.Conn
}

// DialTCP opens a TCP connection to dest, used by the delegator for
// UDP→TCP escalation when an upstream's UDP reply sets TC=1.
func DialTCP(ctx context.Context, dest string) (*TCPTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", dest)
	if err != nil {
		return nil, &dnserr.NetworkError{
			Operation: "dial tcp",
			Err:       err,
			Details:   fmt.Sprintf("failed to connect to %s", dest),
		}
	}

	return &TCPTransport{conn: conn}, nil
}

// NewTCPConn wraps an already-accepted connection (the listener's side of
// a client conversation).
func NewTCPConn(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

// Send writes packet prefixed with its 2-octet length. dest is ignored;
// TCP addressing is fixed at connection time.
func (t *TCPTransport) Send(ctx context.Context, packet []byte, _ net.Addr) error {
	if len(packet) > 0xFFFF {
		return &dnserr.NetworkError{
			Operation: "send message",
			Err:       fmt.Errorf("message length %d exceeds tcp length-prefix capacity", len(packet)),
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return &dnserr.NetworkError{Operation: "set write timeout", Err: err}
		}
	}

	prefix := make([]byte, protocol.TCPLengthPrefixSize)
	binary.BigEndian.PutUint16(prefix, uint16(len(packet)))

	if _, err := t.conn.Write(prefix); err != nil {
		return &dnserr.NetworkError{Operation: "send message", Err: err, Details: "failed to write length prefix"}
	}
	if _, err := t.conn.Write(packet); err != nil {
		return &dnserr.NetworkError{Operation: "send message", Err: err, Details: "failed to write message body"}
	}

	return nil
}

// Receive reads one length-prefixed message. The returned address is the
// connection's remote address.
func (t *TCPTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, &dnserr.NetworkError{Operation: "set read timeout", Err: err}
		}
	}

	prefix := make([]byte, protocol.TCPLengthPrefixSize)
	if _, err := io.ReadFull(t.conn, prefix); err != nil {
		return nil, nil, &dnserr.NetworkError{Operation: "receive message", Err: err, Details: "failed to read length prefix"}
	}

	length := binary.BigEndian.Uint16(prefix)
	body := make([]byte, length)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return nil, nil, &dnserr.NetworkError{Operation: "receive message", Err: err, Details: "failed to read message body"}
	}

	return body, t.conn.RemoteAddr(), nil
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	if err := t.conn.Close(); err != nil {
		return &dnserr.NetworkError{Operation: "close socket", Err: err, Details: "failed to close TCP connection"}
	}

	return nil
}
