// Package transport implements the resolver's network I/O primitives: a
// unicast UDP transport for queries to clients and upstream servers, and a
// length-prefixed TCP transport for the RFC 1035 §4.2.2 fallback path.
package transport

import (
	"context"
	"net"
)

// Transport abstracts sending and receiving a single DNS message over a
// socket, independent of whether the underlying protocol is UDP or TCP.
// Implementations wrap transport-specific errors as *dnserr.NetworkError.
type Transport interface {
	Send(ctx context.Context, packet []byte, dest net.Addr) error
	Receive(ctx context.Context) ([]byte, net.Addr, error)
	Close() error
}
