// Package listener runs the resolver's client-facing UDP and TCP accept
// loops, consulting the rate limiter and client filter before a query
// ever reaches a Request façade.
package listener

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/request"
	"github.com/polymorfiq/dns-server/internal/security"
	"github.com/polymorfiq/dns-server/internal/transport"
)

// Listener owns the resolver's two client-facing sockets: a UDP
// PacketConn for ordinary queries, and a TCP net.Listener for replies too
// large for UDP and for clients that prefer TCP outright.
type Listener struct {
	udp     *transport.UDPTransport
	tcp     net.Listener
	facade  *request.Facade
	limiter *security.RateLimiter
	filter  *security.ClientFilter
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// New binds addr for both UDP and TCP and returns a Listener ready to
// Serve. facade handles each parsed query; limiter and filter gate which
// queries reach it.
func New(addr string, facade *request.Facade, limiter *security.RateLimiter, filter *security.ClientFilter, metricsReg *metrics.Registry, logger zerolog.Logger) (*Listener, error) {
	udpTransport, err := transport.NewUDPListener(addr)
	if err != nil {
		return nil, err
	}

	tcpListener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = udpTransport.Close()
		return nil, &dnserr.NetworkError{Operation: "listen tcp", Err: err, Details: "failed to bind " + addr}
	}

	return &Listener{
		udp:     udpTransport,
		tcp:     tcpListener,
		facade:  facade,
		limiter: limiter,
		filter:  filter,
		metrics: metricsReg,
		logger:  logger,
	}, nil
}

// Serve runs the UDP and TCP accept loops until ctx is canceled or either
// loop returns a fatal error. It always returns once both loops have
// stopped.
func (l *Listener) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.serveUDP(gctx)
		return nil
	})

	g.Go(func() error {
		l.serveTCP(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return l.Close()
	})

	return g.Wait()
}

// Close shuts down both sockets, unblocking any in-flight Receive/Accept.
func (l *Listener) Close() error {
	udpErr := l.udp.Close()
	tcpErr := l.tcp.Close()
	if udpErr != nil {
		return udpErr
	}
	return tcpErr
}

func (l *Listener) serveUDP(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		packet, addr, err := l.udp.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		if !l.admit(addr) {
			continue
		}

		go l.handleUDPQuery(ctx, packet, addr)
	}
}

func (l *Listener) handleUDPQuery(ctx context.Context, packet []byte, addr net.Addr) {
	started := time.Now()
	resp, err := l.facade.HandleUDP(ctx, packet, started)
	if err != nil {
		l.logger.Debug().Err(err).Str("client", addr.String()).Msg("dropping malformed query")
		return
	}

	if err := l.udp.Send(ctx, resp, addr); err != nil {
		l.logger.Debug().Err(err).Str("client", addr.String()).Msg("failed to send UDP reply")
	}
}

func (l *Listener) serveTCP(ctx context.Context) {
	for {
		conn, err := l.tcp.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		if !l.admit(conn.RemoteAddr()) {
			_ = conn.Close()
			continue
		}

		go l.handleTCPConn(ctx, conn)
	}
}

func (l *Listener) handleTCPConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	tr := transport.NewTCPConn(conn)
	remote := conn.RemoteAddr()

	for {
		packet, _, err := tr.Receive(ctx)
		if err != nil {
			return
		}

		started := time.Now()
		resp, err := l.facade.HandleTCP(ctx, packet, started)
		if err != nil {
			l.logger.Debug().Err(err).Str("client", remote.String()).Msg("dropping malformed TCP query")
			return
		}

		if err := tr.Send(ctx, resp, nil); err != nil {
			l.logger.Debug().Err(err).Str("client", remote.String()).Msg("failed to send TCP reply")
			return
		}
	}
}

// admit applies the client filter and rate limiter, in that order, to
// addr. Both checks fail closed: an address that cannot be parsed as a
// host is rejected.
func (l *Listener) admit(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	if l.filter != nil && !l.filter.IsAllowed(ip) {
		return false
	}

	if l.limiter != nil && !l.limiter.Allow(ip.String()) {
		if l.metrics != nil {
			l.metrics.RateLimitDrops.Inc()
		}
		return false
	}

	return true
}
