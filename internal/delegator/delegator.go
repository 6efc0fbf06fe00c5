// Package delegator forwards a query to the resolver's configured
// upstream name servers and returns the first usable answer. It has no
// notion of caching or client framing; the Processor owns that.
package delegator

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/message"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/protocol"
	"github.com/polymorfiq/dns-server/internal/transport"
	"github.com/rs/zerolog"
)

// Delegator probes every configured upstream in parallel and returns the
// first noerror answer. An upstream whose UDP response sets TC=1 is
// re-queried over TCP before its answer is accepted.
type Delegator struct {
	upstreams []string
	timeout   time.Duration
	metrics   *metrics.Registry
	logger    zerolog.Logger
}

// New creates a Delegator. upstreams are host:port strings; timeout
// bounds how long Delegate waits for any upstream to answer.
func New(upstreams []string, timeout time.Duration, metricsReg *metrics.Registry, logger zerolog.Logger) *Delegator {
	return &Delegator{
		upstreams: upstreams,
		timeout:   timeout,
		metrics:   metricsReg,
		logger:    logger,
	}
}

type probeResult struct {
	msg      *message.Message
	upstream string
	protocol string
}

// Delegate sends query to every configured upstream concurrently and
// returns the first noerror response. A reply carrying any other RCode
// does not pre-empt the race: it is logged and discarded, and Delegate
// keeps waiting on the remaining probes in case a slower upstream still
// answers noerror. Upstreams that error out, time out, or return garbage
// are likewise logged and otherwise ignored — only if every upstream
// fails to produce a noerror response does Delegate return an error.
func (d *Delegator) Delegate(ctx context.Context, query *message.Message) (*message.Message, error) {
	if len(d.upstreams) == 0 {
		return nil, &dnserr.NetworkError{
			Operation: "delegate query",
			Err:       errors.New("no upstream name servers configured"),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resultCh := make(chan probeResult, len(d.upstreams))
	g, gctx := errgroup.WithContext(ctx)

	for _, upstream := range d.upstreams {
		upstream := upstream
		g.Go(func() error {
			resp, proto, err := d.probeUpstream(gctx, upstream, query)
			if err != nil {
				d.logger.Debug().Str("upstream", upstream).Err(err).Msg("upstream probe failed")
				return nil
			}

			if resp.Header.RCode != uint8(protocol.RCodeNoError) {
				d.logger.Debug().
					Str("upstream", upstream).
					Uint8("rcode", resp.Header.RCode).
					Msg("ignoring non-noerror reply, awaiting remaining upstreams")
				return nil
			}

			select {
			case resultCh <- probeResult{msg: resp, upstream: upstream, protocol: proto}:
			case <-gctx.Done():
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case r := <-resultCh:
		cancel()
		<-done
		return r.msg, nil
	case <-done:
		return nil, &dnserr.NetworkError{
			Operation: "delegate query",
			Err:       errors.New("no upstream returned a usable response"),
		}
	case <-ctx.Done():
		<-done
		return nil, &dnserr.NetworkError{Operation: "delegate query", Err: ctx.Err()}
	}
}

// probeUpstream queries upstream over UDP, escalating to TCP if the UDP
// reply is truncated.
func (d *Delegator) probeUpstream(ctx context.Context, upstream string, query *message.Message) (*message.Message, string, error) {
	start := time.Now()
	resp, err := d.queryUDP(ctx, upstream, query)
	if err != nil {
		return nil, "", err
	}
	d.observeLatency(upstream, "udp", time.Since(start))

	if !resp.Header.TC {
		return resp, "udp", nil
	}

	start = time.Now()
	resp, err = d.queryTCP(ctx, upstream, query)
	if err != nil {
		return nil, "", err
	}
	d.observeLatency(upstream, "tcp", time.Since(start))

	return resp, "tcp", nil
}

func (d *Delegator) observeLatency(upstream, proto string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.UpstreamLatency.WithLabelValues(upstream, proto).Observe(elapsed.Seconds())
}

func (d *Delegator) queryUDP(ctx context.Context, upstream string, query *message.Message) (*message.Message, error) {
	raw, err := query.ToBytes()
	if err != nil {
		return nil, err
	}

	destAddr, err := net.ResolveUDPAddr("udp", upstream)
	if err != nil {
		return nil, &dnserr.NetworkError{Operation: "resolve upstream", Err: err, Details: upstream}
	}

	tr, err := transport.NewUDPClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tr.Close() }()

	if err := tr.Send(ctx, raw, destAddr); err != nil {
		return nil, err
	}

	for {
		respBytes, srcAddr, err := tr.Receive(ctx)
		if err != nil {
			return nil, err
		}

		if !sameUDPAddr(srcAddr, destAddr) {
			d.logger.Debug().
				Str("upstream", upstream).
				Str("source", srcAddr.String()).
				Msg("discarding reply from unexpected source")
			continue
		}

		return message.FromBytes(respBytes)
	}
}

// sameUDPAddr reports whether addr is the socket we dialed, guarding
// against an off-path host spoofing a reply into the probe's ephemeral
// port before the real upstream answers.
func sameUDPAddr(addr net.Addr, dest *net.UDPAddr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}
	return udpAddr.IP.Equal(dest.IP) && udpAddr.Port == dest.Port
}

func (d *Delegator) queryTCP(ctx context.Context, upstream string, query *message.Message) (*message.Message, error) {
	raw, err := query.ToBytes()
	if err != nil {
		return nil, err
	}

	tr, err := transport.DialTCP(ctx, upstream)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tr.Close() }()

	if err := tr.Send(ctx, raw, nil); err != nil {
		return nil, err
	}

	respBytes, _, err := tr.Receive(ctx)
	if err != nil {
		return nil, err
	}

	return message.FromBytes(respBytes)
}
