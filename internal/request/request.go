// Package request implements the façade between raw wire bytes and the
// Processor: parse, process, re-serialize, and — for UDP — truncate an
// oversized reply.
package request

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/polymorfiq/dns-server/internal/cache"
	"github.com/polymorfiq/dns-server/internal/message"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/processor"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// Facade converts inbound bytes into a Message, runs it through a fresh
// Processor, and re-serializes the reply. One Facade call corresponds to
// one client conversation: a single UDP datagram, or a single framed
// message on a TCP connection.
//
// A Processor has no timeout of its own: if every upstream the Delegator
// tries hangs rather than erroring out, Process blocks until its context
// is canceled. The Facade supplies that bound — queryTimeout — so a
// stuck query still gets a server_failure reply instead of leaking.
type Facade struct {
	cache        *cache.Cache
	delegator    processor.Delegator
	metrics      *metrics.Registry
	logger       zerolog.Logger
	truncateSize int
	queryTimeout time.Duration
}

// New creates a Facade. truncateSize bounds the octet length of a UDP
// reply (RFC 1035 §2.3.4 default is 512) before it must be replaced with
// a truncation indicator. queryTimeout bounds one Process call end to
// end; a zero value disables the bound.
func New(c *cache.Cache, d processor.Delegator, metricsReg *metrics.Registry, logger zerolog.Logger, truncateSize int, queryTimeout time.Duration) *Facade {
	return &Facade{cache: c, delegator: d, metrics: metricsReg, logger: logger, truncateSize: truncateSize, queryTimeout: queryTimeout}
}

// HandleUDP parses payload, processes it, and serializes the reply,
// replacing it with an empty, TC-flagged message if the encoded reply
// exceeds truncateSize octets.
func (f *Facade) HandleUDP(ctx context.Context, payload []byte, started time.Time) ([]byte, error) {
	raw, err := f.handle(ctx, payload, started)
	if err != nil {
		return nil, err
	}

	if len(raw) <= f.truncateSize {
		return raw, nil
	}

	msg, err := message.FromBytes(raw)
	if err != nil {
		return nil, err
	}

	return truncatedReply(msg)
}

// HandleTCP parses payload, processes it, and serializes the reply. The
// caller is responsible for the two-octet length prefix (internal/transport
// handles that at the socket layer); no truncation applies here.
func (f *Facade) HandleTCP(ctx context.Context, payload []byte, started time.Time) ([]byte, error) {
	return f.handle(ctx, payload, started)
}

func (f *Facade) handle(ctx context.Context, payload []byte, started time.Time) ([]byte, error) {
	msg, err := message.FromBytes(payload)
	if err != nil {
		f.logger.Debug().Err(err).Msg("failed to parse client request")
		id, ok := message.PeekID(payload)
		if !ok {
			return nil, err
		}
		return formatErrorReply(id).ToBytes()
	}

	if f.queryTimeout <= 0 {
		p := processor.New(f.cache, f.delegator, f.metrics, f.logger)
		return p.Process(ctx, msg, started).ToBytes()
	}

	queryCtx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	done := make(chan *message.Message, 1)
	go func() {
		p := processor.New(f.cache, f.delegator, f.metrics, f.logger)
		done <- p.Process(queryCtx, msg, started)
	}()

	select {
	case resp := <-done:
		return resp.ToBytes()
	case <-queryCtx.Done():
		f.logger.Debug().Uint16("id", msg.Header.ID).Msg("query exceeded timeout, replying server_failure")
		return serverFailureReply(msg).ToBytes()
	}
}

// formatErrorReply builds a minimal format_error response when a client
// request could not be parsed at all. id is recovered directly from the
// wire bytes since the rest of the header could not be decoded.
func formatErrorReply(id uint16) *message.Message {
	resp := &message.Message{
		Header: message.Header{
			ID:    id,
			QR:    true,
			RA:    true,
			RCode: uint8(protocol.RCodeFormatError),
		},
	}
	resp.FixMetadata()
	return resp
}

// serverFailureReply builds a minimal server_failure response when the
// Facade's own timeout fires before the Processor produces one.
func serverFailureReply(request *message.Message) *message.Message {
	resp := &message.Message{
		Header: message.Header{
			ID:     request.Header.ID,
			Opcode: request.Header.Opcode,
			RD:     request.Header.RD,
			QR:     true,
			RA:     true,
			RCode:  uint8(protocol.RCodeServerFailure),
		},
	}
	resp.FixMetadata()
	return resp
}

// truncatedReply replaces resp's sections with empty lists and sets TC,
// per RFC 1035 §2.3.4's truncation indicator.
func truncatedReply(resp *message.Message) ([]byte, error) {
	truncated := &message.Message{Header: resp.Header}
	truncated.Header.TC = true
	truncated.FixMetadata()
	return truncated.ToBytes()
}
