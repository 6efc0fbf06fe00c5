// Package processor implements the resolver's per-query state machine:
// preprocess, cache lookup, delegation, response assembly, and reply.
package processor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/polymorfiq/dns-server/internal/cache"
	"github.com/polymorfiq/dns-server/internal/delegator"
	"github.com/polymorfiq/dns-server/internal/message"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// Delegator is the subset of *delegator.Delegator a Processor depends on,
// narrowed for testability.
type Delegator interface {
	Delegate(ctx context.Context, query *message.Message) (*message.Message, error)
}

var _ Delegator = (*delegator.Delegator)(nil)

// Processor runs one query to completion: it never outlives a single
// Process call, so it carries no long-lived state of its own.
type Processor struct {
	cache     *cache.Cache
	delegator Delegator
	metrics   *metrics.Registry
	logger    zerolog.Logger
}

// New creates a Processor wired to the given cache and delegator.
func New(c *cache.Cache, d Delegator, metricsReg *metrics.Registry, logger zerolog.Logger) *Processor {
	return &Processor{cache: c, delegator: d, metrics: metricsReg, logger: logger}
}

// Process runs request through preprocess, cache lookup, delegation, and
// response assembly, then stamps the final reply's metadata and stores its
// answers in the cache. started is used as the reference instant for TTL
// arithmetic, both on cache lookups and on the final cache store.
func (p *Processor) Process(ctx context.Context, request *message.Message, started time.Time) *message.Message {
	response := seedResponse(request)

	if isNotImplemented(request) {
		response.Header.RCode = uint8(protocol.RCodeNotImplemented)
		return p.reply(response, started)
	}

	if p.cachePhase(started, request, response) {
		response.Header.RCode = uint8(protocol.RCodeNoError)
		response.FixMetadata()
		return p.reply(response, started)
	}

	delegateResp, err := p.delegator.Delegate(ctx, request)
	if err != nil {
		p.logger.Debug().Err(err).Msg("delegation produced no usable response")
		return p.reply(response, started)
	}

	p.assemble(response, request, delegateResp)
	return p.reply(response, started)
}

// seedResponse builds the initial response Message: id/opcode/rd copied
// from the request, qr set to response, aa false, ra true, rcode
// undetermined.
func seedResponse(request *message.Message) *message.Message {
	return &message.Message{
		Header: message.Header{
			ID:      request.Header.ID,
			Opcode:  request.Header.Opcode,
			RD:      request.Header.RD,
			QR:      true,
			AA:      false,
			RA:      true,
			RCode:   message.RCodeUndetermined,
		},
	}
}

// isNotImplemented reports whether request must be rejected outright:
// an IQUERY/STATUS opcode, a question with an unrecognized qtype/qclass,
// or an inbound record carrying an unrecognized type/class.
func isNotImplemented(request *message.Message) bool {
	switch request.Header.Opcode {
	case protocol.OpcodeIQuery, protocol.OpcodeStatus:
		return true
	}

	for _, q := range request.Questions {
		if q.IsNotImplemented() {
			return true
		}
	}

	for _, section := range [][]message.Resource{request.Answers, request.Authorities, request.Additionals} {
		for _, r := range section {
			if r.IsNotImplemented() {
				return true
			}
		}
	}

	return false
}

// cachePhase looks up every question in the cache, appending the
// question and any hits to response. It returns true only if every
// question produced at least one answer.
func (p *Processor) cachePhase(now time.Time, request, response *message.Message) bool {
	allHit := true

	for _, q := range request.Questions {
		hits := p.cache.Lookup(now, q)
		p.logger.Debug().
			Str("name", q.QName.String()).
			Uint16("qtype", q.QType).
			Int("hits", len(hits)).
			Msg("cache lookup")

		if len(hits) == 0 {
			allHit = false
		}

		response.Questions = append(response.Questions, q)
		response.Answers = append(response.Answers, hits...)
	}

	return allHit
}

// assemble folds a single delegate response into response per the
// response-assembly rules: questions and non-NOT_IMPLEMENTED records are
// appended and deduplicated by (class, type, name, rdata); rcode becomes
// noerror once response carries at least as many questions as request;
// the whole assembly is discarded unless the delegate itself answered
// noerror.
func (p *Processor) assemble(response, request, delegateResp *message.Message) {
	candidate := &message.Message{
		Header:       response.Header,
		Questions:    append([]message.Question{}, response.Questions...),
		Answers:      append([]message.Resource{}, response.Answers...),
		Authorities:  append([]message.Resource{}, response.Authorities...),
		Additionals:  append([]message.Resource{}, response.Additionals...),
	}

	candidate.Questions = append(candidate.Questions, delegateResp.Questions...)
	candidate.Answers = dedupeAppend(candidate.Answers, delegateResp.Answers)
	candidate.Authorities = dedupeAppend(candidate.Authorities, delegateResp.Authorities)
	candidate.Additionals = dedupeAppend(candidate.Additionals, delegateResp.Additionals)

	if len(candidate.Questions) >= len(request.Questions) {
		candidate.Header.RCode = uint8(protocol.RCodeNoError)
	}
	candidate.FixMetadata()

	if delegateResp.Header.RCode == uint8(protocol.RCodeNoError) {
		*response = *candidate
	}
}

// dedupeAppend appends additions to base, skipping records already present
// (by class/type/name/rdata) and rejecting NOT_IMPLEMENTED records.
func dedupeAppend(base []message.Resource, additions []message.Resource) []message.Resource {
	seen := make(map[message.ResourceKey]struct{}, len(base))
	for _, r := range base {
		seen[r.Key()] = struct{}{}
	}

	for _, r := range additions {
		if r.IsNotImplemented() {
			continue
		}
		key := r.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		base = append(base, r)
	}

	return base
}

// reply finalizes response: stamps its section-count metadata, stores
// every answer into the cache with started as the reference instant, and
// returns the finished Message to the caller.
func (p *Processor) reply(response *message.Message, started time.Time) *message.Message {
	response.FixMetadata()

	for _, r := range response.Answers {
		p.cache.Store(started, r)
	}

	if p.metrics != nil {
		p.metrics.QueriesTotal.WithLabelValues(rcodeLabel(response.Header.RCode)).Inc()
	}

	return response
}

// rcodeLabel maps a response's in-memory RCode to a metric label. It
// mirrors the normalization Header.ToBytes applies at serialization time:
// a query that never resolved to a real RCode (delegation returned an
// error, for example because every upstream failed or the context was
// canceled) is counted as server_failure, since
// that is what the client actually receives on the wire.
func rcodeLabel(rcode uint8) string {
	if rcode == message.RCodeUndetermined {
		return protocol.RCodeServerFailure.String()
	}
	return protocol.RCode(rcode).String()
}
