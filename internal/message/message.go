package message

import (
	"github.com/polymorfiq/dns-server/internal/dnserr"
)

// Message is a complete DNS message: header plus its four sections
// (RFC 1035 §4.1).
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []Resource
	Authorities []Resource
	Additionals []Resource
}

// FixMetadata recomputes the header's section counts from the current
// section contents and every resource's RDLength from its RData. It is
// idempotent: running it twice leaves the message unchanged.
func (m *Message) FixMetadata() {
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authorities))
	m.Header.ARCount = uint16(len(m.Additionals))

	for i := range m.Answers {
		m.Answers[i].RDLength = uint16(len(m.Answers[i].RData))
	}
	for i := range m.Authorities {
		m.Authorities[i].RDLength = uint16(len(m.Authorities[i].RData))
	}
	for i := range m.Additionals {
		m.Additionals[i].RDLength = uint16(len(m.Additionals[i].RData))
	}
}

// ToBytes serializes the message: header, then questions, answers,
// authority, and additional sections in order. It fails only if a
// sub-encoder fails.
func (m Message) ToBytes() ([]byte, error) {
	buf := append([]byte(nil), m.Header.ToBytes()...)

	for _, q := range m.Questions {
		qb, err := q.ToBytes()
		if err != nil {
			return nil, err
		}
		buf = append(buf, qb...)
	}

	for _, sections := range [][]Resource{m.Answers, m.Authorities, m.Additionals} {
		for _, r := range sections {
			rb, err := r.ToBytes()
			if err != nil {
				return nil, err
			}
			buf = append(buf, rb...)
		}
	}

	return buf, nil
}

// FromBytes decodes a complete message from buf: the header, then
// qdcount/ancount/nscount/arcount records from the respective sections,
// passing buf as the pointer-resolution context throughout. Parsing must
// consume the entire buffer; trailing bytes are an error.
func FromBytes(buf []byte) (*Message, error) {
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	cur := headerSize

	questions, cur, err := multiPopQuestions(cur, buf, header.QDCount)
	if err != nil {
		return nil, err
	}

	answers, cur, err := multiPopResources(cur, buf, header.ANCount)
	if err != nil {
		return nil, err
	}

	authorities, cur, err := multiPopResources(cur, buf, header.NSCount)
	if err != nil {
		return nil, err
	}

	additionals, cur, err := multiPopResources(cur, buf, header.ARCount)
	if err != nil {
		return nil, err
	}

	if cur != len(buf) {
		return nil, &dnserr.WireFormatError{
			Operation: "decode message",
			Offset:    cur,
			Message:   "trailing bytes after fully decoding declared sections",
		}
	}

	return &Message{
		Header:      header,
		Questions:   questions,
		Answers:     answers,
		Authorities: authorities,
		Additionals: additionals,
	}, nil
}
