package message

import (
	"encoding/binary"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// Question is one entry of a message's question section (RFC 1035 §4.1.2).
type Question struct {
	QName  Name
	QType  uint16
	QClass uint16
}

// ToBytes serializes the question: QNAME, QTYPE, QCLASS.
func (q Question) ToBytes() ([]byte, error) {
	encodedName, err := EncodeName(q.QName)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(encodedName)+4)
	buf = append(buf, encodedName...)

	typeClass := make([]byte, 4)
	binary.BigEndian.PutUint16(typeClass[0:2], q.QType)
	binary.BigEndian.PutUint16(typeClass[2:4], q.QClass)
	buf = append(buf, typeClass...)

	return buf, nil
}

// DecodeQuestion decodes one question entry starting at cur within the
// whole message buffer msg, returning the cursor advanced past it.
func DecodeQuestion(cur int, msg []byte) (Question, int, error) {
	qname, newCur, err := DecodeName(cur, msg)
	if err != nil {
		return Question{}, cur, err
	}

	if newCur+4 > len(msg) {
		return Question{}, cur, &dnserr.WireFormatError{
			Operation: "decode question",
			Offset:    newCur,
			Message:   "truncated question: not enough octets for QTYPE/QCLASS",
		}
	}

	q := Question{
		QName:  qname,
		QType:  binary.BigEndian.Uint16(msg[newCur : newCur+2]),
		QClass: binary.BigEndian.Uint16(msg[newCur+2 : newCur+4]),
	}

	return q, newCur + 4, nil
}

// IsNotImplemented reports whether this question's QTYPE or QCLASS falls
// outside every value the resolver recognizes.
func (q Question) IsNotImplemented() bool {
	return protocol.ValidateQType(q.QType) != nil || protocol.ValidateQClass(q.QClass) != nil
}

// multiPopQuestions reads exactly n questions from cur, threading msg
// through for pointer resolution.
func multiPopQuestions(cur int, msg []byte, n uint16) ([]Question, int, error) {
	out := make([]Question, 0, n)
	for i := uint16(0); i < n; i++ {
		q, newCur, err := DecodeQuestion(cur, msg)
		if err != nil {
			return nil, cur, err
		}
		out = append(out, q)
		cur = newCur
	}
	return out, cur, nil
}
