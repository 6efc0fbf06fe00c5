package message

import (
	"encoding/binary"
	"fmt"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// headerSize is the fixed 12-octet DNS header layout (RFC 1035 §4.1.1).
const headerSize = 12

// RCodeUndetermined is a sentinel the Processor uses internally to mean "no
// rcode decided yet"; it is never the value of a decoded wire header.
const RCodeUndetermined = 0xFF

// Header is the fixed 12-octet DNS header, unpacked into its individual
// bit fields rather than a single packed flags word.
type Header struct {
	ID      uint16
	QR      bool // query (false) or response (true)
	Opcode  protocol.Opcode
	AA      bool // authoritative answer
	TC      bool // truncated
	RD      bool // recursion desired
	RA      bool // recursion available
	Z       uint8
	RCode   uint8 // protocol.RCode value, or RCodeUndetermined while in flight
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// ToBytes serializes the header to its 12-octet wire form.
func (h Header) ToBytes() []byte {
	buf := make([]byte, headerSize)

	binary.BigEndian.PutUint16(buf[0:2], h.ID)

	var flags uint16
	if h.QR {
		flags |= 1 << 15
	}
	flags |= uint16(h.Opcode&0x0F) << 11
	if h.AA {
		flags |= 1 << 10
	}
	if h.TC {
		flags |= 1 << 9
	}
	if h.RD {
		flags |= 1 << 8
	}
	if h.RA {
		flags |= 1 << 7
	}
	flags |= uint16(h.Z&0x07) << 4
	rcode := h.RCode
	if rcode == RCodeUndetermined {
		rcode = uint8(protocol.RCodeServerFailure)
	}
	flags |= uint16(rcode & 0x0F)
	binary.BigEndian.PutUint16(buf[2:4], flags)

	binary.BigEndian.PutUint16(buf[4:6], h.QDCount)
	binary.BigEndian.PutUint16(buf[6:8], h.ANCount)
	binary.BigEndian.PutUint16(buf[8:10], h.NSCount)
	binary.BigEndian.PutUint16(buf[10:12], h.ARCount)

	return buf
}

// PeekID reads just the 2-octet transaction ID from the start of msg,
// without validating the rest of the header. It lets a caller that failed
// to fully decode a message still echo the query's ID back in a
// format_error reply, per RFC 1035 §4.1.1.
func PeekID(msg []byte) (uint16, bool) {
	if len(msg) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(msg[0:2]), true
}

// DecodeHeader decodes the fixed 12-octet header from the start of msg.
//
// An rcode value outside the recognized set decodes as server_failure (a
// defensive default); an opcode outside {query, iquery, status} is
// surfaced as a wire format error since encoders never emit one.
func DecodeHeader(msg []byte) (Header, error) {
	if len(msg) < headerSize {
		return Header{}, &dnserr.WireFormatError{
			Operation: "decode header",
			Offset:    0,
			Message:   fmt.Sprintf("message too short for header: %d octets, need at least %d", len(msg), headerSize),
		}
	}

	flags := binary.BigEndian.Uint16(msg[2:4])

	opcode := protocol.Opcode((flags >> 11) & 0x0F)
	switch opcode {
	case protocol.OpcodeQuery, protocol.OpcodeIQuery, protocol.OpcodeStatus:
	default:
		return Header{}, &dnserr.WireFormatError{
			Operation: "decode header",
			Offset:    2,
			Message:   fmt.Sprintf("unrecognized opcode %d", opcode),
		}
	}

	rcode := uint8(flags & 0x0F)
	switch protocol.RCode(rcode) {
	case protocol.RCodeNoError, protocol.RCodeFormatError, protocol.RCodeServerFailure,
		protocol.RCodeNameError, protocol.RCodeNotImplemented, protocol.RCodeRefused:
	default:
		rcode = uint8(protocol.RCodeServerFailure)
	}

	h := Header{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		QR:      flags&(1<<15) != 0,
		Opcode:  opcode,
		AA:      flags&(1<<10) != 0,
		TC:      flags&(1<<9) != 0,
		RD:      flags&(1<<8) != 0,
		RA:      flags&(1<<7) != 0,
		Z:       uint8((flags >> 4) & 0x07),
		RCode:   rcode,
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}

	return h, nil
}
