package message

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// RData is the decoded, type-specific payload of a resource record.
type RData interface {
	// ToBytes serializes the rdata to wire format.
	ToBytes() ([]byte, error)
}

// ARecord holds an A record's IPv4 address (RFC 1035 §3.4.1).
type ARecord struct {
	Address net.IP
}

func (r ARecord) ToBytes() ([]byte, error) {
	v4 := r.Address.To4()
	if v4 == nil {
		return nil, &dnserr.ValidationError{
			Field:   "a_record_address",
			Value:   r.Address.String(),
			Message: "a_record_unexpected_ipv6",
		}
	}
	return []byte(v4), nil
}

// NameRecord holds the single-name RDATA shared by NS, MD, MF, CNAME, MB,
// MG, MR, and PTR records (RFC 1035 §3.3.x).
type NameRecord struct {
	Name Name
}

func (r NameRecord) ToBytes() ([]byte, error) {
	return EncodeName(r.Name)
}

// SOARecord marks the start of a zone of authority (RFC 1035 §3.3.13).
type SOARecord struct {
	MName   Name
	RName   Name
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (r SOARecord) ToBytes() ([]byte, error) {
	mname, err := EncodeName(r.MName)
	if err != nil {
		return nil, err
	}
	rname, err := EncodeName(r.RName)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(mname)+len(rname)+20)
	buf = append(buf, mname...)
	buf = append(buf, rname...)

	var fixed [20]byte
	binary.BigEndian.PutUint32(fixed[0:4], r.Serial)
	binary.BigEndian.PutUint32(fixed[4:8], r.Refresh)
	binary.BigEndian.PutUint32(fixed[8:12], r.Retry)
	binary.BigEndian.PutUint32(fixed[12:16], r.Expire)
	binary.BigEndian.PutUint32(fixed[16:20], r.Minimum)
	buf = append(buf, fixed[:]...)

	return buf, nil
}

// NULLRecord is an experimental, opaque RR (RFC 1035 §3.3.10).
type NULLRecord struct {
	Data []byte
}

func (r NULLRecord) ToBytes() ([]byte, error) {
	return append([]byte(nil), r.Data...), nil
}

// WKSRecord describes a well known service (RFC 1035 §3.4.2).
type WKSRecord struct {
	Address  [4]byte
	Protocol uint8
	Bitmap   []byte
}

func (r WKSRecord) ToBytes() ([]byte, error) {
	buf := make([]byte, 0, 5+len(r.Bitmap))
	buf = append(buf, r.Address[:]...)
	buf = append(buf, r.Protocol)
	buf = append(buf, r.Bitmap...)
	return buf, nil
}

// HINFORecord carries host information (RFC 1035 §3.3.2).
type HINFORecord struct {
	CPU string
	OS  string
}

func (r HINFORecord) ToBytes() ([]byte, error) {
	cpu, err := EncodeCharstring(r.CPU)
	if err != nil {
		return nil, err
	}
	os, err := EncodeCharstring(r.OS)
	if err != nil {
		return nil, err
	}
	return append(cpu, os...), nil
}

// MINFORecord carries mailbox/mail-list information (RFC 1035 §3.3.7).
type MINFORecord struct {
	RMailBx Name
	EMailBx Name
}

func (r MINFORecord) ToBytes() ([]byte, error) {
	rmail, err := EncodeName(r.RMailBx)
	if err != nil {
		return nil, err
	}
	email, err := EncodeName(r.EMailBx)
	if err != nil {
		return nil, err
	}
	return append(rmail, email...), nil
}

// MXRecord identifies a mail exchange (RFC 1035 §3.3.9).
type MXRecord struct {
	Preference uint16
	Exchange   Name
}

func (r MXRecord) ToBytes() ([]byte, error) {
	exchange, err := EncodeName(r.Exchange)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 2, 2+len(exchange))
	binary.BigEndian.PutUint16(buf, r.Preference)
	return append(buf, exchange...), nil
}

// TXTRecord carries one or more descriptive charstrings (RFC 1035 §3.3.14).
type TXTRecord struct {
	TXTData []string
}

func (r TXTRecord) ToBytes() ([]byte, error) {
	var buf []byte
	for _, s := range r.TXTData {
		enc, err := EncodeCharstring(s)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

// UnknownRecord stores the raw bytes of a record type the resolver does
// not recognize. Resources carrying it are marked NOT_IMPLEMENTED.
type UnknownRecord struct {
	Raw []byte
}

func (r UnknownRecord) ToBytes() ([]byte, error) {
	return append([]byte(nil), r.Raw...), nil
}

// DecodeRData decodes the rdlength octets at msg[rdataStart:rdataStart+rdlength]
// into a type-specific RData, per the table in RFC 1035 §3.3-§3.4. Names
// embedded in rdata are decoded against the whole message so that
// compression pointers resolve correctly.
func DecodeRData(rtype uint16, msg []byte, rdataStart int, rdlength uint16) (RData, error) {
	end := rdataStart + int(rdlength)
	if end > len(msg) {
		return nil, &dnserr.WireFormatError{
			Operation: "decode rdata",
			Offset:    rdataStart,
			Message:   fmt.Sprintf("rdlength %d overruns message (only %d octets available)", rdlength, len(msg)-rdataStart),
		}
	}
	rdata := msg[rdataStart:end]

	switch protocol.RecordType(rtype) {
	case protocol.TypeA:
		if len(rdata) != 4 {
			return nil, &dnserr.WireFormatError{
				Operation: "decode A rdata",
				Offset:    rdataStart,
				Message:   fmt.Sprintf("invalid A record length: %d octets, expected 4", len(rdata)),
			}
		}
		return ARecord{Address: net.IPv4(rdata[0], rdata[1], rdata[2], rdata[3])}, nil

	case protocol.TypeNS, protocol.TypeMD, protocol.TypeMF, protocol.TypeCNAME,
		protocol.TypeMB, protocol.TypeMG, protocol.TypeMR, protocol.TypePTR:
		name, newCur, err := DecodeName(rdataStart, msg)
		if err != nil {
			return nil, err
		}
		if newCur != end {
			return nil, &dnserr.WireFormatError{
				Operation: "decode name rdata",
				Offset:    rdataStart,
				Message:   fmt.Sprintf("rdlength mismatch: name decode consumed to %d, expected %d", newCur, end),
			}
		}
		return NameRecord{Name: name}, nil

	case protocol.TypeSOA:
		mname, cur, err := DecodeName(rdataStart, msg)
		if err != nil {
			return nil, err
		}
		rname, cur2, err := DecodeName(cur, msg)
		if err != nil {
			return nil, err
		}
		if cur2+20 != end {
			return nil, &dnserr.WireFormatError{
				Operation: "decode SOA rdata",
				Offset:    cur2,
				Message:   fmt.Sprintf("rdlength mismatch: expected 20 trailing octets, got %d", end-cur2),
			}
		}
		return SOARecord{
			MName:   mname,
			RName:   rname,
			Serial:  binary.BigEndian.Uint32(msg[cur2 : cur2+4]),
			Refresh: binary.BigEndian.Uint32(msg[cur2+4 : cur2+8]),
			Retry:   binary.BigEndian.Uint32(msg[cur2+8 : cur2+12]),
			Expire:  binary.BigEndian.Uint32(msg[cur2+12 : cur2+16]),
			Minimum: binary.BigEndian.Uint32(msg[cur2+16 : cur2+20]),
		}, nil

	case protocol.TypeNULL:
		return NULLRecord{Data: append([]byte(nil), rdata...)}, nil

	case protocol.TypeWKS:
		if len(rdata) < 5 {
			return nil, &dnserr.WireFormatError{
				Operation: "decode WKS rdata",
				Offset:    rdataStart,
				Message:   fmt.Sprintf("truncated WKS record: %d octets, expected at least 5", len(rdata)),
			}
		}
		var addr [4]byte
		copy(addr[:], rdata[0:4])
		return WKSRecord{
			Address:  addr,
			Protocol: rdata[4],
			Bitmap:   append([]byte(nil), rdata[5:]...),
		}, nil

	case protocol.TypeHINFO:
		cpu, cur, err := DecodeCharstring(0, rdata)
		if err != nil {
			return nil, err
		}
		os, cur2, err := DecodeCharstring(cur, rdata)
		if err != nil {
			return nil, err
		}
		if cur2 != len(rdata) {
			return nil, &dnserr.WireFormatError{
				Operation: "decode HINFO rdata",
				Offset:    rdataStart + cur2,
				Message:   "trailing octets after two charstrings",
			}
		}
		return HINFORecord{CPU: cpu, OS: os}, nil

	case protocol.TypeMINFO:
		rmail, cur, err := DecodeName(rdataStart, msg)
		if err != nil {
			return nil, err
		}
		email, cur2, err := DecodeName(cur, msg)
		if err != nil {
			return nil, err
		}
		if cur2 != end {
			return nil, &dnserr.WireFormatError{
				Operation: "decode MINFO rdata",
				Offset:    cur2,
				Message:   "rdlength mismatch after two names",
			}
		}
		return MINFORecord{RMailBx: rmail, EMailBx: email}, nil

	case protocol.TypeMX:
		if len(rdata) < 3 {
			return nil, &dnserr.WireFormatError{
				Operation: "decode MX rdata",
				Offset:    rdataStart,
				Message:   fmt.Sprintf("truncated MX record: %d octets, expected at least 3", len(rdata)),
			}
		}
		preference := binary.BigEndian.Uint16(rdata[0:2])
		exchange, cur, err := DecodeName(rdataStart+2, msg)
		if err != nil {
			return nil, err
		}
		if cur != end {
			return nil, &dnserr.WireFormatError{
				Operation: "decode MX rdata",
				Offset:    cur,
				Message:   "rdlength mismatch after exchange name",
			}
		}
		return MXRecord{Preference: preference, Exchange: exchange}, nil

	case protocol.TypeTXT:
		var strs []string
		cur := 0
		for cur < len(rdata) {
			s, newCur, err := DecodeCharstring(cur, rdata)
			if err != nil {
				return nil, err
			}
			strs = append(strs, s)
			cur = newCur
		}
		return TXTRecord{TXTData: strs}, nil

	default:
		return UnknownRecord{Raw: append([]byte(nil), rdata...)}, nil
	}
}

// IsNotImplemented reports whether rtype has no known RDATA codec — the
// Resource carrying it must be marked NOT_IMPLEMENTED.
func IsNotImplemented(rtype uint16) bool {
	_, ok := rdataSupported[protocol.RecordType(rtype)]
	return !ok
}

var rdataSupported = map[protocol.RecordType]struct{}{
	protocol.TypeA:     {},
	protocol.TypeNS:    {},
	protocol.TypeMD:    {},
	protocol.TypeMF:    {},
	protocol.TypeCNAME: {},
	protocol.TypeSOA:   {},
	protocol.TypeMB:    {},
	protocol.TypeMG:    {},
	protocol.TypeMR:    {},
	protocol.TypeNULL:  {},
	protocol.TypeWKS:   {},
	protocol.TypePTR:   {},
	protocol.TypeHINFO: {},
	protocol.TypeMINFO: {},
	protocol.TypeMX:    {},
	protocol.TypeTXT:   {},
}
