package message

import (
	"encoding/binary"

	"github.com/polymorfiq/dns-server/internal/dnserr"
)

// Resource is one resource record: an answer, authority, or additional
// section entry (RFC 1035 §4.1.3). RData is kept as raw wire bytes so a
// Resource round-trips even when its type is not one the codec decodes;
// use DecodeRData to interpret it.
type Resource struct {
	Name     Name
	Type     uint16
	Class    uint16
	TTL      uint32
	RDLength uint16
	RData    []byte
}

// NewResource builds a Resource from a typed RData value, encoding it
// immediately so RDLength is always consistent with RData.
func NewResource(name Name, rtype, class uint16, ttl uint32, rdata RData) (Resource, error) {
	encoded, err := rdata.ToBytes()
	if err != nil {
		return Resource{}, err
	}
	return Resource{
		Name:     name,
		Type:     rtype,
		Class:    class,
		TTL:      ttl,
		RDLength: uint16(len(encoded)),
		RData:    encoded,
	}, nil
}

// IsNotImplemented reports whether this resource's type has no known
// RDATA codec and must be rejected as NOT_IMPLEMENTED.
func (r Resource) IsNotImplemented() bool {
	return IsNotImplemented(r.Type)
}

// Decode interprets RData according to Type, resolving any embedded name
// compression against the whole message buffer it came from.
func (r Resource) Decode(msg []byte, rdataOffset int) (RData, error) {
	return DecodeRData(r.Type, msg, rdataOffset, r.RDLength)
}

// Key returns the cache key tuple for this resource: class, type, the
// case-normalized name, and the raw rdata bytes.
func (r Resource) Key() ResourceKey {
	return ResourceKey{
		Class: r.Class,
		Type:  r.Type,
		Name:  r.Name.Normalize().String(),
		RData: string(r.RData),
	}
}

// ResourceKey is the comparable cache/dedup key for a Resource.
type ResourceKey struct {
	Class uint16
	Type  uint16
	Name  string
	RData string
}

// ToBytes serializes the resource: NAME, TYPE, CLASS, TTL, RDLENGTH, RDATA.
func (r Resource) ToBytes() ([]byte, error) {
	encodedName, err := EncodeName(r.Name)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(encodedName)+10+len(r.RData))
	buf = append(buf, encodedName...)

	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], r.Type)
	binary.BigEndian.PutUint16(fixed[2:4], r.Class)
	binary.BigEndian.PutUint32(fixed[4:8], r.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(r.RData)))
	buf = append(buf, fixed...)
	buf = append(buf, r.RData...)

	return buf, nil
}

// DecodeResource decodes one resource record starting at cur within the
// whole message buffer msg, returning the cursor advanced past it.
func DecodeResource(cur int, msg []byte) (Resource, int, error) {
	name, newCur, err := DecodeName(cur, msg)
	if err != nil {
		return Resource{}, cur, err
	}

	if newCur+10 > len(msg) {
		return Resource{}, cur, &dnserr.WireFormatError{
			Operation: "decode resource",
			Offset:    newCur,
			Message:   "truncated resource record: not enough octets for fixed fields",
		}
	}

	rtype := binary.BigEndian.Uint16(msg[newCur : newCur+2])
	class := binary.BigEndian.Uint16(msg[newCur+2 : newCur+4])
	ttl := binary.BigEndian.Uint32(msg[newCur+4 : newCur+8])
	rdlength := binary.BigEndian.Uint16(msg[newCur+8 : newCur+10])
	newCur += 10

	if newCur+int(rdlength) > len(msg) {
		return Resource{}, cur, &dnserr.WireFormatError{
			Operation: "decode resource",
			Offset:    newCur,
			Message:   "truncated rdata: rdlength overruns message",
		}
	}

	rdata := make([]byte, rdlength)
	copy(rdata, msg[newCur:newCur+int(rdlength)])

	r := Resource{
		Name:     name,
		Type:     rtype,
		Class:    class,
		TTL:      ttl,
		RDLength: rdlength,
		RData:    rdata,
	}

	return r, newCur + int(rdlength), nil
}

// multiPopResources reads exactly n resource records from cur, threading
// msg through for pointer resolution.
func multiPopResources(cur int, msg []byte, n uint16) ([]Resource, int, error) {
	out := make([]Resource, 0, n)
	for i := uint16(0); i < n; i++ {
		r, newCur, err := DecodeResource(cur, msg)
		if err != nil {
			return nil, cur, err
		}
		out = append(out, r)
		cur = newCur
	}
	return out, cur, nil
}
