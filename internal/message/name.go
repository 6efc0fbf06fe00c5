// Package message implements the RFC 1035 DNS wire format: names, headers,
// questions, resource records, and their RDATA payloads.
package message

import (
	"fmt"
	"strings"

	"github.com/polymorfiq/dns-server/internal/dnserr"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

// Name is an ordered sequence of labels. The root name is the empty slice.
type Name []string

// String renders the name in dotted form, for logging and comparisons with
// user-supplied queries. The root name renders as ".".
func (n Name) String() string {
	if len(n) == 0 {
		return "."
	}
	return strings.Join([]string(n), ".")
}

// Equal reports whether two names are identical label-for-label,
// case-sensitively. Use Normalize first for case-insensitive comparison.
func (n Name) Equal(other Name) bool {
	if len(n) != len(other) {
		return false
	}
	for i := range n {
		if n[i] != other[i] {
			return false
		}
	}
	return true
}

// Normalize returns a copy of the name with every label lowercased, the
// form used for cache keys per spec's case-insensitive name matching.
func (n Name) Normalize() Name {
	out := make(Name, len(n))
	for i, label := range n {
		out[i] = strings.ToLower(label)
	}
	return out
}

// ParseName splits a dotted-form user string (e.g. "example.com" or the
// root "." / "") into an ordered label sequence, validating each label.
func ParseName(s string) (Name, error) {
	if s == "" || s == "." {
		return Name{}, nil
	}

	s = strings.TrimSuffix(s, ".")
	labels := strings.Split(s, ".")

	if err := protocol.ValidateName(s); err != nil {
		return nil, err
	}

	return Name(labels), nil
}

// EncodeName serializes a Name to wire format: length-prefixed labels
// terminated by a zero octet. Compression pointers are never emitted on
// encode; the decoder must still accept them.
func EncodeName(name Name) ([]byte, error) {
	encoded := make([]byte, 0, protocol.MaxNameLength)

	for _, label := range name {
		if err := protocol.ValidateLabel(label); err != nil {
			return nil, err
		}
		encoded = append(encoded, byte(len(label)))
		encoded = append(encoded, []byte(label)...)
	}
	encoded = append(encoded, 0)

	if len(encoded) > protocol.MaxNameLength {
		return nil, &dnserr.ValidationError{
			Field:   "name",
			Value:   name.String(),
			Message: fmt.Sprintf("encoded name length %d exceeds maximum %d octets", len(encoded), protocol.MaxNameLength),
		}
	}

	return encoded, nil
}

// DecodeName decodes a Name starting at cursor cur within msg, following
// compression pointers (RFC 1035 §4.1.4) against the whole message buffer.
// It returns the decoded name and the cursor advanced past the name as it
// appears at cur — a pointer's own expansion never advances the returned
// cursor past the two pointer octets.
//
// Loop protection: a pointer is rejected if it targets an offset already
// visited during this decode, and decoding aborts after
// protocol.MaxCompressionPointers hops regardless.
func DecodeName(cur int, msg []byte) (Name, int, error) {
	if cur < 0 || cur >= len(msg) {
		return nil, cur, &dnserr.WireFormatError{
			Operation: "decode name",
			Offset:    cur,
			Message:   "offset out of bounds",
		}
	}

	var labels Name
	visited := make(map[int]bool)
	pos := cur
	finalCursor := -1
	hops := 0

	for {
		if pos >= len(msg) {
			return nil, cur, &dnserr.WireFormatError{
				Operation: "decode name",
				Offset:    pos,
				Message:   "unexpected end of message while decoding name",
			}
		}

		length := msg[pos]

		if length&protocol.CompressionMask == protocol.CompressionMask {
			if pos+1 >= len(msg) {
				return nil, cur, &dnserr.WireFormatError{
					Operation: "decode name",
					Offset:    pos,
					Message:   "truncated compression pointer",
				}
			}

			pointerOffset := int(msg[pos]&^protocol.CompressionMask)<<8 | int(msg[pos+1])

			if pointerOffset >= len(msg) {
				return nil, cur, &dnserr.WireFormatError{
					Operation: "decode name",
					Offset:    pos,
					Message:   fmt.Sprintf("compression pointer targets offset %d beyond message length %d", pointerOffset, len(msg)),
				}
			}

			if finalCursor == -1 {
				finalCursor = pos + 2
			}

			if visited[pointerOffset] {
				return nil, cur, &dnserr.WireFormatError{
					Operation: "decode name",
					Offset:    pos,
					Message:   fmt.Sprintf("compression pointer loop: offset %d visited twice", pointerOffset),
				}
			}
			visited[pointerOffset] = true

			hops++
			if hops > protocol.MaxCompressionPointers {
				return nil, cur, &dnserr.WireFormatError{
					Operation: "decode name",
					Offset:    pos,
					Message:   fmt.Sprintf("too many compression jumps (possible loop, exceeded %d)", protocol.MaxCompressionPointers),
				}
			}

			pos = pointerOffset
			continue
		}

		if length == 0 {
			if finalCursor == -1 {
				finalCursor = pos + 1
			}
			break
		}

		if int(length) > protocol.MaxLabelLength {
			return nil, cur, &dnserr.WireFormatError{
				Operation: "decode name",
				Offset:    pos,
				Message:   fmt.Sprintf("label length %d exceeds maximum %d octets", length, protocol.MaxLabelLength),
			}
		}

		if pos+1+int(length) > len(msg) {
			return nil, cur, &dnserr.WireFormatError{
				Operation: "decode name",
				Offset:    pos,
				Message:   fmt.Sprintf("truncated label: expected %d octets, only %d available", length, len(msg)-pos-1),
			}
		}

		label := string(msg[pos+1 : pos+1+int(length)])
		if err := protocol.ValidateLabel(label); err != nil {
			return nil, cur, &dnserr.WireFormatError{
				Operation: "decode name",
				Offset:    pos,
				Message:   err.Error(),
			}
		}

		labels = append(labels, label)
		pos += 1 + int(length)
	}

	if labels == nil {
		labels = Name{}
	}

	return labels, finalCursor, nil
}
