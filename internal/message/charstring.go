package message

import (
	"fmt"

	"github.com/polymorfiq/dns-server/internal/dnserr"
)

// maxCharstringLength is the largest value a single length octet can hold.
const maxCharstringLength = 255

// EncodeCharstring serializes a charstring: a single length octet followed
// by that many octets of content (RFC 1035 §3.3).
func EncodeCharstring(s string) ([]byte, error) {
	if len(s) > maxCharstringLength {
		return nil, &dnserr.ValidationError{
			Field:   "charstring",
			Value:   s,
			Message: fmt.Sprintf("charstring exceeds maximum length %d octets", maxCharstringLength),
		}
	}

	out := make([]byte, 0, 1+len(s))
	out = append(out, byte(len(s)))
	out = append(out, []byte(s)...)
	return out, nil
}

// DecodeCharstring reads one charstring from buf at cur, returning its
// content and the cursor advanced past it.
func DecodeCharstring(cur int, buf []byte) (string, int, error) {
	if cur >= len(buf) {
		return "", cur, &dnserr.WireFormatError{
			Operation: "decode charstring",
			Offset:    cur,
			Message:   "unexpected end of rdata while reading charstring length",
		}
	}

	length := int(buf[cur])
	start := cur + 1
	end := start + length

	if end > len(buf) {
		return "", cur, &dnserr.WireFormatError{
			Operation: "decode charstring",
			Offset:    cur,
			Message:   fmt.Sprintf("charstring length overrun: expected %d octets, only %d available", length, len(buf)-start),
		}
	}

	return string(buf[start:end]), end, nil
}
