package protocol

import (
	"fmt"
	"strings"

	"github.com/polymorfiq/dns-server/internal/dnserr"
)

// ValidateLabel validates a single DNS label's length and character set
// per RFC 1035 §3.1 / §2.3.1.
func ValidateLabel(label string) error {
	if label == "" {
		return &dnserr.ValidationError{
			Field:   "label",
			Message: "empty label (consecutive dots)",
		}
	}

	if len(label) > MaxLabelLength {
		return &dnserr.ValidationError{
			Field:   "label",
			Value:   label,
			Message: fmt.Sprintf("label exceeds maximum length of %d octets", MaxLabelLength),
		}
	}

	for i, ch := range label {
		if !isValidLabelChar(ch) {
			return &dnserr.ValidationError{
				Field:   "label",
				Value:   label,
				Message: fmt.Sprintf("invalid character %q at position %d", ch, i),
			}
		}
	}

	return nil
}

// isValidLabelChar reports whether ch is allowed in a DNS label on send:
// [A-Za-z0-9-].
func isValidLabelChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-'
}

// ValidateName validates a dotted-form DNS name: every label and the total
// wire-format length, per RFC 1035 §3.1.
func ValidateName(name string) error {
	if name == "" {
		return nil // the root name is the empty sequence of labels
	}

	name = strings.TrimSuffix(name, ".")
	labels := strings.Split(name, ".")

	wireLength := 1 // terminating zero octet
	for _, label := range labels {
		wireLength += 1 + len(label)
	}
	if wireLength > MaxNameLength {
		return &dnserr.ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("name exceeds maximum wire length of %d octets (got %d)", MaxNameLength, wireLength),
		}
	}

	for _, label := range labels {
		if err := ValidateLabel(label); err != nil {
			return &dnserr.ValidationError{
				Field:   "name",
				Value:   name,
				Message: err.Error(),
			}
		}
	}

	return nil
}

// ValidateQType reports whether t is a value a question is permitted to
// carry: every RecordType plus the four QTYPE-only values.
func ValidateQType(t uint16) error {
	rt := RecordType(t)
	if _, ok := typeNames[rt]; !ok {
		return &dnserr.ValidationError{
			Field:   "qtype",
			Value:   t,
			Message: "unrecognized query type",
		}
	}
	return nil
}

// ValidateQClass reports whether c is a value a question is permitted to
// carry: IN/CS/CH/HS plus the QCLASS-only value ANY.
func ValidateQClass(c uint16) error {
	switch Class(c) {
	case ClassIN, ClassCS, ClassCH, ClassHS, ClassANY:
		return nil
	default:
		return &dnserr.ValidationError{
			Field:   "qclass",
			Value:   c,
			Message: "unrecognized query class",
		}
	}
}
