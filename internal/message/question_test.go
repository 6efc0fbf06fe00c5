package message

import (
	"testing"

	"github.com/polymorfiq/dns-server/internal/protocol"
)

func TestQuestion_ToBytesDecodeQuestion_RoundTrip(t *testing.T) {
	name, err := ParseName("example.com")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}

	q := Question{QName: name, QType: uint16(protocol.TypeMX), QClass: uint16(protocol.ClassIN)}

	encoded, err := q.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	decoded, newCur, err := DecodeQuestion(0, encoded)
	if err != nil {
		t.Fatalf("DecodeQuestion: %v", err)
	}
	if newCur != len(encoded) {
		t.Errorf("cursor = %d, want %d", newCur, len(encoded))
	}
	if decoded.QType != q.QType || decoded.QClass != q.QClass || !decoded.QName.Equal(q.QName) {
		t.Errorf("DecodeQuestion = %+v, want %+v", decoded, q)
	}
}

func TestQuestion_IsNotImplemented(t *testing.T) {
	name, _ := ParseName("example.com")

	tests := []struct {
		name string
		q    Question
		want bool
	}{
		{"A/IN is implemented", Question{QName: name, QType: uint16(protocol.TypeA), QClass: uint16(protocol.ClassIN)}, false},
		{"ANY qtype is implemented as a query value", Question{QName: name, QType: uint16(protocol.TypeANY), QClass: uint16(protocol.ClassIN)}, false},
		{"unassigned qtype", Question{QName: name, QType: 9000, QClass: uint16(protocol.ClassIN)}, true},
		{"unassigned qclass", Question{QName: name, QType: uint16(protocol.TypeA), QClass: 9000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.IsNotImplemented(); got != tt.want {
				t.Errorf("IsNotImplemented() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMultiPopQuestions(t *testing.T) {
	name, _ := ParseName("example.com")
	q1 := Question{QName: name, QType: uint16(protocol.TypeA), QClass: uint16(protocol.ClassIN)}
	q2 := Question{QName: name, QType: uint16(protocol.TypeMX), QClass: uint16(protocol.ClassIN)}

	b1, _ := q1.ToBytes()
	b2, _ := q2.ToBytes()
	buf := append(append([]byte{}, b1...), b2...)

	got, newCur, err := multiPopQuestions(0, buf, 2)
	if err != nil {
		t.Fatalf("multiPopQuestions: %v", err)
	}
	if newCur != len(buf) {
		t.Errorf("cursor = %d, want %d", newCur, len(buf))
	}
	if len(got) != 2 || got[0].QType != q1.QType || got[1].QType != q2.QType {
		t.Errorf("multiPopQuestions = %+v", got)
	}
}
