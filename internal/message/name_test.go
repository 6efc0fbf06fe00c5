package message

import (
	"testing"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Name
		wantErr bool
	}{
		{"simple name", "example.com", Name{"example", "com"}, false},
		{"trailing dot", "example.com.", Name{"example", "com"}, false},
		{"root empty string", "", Name{}, false},
		{"root dot", ".", Name{}, false},
		{"single label", "localhost", Name{"localhost"}, false},
		{"invalid character", "bad label.com", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseName(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseName(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeName_RoundTrip(t *testing.T) {
	tests := []Name{
		{"example", "com"},
		{"a", "b", "c", "d"},
		{},
		{"localhost"},
	}

	for _, name := range tests {
		encoded, err := EncodeName(name)
		if err != nil {
			t.Fatalf("EncodeName(%v) unexpected error: %v", name, err)
		}

		decoded, newCur, err := DecodeName(0, encoded)
		if err != nil {
			t.Fatalf("DecodeName after encoding %v: unexpected error: %v", name, err)
		}
		if newCur != len(encoded) {
			t.Errorf("DecodeName(%v) cursor = %d, want %d", name, newCur, len(encoded))
		}
		if !decoded.Equal(name) {
			t.Errorf("round trip %v -> %v", name, decoded)
		}
	}
}

func TestEncodeName_Empty(t *testing.T) {
	encoded, err := EncodeName(Name{})
	if err != nil {
		t.Fatalf("EncodeName(empty) unexpected error: %v", err)
	}
	if len(encoded) != 1 || encoded[0] != 0 {
		t.Errorf("EncodeName(empty) = %v, want [0]", encoded)
	}
}

func TestEncodeName_LabelTooLong(t *testing.T) {
	label := ""
	for i := 0; i < 64; i++ {
		label += "a"
	}
	_, err := EncodeName(Name{label})
	if err == nil {
		t.Fatal("EncodeName with 64-octet label expected error, got nil")
	}
}

func TestDecodeName_CompressionPointer(t *testing.T) {
	// "example.com" at offset 0, then a second name that points back to it.
	msg := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		3, 'c', 'o', 'm',
		0,
		0xC0, 0x00, // pointer to offset 0
	}

	decoded, newCur, err := DecodeName(13, msg)
	if err != nil {
		t.Fatalf("DecodeName with compression pointer: unexpected error: %v", err)
	}
	if newCur != 15 {
		t.Errorf("DecodeName cursor = %d, want 15", newCur)
	}
	want := Name{"example", "com"}
	if !decoded.Equal(want) {
		t.Errorf("DecodeName via pointer = %v, want %v", decoded, want)
	}
}

func TestDecodeName_CompressionLoop(t *testing.T) {
	// Pointer at offset 0 points to offset 0: an immediate self-loop.
	msg := []byte{0xC0, 0x00}

	_, _, err := DecodeName(0, msg)
	if err == nil {
		t.Fatal("DecodeName with self-referential pointer expected error, got nil")
	}
}

func TestDecodeName_PointerBeyondMessage(t *testing.T) {
	msg := []byte{0xC0, 0xFF}

	_, _, err := DecodeName(0, msg)
	if err == nil {
		t.Fatal("DecodeName with out-of-range pointer expected error, got nil")
	}
}

func TestNameNormalize(t *testing.T) {
	n := Name{"ExAmple", "COM"}
	got := n.Normalize()
	want := Name{"example", "com"}
	if !got.Equal(want) {
		t.Errorf("Normalize() = %v, want %v", got, want)
	}
}
