package message

import (
	"testing"

	"github.com/polymorfiq/dns-server/internal/protocol"
)

func TestHeader_ToBytesDecodeHeader_RoundTrip(t *testing.T) {
	h := Header{
		ID:      0xABCD,
		QR:      true,
		Opcode:  protocol.OpcodeQuery,
		AA:      true,
		TC:      false,
		RD:      true,
		RA:      true,
		RCode:   uint8(protocol.RCodeNoError),
		QDCount: 1,
		ANCount: 2,
		NSCount: 0,
		ARCount: 0,
	}

	encoded := h.ToBytes()
	if len(encoded) != 12 {
		t.Fatalf("encoded header length = %d, want 12", len(encoded))
	}

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}

	if decoded != h {
		t.Errorf("DecodeHeader round trip = %+v, want %+v", decoded, h)
	}
}

func TestDecodeHeader_TooShort(t *testing.T) {
	_, err := DecodeHeader([]byte{0, 1, 2})
	if err == nil {
		t.Fatal("DecodeHeader with 3 bytes expected error, got nil")
	}
}

func TestDecodeHeader_UnrecognizedOpcodeIsFormatError(t *testing.T) {
	buf := make([]byte, 12)
	// opcode bits 11-14 set to an unassigned value (e.g. 15)
	buf[2] = 0x78
	_, err := DecodeHeader(buf)
	if err == nil {
		t.Fatal("DecodeHeader with unrecognized opcode expected error, got nil")
	}
}

func TestDecodeHeader_UnrecognizedRCodeDefaultsToServerFailure(t *testing.T) {
	buf := make([]byte, 12)
	buf[3] = 0x0F // rcode = 15, unassigned
	decoded, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if decoded.RCode != uint8(protocol.RCodeServerFailure) {
		t.Errorf("RCode = %d, want %d (server_failure default)", decoded.RCode, protocol.RCodeServerFailure)
	}
}

func TestDecodeHeader_FlagBitsIndividuallyAddressable(t *testing.T) {
	buf := make([]byte, 12)
	buf[2] = 0x81 // QR=1, opcode=0000, AA=0, TC=0, RD=1
	decoded, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if !decoded.QR || !decoded.RD || decoded.AA {
		t.Errorf("flags decoded incorrectly: %+v", decoded)
	}
}
