package transport_test

import (
	"context"
	"testing"

	"github.com/polymorfiq/dns-server/internal/transport"
)

func TestTransportInterface_HasRequiredMethods(_ *testing.T) {
	var _ transport.Transport = (*transport.MockTransport)(nil)
	var _ transport.Transport = (*transport.UDPTransport)(nil)
	var _ transport.Transport = (*transport.TCPTransport)(nil)
}

func TestMockTransport_Send_RecordsCalls(t *testing.T) {
	mock := transport.NewMockTransport()
	defer func() { _ = mock.Close() }()

	ctx := context.Background()
	packet1 := []byte{0x01, 0x02}
	packet2 := []byte{0x03, 0x04}

	if err := mock.Send(ctx, packet1, nil); err != nil {
		t.Fatalf("Send(packet1) failed: %v", err)
	}
	if err := mock.Send(ctx, packet2, nil); err != nil {
		t.Fatalf("Send(packet2) failed: %v", err)
	}

	calls := mock.SendCalls()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if string(calls[0].Packet) != string(packet1) {
		t.Errorf("calls[0].Packet = %v, want %v", calls[0].Packet, packet1)
	}
	if string(calls[1].Packet) != string(packet2) {
		t.Errorf("calls[1].Packet = %v, want %v", calls[1].Packet, packet2)
	}
}
