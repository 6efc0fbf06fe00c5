package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/polymorfiq/dns-server/internal/transport"
)

func TestUDPTransport_ImplementsTransportInterface(_ *testing.T) {
	var _ transport.Transport = (*transport.UDPTransport)(nil)
}

func TestUDPTransport_SendReceive_Loopback(t *testing.T) {
	server, err := transport.NewUDPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDPListener() failed: %v", err)
	}
	defer func() { _ = server.Close() }()

	client, err := transport.NewUDPClient()
	if err != nil {
		t.Fatalf("NewUDPClient() failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	serverAddr := server.LocalAddr()

	packet := []byte{0xAB, 0xCD, 0x01, 0x02}
	ctx := context.Background()
	if err := client.Send(ctx, packet, serverAddr); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	data, _, err := server.Receive(recvCtx)
	if err != nil {
		t.Fatalf("Receive() failed: %v", err)
	}
	if string(data) != string(packet) {
		t.Errorf("Receive() = %v, want %v", data, packet)
	}
}

func TestUDPTransport_Receive_RespectsContextCancellation(t *testing.T) {
	tr, err := transport.NewUDPClient()
	if err != nil {
		t.Fatalf("NewUDPClient() failed: %v", err)
	}
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, _, err = tr.Receive(ctx)
	duration := time.Since(start)

	if err == nil {
		t.Error("Receive() should return error when context is canceled")
	}
	if duration > 100*time.Millisecond {
		t.Errorf("Receive() took %v to detect cancellation", duration)
	}
}

func TestUDPTransport_Receive_PropagatesContextDeadline(t *testing.T) {
	tr, err := transport.NewUDPClient()
	if err != nil {
		t.Fatalf("NewUDPClient() failed: %v", err)
	}
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = tr.Receive(ctx)
	duration := time.Since(start)

	if err == nil {
		t.Fatal("Receive() on an idle socket with a deadline expected a timeout error")
	}
	if duration > 200*time.Millisecond {
		t.Errorf("Receive() took %v to time out, expected ~50ms", duration)
	}
}

func TestUDPTransport_Close_PropagatesErrors(t *testing.T) {
	tr, err := transport.NewUDPClient()
	if err != nil {
		t.Fatalf("NewUDPClient() failed: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	if err := tr.Close(); err == nil {
		t.Error("second Close() expected error, got nil")
	}
}

func TestBufferPool_GetReturnsSizedBuffer(t *testing.T) {
	bufPtr := transport.GetBuffer()
	defer transport.PutBuffer(bufPtr)

	if len(*bufPtr) == 0 {
		t.Fatal("GetBuffer() returned empty buffer")
	}
}

func TestBufferPool_ReusesBuffers(t *testing.T) {
	bufPtr1 := transport.GetBuffer()
	(*bufPtr1)[0] = 0xAA
	transport.PutBuffer(bufPtr1)

	bufPtr2 := transport.GetBuffer()
	defer transport.PutBuffer(bufPtr2)

	if (*bufPtr2)[0] != 0 {
		t.Error("buffer was not cleared before reuse")
	}
}
