package delegator_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/polymorfiq/dns-server/internal/delegator"
	"github.com/polymorfiq/dns-server/internal/message"
	"github.com/polymorfiq/dns-server/internal/protocol"
)

func buildQuery(t *testing.T, id uint16) *message.Message {
	t.Helper()
	name, err := message.ParseName("example.com")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	msg := &message.Message{
		Header: message.Header{ID: id, RD: true},
		Questions: []message.Question{
			{QName: name, QType: uint16(protocol.TypeA), QClass: uint16(protocol.ClassIN)},
		},
	}
	msg.FixMetadata()
	return msg
}

// fakeUpstream answers every UDP datagram it receives with a canned
// response, echoing the query's ID so responses correlate on the wire
// the way a real name server's would.
func fakeUpstream(t *testing.T, respond func(query *message.Message) *message.Message) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			query, err := message.FromBytes(buf[:n])
			if err != nil {
				continue
			}
			resp := respond(query)
			raw, err := resp.ToBytes()
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(raw, addr)
		}
	}()

	t.Cleanup(func() { _ = conn.Close() })
	return conn.LocalAddr().String()
}

func answerWithA(query *message.Message) *message.Message {
	name, _ := message.ParseName("example.com")
	resource, _ := message.NewResource(name, uint16(protocol.TypeA), uint16(protocol.ClassIN), 300,
		message.ARecord{Address: net.IPv4(93, 184, 216, 34)})
	resp := &message.Message{
		Header:    message.Header{ID: query.Header.ID, QR: true, RD: true, RA: true, RCode: 0},
		Questions: query.Questions,
		Answers:   []message.Resource{resource},
	}
	resp.FixMetadata()
	return resp
}

func TestDelegator_Delegate_ReturnsFirstResponse(t *testing.T) {
	upstream := fakeUpstream(t, answerWithA)

	d := delegator.New([]string{upstream}, time.Second, nil, zerolog.Nop())
	resp, err := d.Delegate(context.Background(), buildQuery(t, 42))
	if err != nil {
		t.Fatalf("Delegate() failed: %v", err)
	}
	if len(resp.Answers) != 1 {
		t.Fatalf("len(resp.Answers) = %d, want 1", len(resp.Answers))
	}
	if resp.Header.ID != 42 {
		t.Errorf("resp.Header.ID = %d, want 42", resp.Header.ID)
	}
}

func TestDelegator_Delegate_NoUpstreamsConfigured(t *testing.T) {
	d := delegator.New(nil, time.Second, nil, zerolog.Nop())
	_, err := d.Delegate(context.Background(), buildQuery(t, 1))
	if err == nil {
		t.Fatal("Delegate() with no upstreams expected error, got nil")
	}
}

func TestDelegator_Delegate_AllUpstreamsUnreachable(t *testing.T) {
	d := delegator.New([]string{"127.0.0.1:1"}, 200*time.Millisecond, nil, zerolog.Nop())
	_, err := d.Delegate(context.Background(), buildQuery(t, 1))
	if err == nil {
		t.Fatal("Delegate() with an unreachable upstream expected error, got nil")
	}
}

func answerWithServFail(query *message.Message) *message.Message {
	resp := &message.Message{
		Header:    message.Header{ID: query.Header.ID, QR: true, RD: true, RA: true, RCode: uint8(protocol.RCodeServerFailure)},
		Questions: query.Questions,
	}
	resp.FixMetadata()
	return resp
}

func TestDelegator_Delegate_SlowNoerrorBeatsFastNonNoerror(t *testing.T) {
	fastWrong := fakeUpstream(t, answerWithServFail)
	slowRight := fakeUpstream(t, func(q *message.Message) *message.Message {
		time.Sleep(50 * time.Millisecond)
		return answerWithA(q)
	})

	d := delegator.New([]string{fastWrong, slowRight}, time.Second, nil, zerolog.Nop())
	resp, err := d.Delegate(context.Background(), buildQuery(t, 9))
	if err != nil {
		t.Fatalf("Delegate() failed: %v", err)
	}
	if resp.Header.RCode != uint8(protocol.RCodeNoError) {
		t.Errorf("resp.Header.RCode = %d, want noerror: a fast but wrong-rcode reply must not pre-empt a slower correct one", resp.Header.RCode)
	}
	if len(resp.Answers) != 1 {
		t.Errorf("len(resp.Answers) = %d, want 1", len(resp.Answers))
	}
}

func TestDelegator_Delegate_AllNonNoerror_ReturnsError(t *testing.T) {
	a := fakeUpstream(t, answerWithServFail)
	b := fakeUpstream(t, answerWithServFail)

	d := delegator.New([]string{a, b}, 200*time.Millisecond, nil, zerolog.Nop())
	_, err := d.Delegate(context.Background(), buildQuery(t, 10))
	if err == nil {
		t.Fatal("Delegate() with only non-noerror replies: want error, got nil")
	}
}

func TestDelegator_Delegate_FastestUpstreamWins(t *testing.T) {
	slow := fakeUpstream(t, func(q *message.Message) *message.Message {
		time.Sleep(100 * time.Millisecond)
		return answerWithA(q)
	})
	fast := fakeUpstream(t, answerWithA)

	d := delegator.New([]string{slow, fast}, time.Second, nil, zerolog.Nop())
	resp, err := d.Delegate(context.Background(), buildQuery(t, 7))
	if err != nil {
		t.Fatalf("Delegate() failed: %v", err)
	}
	if resp.Header.ID != 7 {
		t.Errorf("resp.Header.ID = %d, want 7", resp.Header.ID)
	}
}
