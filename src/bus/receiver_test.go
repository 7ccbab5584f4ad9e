package bus

import (
	"reflect"
	"testing"
	"time"

	"github.com/stagecraft-robotics/lockstep/src/common"
)

// One stream carrying noise, a corrupted packet, and a valid packet must
// yield exactly the valid packet.
func TestReceiverResilience(t *testing.T) {
	near, far := NewLoopback()
	p := NewPipeline(fastConfig(), near, common.NewTestEntry(t))
	p.StartReceiver()
	defer p.Shutdown()

	valid := []byte{72, 5, 0, 2, 6, 1, 123}

	corrupt := make([]byte, len(valid))
	copy(corrupt, valid)
	corrupt[len(corrupt)-1] ^= 0xFF

	stream := []byte{0x00, 0x37, 0xFE}
	stream = append(stream, corrupt...)
	stream = append(stream, valid...)

	if err := far.Write(stream); err != nil {
		t.Fatal(err)
	}

	select {
	case in := <-p.Inbound():
		expected := Inbound{Addr: 5, Port: 2, Payload: []byte{1}}
		if !reflect.DeepEqual(in, expected) {
			t.Fatalf("received %+v, expected %+v", in, expected)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the valid packet")
	}

	select {
	case in := <-p.Inbound():
		t.Fatalf("unexpected second packet: %+v", in)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReceiverMulticast(t *testing.T) {
	near, far := NewLoopback()
	p := NewPipeline(fastConfig(), near, common.NewTestEntry(t))
	p.StartReceiver()
	defer p.Shutdown()

	pkt, err := EncodeBusPacket(0, 9, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := far.Write(pkt.Data); err != nil {
		t.Fatal(err)
	}

	select {
	case in := <-p.Inbound():
		if !in.Multicast {
			t.Fatal("packet not flagged multicast")
		}
		if in.Port != 9 {
			t.Fatalf("port is %d, expected 9", in.Port)
		}
		if len(in.Payload) != 0 {
			t.Fatalf("unexpected payload: %v", in.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the multicast packet")
	}
}

// A gap in the byte stream longer than the read window must discard the
// partial packet; the same packet sent whole afterwards still goes through.
func TestReceiverDiscardsPartialOnGap(t *testing.T) {
	near, far := NewLoopback()
	p := NewPipeline(fastConfig(), near, common.NewTestEntry(t))
	p.StartReceiver()
	defer p.Shutdown()

	valid := []byte{72, 5, 0, 2, 6, 1, 123}

	if err := far.Write(valid[:4]); err != nil {
		t.Fatal(err)
	}

	// Let the read window expire with the packet half assembled.
	time.Sleep(5 * fastConfig().ReadTimeout)

	if err := far.Write(valid); err != nil {
		t.Fatal(err)
	}

	select {
	case in := <-p.Inbound():
		if in.Addr != 5 || in.Port != 2 {
			t.Fatalf("received %+v", in)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the whole packet")
	}

	select {
	case in := <-p.Inbound():
		t.Fatalf("partial packet was not discarded: %+v", in)
	case <-time.After(50 * time.Millisecond):
	}
}
