package bus

import (
	"reflect"
	"testing"
)

func TestBusPacketRoundTrip(t *testing.T) {
	pkt, err := EncodeBusPacket(5, 2, []byte{1}, false)
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{72, 5, 0, 2, 6, 1, 123}
	if !reflect.DeepEqual(pkt.Data, expected) {
		t.Fatalf("encoded %v, expected %v", pkt.Data, expected)
	}

	in, err := DecodeBusPacket(pkt.Data)
	if err != nil {
		t.Fatal(err)
	}

	if in.Addr != 5 || in.Port != 2 || in.Multicast {
		t.Fatalf("decoded %+v", in)
	}
	if !reflect.DeepEqual(in.Payload, []byte{1}) {
		t.Fatalf("payload is %v, expected [1]", in.Payload)
	}
}

func TestDecodeRejectsBadStartByte(t *testing.T) {
	pkt, err := EncodeBusPacket(5, 2, []byte{1}, false)
	if err != nil {
		t.Fatal(err)
	}

	bad := make([]byte, len(pkt.Data))
	copy(bad, pkt.Data)
	bad[0] = 0x10

	if _, err := DecodeBusPacket(bad); err == nil {
		t.Fatal("expected an invalid start byte error")
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := EncodeBusPacket(5, 2, make([]byte, MaxPayload+1), false)
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
