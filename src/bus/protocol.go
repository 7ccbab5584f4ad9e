package bus

import (
	"fmt"

	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Bus packet framing. All multi-byte integers are little-endian.
const (
	// StartUnicast opens a packet addressed to a single node.
	StartUnicast = 72

	// StartMulticast opens a packet addressed to every node, used for the
	// sync trigger and for reset broadcasts.
	StartMulticast = 138

	// PortReset is reserved; ports 0-254 carry service routines.
	PortReset = 255

	// MaxPayload is the largest embedded sub-packet a bus packet carries.
	MaxPayload = 248

	// headerPrefix is the number of bytes before and including the length
	// field: start(1) + address(2) + port(1) + length(1). The receiver
	// state machine needs this to know when the length byte is in hand.
	headerPrefix = 5
)

// HeaderTemplate describes the on-wire bus packet. The payload is an
// embedded sub-packet whose layout is owned by the port's own template; the
// length field counts every numeric entry including itself, and the checksum
// is a CRC-8 (polynomial 7) over all preceding bytes.
var HeaderTemplate = wire.MustTemplate("busPacket",
	wire.Uint("startByte", 1),
	wire.Uint("address", 2),
	wire.Uint("port", 1),
	wire.Length("length", 1, true),
	wire.SubPacket("payload"),
	wire.Checksum("checksum", wire.DefaultPoly),
)

// Inbound is one reassembled, checksum-validated bus packet, as produced by
// the receiver state machine or fabricated by the synthetic responder. The
// payload is left undecoded; only the owning node knows its template.
type Inbound struct {
	Addr      uint16
	Port      byte
	Multicast bool
	Payload   []byte
}

// EncodeBusPacket wraps an encoded payload into a full bus packet.
func EncodeBusPacket(addr uint16, port byte, payload []byte, multicast bool) (*wire.Packet, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	start := uint64(StartUnicast)
	if multicast {
		start = StartMulticast
	}

	return HeaderTemplate.Encode(wire.Values{
		"startByte": start,
		"address":   uint64(addr),
		"port":      uint64(port),
		"payload":   payload,
	})
}

// DecodeBusPacket decodes a complete bus packet buffer into its routing
// header and raw payload. The synthetic responder uses it to read packets
// off the wire the same way the receiver does.
func DecodeBusPacket(data []byte) (Inbound, error) {
	vals, _, err := HeaderTemplate.Decode(data)
	if err != nil {
		return Inbound{}, err
	}

	start := vals["startByte"].(uint64)
	if start != StartUnicast && start != StartMulticast {
		return Inbound{}, fmt.Errorf("invalid start byte %d", start)
	}

	return Inbound{
		Addr:      uint16(vals["address"].(uint64)),
		Port:      byte(vals["port"].(uint64)),
		Multicast: start == StartMulticast,
		Payload:   vals["payload"].([]byte),
	}, nil
}
