package wire

import (
	"reflect"
	"testing"
)

func TestEncodeCommandPacket(t *testing.T) {
	tmpl := MustTemplate("command",
		Uint("startByte", 1),
		Uint("address", 2),
		Uint("port", 1),
		Length("length", 1, true),
		Uint("commandCode", 1),
		Checksum("checksum", DefaultPoly),
	)

	pkt, err := tmpl.Encode(Values{
		"startByte":   uint64(72),
		"address":     uint64(5),
		"port":        uint64(2),
		"commandCode": uint64(1),
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{72, 5, 0, 2, 6, 1, 123}
	if !reflect.DeepEqual(pkt.Data, expected) {
		t.Fatalf("encoded %v, expected %v", pkt.Data, expected)
	}

	vals, rest, err := tmpl.Decode(pkt.Data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %v", rest)
	}

	checks := map[string]uint64{
		"startByte":   72,
		"address":     5,
		"port":        2,
		"length":      6,
		"commandCode": 1,
		"checksum":    123,
	}
	for name, expected := range checks {
		if got := vals[name].(uint64); got != expected {
			t.Errorf("%s decoded to %d, expected %d", name, got, expected)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tmpl := MustTemplate("status",
		Uint("id", 2),
		Int("delta", 2),
		FixedPoint("ratio", 8, 8),
		BitField("flags",
			Flag{Name: "enabled"},
			Flag{Name: "inverted", Default: true},
		),
		RawString("label", 0),
	)

	pkt, err := tmpl.Encode(Values{
		"id":      uint64(40000),
		"delta":   -123,
		"ratio":   1.5,
		"enabled": true,
		"label":   "motor-a",
	})
	if err != nil {
		t.Fatal(err)
	}

	vals, _, err := tmpl.Decode(pkt.Data)
	if err != nil {
		t.Fatal(err)
	}

	expected := Values{
		"id":       uint64(40000),
		"delta":    int64(-123),
		"ratio":    1.5,
		"enabled":  true,
		"inverted": true,
		"label":    "motor-a",
	}
	if !reflect.DeepEqual(vals, expected) {
		t.Fatalf("decoded %v, expected %v", vals, expected)
	}
}

// Values that do not land exactly on a quantization step come back rounded
// to the nearest representable fraction.
func TestFixedPointQuantization(t *testing.T) {
	tmpl := MustTemplate("q", FixedPoint("v", 8, 4))

	pkt, err := tmpl.Encode(Values{"v": 3.3})
	if err != nil {
		t.Fatal(err)
	}

	vals, _, err := tmpl.Decode(pkt.Data)
	if err != nil {
		t.Fatal(err)
	}

	if got := vals["v"].(float64); got != 3.3125 {
		t.Fatalf("decoded %v, expected 3.3125", got)
	}
}

func TestUintBounds(t *testing.T) {
	tmpl := MustTemplate("b", Uint("x", 1))

	if _, err := tmpl.Encode(Values{"x": uint64(255)}); err != nil {
		t.Fatal(err)
	}

	if _, err := tmpl.Encode(Values{"x": uint64(256)}); err == nil {
		t.Fatal("expected out-of-range error")
	} else if _, ok := err.(BadValueError); !ok {
		t.Fatalf("expected BadValueError, got %T", err)
	}

	if _, err := tmpl.Encode(Values{"x": -1}); err == nil {
		t.Fatal("expected negative-value error")
	}
}

func TestMissingField(t *testing.T) {
	tmpl := MustTemplate("m", Uint("x", 1), Uint("y", 1))

	_, err := tmpl.Encode(Values{"x": uint64(1)})
	if err == nil {
		t.Fatal("expected missing-field error")
	}

	mf, ok := err.(MissingFieldError)
	if !ok {
		t.Fatalf("expected MissingFieldError, got %T", err)
	}
	if mf.Token != "y" {
		t.Fatalf("error names token %q, expected y", mf.Token)
	}
}

func TestCompositionErrors(t *testing.T) {
	cases := []struct {
		name   string
		tokens []Token
	}{
		{"twoUnbounded", []Token{RawBytes("a", 0), RawBytes("b", 0)}},
		{"twoLengths", []Token{Length("a", 1, true), Length("b", 1, false)}},
		{"oversizedUint", []Token{Uint("a", 9)}},
		{"emptyBitField", []Token{BitField("a")}},
	}

	for _, c := range cases {
		if _, err := NewTemplate(c.name, c.tokens...); err == nil {
			t.Errorf("%s: expected composition error", c.name)
		} else if _, ok := err.(CompositionError); !ok {
			t.Errorf("%s: expected CompositionError, got %T", c.name, err)
		}
	}
}

// An unbounded token in the middle of a template flips the walk around: the
// tokens after it are read from the back of the buffer inward.
func TestBidirectionalDecode(t *testing.T) {
	tmpl := MustTemplate("frame",
		Uint("head", 1),
		RawBytes("body", 0),
		Uint("tail", 1),
	)

	vals, _, err := tmpl.Decode([]byte{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}

	if got := vals["head"].(uint64); got != 1 {
		t.Errorf("head decoded to %d, expected 1", got)
	}
	if got := vals["tail"].(uint64); got != 5 {
		t.Errorf("tail decoded to %d, expected 5", got)
	}
	if got := vals["body"].([]byte); !reflect.DeepEqual(got, []byte{2, 3, 4}) {
		t.Errorf("body decoded to %v, expected [2 3 4]", got)
	}
}

func TestShortPacket(t *testing.T) {
	tmpl := MustTemplate("s", Uint("a", 2), Uint("b", 2))

	_, _, err := tmpl.Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected short-packet error")
	}
	if _, ok := err.(ShortPacketError); !ok {
		t.Fatalf("expected ShortPacketError, got %T", err)
	}
}

func TestLocateSubPacket(t *testing.T) {
	inner := MustTemplate("inner", Uint("commandCode", 1), Uint("arg", 2))
	outer := MustTemplate("outer",
		Uint("startByte", 1),
		Uint("address", 2),
		Uint("port", 1),
		Length("length", 1, true),
		SubPacket("payload"),
		Checksum("checksum", DefaultPoly),
	)

	innerPkt, err := inner.Encode(Values{"commandCode": uint64(7), "arg": uint64(300)})
	if err != nil {
		t.Fatal(err)
	}

	pkt, err := outer.Encode(Values{
		"startByte": uint64(72),
		"address":   uint64(9),
		"port":      uint64(4),
		"payload":   innerPkt,
	})
	if err != nil {
		t.Fatal(err)
	}

	start, end, _, err := outer.Locate("payload", pkt.Data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pkt.Data[start:end], innerPkt.Data) {
		t.Fatalf("located %v, expected %v", pkt.Data[start:end], innerPkt.Data)
	}

	start, end, _, err = outer.Locate("checksum", pkt.Data)
	if err != nil {
		t.Fatal(err)
	}
	if start != len(pkt.Data)-1 || end != len(pkt.Data) {
		t.Fatalf("checksum located at [%d, %d), expected last byte", start, end)
	}

	if _, _, _, err := outer.Locate("nope", pkt.Data); err == nil {
		t.Fatal("expected token-not-found error")
	}
}

func TestLocateEmbedded(t *testing.T) {
	header := MustTemplate("header", Uint("startByte", 1), Uint("address", 2))
	tmpl := MustTemplate("framed",
		Embed(header),
		Uint("port", 1),
	)

	pkt, err := tmpl.Encode(Values{
		"startByte": uint64(72),
		"address":   uint64(513),
		"port":      uint64(3),
	})
	if err != nil {
		t.Fatal(err)
	}

	start, end, _, err := tmpl.Locate("address", pkt.Data)
	if err != nil {
		t.Fatal(err)
	}
	if start != 1 || end != 3 {
		t.Fatalf("address located at [%d, %d), expected [1, 3)", start, end)
	}

	vals, _, err := tmpl.Decode(pkt.Data)
	if err != nil {
		t.Fatal(err)
	}
	if got := vals["address"].(uint64); got != 513 {
		t.Errorf("address decoded to %d, expected 513", got)
	}
}

func TestValidateChecksum(t *testing.T) {
	tmpl := MustTemplate("c",
		Uint("a", 1),
		Uint("b", 1),
		Checksum("checksum", DefaultPoly),
	)

	pkt, err := tmpl.Encode(Values{"a": uint64(10), "b": uint64(20)})
	if err != nil {
		t.Fatal(err)
	}

	if err := tmpl.ValidateChecksum(pkt.Data); err != nil {
		t.Fatal(err)
	}

	corrupt := make([]byte, len(pkt.Data))
	copy(corrupt, pkt.Data)
	corrupt[1] ^= 0x01

	if err := tmpl.ValidateChecksum(corrupt); err == nil {
		t.Fatal("expected checksum mismatch")
	} else if _, ok := err.(ChecksumError); !ok {
		t.Fatalf("expected ChecksumError, got %T", err)
	}
}

// Identical value maps must serialize to identical bytes, since retries rely
// on byte-for-byte reproducibility.
func TestEncodeDeterministic(t *testing.T) {
	tmpl := MustTemplate("d",
		Uint("a", 2),
		Length("n", 1, false),
		RawBytes("blob", 3),
		Checksum("checksum", DefaultPoly),
	)

	vals := Values{"a": uint64(700), "blob": []byte{9, 8, 7}}

	first, err := tmpl.Encode(vals)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tmpl.Encode(vals)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Data, second.Data) {
		t.Fatalf("encodings differ: %v vs %v", first.Data, second.Data)
	}
}
