package wire

import "math"

// Unbounded marks a token whose size is only known once a packet is being
// decoded. A template may contain at most one such token.
const Unbounded = -1

// Values maps token names to field values. Encode reads from it, Decode
// writes into it. Decoded values use canonical types: uint64 for unsigned
// integers, lengths and checksums, int64 for signed integers, float64 for
// fixed-point fields, bool for bit flags, []byte and string for raw fields.
type Values map[string]interface{}

// Token is one typed field in a packet template.
type Token interface {
	// Name is the key under which the field's value lives in a Values map.
	Name() string

	// FixedSize returns the encoded size in bytes, or Unbounded.
	FixedSize() int

	// check validates the token definition. Called once, from NewTemplate.
	check() error

	encode(st *encodeState, vals Values) error

	// decode consumes exactly the token's bytes. The template walk hands
	// each token its own slice, so unbounded tokens receive whatever is
	// left between the two decode cursors.
	decode(data []byte, vals Values) error
}

type encodeState struct {
	data    []byte
	lengths []pendingSlot
	sums    []pendingSlot
}

type pendingSlot struct {
	off int
	tok Token
}

// pendingBytes is the number of placeholder bytes not yet resolved after
// pass 1. Length values count every byte produced so far except these.
func (st *encodeState) pendingBytes() int {
	n := 0
	for _, s := range st.lengths {
		n += s.tok.FixedSize()
	}
	n += len(st.sums)
	return n
}

// Uint is an unsigned little-endian integer of 1 to 8 bytes.
func Uint(name string, size int) Token {
	return &uintToken{name: name, size: size}
}

// Int is a signed two's-complement little-endian integer of 1 to 8 bytes.
func Int(name string, size int) Token {
	return &intToken{name: name, size: size}
}

// FixedPoint is a signed Q-format number with the given integer and
// fractional bit counts, packed into ceil((integerBits+fractionalBits)/8)
// bytes little-endian.
func FixedPoint(name string, integerBits, fractionalBits int) Token {
	return &fixedToken{
		name:     name,
		intBits:  integerBits,
		fracBits: fractionalBits,
		size:     (integerBits + fractionalBits + 7) / 8,
	}
}

// Length is an unsigned integer that is resolved in encode pass 2 to the
// count of numeric entries produced by pass 1, plus its own bytes when
// countSelf is set.
func Length(name string, size int, countSelf bool) Token {
	return &lengthToken{name: name, size: size, countSelf: countSelf}
}

// Checksum is a one-byte CRC-8 over all preceding packet bytes, resolved in
// encode pass 3.
func Checksum(name string, poly byte) Token {
	return &checksumToken{name: name, crc: NewCRC8(poly)}
}

// RawBytes is a byte list. A size of 0 makes it unbounded.
func RawBytes(name string, size int) Token {
	if size <= 0 {
		size = Unbounded
	}
	return &bytesToken{name: name, size: size}
}

// RawString is a string field. A size of 0 makes it unbounded.
func RawString(name string, size int) Token {
	if size <= 0 {
		size = Unbounded
	}
	return &stringToken{name: name, size: size}
}

// Flag is one named bit within a BitField token. Absent values fall back to
// Default instead of raising a missing-field error.
type Flag struct {
	Name    string
	Default bool
}

// BitField packs named bits into ceil(len(flags)/8) bytes, LSB first.
func BitField(name string, flags ...Flag) Token {
	return &bitsToken{name: name, flags: flags}
}

// Embed nests another template verbatim. Its decoded fields are merged into
// the enclosing template's result.
func Embed(t *Template) Token {
	return &embedToken{tmpl: t}
}

// SubPacket is an unbounded field holding an already-encoded packet produced
// by another template. Its bytes can be extracted with Locate without
// decoding their contents.
func SubPacket(name string) Token {
	return &subPacketToken{name: name}
}

// ---- unsigned integer ----

type uintToken struct {
	name string
	size int
}

func (t *uintToken) Name() string   { return t.name }
func (t *uintToken) FixedSize() int { return t.size }

func (t *uintToken) check() error {
	if t.size < 1 || t.size > 8 {
		return CompositionError{Reason: "uint field " + t.name + " must be 1 to 8 bytes"}
	}
	return nil
}

func (t *uintToken) encode(st *encodeState, vals Values) error {
	raw, ok := vals[t.name]
	if !ok {
		return MissingFieldError{Token: t.name}
	}
	v, ok := toUint64(raw)
	if !ok || (t.size < 8 && v >= uint64(1)<<(8*t.size)) {
		return BadValueError{Token: t.name, Value: raw}
	}
	st.data = appendUintLE(st.data, v, t.size)
	return nil
}

func (t *uintToken) decode(data []byte, vals Values) error {
	vals[t.name] = getUintLE(data)
	return nil
}

// ---- signed integer ----

type intToken struct {
	name string
	size int
}

func (t *intToken) Name() string   { return t.name }
func (t *intToken) FixedSize() int { return t.size }

func (t *intToken) check() error {
	if t.size < 1 || t.size > 8 {
		return CompositionError{Reason: "int field " + t.name + " must be 1 to 8 bytes"}
	}
	return nil
}

func (t *intToken) encode(st *encodeState, vals Values) error {
	raw, ok := vals[t.name]
	if !ok {
		return MissingFieldError{Token: t.name}
	}
	v, ok := toInt64(raw)
	if !ok {
		return BadValueError{Token: t.name, Value: raw}
	}
	if t.size < 8 {
		limit := int64(1) << (8*t.size - 1)
		if v < -limit || v >= limit {
			return BadValueError{Token: t.name, Value: raw}
		}
	}
	st.data = appendUintLE(st.data, uint64(v), t.size)
	return nil
}

func (t *intToken) decode(data []byte, vals Values) error {
	vals[t.name] = signExtend(getUintLE(data), 8*len(data))
	return nil
}

// ---- fixed point ----

type fixedToken struct {
	name     string
	intBits  int
	fracBits int
	size     int
}

func (t *fixedToken) Name() string   { return t.name }
func (t *fixedToken) FixedSize() int { return t.size }

func (t *fixedToken) check() error {
	if t.intBits < 1 || t.fracBits < 0 || t.intBits+t.fracBits > 64 {
		return CompositionError{Reason: "fixed-point field " + t.name + " has an invalid bit layout"}
	}
	return nil
}

func (t *fixedToken) encode(st *encodeState, vals Values) error {
	raw, ok := vals[t.name]
	if !ok {
		return MissingFieldError{Token: t.name}
	}
	v, ok := toFloat64(raw)
	if !ok {
		return BadValueError{Token: t.name, Value: raw}
	}

	q := int64(math.Round(v * float64(uint64(1)<<t.fracBits)))
	bits := t.intBits + t.fracBits
	if bits < 64 {
		limit := int64(1) << (bits - 1)
		if q < -limit || q >= limit {
			return BadValueError{Token: t.name, Value: raw}
		}
	}

	st.data = appendUintLE(st.data, uint64(q), t.size)
	return nil
}

func (t *fixedToken) decode(data []byte, vals Values) error {
	q := signExtend(getUintLE(data), t.intBits+t.fracBits)
	vals[t.name] = float64(q) / float64(uint64(1)<<t.fracBits)
	return nil
}

// ---- length ----

type lengthToken struct {
	name      string
	size      int
	countSelf bool
}

func (t *lengthToken) Name() string   { return t.name }
func (t *lengthToken) FixedSize() int { return t.size }

func (t *lengthToken) check() error {
	if t.size < 1 || t.size > 8 {
		return CompositionError{Reason: "length field " + t.name + " must be 1 to 8 bytes"}
	}
	return nil
}

func (t *lengthToken) encode(st *encodeState, vals Values) error {
	st.lengths = append(st.lengths, pendingSlot{off: len(st.data), tok: t})
	st.data = appendUintLE(st.data, 0, t.size)
	return nil
}

func (t *lengthToken) decode(data []byte, vals Values) error {
	vals[t.name] = getUintLE(data)
	return nil
}

// ---- checksum ----

type checksumToken struct {
	name string
	crc  *CRC8
}

func (t *checksumToken) Name() string   { return t.name }
func (t *checksumToken) FixedSize() int { return 1 }
func (t *checksumToken) check() error   { return nil }

func (t *checksumToken) encode(st *encodeState, vals Values) error {
	st.sums = append(st.sums, pendingSlot{off: len(st.data), tok: t})
	st.data = append(st.data, 0)
	return nil
}

func (t *checksumToken) decode(data []byte, vals Values) error {
	vals[t.name] = uint64(data[0])
	return nil
}

// ---- raw bytes ----

type bytesToken struct {
	name string
	size int
}

func (t *bytesToken) Name() string   { return t.name }
func (t *bytesToken) FixedSize() int { return t.size }
func (t *bytesToken) check() error   { return nil }

func (t *bytesToken) encode(st *encodeState, vals Values) error {
	raw, ok := vals[t.name]
	if !ok {
		return MissingFieldError{Token: t.name}
	}
	v, ok := raw.([]byte)
	if !ok {
		return BadValueError{Token: t.name, Value: raw}
	}
	if t.size != Unbounded && len(v) != t.size {
		return BadValueError{Token: t.name, Value: raw}
	}
	st.data = append(st.data, v...)
	return nil
}

func (t *bytesToken) decode(data []byte, vals Values) error {
	out := make([]byte, len(data))
	copy(out, data)
	vals[t.name] = out
	return nil
}

// ---- raw string ----

type stringToken struct {
	name string
	size int
}

func (t *stringToken) Name() string   { return t.name }
func (t *stringToken) FixedSize() int { return t.size }
func (t *stringToken) check() error   { return nil }

func (t *stringToken) encode(st *encodeState, vals Values) error {
	raw, ok := vals[t.name]
	if !ok {
		return MissingFieldError{Token: t.name}
	}
	v, ok := raw.(string)
	if !ok {
		return BadValueError{Token: t.name, Value: raw}
	}
	if t.size != Unbounded && len(v) != t.size {
		return BadValueError{Token: t.name, Value: raw}
	}
	st.data = append(st.data, v...)
	return nil
}

func (t *stringToken) decode(data []byte, vals Values) error {
	vals[t.name] = string(data)
	return nil
}

// ---- bit field ----

type bitsToken struct {
	name  string
	flags []Flag
}

func (t *bitsToken) Name() string   { return t.name }
func (t *bitsToken) FixedSize() int { return (len(t.flags) + 7) / 8 }

func (t *bitsToken) check() error {
	if len(t.flags) == 0 {
		return CompositionError{Reason: "bit field " + t.name + " has no flags"}
	}
	return nil
}

func (t *bitsToken) encode(st *encodeState, vals Values) error {
	out := make([]byte, t.FixedSize())
	for i, f := range t.flags {
		set := f.Default
		if raw, ok := vals[f.Name]; ok {
			b, ok := raw.(bool)
			if !ok {
				return BadValueError{Token: f.Name, Value: raw}
			}
			set = b
		}
		if set {
			out[i/8] |= 1 << (i % 8)
		}
	}
	st.data = append(st.data, out...)
	return nil
}

func (t *bitsToken) decode(data []byte, vals Values) error {
	for i, f := range t.flags {
		vals[f.Name] = data[i/8]&(1<<(i%8)) != 0
	}
	return nil
}

// ---- embedded template ----

type embedToken struct {
	tmpl *Template
}

func (t *embedToken) Name() string   { return t.tmpl.name }
func (t *embedToken) FixedSize() int { return t.tmpl.size }
func (t *embedToken) check() error   { return nil }

func (t *embedToken) encode(st *encodeState, vals Values) error {
	// Pass 1 only. Nested length and checksum slots bubble up to the
	// enclosing state and are resolved over the composed packet.
	return t.tmpl.encodeFields(st, vals)
}

func (t *embedToken) decode(data []byte, vals Values) error {
	return t.tmpl.decodeInto(data, vals)
}

// ---- embedded packet ----

type subPacketToken struct {
	name string
}

func (t *subPacketToken) Name() string   { return t.name }
func (t *subPacketToken) FixedSize() int { return Unbounded }
func (t *subPacketToken) check() error   { return nil }

func (t *subPacketToken) encode(st *encodeState, vals Values) error {
	raw, ok := vals[t.name]
	if !ok {
		return MissingFieldError{Token: t.name}
	}
	switch v := raw.(type) {
	case []byte:
		st.data = append(st.data, v...)
	case *Packet:
		st.data = append(st.data, v.Data...)
	default:
		return BadValueError{Token: t.name, Value: raw}
	}
	return nil
}

func (t *subPacketToken) decode(data []byte, vals Values) error {
	out := make([]byte, len(data))
	copy(out, data)
	vals[t.name] = out
	return nil
}

// ---- conversions ----

func appendUintLE(data []byte, v uint64, size int) []byte {
	for i := 0; i < size; i++ {
		data = append(data, byte(v>>(8*i)))
	}
	return data
}

func getUintLE(data []byte) uint64 {
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}

func signExtend(v uint64, bits int) int64 {
	if bits >= 64 {
		return int64(v)
	}
	if v&(uint64(1)<<(bits-1)) != 0 {
		v |= ^uint64(0) << bits
	}
	return int64(v)
}

func toUint64(raw interface{}) (uint64, bool) {
	switch v := raw.(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int32:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	}
	return 0, false
}

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint:
		return int64(v), true
	}
	return 0, false
}

func toFloat64(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if i, ok := toInt64(raw); ok {
		return float64(i), true
	}
	return 0, false
}
