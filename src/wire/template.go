package wire

// Template is an ordered, named token sequence defining a packet's binary
// layout. Templates are immutable after construction and safe for concurrent
// use.
type Template struct {
	name   string
	tokens []Token
	size   int // sum of fixed token sizes, or Unbounded
	min    int // bytes required by the fixed-size tokens alone
}

// Packet is the serialized form of a template's field values, keeping a
// back-reference to the template that produced it.
type Packet struct {
	Template *Template
	Data     []byte
}

// NewTemplate composes a template from tokens. Composition fails fast: a
// layout with more than one unbounded token, or more than one length token,
// can never be decoded unambiguously and is rejected here rather than at
// encode time.
func NewTemplate(name string, tokens ...Token) (*Template, error) {
	t := &Template{name: name, tokens: tokens, size: 0}

	unbounded := 0
	lengths := 0

	for _, tok := range tokens {
		if err := tok.check(); err != nil {
			if ce, ok := err.(CompositionError); ok {
				ce.Template = name
				return nil, ce
			}
			return nil, err
		}

		lengths += countLengths(tok)

		sz := tok.FixedSize()
		if sz == Unbounded {
			unbounded++
			continue
		}
		t.size += sz
		t.min += sz
	}

	if unbounded > 1 {
		return nil, CompositionError{Template: name, Reason: "more than one unbounded token"}
	}
	if lengths > 1 {
		return nil, CompositionError{Template: name, Reason: "more than one length token"}
	}
	if unbounded == 1 {
		t.size = Unbounded
	}

	return t, nil
}

// MustTemplate is NewTemplate for package-level template variables.
func MustTemplate(name string, tokens ...Token) *Template {
	t, err := NewTemplate(name, tokens...)
	if err != nil {
		panic(err)
	}
	return t
}

func countLengths(tok Token) int {
	switch v := tok.(type) {
	case *lengthToken:
		return 1
	case *embedToken:
		n := 0
		for _, sub := range v.tmpl.tokens {
			n += countLengths(sub)
		}
		return n
	}
	return 0
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Size returns the total encoded size in bytes, or Unbounded.
func (t *Template) Size() int { return t.size }

// Encode serializes vals in three passes. Pass 1 encodes every token that is
// not a length or checksum, leaving placeholder bytes for those. Pass 2
// resolves the length token against the pass-1 result. Pass 3 resolves each
// checksum over the bytes preceding it.
func (t *Template) Encode(vals Values) (*Packet, error) {
	st := &encodeState{}

	if err := t.encodeFields(st, vals); err != nil {
		return nil, err
	}

	numeric := len(st.data) - st.pendingBytes()

	for _, slot := range st.lengths {
		lt := slot.tok.(*lengthToken)
		n := numeric
		if lt.countSelf {
			n += lt.size
		}
		for i := 0; i < lt.size; i++ {
			st.data[slot.off+i] = byte(uint64(n) >> (8 * i))
		}
	}

	for _, slot := range st.sums {
		ct := slot.tok.(*checksumToken)
		st.data[slot.off] = ct.crc.Generate(st.data[:slot.off])
	}

	return &Packet{Template: t, Data: st.data}, nil
}

func (t *Template) encodeFields(st *encodeState, vals Values) error {
	for _, tok := range t.tokens {
		if err := tok.encode(st, vals); err != nil {
			if mf, ok := err.(MissingFieldError); ok && mf.Template == "" {
				mf.Template = t.name
				return mf
			}
			return err
		}
	}
	return nil
}

// Decode deserializes data against the template and returns the decoded
// values together with any trailing bytes the template did not consume. A
// template containing an unbounded token consumes the whole buffer.
func (t *Template) Decode(data []byte) (Values, []byte, error) {
	vals := Values{}
	if err := runDecode(t.name, t.tokens, data, t.min, vals); err != nil {
		return nil, nil, err
	}
	if t.size == Unbounded {
		return vals, nil, nil
	}
	return vals, data[t.min:], nil
}

func (t *Template) decodeInto(data []byte, vals Values) error {
	return runDecode(t.name, t.tokens, data, t.min, vals)
}

// runDecode is the bidirectional two-pass walk. The primary pass consumes
// fixed-size tokens from the front. On reaching the unbounded token the scan
// reverses: the remaining tokens are consumed from the back of the buffer
// inward, and the unbounded token absorbs the bytes left in the middle.
func runDecode(name string, tokens []Token, data []byte, min int, vals Values) error {
	if len(data) < min {
		return ShortPacketError{Template: name, Need: min, Have: len(data)}
	}

	front := 0
	back := len(data)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		sz := tok.FixedSize()

		if sz == Unbounded {
			// Secondary pass, back to front.
			for j := len(tokens) - 1; j > i; j-- {
				bt := tokens[j]
				bsz := bt.FixedSize()
				if err := bt.decode(data[back-bsz:back], vals); err != nil {
					return err
				}
				back -= bsz
			}
			return tok.decode(data[front:back], vals)
		}

		if err := tok.decode(data[front:front+sz], vals); err != nil {
			return err
		}
		front += sz
	}

	return nil
}

// Locate replays the decode walk using token sizes only and returns the
// half-open byte range owned by the named token, recursing into embedded
// templates. It lets a caller validate a checksum in place, or slice out an
// embedded sub-packet, without decoding the rest of the packet.
func (t *Template) Locate(name string, data []byte) (int, int, Token, error) {
	if len(data) < t.min {
		return 0, 0, nil, ShortPacketError{Template: t.name, Need: t.min, Have: len(data)}
	}
	start, end, tok := locateTokens(t.tokens, data, 0, name)
	if tok == nil {
		return 0, 0, nil, TokenNotFoundError{Template: t.name, Token: name}
	}
	return start, end, tok, nil
}

// locateTokens walks tokens over data starting at byte offset base and
// returns the absolute range of the named token, or a nil token if absent.
func locateTokens(tokens []Token, data []byte, base int, name string) (int, int, Token) {
	front := 0
	back := len(data)

	match := func(tok Token, start, end int) (int, int, Token) {
		if tok.Name() == name {
			return base + start, base + end, tok
		}
		if et, ok := tok.(*embedToken); ok {
			return locateTokens(et.tmpl.tokens, data[start:end], base+start, name)
		}
		return 0, 0, nil
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		sz := tok.FixedSize()

		if sz == Unbounded {
			for j := len(tokens) - 1; j > i; j-- {
				bt := tokens[j]
				bsz := bt.FixedSize()
				if s, e, found := match(bt, back-bsz, back); found != nil {
					return s, e, found
				}
				back -= bsz
			}
			return match(tok, front, back)
		}

		if s, e, found := match(tok, front, front+sz); found != nil {
			return s, e, found
		}
		front += sz
	}

	return 0, 0, nil
}

// ValidateChecksum recomputes the CRC over the bytes preceding the
// template's checksum token and compares it against the byte the packet
// carries. A nil result means the packet is intact.
func (t *Template) ValidateChecksum(data []byte) error {
	ct := findChecksum(t.tokens)
	if ct == nil {
		return TokenNotFoundError{Template: t.name, Token: "checksum"}
	}

	start, _, _, err := t.Locate(ct.name, data)
	if err != nil {
		return err
	}

	want := ct.crc.Generate(data[:start])
	if got := data[start]; got != want {
		return ChecksumError{Want: want, Got: got}
	}
	return nil
}

func findChecksum(tokens []Token) *checksumToken {
	for _, tok := range tokens {
		switch v := tok.(type) {
		case *checksumToken:
			return v
		case *embedToken:
			if ct := findChecksum(v.tmpl.tokens); ct != nil {
				return ct
			}
		}
	}
	return nil
}
