package wire

// DefaultPoly is the CRC-8 polynomial used by the standard bus templates.
const DefaultPoly byte = 7

// CRC8 is a table-driven CRC-8 generator for a fixed polynomial.
type CRC8 struct {
	poly  byte
	table [256]byte
}

// NewCRC8 precomputes the remainder table for the given polynomial.
func NewCRC8(poly byte) *CRC8 {
	c := &CRC8{poly: poly}

	for i := 0; i < 256; i++ {
		v := i
		for b := 0; b < 8; b++ {
			v <<= 1
			if v&0x100 != 0 {
				v = (v & 0xFF) ^ int(poly)
			}
		}
		c.table[i] = byte(v)
	}

	return c
}

// Poly returns the generator polynomial.
func (c *CRC8) Poly() byte {
	return c.poly
}

// Generate returns the CRC-8 remainder of data.
func (c *CRC8) Generate(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = c.table[b^crc]
	}
	return crc
}
