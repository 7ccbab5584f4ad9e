package wire

import "fmt"

// CompositionError indicates that a template definition is invalid. It is
// raised at construction time so a bad layout can never reach an encode or
// decode call.
type CompositionError struct {
	Template string
	Reason   string
}

func (e CompositionError) Error() string {
	return fmt.Sprintf("template %s: %s", e.Template, e.Reason)
}

// MissingFieldError indicates that Encode was called without a value for a
// required token.
type MissingFieldError struct {
	Template string
	Token    string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("template %s: no value for field %s", e.Template, e.Token)
}

// BadValueError indicates that a supplied value cannot be encoded by the
// token it was given to.
type BadValueError struct {
	Token string
	Value interface{}
}

func (e BadValueError) Error() string {
	return fmt.Sprintf("field %s: cannot encode %v (%T)", e.Token, e.Value, e.Value)
}

// ChecksumError indicates that a packet's checksum byte does not match the
// recomputed CRC of its contents.
type ChecksumError struct {
	Want byte
	Got  byte
}

func (e ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: computed %d, packet carries %d", e.Want, e.Got)
}

// TokenNotFoundError indicates that Locate was asked for a token name that
// the template does not contain.
type TokenNotFoundError struct {
	Template string
	Token    string
}

func (e TokenNotFoundError) Error() string {
	return fmt.Sprintf("template %s: no token named %s", e.Template, e.Token)
}

// ShortPacketError indicates that a buffer is too small to hold the
// template's fixed-size tokens.
type ShortPacketError struct {
	Template string
	Need     int
	Have     int
}

func (e ShortPacketError) Error() string {
	return fmt.Sprintf("template %s: need at least %d bytes, have %d", e.Template, e.Need, e.Have)
}
