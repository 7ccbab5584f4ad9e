package bus

import "time"

// Transport is the byte-level boundary to the physical channel. The pipeline
// needs nothing beyond writing a packet's bytes and reading single bytes
// with a timeout; port discovery, baud rate, and reconnect policy stay
// behind the implementation.
type Transport interface {
	// Write sends the bytes onto the channel.
	Write(data []byte) error

	// ReadByte returns the next byte from the channel, or ErrReadTimeout
	// if none arrived within the window. Any other error indicates a
	// transport fault; the receiver reacts by discarding partial state
	// and idling before the next read.
	ReadByte(timeout time.Duration) (byte, error)

	// Close releases the underlying channel.
	Close() error
}
