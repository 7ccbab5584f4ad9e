package bus

import (
	"io"
	"sync"
	"time"
)

// LoopbackTransport implements Transport in memory, so the pipeline can be
// exercised without going over a real channel. NewLoopback returns two
// connected ends: bytes written on one are read, one at a time, from the
// other.
type LoopbackTransport struct {
	peer *LoopbackTransport

	rxCh      chan byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewLoopback returns the two connected ends of an in-memory channel.
func NewLoopback() (*LoopbackTransport, *LoopbackTransport) {
	a := &LoopbackTransport{
		rxCh:    make(chan byte, 4096),
		closeCh: make(chan struct{}),
	}
	b := &LoopbackTransport{
		rxCh:    make(chan byte, 4096),
		closeCh: make(chan struct{}),
	}
	a.peer, b.peer = b, a
	return a, b
}

// Write implements Transport.
func (t *LoopbackTransport) Write(data []byte) error {
	for _, b := range data {
		select {
		case t.peer.rxCh <- b:
		case <-t.closeCh:
			return io.ErrClosedPipe
		case <-t.peer.closeCh:
			return io.ErrClosedPipe
		}
	}
	return nil
}

// ReadByte implements Transport.
func (t *LoopbackTransport) ReadByte(timeout time.Duration) (byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-t.rxCh:
		return b, nil
	case <-timer.C:
		return 0, ErrReadTimeout
	case <-t.closeCh:
		return 0, io.EOF
	}
}

// Close implements Transport.
func (t *LoopbackTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closeCh)
	})
	return nil
}
