package bus

import "sync"

// AccessToken is the exclusive right to transmit on the channel. Exactly one
// token exists per grant; the access stage blocks until it is released
// before granting the next action.
type AccessToken struct {
	transport Transport

	mu       sync.Mutex
	released bool
	doneCh   chan struct{}
}

func newAccessToken(transport Transport) *AccessToken {
	return &AccessToken{
		transport: transport,
		doneCh:    make(chan struct{}),
	}
}

// Transport exposes the channel to the token's holder.
func (t *AccessToken) Transport() Transport {
	return t.transport
}

// Release hands the channel back to the access stage. Releasing twice is a
// programming error and is reported as ErrTokenReleased.
func (t *AccessToken) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return ErrTokenReleased
	}
	t.released = true
	close(t.doneCh)
	return nil
}

// Released closes once the token has been handed back.
func (t *AccessToken) Released() <-chan struct{} {
	return t.doneCh
}
