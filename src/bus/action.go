package bus

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/telemetry"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Action is an ephemeral unit of work: one logical request to one node. It
// carries the outbound field values, the inbound values once a reply has
// been decoded, and the lifecycle signals that move it through the pipeline:
//
//	Created -> Committed -> ClearedForRelease -> ChannelAccessGranted
//	        -> Transmitted -> ReplyReceived | TimedOut -> ChannelReleased
//
// The calling code owns the action until Commit; release timing then belongs
// to the priority stage and transmission to the access stage. Between Commit
// and ClearForRelease the caller may still mutate Out, which is what makes
// look-ahead planning possible.
type Action struct {
	Addr      uint16
	Port      byte
	Multicast bool

	// Out holds the outbound field values for the request template. It
	// must not be mutated after ClearForRelease.
	Out wire.Values

	// In holds the decoded reply fields once one arrives.
	In wire.Values

	// OnAccess, if set, runs in the access worker's goroutine the moment
	// the channel is granted. A fire-and-forget action transmits and
	// releases from here without any caller blocking.
	OnAccess func(*Action)

	// Sync is the rendezvous token shared with the other actions of a
	// grouped call, nil for a standalone action.
	Sync *SyncToken

	pipe     *Pipeline
	request  *wire.Template
	response *wire.Template
	logger   *logrus.Entry

	mu        sync.Mutex
	committed bool
	abandoned bool
	encoded   *wire.Packet
	token     *AccessToken

	cleared uint32
	replied uint32

	accessCh chan struct{}
	replyCh  chan wire.Values
}

// NewAction builds an action for one request on a node's port. The request
// template encodes Out into the payload; the response template, when not
// nil, registers the action for reply correlation at transmit time.
func (p *Pipeline) NewAction(addr uint16, port byte, request, response *wire.Template) *Action {
	return &Action{
		Addr:     addr,
		Port:     port,
		Out:      wire.Values{},
		pipe:     p,
		request:  request,
		response: response,
		logger: p.logger.WithFields(logrus.Fields{
			"address": addr,
			"port":    port,
		}),
		accessCh: make(chan struct{}),
		replyCh:  make(chan wire.Values, 1),
	}
}

// Commit enqueues the action onto the priority stage. Committing twice is a
// no-op; the queue position is fixed by the first call.
func (a *Action) Commit() {
	a.mu.Lock()
	if a.committed {
		a.mu.Unlock()
		return
	}
	a.committed = true
	a.mu.Unlock()

	a.pipe.priority.enqueue(molecule{a})
}

// Committed reports whether the action has been committed.
func (a *Action) Committed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// ClearForRelease signals that Out will not be mutated any further. The
// priority stage holds the action until this is set.
func (a *Action) ClearForRelease() {
	atomic.StoreUint32(&a.cleared, 1)
}

// ClearedForRelease reports whether the release signal is set.
func (a *Action) ClearedForRelease() bool {
	return atomic.LoadUint32(&a.cleared) == 1
}

// AccessGranted reports whether the action currently holds channel access.
func (a *Action) AccessGranted() bool {
	select {
	case <-a.accessCh:
		return true
	default:
		return false
	}
}

// ReplyReceived reports whether a correlated reply has been delivered.
func (a *Action) ReplyReceived() bool {
	return atomic.LoadUint32(&a.replied) == 1
}

// grantAccess stores the token, flips the access signal, and runs the
// OnAccess hook in the calling (access worker) goroutine. A grant arriving
// after the caller abandoned the wait is handed straight back, so the stage
// moves on to the next action instead of blocking on a holder that no longer
// exists.
func (a *Action) grantAccess(token *AccessToken) {
	a.mu.Lock()
	a.token = token
	abandoned := a.abandoned
	a.mu.Unlock()

	close(a.accessCh)
	telemetry.GrantsTotal.Inc()

	if abandoned {
		a.logger.Debug("releasing grant of abandoned action")
		a.releaseAndReport()
		return
	}

	if a.OnAccess != nil {
		a.OnAccess(a)
	}
}

// abandon marks the action as having no caller left to release the channel.
// The token and abandoned fields are each written and read inside one
// critical section, so whichever of abandon and grantAccess runs second sees
// the other's write and performs the release, exactly once.
func (a *Action) abandon() {
	a.mu.Lock()
	a.abandoned = true
	granted := a.token != nil
	a.mu.Unlock()

	if granted {
		a.releaseAndReport()
	}
}

// WaitForAccess blocks until the access stage grants the channel. A timeout
// of zero or less waits indefinitely. On timeout the action is abandoned: a
// grant that arrives later is released on the spot rather than waiting for a
// caller that already gave up.
func (a *Action) WaitForAccess(timeout time.Duration) error {
	if timeout <= 0 {
		<-a.accessCh
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.accessCh:
		return nil
	case <-timer.C:
		a.abandon()
		return ErrChannelTimeout
	}
}

// encodePacket serializes the payload and bus header once. Retries reuse the
// cached packet, so every attempt puts identical bytes on the wire.
func (a *Action) encodePacket() (*wire.Packet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.encoded != nil {
		return a.encoded, nil
	}

	payload := []byte{}
	if a.request != nil {
		p, err := a.request.Encode(a.Out)
		if err != nil {
			return nil, err
		}
		payload = p.Data
	}

	pkt, err := EncodeBusPacket(a.Addr, a.Port, payload, a.Multicast)
	if err != nil {
		return nil, err
	}

	a.encoded = pkt
	return pkt, nil
}

// Transmit writes the encoded packet to the transport. The action must hold
// the access token. If a reply is expected the action is registered in the
// awaiting-reply slot for its (address, port) before the bytes go out.
func (a *Action) Transmit() error {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()

	if token == nil {
		return ErrNoAccessToken
	}

	pkt, err := a.encodePacket()
	if err != nil {
		return err
	}

	if a.response != nil {
		a.pipe.setAwaiting(a)
	}

	if err := token.Transport().Write(pkt.Data); err != nil {
		a.pipe.clearAwaiting(a)
		return err
	}

	telemetry.TransmissionsTotal.WithLabelValues(strconv.Itoa(int(a.Port))).Inc()
	return nil
}

// TransmitUntilResponse is the blocking call pattern: commit and clear if
// the caller has not already done so, wait for channel access, then transmit
// and wait for a reply, retransmitting the identical payload after each
// reply timeout. The channel is released before returning, success or not.
// An attempts value below 1 falls back to the pipeline's configured maximum.
func (a *Action) TransmitUntilResponse(attempts int) (wire.Values, error) {
	if attempts < 1 {
		attempts = a.pipe.conf.MaxAttempts
	}

	a.Commit()
	a.ClearForRelease()

	waitStart := time.Now()
	if err := a.WaitForAccess(a.pipe.conf.AccessTimeout); err != nil {
		return nil, err
	}
	telemetry.ChannelWait.Observe(time.Since(waitStart).Seconds())

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			telemetry.RetriesTotal.Inc()
			a.logger.WithField("attempt", attempt+1).Debug("retransmitting")
		}

		if err := a.Transmit(); err != nil {
			a.releaseAndReport()
			return nil, err
		}

		timer := time.NewTimer(a.pipe.conf.ReplyTimeout)
		select {
		case vals := <-a.replyCh:
			timer.Stop()
			// The reply may have been buffered before a retransmission
			// re-registered the slot, in which case the registration is
			// still standing and must be vacated here.
			a.pipe.clearAwaiting(a)
			a.releaseAndReport()
			return vals, nil
		case <-timer.C:
			telemetry.ReplyTimeoutsTotal.Inc()
		}
	}

	// Clear the correlation slot so a reply that straggles in later is
	// dropped and reported instead of being delivered to an unrelated
	// request on the same port.
	a.pipe.clearAwaiting(a)
	a.releaseAndReport()

	return nil, ErrNoResponse
}

// FireAndForget commits and clears the action and transmits it from the
// access worker as soon as the channel is granted. The caller never blocks.
func (a *Action) FireAndForget() {
	a.OnAccess = func(act *Action) {
		if err := act.Transmit(); err != nil {
			act.logger.WithError(err).Error("fire-and-forget transmit failed")
		}
		act.releaseAndReport()
	}

	a.Commit()
	a.ClearForRelease()
}

// ReleaseChannel hands the exclusive token back to the access stage. It must
// be called exactly once per grant; violations are reported as errors but
// are not fatal.
func (a *Action) ReleaseChannel() error {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()

	if token == nil {
		return ErrNoAccessToken
	}
	return token.Release()
}

func (a *Action) releaseAndReport() {
	if err := a.ReleaseChannel(); err != nil {
		a.logger.WithError(err).Error("channel release failed")
	}
}

// deliverReply hands decoded reply values to the action and flips its
// reply-received signal. Called by the router, or by the synthetic path.
func (a *Action) deliverReply(vals wire.Values) {
	a.mu.Lock()
	a.In = vals
	a.mu.Unlock()

	atomic.StoreUint32(&a.replied, 1)

	select {
	case a.replyCh <- vals:
	default:
	}
}
