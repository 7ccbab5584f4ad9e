package bus

import (
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Config holds the pipeline timing knobs.
type Config struct {
	// AccessTimeout bounds a blocking wait for channel access.
	AccessTimeout time.Duration

	// ReplyTimeout bounds each individual wait for a reply; a transmit is
	// retried after every expiry, up to MaxAttempts.
	ReplyTimeout time.Duration

	// MaxAttempts is the default retry budget of TransmitUntilResponse.
	MaxAttempts int

	// IdleInterval is how long a stage worker sleeps when its queue is
	// empty or its head is not yet cleared.
	IdleInterval time.Duration

	// ReadTimeout is the per-byte read window of the receiver. A gap
	// longer than this discards any partially assembled packet.
	ReadTimeout time.Duration
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() *Config {
	return &Config{
		AccessTimeout: 5 * time.Second,
		ReplyTimeout:  200 * time.Millisecond,
		MaxAttempts:   3,
		IdleInterval:  time.Millisecond,
		ReadTimeout:   100 * time.Millisecond,
	}
}

type slotKey struct {
	addr uint16
	port byte
}

// Pipeline owns the transmit stages, the receiver, and the awaiting-reply
// correlation slots. There is one pipeline per transport.
type Pipeline struct {
	conf      *Config
	transport Transport
	logger    *logrus.Entry

	priority *PriorityStage
	access   *AccessStage
	receiver *Receiver

	inboundCh chan Inbound

	mu    sync.Mutex
	slots map[slotKey]*Action

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline wires the stages over the given transport. Nothing runs until
// Start.
func NewPipeline(conf *Config, transport Transport, logger *logrus.Entry) *Pipeline {
	if conf == nil {
		conf = DefaultConfig()
	}

	p := &Pipeline{
		conf:       conf,
		transport:  transport,
		logger:     logger,
		inboundCh:  make(chan Inbound, 16),
		slots:      make(map[slotKey]*Action),
		shutdownCh: make(chan struct{}),
	}

	p.access = newAccessStage(transport, conf.IdleInterval, p.shutdownCh, logger)
	p.priority = newPriorityStage(p.access, conf.IdleInterval, p.shutdownCh, logger)
	p.receiver = newReceiver(transport, p, logger)

	return p
}

// Start launches the priority and access workers.
func (p *Pipeline) Start() {
	go p.priority.run()
	go p.access.run()
}

// StartReceiver launches the receive worker. The synthetic responder
// replaces it, which is why it is started separately.
func (p *Pipeline) StartReceiver() {
	go p.receiver.run()
}

// Inbound is the consumer channel of reassembled, validated bus packets.
// The router drains it.
func (p *Pipeline) Inbound() <-chan Inbound {
	return p.inboundCh
}

// Deliver feeds a decoded bus packet to the inbound channel. Used by the
// receiver, and by the synthetic responder to inject fabricated replies.
func (p *Pipeline) Deliver(in Inbound) error {
	select {
	case p.inboundCh <- in:
		return nil
	case <-p.shutdownCh:
		return ErrShutdown
	}
}

// setAwaiting registers the action in the single awaiting-reply slot for its
// (address, port). Channel exclusivity guarantees at most one outstanding
// request per slot, so an occupied slot means a previous action timed out
// without cleanup; the newcomer simply takes over.
func (p *Pipeline) setAwaiting(a *Action) {
	key := slotKey{addr: a.Addr, port: a.Port}

	p.mu.Lock()
	if old, ok := p.slots[key]; ok && old != a {
		p.logger.WithFields(logrus.Fields{
			"address": a.Addr,
			"port":    a.Port,
		}).Warn("awaiting-reply slot was still occupied")
	}
	p.slots[key] = a
	p.mu.Unlock()
}

// clearAwaiting removes the action from its slot if it still owns it.
func (p *Pipeline) clearAwaiting(a *Action) {
	key := slotKey{addr: a.Addr, port: a.Port}

	p.mu.Lock()
	if p.slots[key] == a {
		delete(p.slots, key)
	}
	p.mu.Unlock()
}

// DeliverReply hands decoded reply values to the action awaiting them, if
// any, clearing the slot. It reports whether an action was woken.
func (p *Pipeline) DeliverReply(addr uint16, port byte, vals wire.Values) bool {
	key := slotKey{addr: addr, port: port}

	p.mu.Lock()
	a, ok := p.slots[key]
	if ok {
		delete(p.slots, key)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	a.deliverReply(vals)
	return true
}

// Done is closed when the pipeline shuts down.
func (p *Pipeline) Done() <-chan struct{} {
	return p.shutdownCh
}

// Stats exposes queue depths for the HTTP service.
func (p *Pipeline) Stats() map[string]string {
	p.mu.Lock()
	awaiting := len(p.slots)
	p.mu.Unlock()

	return map[string]string{
		"priority_depth": strconv.Itoa(p.priority.depth()),
		"access_depth":   strconv.Itoa(p.access.depth()),
		"awaiting_reply": strconv.Itoa(awaiting),
	}
}

// Shutdown stops the workers and closes the transport.
func (p *Pipeline) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdownCh)
		if err := p.transport.Close(); err != nil {
			p.logger.WithError(err).Error("transport close failed")
		}
	})
}
