package synthetic

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/node"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Handler is the in-process stand-in for one service routine of peripheral
// firmware: it receives the decoded request fields and returns the reply
// fields. A nil reply means the routine does not answer.
type Handler func(vals wire.Values) wire.Values

type handlerKey struct {
	name string
	port byte
}

// Responder emulates the peripheral side of the bus. It is a bus.Transport:
// Write pushes the fully encoded outbound packet onto an internal queue
// instead of a wire, and a worker decodes it, invokes the registered
// handler, re-encodes the reply, and feeds it straight into the pipeline's
// inbound channel. The receiver state machine is bypassed; everything
// downstream of it, including the router and the reply correlation slots,
// behaves exactly as with a physical transport.
type Responder struct {
	reg    *node.Registry
	pipe   *bus.Pipeline
	logger *logrus.Entry

	mu       sync.RWMutex
	handlers map[handlerKey]Handler

	packetCh   chan []byte
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewResponder builds a responder over the registry. Wire it as the
// pipeline's transport and call Run; do not start the pipeline's receiver.
func NewResponder(reg *node.Registry, logger *logrus.Entry) *Responder {
	return &Responder{
		reg:        reg,
		logger:     logger.WithField("component", "synthetic"),
		handlers:   make(map[handlerKey]Handler),
		packetCh:   make(chan []byte, 16),
		shutdownCh: make(chan struct{}),
	}
}

// SetPipeline hands the responder the pipeline to inject replies into. Set
// after NewPipeline; the pipeline needs the responder as its transport
// first.
func (r *Responder) SetPipeline(p *bus.Pipeline) {
	r.pipe = p
}

// Register installs the handler for one port of one node, keyed by the
// node's name so it survives a Replace.
func (r *Responder) Register(name string, port byte, h Handler) {
	r.mu.Lock()
	r.handlers[handlerKey{name: name, port: port}] = h
	r.mu.Unlock()
}

func (r *Responder) handler(name string, port byte) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[handlerKey{name: name, port: port}]
	return h, ok
}

// Write implements bus.Transport. The packet is queued for the worker; the
// transmitting action's bytes never touch a wire.
func (r *Responder) Write(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case r.packetCh <- buf:
		return nil
	case <-r.shutdownCh:
		return bus.ErrShutdown
	}
}

// ReadByte implements bus.Transport. Nothing ever arrives on the synthetic
// wire itself, so a started receiver just idles.
func (r *Responder) ReadByte(timeout time.Duration) (byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return 0, bus.ErrReadTimeout
	case <-r.shutdownCh:
		return 0, bus.ErrShutdown
	}
}

// Close implements bus.Transport.
func (r *Responder) Close() error {
	r.closeOnce.Do(func() {
		close(r.shutdownCh)
	})
	return nil
}

// Run is the responder worker. It drains the outbound packet queue until
// Close.
func (r *Responder) Run() {
	for {
		select {
		case data := <-r.packetCh:
			r.respond(data)
		case <-r.shutdownCh:
			return
		}
	}
}

func (r *Responder) respond(data []byte) {
	out, err := bus.DecodeBusPacket(data)
	if err != nil {
		r.logger.WithError(err).Error("undecodable outbound packet")
		return
	}

	if out.Multicast {
		// A multicast reaches every emulated peripheral; none reply.
		for _, n := range r.reg.Nodes() {
			r.invoke(n, out.Port, out.Payload, false)
		}
		return
	}

	n, ok := r.reg.Lookup(out.Addr)
	if !ok {
		r.logger.WithField("address", out.Addr).Error("packet for unknown address")
		return
	}
	r.invoke(n, out.Port, out.Payload, true)
}

// invoke decodes the request against the binding, runs the handler, and
// fabricates the inbound reply packet when the handler returns one.
func (r *Responder) invoke(n *node.Node, port byte, payload []byte, reply bool) {
	log := r.logger.WithFields(logrus.Fields{
		"node": n.Name(),
		"port": port,
	})

	b, ok := n.Binding(port)
	if !ok {
		log.Debug("no binding, packet ignored")
		return
	}

	vals := wire.Values{}
	if b.Request != nil {
		var err error
		vals, _, err = b.Request.Decode(payload)
		if err != nil {
			log.WithError(err).Error("undecodable request payload")
			return
		}
	}

	h, ok := r.handler(n.Name(), port)
	if !ok {
		log.Debug("no synthetic handler, packet ignored")
		return
	}

	replyVals := h(vals)
	if replyVals == nil || !reply {
		return
	}

	replyPayload := []byte{}
	if b.Response != nil {
		pkt, err := b.Response.Encode(replyVals)
		if err != nil {
			log.WithError(err).Error("unencodable reply")
			return
		}
		replyPayload = pkt.Data
	}

	in := bus.Inbound{
		Addr:    n.Addr(),
		Port:    port,
		Payload: replyPayload,
	}
	if err := r.pipe.Deliver(in); err != nil {
		log.WithError(err).Error("reply delivery failed")
	}
}
