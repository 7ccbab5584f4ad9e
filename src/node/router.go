package node

import (
	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/telemetry"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Router dispatches validated inbound packets: it resolves the owning node
// by address, decodes the payload against the port's response template,
// invokes the port's passive handler, and wakes the action awaiting a reply
// in the pipeline's correlation slot, if any. Packets for unknown addresses
// or unbound ports are dropped with a report, never crashing the worker.
type Router struct {
	reg    *Registry
	pipe   *bus.Pipeline
	logger *logrus.Entry
}

// NewRouter builds a router over the registry and pipeline.
func NewRouter(reg *Registry, pipe *bus.Pipeline, logger *logrus.Entry) *Router {
	return &Router{
		reg:    reg,
		pipe:   pipe,
		logger: logger.WithField("component", "router"),
	}
}

// Run drains the pipeline's inbound channel until shutdown. One packet is
// routed at a time; the receive pipeline is serialized end to end.
func (r *Router) Run() {
	for {
		select {
		case in := <-r.pipe.Inbound():
			r.route(in)
		case <-r.pipe.Done():
			return
		}
	}
}

func (r *Router) route(in bus.Inbound) {
	log := r.logger.WithFields(logrus.Fields{
		"address": in.Addr,
		"port":    in.Port,
	})

	n, ok := r.reg.Lookup(in.Addr)
	if !ok {
		telemetry.RoutedTotal.WithLabelValues("unknown_address").Inc()
		log.Error("dropping packet for unknown destination address")
		return
	}

	b, ok := n.Binding(in.Port)
	if !ok {
		telemetry.RoutedTotal.WithLabelValues("unknown_port").Inc()
		log.Error("dropping packet for unbound port")
		return
	}

	vals := wire.Values{}
	if b.Response != nil {
		var err error
		vals, _, err = b.Response.Decode(in.Payload)
		if err != nil {
			telemetry.RoutedTotal.WithLabelValues("decode_error").Inc()
			log.WithError(err).Error("dropping undecodable payload")
			return
		}
	}

	if b.NewHandler != nil {
		b.NewHandler(n).OnReceive(vals)
	}

	if r.pipe.DeliverReply(in.Addr, in.Port, vals) {
		log.Debug("reply correlated")
	} else {
		log.Debug("no action awaiting a reply")
	}

	telemetry.RoutedTotal.WithLabelValues("ok").Inc()
}
