package node

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// Handler is a passive inbound handler: one is instantiated per received
// packet and handed the decoded payload.
type Handler interface {
	OnReceive(vals wire.Values)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(vals wire.Values)

// OnReceive implements Handler.
func (f HandlerFunc) OnReceive(vals wire.Values) { f(vals) }

// Binding ties one port of a node to its request and response templates and
// an optional passive handler factory. Bindings live in an explicit
// per-node-instance table rather than on shared type objects.
type Binding struct {
	Port     byte
	Request  *wire.Template
	Response *wire.Template

	// NewHandler builds the passive handler invoked for every inbound
	// packet on this port. May be nil for ports that only correlate
	// replies to blocking requests.
	NewHandler func(n *Node) Handler
}

// Profile supplies a node's setup as an explicit ordered list of
// initialization phases, invoked once per node construction. Behaviour is
// composed by embedding and overriding phases, not by walking an
// inheritance chain.
type Profile interface {
	// Parameters sets node-level constants (gear ratios, limits...).
	Parameters(n *Node) error

	// Packets registers the node's payload templates.
	Packets(n *Node) error

	// Ports registers the node's bindings.
	Ports(n *Node) error

	// Finalize runs last, once the node is fully described.
	Finalize(n *Node) error
}

// Node is the virtual proxy for one physical peripheral.
type Node struct {
	name   string
	pipe   *bus.Pipeline
	logger *logrus.Entry

	mu        sync.RWMutex
	addr      uint16
	params    map[string]interface{}
	templates map[string]*wire.Template
	bindings  map[byte]Binding
}

// NewNode constructs a node and runs the profile's phases in order. The
// node has no address until it is attached to a registry.
func NewNode(name string, profile Profile, pipe *bus.Pipeline, logger *logrus.Entry) (*Node, error) {
	n := &Node{
		name:      name,
		pipe:      pipe,
		logger:    logger.WithField("node", name),
		params:    make(map[string]interface{}),
		templates: make(map[string]*wire.Template),
		bindings:  make(map[byte]Binding),
	}

	phases := []func(*Node) error{
		profile.Parameters,
		profile.Packets,
		profile.Ports,
		profile.Finalize,
	}
	for _, phase := range phases {
		if err := phase(n); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// Name returns the node's persistent name, the key under which its address
// is stored.
func (n *Node) Name() string { return n.name }

// Addr returns the node's bus address, 0 while unattached.
func (n *Node) Addr() uint16 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.addr
}

func (n *Node) setAddr(addr uint16) {
	n.mu.Lock()
	n.addr = addr
	n.mu.Unlock()
}

// SetParam stores a node-level parameter.
func (n *Node) SetParam(name string, v interface{}) {
	n.mu.Lock()
	n.params[name] = v
	n.mu.Unlock()
}

// Param returns a node-level parameter.
func (n *Node) Param(name string) (interface{}, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.params[name]
	return v, ok
}

// RegisterTemplate stores a payload template under a name, for bindings and
// handlers to share.
func (n *Node) RegisterTemplate(t *wire.Template) {
	n.mu.Lock()
	n.templates[t.Name()] = t
	n.mu.Unlock()
}

// Template returns a registered payload template.
func (n *Node) Template(name string) (*wire.Template, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.templates[name]
	return t, ok
}

// Bind registers a port binding. Binding an occupied or reserved port is a
// composition mistake and fails.
func (n *Node) Bind(b Binding) error {
	if b.Port == bus.PortReset {
		return ErrReservedPort
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.bindings[b.Port]; ok {
		return ErrPortBound
	}
	n.bindings[b.Port] = b
	return nil
}

// Binding returns the binding for a port.
func (n *Node) Binding(port byte) (Binding, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	b, ok := n.bindings[port]
	return b, ok
}

// Ports returns the bound port numbers, for the HTTP service.
func (n *Node) Ports() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ports := make([]byte, 0, len(n.bindings))
	for p := range n.bindings {
		ports = append(ports, p)
	}
	return ports
}

// NewAction builds an action for one request on a bound port, addressed to
// this node.
func (n *Node) NewAction(port byte) (*bus.Action, error) {
	b, ok := n.Binding(port)
	if !ok {
		return nil, ErrUnknownPort
	}
	return n.pipe.NewAction(n.Addr(), port, b.Request, b.Response), nil
}

// Request is the synchronous convenience path: build an action, fill its
// outbound values, and block until a reply or the retry budget runs out.
func (n *Node) Request(port byte, out wire.Values, attempts int) (wire.Values, error) {
	a, err := n.NewAction(port)
	if err != nil {
		return nil, err
	}

	for k, v := range out {
		a.Out[k] = v
	}

	return a.TransmitUntilResponse(attempts)
}

// Logger exposes the node's log entry to profiles and handlers.
func (n *Node) Logger() *logrus.Entry { return n.logger }
