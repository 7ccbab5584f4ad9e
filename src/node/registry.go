package node

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/common"
)

// Registry owns the address-to-node mapping. Attach assigns addresses,
// recalling persisted ones by node name; Replace swaps a node in place,
// preserving its address. Address 0 is reserved and never assigned.
type Registry struct {
	store  AddressStore
	min    uint16
	max    uint16
	logger *logrus.Entry

	mu     sync.RWMutex
	byAddr map[uint16]*Node
	byName map[string]*Node
}

// NewRegistry builds a registry assigning addresses in [min, max].
func NewRegistry(store AddressStore, min, max uint16, logger *logrus.Entry) *Registry {
	if min == 0 {
		min = 1
	}
	return &Registry{
		store:  store,
		min:    min,
		max:    max,
		logger: logger.WithField("component", "registry"),
		byAddr: make(map[uint16]*Node),
		byName: make(map[string]*Node),
	}
}

// Attach registers a new node. Its address is recalled from the store when
// one was persisted under its name and is still free; otherwise a fresh
// collision-checked address is generated and persisted.
func (r *Registry) Attach(n *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[n.Name()]; ok {
		return ErrNameTaken
	}

	addr, err := r.recallOrGenerate(n.Name())
	if err != nil {
		return err
	}

	n.setAddr(addr)
	r.byAddr[addr] = n
	r.byName[n.Name()] = n

	r.logger.WithFields(logrus.Fields{
		"node":    n.Name(),
		"address": addr,
	}).Info("node attached")

	return nil
}

// Replace swaps the node registered under the same name, preserving its
// address. Both mapping entries change under one lock, so no packet can be
// routed to a half-replaced node.
func (r *Registry) Replace(n *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byName[n.Name()]
	if !ok {
		return ErrNotAttached
	}

	addr := old.Addr()
	n.setAddr(addr)
	r.byAddr[addr] = n
	r.byName[n.Name()] = n

	r.logger.WithFields(logrus.Fields{
		"node":    n.Name(),
		"address": addr,
	}).Info("node replaced")

	return nil
}

// recallOrGenerate must run with the write lock held.
func (r *Registry) recallOrGenerate(name string) (uint16, error) {
	if addr, ok, err := r.store.Lookup(name); err != nil {
		return 0, err
	} else if ok && r.inRange(addr) {
		if _, taken := r.byAddr[addr]; !taken {
			return addr, nil
		}
		r.logger.WithFields(logrus.Fields{
			"node":    name,
			"address": addr,
		}).Warn("persisted address is taken, generating a new one")
	}

	addr, err := r.generate(name)
	if err != nil {
		return 0, err
	}
	if err := r.store.Save(name, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

func (r *Registry) inRange(addr uint16) bool {
	return addr >= r.min && addr <= r.max
}

// generate folds the node name into the address range and probes linearly
// for a free slot, so the same name lands on the same address whenever the
// bus is not crowded.
func (r *Registry) generate(name string) (uint16, error) {
	span := uint32(r.max-r.min) + 1
	h := common.Hash32([]byte(name))

	for i := uint32(0); i < span; i++ {
		addr := r.min + uint16((h+i)%span)
		if _, taken := r.byAddr[addr]; !taken {
			return addr, nil
		}
	}
	return 0, ErrAddressSpaceFull
}

// Lookup returns the node registered at an address.
func (r *Registry) Lookup(addr uint16) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byAddr[addr]
	return n, ok
}

// ByName returns the node registered under a name.
func (r *Registry) ByName(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byName[name]
	return n, ok
}

// Nodes returns the attached nodes ordered by address.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, 0, len(r.byAddr))
	for _, n := range r.byAddr {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Addr() < nodes[j].Addr()
	})
	return nodes
}

// Len returns the number of attached nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddr)
}
