package node

import "sync"

// InmemAddressStore keeps the mapping in memory only. Used in tests and
// when no data directory is configured; addresses are regenerated from node
// names on every start, which is stable as long as the set of names is.
type InmemAddressStore struct {
	mu    sync.RWMutex
	addrs map[string]uint16
}

// NewInmemAddressStore creates an empty in-memory store.
func NewInmemAddressStore() *InmemAddressStore {
	return &InmemAddressStore{
		addrs: make(map[string]uint16),
	}
}

// Lookup implements the AddressStore interface.
func (s *InmemAddressStore) Lookup(name string) (uint16, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.addrs[name]
	return addr, ok, nil
}

// Save implements the AddressStore interface.
func (s *InmemAddressStore) Save(name string, addr uint16) error {
	s.mu.Lock()
	s.addrs[name] = addr
	s.mu.Unlock()
	return nil
}

// All implements the AddressStore interface.
func (s *InmemAddressStore) All() (map[string]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint16, len(s.addrs))
	for k, v := range s.addrs {
		out[k] = v
	}
	return out, nil
}

// Close implements the AddressStore interface.
func (s *InmemAddressStore) Close() error { return nil }
