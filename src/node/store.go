package node

// AddressStore persists the name-to-address mapping, so a node reattaches at
// the same bus address across host restarts.
type AddressStore interface {
	// Lookup returns the address persisted for a node name, if any.
	Lookup(name string) (uint16, bool, error)

	// Save persists the address for a node name, overwriting any previous
	// entry.
	Save(name string, addr uint16) error

	// All returns the full persisted mapping, for the HTTP service.
	All() (map[string]uint16, error)

	Close() error
}
