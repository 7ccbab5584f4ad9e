package node

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
)

const addressPrefix = "address"

// BadgerAddressStore persists the mapping in a badger database under the
// data directory, sharing the directory layout of the rest of the host
// state.
type BadgerAddressStore struct {
	db   *badger.DB
	path string
}

// NewBadgerAddressStore opens (or creates) the database at path.
func NewBadgerAddressStore(path string) (*BadgerAddressStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerAddressStore{
		db:   handle,
		path: path,
	}, nil
}

// Path returns the database directory.
func (s *BadgerAddressStore) Path() string { return s.path }

func addressKey(name string) []byte {
	return []byte(addressPrefix + "_" + name)
}

// Lookup implements the AddressStore interface.
func (s *BadgerAddressStore) Lookup(name string) (uint16, bool, error) {
	var addr uint16
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(addressKey(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		addr = binary.LittleEndian.Uint16(val)
		found = true
		return nil
	})

	return addr, found, err
}

// Save implements the AddressStore interface.
func (s *BadgerAddressStore) Save(name string, addr uint16) error {
	val := make([]byte, 2)
	binary.LittleEndian.PutUint16(val, addr)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(addressKey(name), val)
	})
}

// All implements the AddressStore interface.
func (s *BadgerAddressStore) All() (map[string]uint16, error) {
	out := map[string]uint16{}
	prefix := []byte(addressPrefix + "_")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			name := string(item.Key()[len(prefix):])
			out[name] = binary.LittleEndian.Uint16(val)
		}
		return nil
	})

	return out, err
}

// Close implements the AddressStore interface.
func (s *BadgerAddressStore) Close() error {
	return s.db.Close()
}
