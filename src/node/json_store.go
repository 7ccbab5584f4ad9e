package node

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/ugorji/go/codec"
)

const jsonAddressFile = "addresses.json"

// JSONAddressStore persists the mapping as a JSON file in the data
// directory. This allows human operators to inspect and edit assigned
// addresses.
type JSONAddressStore struct {
	l    sync.Mutex
	path string
}

// NewJSONAddressStore creates a store backed by <base>/addresses.json.
func NewJSONAddressStore(base string) *JSONAddressStore {
	return &JSONAddressStore{
		path: filepath.Join(base, jsonAddressFile),
	}
}

// load must run with the lock held. A missing file is an empty mapping.
func (j *JSONAddressStore) load() (map[string]uint16, error) {
	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]uint16{}, nil
		}
		return nil, err
	}

	if len(buf) == 0 {
		return map[string]uint16{}, nil
	}

	addrs := map[string]uint16{}
	jh := new(codec.JsonHandle)
	if err := codec.NewDecoderBytes(buf, jh).Decode(&addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// flush must run with the lock held.
func (j *JSONAddressStore) flush(addrs map[string]uint16) error {
	var buf []byte
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	if err := codec.NewEncoderBytes(&buf, jh).Encode(addrs); err != nil {
		return err
	}
	return ioutil.WriteFile(j.path, buf, 0755)
}

// Lookup implements the AddressStore interface.
func (j *JSONAddressStore) Lookup(name string) (uint16, bool, error) {
	j.l.Lock()
	defer j.l.Unlock()

	addrs, err := j.load()
	if err != nil {
		return 0, false, err
	}
	addr, ok := addrs[name]
	return addr, ok, nil
}

// Save implements the AddressStore interface.
func (j *JSONAddressStore) Save(name string, addr uint16) error {
	j.l.Lock()
	defer j.l.Unlock()

	addrs, err := j.load()
	if err != nil {
		return err
	}
	addrs[name] = addr
	return j.flush(addrs)
}

// All implements the AddressStore interface.
func (j *JSONAddressStore) All() (map[string]uint16, error) {
	j.l.Lock()
	defer j.l.Unlock()
	return j.load()
}

// Close implements the AddressStore interface.
func (j *JSONAddressStore) Close() error { return nil }
