package node

import (
	"testing"

	"github.com/stagecraft-robotics/lockstep/src/common"
)

func newTestNode(t *testing.T, name string) *Node {
	n, err := NewNode(name, &servoProfile{}, newTestPipeline(t), common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestAttachAssignsAddressInRange(t *testing.T) {
	reg := NewRegistry(NewInmemAddressStore(), 1, 100, common.NewTestEntry(t))

	n := newTestNode(t, "servo1")
	if err := reg.Attach(n); err != nil {
		t.Fatal(err)
	}

	if n.Addr() < 1 || n.Addr() > 100 {
		t.Fatalf("address %d outside [1, 100]", n.Addr())
	}

	got, ok := reg.Lookup(n.Addr())
	if !ok || got != n {
		t.Fatal("node not resolvable by address")
	}
	got, ok = reg.ByName("servo1")
	if !ok || got != n {
		t.Fatal("node not resolvable by name")
	}
}

func TestAttachRecallsPersistedAddress(t *testing.T) {
	store := NewInmemAddressStore()
	if err := store.Save("servo1", 42); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(store, 1, 100, common.NewTestEntry(t))

	n := newTestNode(t, "servo1")
	if err := reg.Attach(n); err != nil {
		t.Fatal(err)
	}

	if n.Addr() != 42 {
		t.Fatalf("address is %d, expected the persisted 42", n.Addr())
	}
}

func TestGeneratedAddressIsStable(t *testing.T) {
	first := NewRegistry(NewInmemAddressStore(), 1, 100, common.NewTestEntry(t))
	second := NewRegistry(NewInmemAddressStore(), 1, 100, common.NewTestEntry(t))

	a := newTestNode(t, "servo1")
	b := newTestNode(t, "servo1")

	if err := first.Attach(a); err != nil {
		t.Fatal(err)
	}
	if err := second.Attach(b); err != nil {
		t.Fatal(err)
	}

	if a.Addr() != b.Addr() {
		t.Fatalf("same name generated %d and %d", a.Addr(), b.Addr())
	}
}

func TestAttachAvoidsCollisions(t *testing.T) {
	store := NewInmemAddressStore()
	reg := NewRegistry(store, 1, 100, common.NewTestEntry(t))

	first := newTestNode(t, "servo1")
	if err := reg.Attach(first); err != nil {
		t.Fatal(err)
	}

	// Persist the same address for a different name and attach it: the
	// stale entry is taken, so a distinct address must be generated.
	if err := store.Save("servo2", first.Addr()); err != nil {
		t.Fatal(err)
	}

	second := newTestNode(t, "servo2")
	if err := reg.Attach(second); err != nil {
		t.Fatal(err)
	}

	if second.Addr() == first.Addr() {
		t.Fatal("two nodes share an address")
	}
	if second.Addr() < 1 || second.Addr() > 100 {
		t.Fatalf("address %d outside [1, 100]", second.Addr())
	}
}

func TestAttachDuplicateName(t *testing.T) {
	reg := NewRegistry(NewInmemAddressStore(), 1, 100, common.NewTestEntry(t))

	if err := reg.Attach(newTestNode(t, "servo1")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Attach(newTestNode(t, "servo1")); err != ErrNameTaken {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestReplacePreservesAddress(t *testing.T) {
	reg := NewRegistry(NewInmemAddressStore(), 1, 100, common.NewTestEntry(t))

	old := newTestNode(t, "servo1")
	if err := reg.Attach(old); err != nil {
		t.Fatal(err)
	}
	addr := old.Addr()

	replacement := newTestNode(t, "servo1")
	if err := reg.Replace(replacement); err != nil {
		t.Fatal(err)
	}

	if replacement.Addr() != addr {
		t.Fatalf("replacement address is %d, expected %d", replacement.Addr(), addr)
	}
	if got, _ := reg.Lookup(addr); got != replacement {
		t.Fatal("address still resolves to the old node")
	}
	if reg.Len() != 1 {
		t.Fatalf("registry has %d nodes, expected 1", reg.Len())
	}
}

func TestReplaceUnknownName(t *testing.T) {
	reg := NewRegistry(NewInmemAddressStore(), 1, 100, common.NewTestEntry(t))

	if err := reg.Replace(newTestNode(t, "servo1")); err != ErrNotAttached {
		t.Fatalf("expected ErrNotAttached, got %v", err)
	}
}

func TestAddressSpaceExhaustion(t *testing.T) {
	reg := NewRegistry(NewInmemAddressStore(), 1, 2, common.NewTestEntry(t))

	if err := reg.Attach(newTestNode(t, "a")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Attach(newTestNode(t, "b")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Attach(newTestNode(t, "c")); err != ErrAddressSpaceFull {
		t.Fatalf("expected ErrAddressSpaceFull, got %v", err)
	}
}
