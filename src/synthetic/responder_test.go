package synthetic

import (
	"sync"
	"testing"
	"time"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/common"
	"github.com/stagecraft-robotics/lockstep/src/node"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

const (
	echoPort    = 10
	triggerPort = 30
)

type echoProfile struct{}

func (p *echoProfile) Parameters(n *node.Node) error { return nil }

func (p *echoProfile) Packets(n *node.Node) error {
	n.RegisterTemplate(wire.MustTemplate("echoRequest",
		wire.Uint("commandCode", 1),
	))
	n.RegisterTemplate(wire.MustTemplate("echoReply",
		wire.Uint("status", 1),
	))
	return nil
}

func (p *echoProfile) Ports(n *node.Node) error {
	req, _ := n.Template("echoRequest")
	resp, _ := n.Template("echoReply")
	if err := n.Bind(node.Binding{Port: echoPort, Request: req, Response: resp}); err != nil {
		return err
	}

	// The trigger carries no payload in either direction.
	return n.Bind(node.Binding{Port: triggerPort})
}

func (p *echoProfile) Finalize(n *node.Node) error { return nil }

type harness struct {
	pipe      *bus.Pipeline
	registry  *node.Registry
	responder *Responder
}

func newHarness(t *testing.T) *harness {
	logger := common.NewTestEntry(t)

	registry := node.NewRegistry(node.NewInmemAddressStore(), 1, 100, logger)
	responder := NewResponder(registry, logger)

	conf := bus.DefaultConfig()
	conf.ReplyTimeout = 50 * time.Millisecond

	pipe := bus.NewPipeline(conf, responder, logger)
	responder.SetPipeline(pipe)

	router := node.NewRouter(registry, pipe, logger)

	pipe.Start()
	go responder.Run()
	go router.Run()

	t.Cleanup(pipe.Shutdown)

	return &harness{pipe: pipe, registry: registry, responder: responder}
}

func (h *harness) attach(t *testing.T, name string) *node.Node {
	n, err := node.NewNode(name, &echoProfile{}, h.pipe, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.registry.Attach(n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSyntheticRequestCycle(t *testing.T) {
	h := newHarness(t)
	n := h.attach(t, "servo1")

	h.responder.Register("servo1", echoPort, func(vals wire.Values) wire.Values {
		if got := vals["commandCode"].(uint64); got != 1 {
			t.Errorf("firmware saw commandCode %d, expected 1", got)
		}
		return wire.Values{"status": uint64(5)}
	})

	vals, err := n.Request(echoPort, wire.Values{"commandCode": uint64(1)}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := vals["status"].(uint64); got != 5 {
		t.Fatalf("reply status is %d, expected 5", got)
	}
}

// A handler returning nil emulates a routine that never answers; the caller
// must exhaust its retries and fail cleanly.
func TestSyntheticSilentHandler(t *testing.T) {
	h := newHarness(t)
	n := h.attach(t, "servo1")

	var mu sync.Mutex
	calls := 0

	h.responder.Register("servo1", echoPort, func(vals wire.Values) wire.Values {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	_, err := n.Request(echoPort, wire.Values{"commandCode": uint64(1)}, 3)
	if err != bus.ErrNoResponse {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		got := calls
		mu.Unlock()
		if got == 3 {
			return
		}
		if got > 3 || time.Now().After(deadline) {
			t.Fatalf("firmware invoked %d times, expected one per attempt", got)
		}
		time.Sleep(time.Millisecond)
	}
}

// A multicast reaches the firmware of every attached node, and none of them
// reply.
func TestSyntheticMulticast(t *testing.T) {
	h := newHarness(t)
	h.attach(t, "servo1")
	h.attach(t, "servo2")

	var mu sync.Mutex
	seen := map[string]bool{}

	for _, name := range []string{"servo1", "servo2"} {
		name := name
		h.responder.Register(name, triggerPort, func(vals wire.Values) wire.Values {
			mu.Lock()
			seen[name] = true
			mu.Unlock()
			return nil
		})
	}

	a := h.pipe.NewAction(0, triggerPort, nil, nil)
	a.Multicast = true
	a.FireAndForget()

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := seen["servo1"] && seen["servo2"]
		mu.Unlock()
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("multicast reached %v, expected both nodes", seen)
		}
		time.Sleep(time.Millisecond)
	}
}
