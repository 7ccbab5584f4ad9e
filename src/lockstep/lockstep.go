package lockstep

import (
	"fmt"
	"os"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/config"
	"github.com/stagecraft-robotics/lockstep/src/node"
	"github.com/stagecraft-robotics/lockstep/src/service"
	"github.com/stagecraft-robotics/lockstep/src/synthetic"
)

// Lockstep is the top-level engine: one transport, one pipeline, one node
// registry, and the workers that animate them.
type Lockstep struct {
	Config    *config.Config
	Transport bus.Transport
	Store     node.AddressStore
	Pipeline  *bus.Pipeline
	Registry  *node.Registry
	Router    *node.Router
	Responder *synthetic.Responder
	Service   *service.Service
}

// NewLockstep instantiates an engine from a config object. Nothing is wired
// until Init.
func NewLockstep(config *config.Config) *Lockstep {
	engine := &Lockstep{
		Config: config,
	}

	return engine
}

func (l *Lockstep) initStore() error {
	if err := os.MkdirAll(l.Config.DataDir, 0700); err != nil {
		return err
	}

	if !l.Config.Store {
		l.Store = node.NewJSONAddressStore(l.Config.DataDir)

		l.Config.Logger().Debug("created json address store")
	} else {
		l.Config.Logger().WithField("path", l.Config.DatabaseDir).Debug("Attempting to load or create database")

		store, err := node.NewBadgerAddressStore(l.Config.DatabaseDir)
		if err != nil {
			return err
		}
		l.Store = store

		l.Config.Logger().Debug("opened badger address store")
	}

	return nil
}

func (l *Lockstep) initRegistry() error {
	l.Registry = node.NewRegistry(
		l.Store,
		l.Config.AddrMin,
		l.Config.AddrMax,
		l.Config.Logger(),
	)
	return nil
}

func (l *Lockstep) initTransport() error {
	if l.Config.Synthetic {
		l.Responder = synthetic.NewResponder(l.Registry, l.Config.Logger())
		l.Transport = l.Responder
		return nil
	}

	transport, err := bus.NewSerialTransport(
		l.Config.Device,
		l.Config.BaudRate,
		l.Config.Logger(),
	)

	if err != nil {
		return err
	}

	l.Transport = transport

	return nil
}

func (l *Lockstep) initPipeline() error {
	l.Pipeline = bus.NewPipeline(
		l.Config.BusConfig(),
		l.Transport,
		l.Config.Logger(),
	)

	if l.Responder != nil {
		l.Responder.SetPipeline(l.Pipeline)
	}

	return nil
}

func (l *Lockstep) initRouter() error {
	l.Router = node.NewRouter(l.Registry, l.Pipeline, l.Config.Logger())
	return nil
}

func (l *Lockstep) initService() error {
	if !l.Config.NoService {
		l.Service = service.NewService(
			l.Config.ServiceAddr,
			l.Pipeline,
			l.Registry,
			l.Store,
			l.Config.Logger(),
		)
	}
	return nil
}

// Init wires the engine's components in dependency order.
func (l *Lockstep) Init() error {
	if l.Config.AddrMin > l.Config.AddrMax {
		return fmt.Errorf("address range [%d, %d] is empty", l.Config.AddrMin, l.Config.AddrMax)
	}

	if err := l.initStore(); err != nil {
		return err
	}

	if err := l.initRegistry(); err != nil {
		return err
	}

	if err := l.initTransport(); err != nil {
		return err
	}

	if err := l.initPipeline(); err != nil {
		return err
	}

	if err := l.initRouter(); err != nil {
		return err
	}

	if err := l.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the workers. The receiver is replaced by the responder worker
// in synthetic mode. Blocks until Shutdown.
func (l *Lockstep) Run() {
	if l.Service != nil {
		go l.Service.Serve()
	}

	l.Pipeline.Start()

	if l.Responder != nil {
		go l.Responder.Run()
	} else {
		l.Pipeline.StartReceiver()
	}

	go l.Router.Run()

	<-l.Pipeline.Done()
}

// BroadcastReset multicasts an empty packet on the reserved reset port,
// returning every peripheral to its power-on state.
func (l *Lockstep) BroadcastReset() *bus.Action {
	a := l.Pipeline.NewAction(0, bus.PortReset, nil, nil)
	a.Multicast = true
	a.FireAndForget()
	return a
}

// Shutdown stops the workers, closes the transport, and closes the address
// store.
func (l *Lockstep) Shutdown() {
	l.Pipeline.Shutdown()

	if err := l.Store.Close(); err != nil {
		l.Config.Logger().WithError(err).Error("address store close failed")
	}
}
