package lockstep

import (
	"os"

	"github.com/stagecraft-robotics/lockstep/src/config"
	"github.com/stagecraft-robotics/lockstep/src/node"
	"github.com/stagecraft-robotics/lockstep/src/wire"
)

// This example runs a host in synthetic mode, with the peripheral firmware
// emulated in-process. It illustrates how a peripheral is described by a
// profile, attached to the registry, and driven with a blocking request.
func Example() {
	// Start from default configuration and emulate the peripherals.
	conf := config.NewDefaultConfig()
	conf.Synthetic = true
	conf.NoService = true

	dir, err := os.MkdirTemp("", "lockstep-example")
	if err != nil {
		os.Exit(1)
	}
	defer os.RemoveAll(dir)
	conf.SetDataDir(dir)

	// Instantiate the engine.
	engine := NewLockstep(conf)

	if err := engine.Init(); err != nil {
		conf.Logger().Error("Cannot initialize engine:", err)
		os.Exit(1)
	}

	// Describe and attach one peripheral.
	servo, err := node.NewNode("servo1", &servoProfile{}, engine.Pipeline, conf.Logger())
	if err != nil {
		conf.Logger().Error("Cannot build node:", err)
		os.Exit(1)
	}
	if err := engine.Registry.Attach(servo); err != nil {
		conf.Logger().Error("Cannot attach node:", err)
		os.Exit(1)
	}

	// Stand in for the firmware.
	engine.Responder.Register("servo1", servoPort, func(vals wire.Values) wire.Values {
		return wire.Values{"status": uint64(0)}
	})

	// Run the workers asynchronously.
	go engine.Run()
	defer engine.Shutdown()

	// Drive the peripheral.
	if _, err := servo.Request(servoPort, wire.Values{"commandCode": uint64(1)}, 0); err != nil {
		conf.Logger().Error("Request failed:", err)
	}
}
