package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stagecraft-robotics/lockstep/src/lockstep"
)

//NewRunCmd returns the command that starts a lockstep host
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run host",
		PreRunE: loadConfig,
		RunE:    runLockstep,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runLockstep(cmd *cobra.Command, args []string) error {
	engine := lockstep.NewLockstep(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Duplicate log output to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Transport
	cmd.Flags().StringP("device", "d", _config.Device, "Serial device shared with the peripherals")
	cmd.Flags().Int("baud", _config.BaudRate, "Serial line speed")
	cmd.Flags().Bool("synthetic", _config.Synthetic, "Emulate peripherals in-process instead of opening the device")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP API service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Bus timing
	cmd.Flags().Duration("access-timeout", _config.AccessTimeout, "Max wait for exclusive channel access")
	cmd.Flags().Duration("reply-timeout", _config.ReplyTimeout, "Max wait for a reply to one transmission")
	cmd.Flags().Int("max-attempts", _config.MaxAttempts, "Transmissions per blocking request")
	cmd.Flags().Duration("read-timeout", _config.ReadTimeout, "Receiver per-byte read window")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of a JSON file for addresses")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Addressing
	cmd.Flags().Uint16("addr-min", _config.AddrMin, "Lowest generated node address")
	cmd.Flags().Uint16("addr-max", _config.AddrMax, "Highest generated node address")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":       _config.DataDir,
		"Device":        _config.Device,
		"BaudRate":      _config.BaudRate,
		"Synthetic":     _config.Synthetic,
		"ServiceAddr":   _config.ServiceAddr,
		"NoService":     _config.NoService,
		"LogLevel":      _config.LogLevel,
		"Moniker":       _config.Moniker,
		"AccessTimeout": _config.AccessTimeout,
		"ReplyTimeout":  _config.ReplyTimeout,
		"MaxAttempts":   _config.MaxAttempts,
		"ReadTimeout":   _config.ReadTimeout,
		"Store":         _config.Store,
		"AddrMin":       _config.AddrMin,
		"AddrMax":       _config.AddrMax,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/lockstep.toml (.json, .yaml also work)
	viper.SetConfigName("lockstep")      // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
