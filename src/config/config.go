package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/common"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database.
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel      = "debug"
	DefaultServiceAddr   = "127.0.0.1:8000"
	DefaultDevice        = "/dev/ttyUSB0"
	DefaultBaudRate      = 115200
	DefaultAccessTimeout = 5 * time.Second
	DefaultReplyTimeout  = 200 * time.Millisecond
	DefaultMaxAttempts   = 3
	DefaultReadTimeout   = 100 * time.Millisecond
	DefaultStore         = false
	DefaultSynthetic     = false
	DefaultAddrMin       = 1
	DefaultAddrMax       = 1023
)

// Config contains all the configuration properties of a lockstep host.
type Config struct {
	// DataDir is the top-level directory containing lockstep configuration
	// and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates log output to a file via a hook.
	LogFile string `mapstructure:"log-file"`

	// Device is the serial device shared with the peripherals.
	Device string `mapstructure:"device"`

	// BaudRate is the serial line speed.
	BaudRate int `mapstructure:"baud"`

	// Synthetic redirects the transmit path to the in-process responder
	// instead of the serial device. Used for development without hardware.
	Synthetic bool `mapstructure:"synthetic"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are
	// registered with the DefaultServeMux of the http package, so another
	// server in the same process can expose them on its own endpoint.
	ServiceAddr string `mapstructure:"service-listen"`

	// AccessTimeout bounds a blocking wait for channel access.
	AccessTimeout time.Duration `mapstructure:"access-timeout"`

	// ReplyTimeout bounds each individual wait for a reply.
	ReplyTimeout time.Duration `mapstructure:"reply-timeout"`

	// MaxAttempts is the retry budget of a blocking request.
	MaxAttempts int `mapstructure:"max-attempts"`

	// ReadTimeout is the receiver's per-byte read window. A longer gap in
	// the byte stream discards any partially assembled packet.
	ReadTimeout time.Duration `mapstructure:"read-timeout"`

	// Store activates persistent address storage in a badger database.
	// When false, addresses persist in a plain JSON file instead.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// AddrMin and AddrMax bound the range addresses are generated in.
	AddrMin uint16 `mapstructure:"addr-min"`
	AddrMax uint16 `mapstructure:"addr-max"`

	// Moniker defines the friendly name of this host.
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      DefaultLogLevel,
		Device:        DefaultDevice,
		BaudRate:      DefaultBaudRate,
		ServiceAddr:   DefaultServiceAddr,
		AccessTimeout: DefaultAccessTimeout,
		ReplyTimeout:  DefaultReplyTimeout,
		MaxAttempts:   DefaultMaxAttempts,
		ReadTimeout:   DefaultReadTimeout,
		Store:         DefaultStore,
		Synthetic:     DefaultSynthetic,
		DatabaseDir:   DefaultDatabaseDir(),
		AddrMin:       DefaultAddrMin,
		AddrMax:       DefaultAddrMax,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level lockstep directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, the user has explicitly set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// BusConfig converts the timing knobs into a pipeline config.
func (c *Config) BusConfig() *bus.Config {
	conf := bus.DefaultConfig()
	conf.AccessTimeout = c.AccessTimeout
	conf.ReplyTimeout = c.ReplyTimeout
	conf.MaxAttempts = c.MaxAttempts
	conf.ReadTimeout = c.ReadTimeout
	return conf
}

// Logger returns a formatted logrus Entry, with prefix set to "lockstep".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			if _, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
				c.logger.WithError(err).Info("Failed to open log file, using default stderr")
			} else {
				c.logger.Hooks.Add(lfshook.NewHook(
					lfshook.PathMap{
						logrus.InfoLevel:  c.LogFile,
						logrus.DebugLevel: c.LogFile,
						logrus.WarnLevel:  c.LogFile,
						logrus.ErrorLevel: c.LogFile,
					},
					&logrus.TextFormatter{},
				))
			}
		}
	}
	return c.logger.WithField("prefix", "lockstep")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level lockstep
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Lockstep")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Lockstep")
		} else {
			return filepath.Join(home, ".lockstep")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
