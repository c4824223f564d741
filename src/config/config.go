package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/dagsync/src/common"
	"github.com/mosaicnetworks/dagsync/src/gossip"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel              = "debug"
	DefaultBindAddr              = "127.0.0.1:1337"
	DefaultServiceAddr           = "127.0.0.1:8000"
	DefaultHeartbeatTimeout      = 10 * time.Millisecond
	DefaultSlowHeartbeatTimeout  = 1000 * time.Millisecond
	DefaultTCPTimeout            = 1000 * time.Millisecond
	DefaultCacheSize             = 10000
	DefaultMaxPool               = 2
	DefaultStore                 = false
	DefaultAncientMode           = "generation"
	DefaultNonAncientSpan        = 26
	DefaultExpiredSpan           = 10
	DefaultFilterDuplicates      = false
	DefaultNonAncestorThreshold  = 3 * time.Second
	DefaultMaxIncomingSyncs      = 4
	DefaultFallenBehindThreshold = 0.5
)

// Config contains all the configuration properties of a dagsync node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, also writes the log to this file.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service exposing stats and
	// metrics.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatTimeout is the frequency of the gossip timer when the node has
	// something to gossip about.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// SlowHeartbeatTimeout is the frequency of the gossip timer when the node
	// has nothing to gossip about.
	SlowHeartbeatTimeout time.Duration `mapstructure:"slow-heartbeat"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout bounds every phase of a sync.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// AncientMode is the event metric thresholds apply to: "generation" or
	// "birth-round".
	AncientMode string `mapstructure:"ancient-mode"`

	// NonAncientSpan is how far below the highest known indicator events
	// become ancient.
	NonAncientSpan int64 `mapstructure:"non-ancient-span"`

	// ExpiredSpan is how far below the ancient threshold events expire.
	ExpiredSpan int64 `mapstructure:"expired-span"`

	// FilterDuplicates withholds recently received events from syncs.
	FilterDuplicates bool `mapstructure:"filter-duplicates"`

	// NonAncestorThreshold is how long an event from another node must have
	// been known before it is sent when FilterDuplicates is set.
	NonAncestorThreshold time.Duration `mapstructure:"non-ancestor-threshold"`

	// MaxIncomingSyncs is the number of syncs the node accepts at the same
	// time.
	MaxIncomingSyncs int `mapstructure:"max-incoming-syncs"`

	// FallenBehindThreshold is the share of peers that must report the node
	// as fallen behind before it stops gossiping.
	FallenBehindThreshold float64 `mapstructure:"fallen-behind-threshold"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// Bootstrap determines whether or not to load the node from an existing
	// database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:               DefaultDataDir(),
		LogLevel:              DefaultLogLevel,
		BindAddr:              DefaultBindAddr,
		ServiceAddr:           DefaultServiceAddr,
		HeartbeatTimeout:      DefaultHeartbeatTimeout,
		SlowHeartbeatTimeout:  DefaultSlowHeartbeatTimeout,
		TCPTimeout:            DefaultTCPTimeout,
		CacheSize:             DefaultCacheSize,
		MaxPool:               DefaultMaxPool,
		Store:                 DefaultStore,
		DatabaseDir:           DefaultDatabaseDir(),
		AncientMode:           DefaultAncientMode,
		NonAncientSpan:        DefaultNonAncientSpan,
		ExpiredSpan:           DefaultExpiredSpan,
		FilterDuplicates:      DefaultFilterDuplicates,
		NonAncestorThreshold:  DefaultNonAncestorThreshold,
		MaxIncomingSyncs:      DefaultMaxIncomingSyncs,
		FallenBehindThreshold: DefaultFallenBehindThreshold,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	config.logger.Level = level
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not the default, the user has set it explicitely, so leave it alone.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Mode parses AncientMode.
func (c *Config) Mode() (hg.AncientMode, error) {
	return hg.ParseAncientMode(c.AncientMode)
}

// SyncConfig returns the options of the gossip synchronizer.
func (c *Config) SyncConfig() gossip.SyncConfig {
	return gossip.SyncConfig{
		FilterLikelyDuplicates:     c.FilterDuplicates,
		NonAncestorFilterThreshold: c.NonAncestorThreshold,
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "dagsync". When
// LogFile is set, entries are also written to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = &prefixed.TextFormatter{FullTimestamp: true}

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, l := range logrus.AllLevels {
				pathMap[l] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "dagsync")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level dagsync
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Dagsync")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Dagsync")
		} else {
			return filepath.Join(home, ".dagsync")
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
