package commands

import (
	"net/http"

	"github.com/mosaicnetworks/dagsync/src/dagsync"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runDagsync,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runDagsync(cmd *cobra.Command, args []string) error {
	logger := _config.Dagsync.Logger()

	if _config.ProfileAddr != "" {
		go func() {
			logger.WithField("pprof", _config.ProfileAddr).Debug("Serving profiles")
			// net/http/pprof registers on the DefaultServeMux
			if err := http.ListenAndServe(_config.ProfileAddr, nil); err != nil {
				logger.WithError(err).Error("pprof server")
			}
		}()
	}

	engine := dagsync.NewDagsync(&_config.Dagsync)

	if err := engine.Init(); err != nil {
		logger.Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Dagsync.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Dagsync.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Dagsync.LogFile, "Also write the log to this file, in JSON")
	cmd.Flags().String("moniker", _config.Dagsync.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Dagsync.BindAddr, "Listen IP:Port for dagsync node")
	cmd.Flags().StringP("advertise", "a", _config.Dagsync.AdvertiseAddr, "Advertise IP:Port for dagsync node")
	cmd.Flags().DurationP("timeout", "t", _config.Dagsync.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Dagsync.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.Dagsync.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Dagsync.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().String("pprof-listen", _config.ProfileAddr, "Listen IP:Port for pprof, disabled if empty")

	// Store
	cmd.Flags().Bool("store", _config.Dagsync.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Dagsync.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.Dagsync.Bootstrap, "Load from database")
	cmd.Flags().Int("cache-size", _config.Dagsync.CacheSize, "Number of items in LRU caches")

	// Gossip
	cmd.Flags().Duration("heartbeat", _config.Dagsync.HeartbeatTimeout, "Time between gossips")
	cmd.Flags().Duration("slow-heartbeat", _config.Dagsync.SlowHeartbeatTimeout, "Time between gossips when there is nothing to gossip about")
	cmd.Flags().Bool("filter-duplicates", _config.Dagsync.FilterDuplicates, "Withhold recently received events from syncs")
	cmd.Flags().Duration("non-ancestor-threshold", _config.Dagsync.NonAncestorThreshold, "Age under which events of other nodes are withheld")
	cmd.Flags().Int("max-incoming-syncs", _config.Dagsync.MaxIncomingSyncs, "Max number of syncs accepted at the same time")
	cmd.Flags().Float64("fallen-behind-threshold", _config.Dagsync.FallenBehindThreshold, "Share of peers reporting the node behind before it stops gossiping")

	// Event window
	cmd.Flags().String("ancient-mode", _config.Dagsync.AncientMode, "generation or birth-round")
	cmd.Flags().Int64("non-ancient-span", _config.Dagsync.NonAncientSpan, "Distance below the highest indicator at which events become ancient")
	cmd.Flags().Int64("expired-span", _config.Dagsync.ExpiredSpan, "Distance below the ancient threshold at which events expire")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Dagsync.SetDataDir(_config.Dagsync.DataDir)

	logFields := logrus.Fields{
		"dagsync.DataDir":               _config.Dagsync.DataDir,
		"dagsync.BindAddr":              _config.Dagsync.BindAddr,
		"dagsync.AdvertiseAddr":         _config.Dagsync.AdvertiseAddr,
		"dagsync.NoService":             _config.Dagsync.NoService,
		"dagsync.ServiceAddr":           _config.Dagsync.ServiceAddr,
		"dagsync.MaxPool":               _config.Dagsync.MaxPool,
		"dagsync.Store":                 _config.Dagsync.Store,
		"dagsync.LogLevel":              _config.Dagsync.LogLevel,
		"dagsync.Moniker":               _config.Dagsync.Moniker,
		"dagsync.HeartbeatTimeout":      _config.Dagsync.HeartbeatTimeout,
		"dagsync.SlowHeartbeatTimeout":  _config.Dagsync.SlowHeartbeatTimeout,
		"dagsync.TCPTimeout":            _config.Dagsync.TCPTimeout,
		"dagsync.CacheSize":             _config.Dagsync.CacheSize,
		"dagsync.AncientMode":           _config.Dagsync.AncientMode,
		"dagsync.NonAncientSpan":        _config.Dagsync.NonAncientSpan,
		"dagsync.ExpiredSpan":           _config.Dagsync.ExpiredSpan,
		"dagsync.FilterDuplicates":      _config.Dagsync.FilterDuplicates,
		"dagsync.NonAncestorThreshold":  _config.Dagsync.NonAncestorThreshold,
		"dagsync.MaxIncomingSyncs":      _config.Dagsync.MaxIncomingSyncs,
		"dagsync.FallenBehindThreshold": _config.Dagsync.FallenBehindThreshold,
		"ProfileAddr":                   _config.ProfileAddr,
	}

	if _config.Dagsync.Store {
		logFields["dagsync.DatabaseDir"] = _config.Dagsync.DatabaseDir
		logFields["dagsync.Bootstrap"] = _config.Dagsync.Bootstrap
	}

	_config.Dagsync.Logger().WithFields(logFields).Debug("RUN")

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

	// look for config file in [datadir]/dagsync.toml (.json, .yaml also work)
	viper.SetConfigName("dagsync")               // name of config file (without extension)
	viper.AddConfigPath(_config.Dagsync.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
