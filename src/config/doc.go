// Package config defines the configuration of a dagsync node.
//
// The command line and programs embedding a node fill the same Config. On top
// of the options, a node relies on a data directory, Config.DataDir, where it
// expects a few files:
//
//	priv_key     // the raw private key of the node (cf. dagsync keygen)
//	peers.json   // the list of peers to gossip with
//	dagsync.toml // (optional) configuration file read by the command line
package config
