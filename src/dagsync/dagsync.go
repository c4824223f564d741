// Package dagsync wires the components of a gossiping node together: keys,
// peers, store, transport, node and HTTP service.
package dagsync

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/mosaicnetworks/dagsync/src/config"
	"github.com/mosaicnetworks/dagsync/src/crypto/keys"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/mosaicnetworks/dagsync/src/net"
	"github.com/mosaicnetworks/dagsync/src/node"
	"github.com/mosaicnetworks/dagsync/src/peers"
	"github.com/mosaicnetworks/dagsync/src/service"
	"github.com/sirupsen/logrus"
)

// Dagsync is the engine of a node.
type Dagsync struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     hg.Store
	Peers     *peers.PeerSet
	Service   *service.Service

	logger *logrus.Entry
}

// NewDagsync creates an engine from a configuration. Call Init before Run.
func NewDagsync(c *config.Config) *Dagsync {
	engine := &Dagsync{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init reads the configuration and initializes every component.
func (d *Dagsync) Init() error {
	if err := d.initKey(); err != nil {
		d.logger.WithError(err).Error("dagsync.go:Init() initKey")
		return err
	}

	if err := d.initPeers(); err != nil {
		d.logger.WithError(err).Error("dagsync.go:Init() initPeers")
		return err
	}

	if err := d.initStore(); err != nil {
		d.logger.WithError(err).Error("dagsync.go:Init() initStore")
		return err
	}

	if err := d.initTransport(); err != nil {
		d.logger.WithError(err).Error("dagsync.go:Init() initTransport")
		return err
	}

	if err := d.initNode(); err != nil {
		d.logger.WithError(err).Error("dagsync.go:Init() initNode")
		return err
	}

	if err := d.initService(); err != nil {
		d.logger.WithError(err).Error("dagsync.go:Init() initService")
		return err
	}

	return nil
}

// Run starts the HTTP service, if any, and the node. It blocks until the node
// is shut down.
func (d *Dagsync) Run() {
	if d.Service != nil {
		go d.Service.Serve()
	}

	d.Node.Run(true)
}

func (d *Dagsync) validator() *node.Validator {
	return node.NewValidator(d.Config.Key, d.Config.Moniker)
}

func (d *Dagsync) initKey() error {
	if d.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(d.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			d.logger.WithError(err).Errorf("Error reading private key from file %s", d.Config.Keyfile())
			return err
		}

		d.Config.Key = privKey
	}

	return nil
}

func (d *Dagsync) initPeers() error {
	if d.Peers != nil {
		return nil
	}

	peerSet, err := peers.NewJSONPeerSet(d.Config.DataDir).PeerSet()
	if err != nil {
		return err
	}

	if _, ok := peerSet.ByID[d.validator().ID()]; !ok {
		return fmt.Errorf("peers.json does not contain the key of this node")
	}

	d.Peers = peerSet

	return nil
}

func (d *Dagsync) initStore() error {
	if d.Config.Bootstrap {
		d.Config.Store = true
	}

	if !d.Config.Store {
		d.logger.Debug("Creating InmemStore")
		d.Store = hg.NewInmemStore(d.Config.CacheSize)
		return nil
	}

	dbPath := d.Config.DatabaseDir

	d.logger.WithField("path", dbPath).Debug("Creating BadgerStore")

	store, err := hg.LoadOrCreateBadgerStore(d.Config.CacheSize, dbPath)
	if err != nil {
		return err
	}

	if store.NeedBootstrap() {
		d.logger.Debug("Loaded BadgerStore from existing database")
	} else {
		d.logger.Debug("Created BadgerStore from fresh database")
	}

	d.Store = store

	return nil
}

func (d *Dagsync) initTransport() error {
	if d.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		d.Config.BindAddr,
		d.Config.AdvertiseAddr,
		d.validator().ID(),
		d.Config.MaxPool,
		d.Config.TCPTimeout,
		d.logger.WithField("prefix", "transport"),
	)
	if err != nil {
		return err
	}

	d.Transport = transport

	return nil
}

func (d *Dagsync) initNode() error {
	validator := d.validator()

	d.logger.WithFields(logrus.Fields{
		"peers": d.Peers.Len(),
		"id":    validator.ID(),
	}).Debug("PARTICIPANTS")

	n, err := node.NewNode(d.Config,
		validator,
		d.Peers,
		d.Store,
		d.Transport,
		nil)
	if err != nil {
		return err
	}

	if err := n.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	d.Node = n

	return nil
}

func (d *Dagsync) initService() error {
	if !d.Config.NoService {
		d.Service = service.NewService(d.Config.ServiceAddr,
			d.Node,
			d.logger.WithField("prefix", "service"))
	}
	return nil
}

// Keygen generates a new key and writes it to keyfile. It fails if a key
// already lives there.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	simpleKeyfile := keys.NewSimpleKeyfile(keyfile)

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := simpleKeyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
