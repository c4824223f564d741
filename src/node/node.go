package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mosaicnetworks/dagsync/src/config"
	"github.com/mosaicnetworks/dagsync/src/gossip"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/mosaicnetworks/dagsync/src/net"
	"github.com/mosaicnetworks/dagsync/src/peers"
	sg "github.com/mosaicnetworks/dagsync/src/shadowgraph"
	"github.com/sirupsen/logrus"
)

//Node defines a dagsync node
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator

	core *Core

	trans net.Transport
	netCh <-chan *net.Connection

	synchronizer *gossip.Synchronizer
	fallenBehind *fallenBehindMonitor

	peerSelector PeerSelector
	selectorLock sync.Mutex

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownCh chan struct{}

	controlTimer *ControlTimer
	clock        clockwork.Clock

	start        time.Time
	syncRequests int64
	syncErrors   int64
}

//NewNode is a factory method that returns a Node instance. A nil clock uses
//the real clock.
func NewNode(conf *config.Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store hg.Store,
	trans net.Transport,
	clock clockwork.Clock,
) (*Node, error) {

	mode, err := conf.Mode()
	if err != nil {
		return nil, err
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger := conf.Logger().WithField("this_id", validator.ID())

	graph := sg.NewShadowgraph(mode, logger)

	core := NewCore(validator.ID(),
		graph,
		store,
		NewWindowPolicy(mode, conf.NonAncientSpan, conf.ExpiredSpan),
		clock,
		logger.WithField("prefix", "core"))

	selector := NewRandomPeerSelector(peerSet, validator.ID())

	ctx, cancel := context.WithCancel(context.Background())

	node := &Node{
		conf:         conf,
		logger:       logger.WithField("prefix", "node"),
		validator:    validator,
		core:         core,
		trans:        trans,
		netCh:        trans.Consumer(),
		peerSelector: selector,
		ctx:          ctx,
		cancel:       cancel,
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(clock),
		clock:        clock,
	}

	node.fallenBehind = newFallenBehindMonitor(
		selector.Peers().WithoutID(validator.ID()).Len(),
		conf.FallenBehindThreshold,
		node.onFallenBehind,
		node.logger)

	node.synchronizer = gossip.NewSynchronizer(graph,
		validator.ID(),
		conf.SyncConfig(),
		core.ProcessSyncedEvent,
		node.fallenBehind,
		gossip.NewSyncPermits(conf.MaxIncomingSyncs),
		clock,
		logger)

	return node, nil
}

//Init intialises the node, loading the store if Bootstrap is set
func (n *Node) Init() error {
	if n.conf.Bootstrap {
		n.logger.Debug("Bootstrap")
		if err := n.core.Bootstrap(); err != nil {
			return err
		}
	}

	n.setState(Babbling)

	return nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync(gossip bool) {
	n.logger.WithField("gossip", gossip).Debug("runasync")

	go n.Run(gossip)
}

//Run invokes the main loop of the node. If gossip is false the node only
//answers syncs.
func (n *Node) Run(gossip bool) {
	n.start = n.clock.Now()

	go n.trans.Listen()

	//The ControlTimer allows the background routines to control the
	//heartbeat timer when the node is in the Babbling state.
	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	//Answer syncs regardless of the state of the node.
	go n.doBackgroundWork()

	//Execute Node State Machine
	for {
		state := n.getState()

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Babbling:
			n.babble(gossip)
		case CatchingUp:
			n.catchUp()
		case Shutdown:
			return
		}
	}
}

func (n *Node) resetTimer() {
	if !n.controlTimer.set {
		ts := n.conf.HeartbeatTimeout

		//Slow gossip if nothing interesting to say
		if !n.core.Busy() {
			ts = n.conf.SlowHeartbeatTimeout
		}

		select {
		case n.controlTimer.resetCh <- ts:
		case <-n.shutdownCh:
		}
	}
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case conn := <-n.netCh:
			ok := n.goFunc(func() {
				n.serveConn(conn)
			})
			if !ok {
				n.logger.WithField("peer", conn.OtherID()).Warn("Too many routines, dropping connection")
				conn.Close()
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// serveConn answers syncs on an accepted connection until it fails.
func (n *Node) serveConn(conn *net.Connection) {
	for {
		res, err := n.synchronizer.AcceptSync(n.ctx, conn)
		if errors.Is(err, gossip.ErrSyncRejected) {
			continue
		}
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  conn.OtherID(),
				"error": err,
			}).Debug("Incoming connection closed")
			conn.Close()
			return
		}

		if res.Synced {
			n.recordHead(res.PeerID)
		}
	}
}

// babble periodically initiates gossip while the node is Babbling.
func (n *Node) babble(gossip bool) {
	n.logger.Debug("BABBLING")

	for {
		select {
		case <-n.controlTimer.tickCh:
			if gossip {
				n.logger.Debug("Time to gossip!")
				n.selectorLock.Lock()
				peer := n.peerSelector.Next()
				n.selectorLock.Unlock()
				if peer != nil {
					n.goFunc(func() { n.gossip(peer) })
				} else {
					n.monologue()
				}
			}
			if n.getState() != Babbling {
				return
			}
			n.resetTimer()
		case <-n.shutdownCh:
			return
		}
	}
}

// catchUp waits in the CatchingUp state. The node keeps answering syncs but
// no longer initiates them; recovering from a fallen-behind state is left to
// the operator.
func (n *Node) catchUp() {
	n.logger.WithField("reports", n.fallenBehind.numReports()).Warn("CATCHING-UP: node has fallen behind")
	<-n.shutdownCh
}

func (n *Node) onFallenBehind() {
	if n.getState() == Babbling {
		n.setState(CatchingUp)
	}
}

//gossip runs a sync with peer and records a new self-event if there is
//something to record.
func (n *Node) gossip(peer *peers.Peer) error {
	atomic.AddInt64(&n.syncRequests, 1)

	conn, err := n.trans.Dial(peer.NetAddr, peer.ID())
	if err != nil {
		atomic.AddInt64(&n.syncErrors, 1)
		n.logger.WithField("peer", peer.String()).WithError(err).Error("Dial")
		return err
	}

	res, err := n.synchronizer.Synchronize(n.ctx, conn)

	if errors.Is(err, gossip.ErrSyncRejected) {
		n.trans.Release(conn, nil)
		n.logger.WithField("peer", peer.ID()).Debug("Sync rejected")
		return nil
	}

	n.trans.Release(conn, err)

	if err != nil {
		atomic.AddInt64(&n.syncErrors, 1)
		return err
	}

	if res.Synced {
		n.recordHead(peer.ID())
	}

	//update peer selector
	n.selectorLock.Lock()
	n.peerSelector.UpdateLast(peer.ID())
	n.selectorLock.Unlock()

	n.logStats()

	return nil
}

func (n *Node) recordHead(peerID uint32) {
	if _, err := n.core.RecordHead(peerID); err != nil {
		n.logger.WithError(err).Error("RecordHead")
	}
}

// monologue creates self-events when the node is alone.
func (n *Node) monologue() error {
	if n.core.Busy() || n.core.Head() == nil {
		if _, err := n.core.CreateEvent(nil); err != nil {
			n.logger.WithError(err).Error("monologue, CreateEvent()")
			return err
		}
	}

	return nil
}

//AddTransaction adds a transaction to the pool of the next self-event
func (n *Node) AddTransaction(tx []byte) {
	n.core.AddTransactions([][]byte{tx})
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)
		n.cancel()

		n.waitRoutines()

		n.controlTimer.Shutdown()

		//transport and store should only be closed once all concurrent operations
		//are finished otherwise they will panic trying to use close objects
		n.trans.Close()

		n.core.Store().Close()
	}
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	window := n.core.EventWindow()
	elapsed := n.clock.Since(n.start)

	eventCount := n.core.Store().EventCount()
	var eventsPerSecond float64
	if elapsed > 0 {
		eventsPerSecond = float64(eventCount) / elapsed.Seconds()
	}

	n.selectorLock.Lock()
	numPeers := n.peerSelector.Peers().Len()
	n.selectorLock.Unlock()

	s := map[string]string{
		"latest_consensus_round": strconv.FormatInt(window.LatestConsensusRound, 10),
		"ancient_threshold":      strconv.FormatInt(window.AncientThreshold, 10),
		"expired_threshold":      strconv.FormatInt(window.ExpiredThreshold, 10),
		"ancient_mode":           window.Mode.String(),
		"graph_events":           strconv.Itoa(n.core.Graph().Len()),
		"tips":                   strconv.Itoa(len(n.core.Graph().Tips())),
		"stored_events":          strconv.Itoa(eventCount),
		"transaction_pool":       strconv.Itoa(n.core.TransactionPoolSize()),
		"num_peers":              strconv.Itoa(numPeers),
		"fallen_behind_reports":  strconv.Itoa(n.fallenBehind.numReports()),
		"sync_rate":              strconv.FormatFloat(n.SyncRate(), 'f', 2, 64),
		"events_per_second":      strconv.FormatFloat(eventsPerSecond, 'f', 2, 64),
		"id":                     fmt.Sprint(n.validator.ID()),
		"state":                  n.getState().String(),
		"moniker":                n.validator.Moniker,
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}

	n.logger.WithFields(fields).Debug("Stats")
}

//SyncRate returns the share of initiated syncs that did not fail
func (n *Node) SyncRate() float64 {
	requests := atomic.LoadInt64(&n.syncRequests)
	errs := atomic.LoadInt64(&n.syncErrors)

	var syncErrorRate float64
	if requests != 0 {
		syncErrorRate = float64(errs) / float64(requests)
	}

	return 1 - syncErrorRate
}

//ID returns the node ID
func (n *Node) ID() uint32 {
	return n.validator.ID()
}

//GetState returns the state of the node
func (n *Node) GetState() State {
	return n.getState()
}

//GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	n.selectorLock.Lock()
	defer n.selectorLock.Unlock()
	return n.peerSelector.Peers().Peers
}

//Core returns the core of the node
func (n *Node) Core() *Core {
	return n.core
}
