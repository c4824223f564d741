package node

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mosaicnetworks/dagsync/src/common"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	sg "github.com/mosaicnetworks/dagsync/src/shadowgraph"
	"github.com/sirupsen/logrus"
)

// Core is the core Node object. It owns the shadowgraph, persists accepted
// events and moves the event window forward.
type Core struct {
	sync.Mutex

	// selfID is the ID of this node, used as creator of self-events.
	selfID uint32

	// graph indexes the events the node gossips about.
	graph *sg.Shadowgraph

	// store persists accepted events and the last window so that the node can
	// bootstrap after a restart.
	store hg.Store

	// policy decides the event window.
	policy *WindowPolicy

	// recent remembers the hashes of recently accepted events so that
	// duplicates are dropped before touching the graph or the store.
	recent *lru.Cache[hg.Hash, struct{}]

	// head is this node's last self-event.
	head *hg.Event

	// Events from other nodes that are not tied to this node's head yet. If
	// there is nothing to record, items stay in heads; otherwise they are used
	// as other-parents of new self-events and removed.
	heads map[uint32]*hg.Event

	// The transaction pool contains transactions submitted to the node that
	// still haven't made it into an event.
	transactionPool [][]byte

	clock  clockwork.Clock
	logger *logrus.Entry
}

// NewCore is a factory method that returns a new Core object
func NewCore(
	selfID uint32,
	graph *sg.Shadowgraph,
	store hg.Store,
	policy *WindowPolicy,
	clock clockwork.Clock,
	logger *logrus.Entry) *Core {

	cacheSize := store.CacheSize()
	if cacheSize < 1 {
		cacheSize = 1
	}
	recent, _ := lru.New[hg.Hash, struct{}](cacheSize)

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Core{
		selfID:          selfID,
		graph:           graph,
		store:           store,
		policy:          policy,
		recent:          recent,
		heads:           make(map[uint32]*hg.Event),
		transactionPool: [][]byte{},
		clock:           clock,
		logger:          logger,
	}
}

// Bootstrap replays the events of the store into the shadowgraph, restores
// the last window and the head.
func (c *Core) Bootstrap() error {
	c.Lock()
	defer c.Unlock()

	c.logger.Debug("Bootstrap")

	window, err := c.store.LastEventWindow()
	if err != nil {
		if !common.IsStore(err, common.Empty) {
			return err
		}
		window = hg.GenesisEventWindow(c.graph.Mode())
	}

	events, err := c.store.TopologicalEvents(0, -1)
	if err != nil {
		return err
	}

	c.policy.Reset(window)

	if len(events) == 0 {
		return c.graph.UpdateEventWindow(window)
	}

	if err := c.graph.InitFromEvents(events, window); err != nil {
		return err
	}

	for _, e := range events {
		c.recent.Add(e.Hash(), struct{}{})
		c.policy.Observe(e)
		if e.Creator() == c.selfID {
			if c.head == nil || e.Generation() > c.head.Generation() {
				c.head = e
			}
		}
	}

	if err := c.applyWindow(c.policy.Window()); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"events": len(events),
		"window": c.policy.Window(),
		"head":   c.head != nil,
	}).Debug("Bootstrap done")

	return nil
}

/*******************************************************************************
Intake
*******************************************************************************/

// InsertEvent adds an event received outside of a sync to the graph, persists
// it and updates the window. A recently seen event fails with a duplicate
// InsertionError before reaching the graph.
func (c *Core) InsertEvent(event *hg.Event) error {
	if event == nil {
		return sg.ErrNullArgument
	}

	c.Lock()
	defer c.Unlock()

	if c.recent.Contains(event.Hash()) {
		return sg.InsertionError{
			Reason: sg.DuplicateEvent,
			Hash:   event.Hash(),
		}
	}

	if event.TimeReceived().IsZero() {
		event.SetTimeReceived(c.clock.Now())
	}

	if err := c.graph.AddEvent(event); err != nil {
		return err
	}

	return c.record(event)
}

// ProcessSyncedEvent is called for every event a sync added to the graph. It
// persists the event and updates the window.
func (c *Core) ProcessSyncedEvent(event *hg.Event) {
	c.Lock()
	defer c.Unlock()

	if err := c.record(event); err != nil {
		c.logger.WithError(err).WithField("event", event.Hash()).Error("Recording synced event")
	}
}

// record must be called with the lock held.
func (c *Core) record(event *hg.Event) error {
	c.recent.Add(event.Hash(), struct{}{})

	if err := c.store.SetEvent(event); err != nil {
		return err
	}

	if creator := event.Creator(); creator != c.selfID {
		if h, ok := c.heads[creator]; !ok || h == nil || event.Generation() > h.Generation() {
			c.heads[creator] = event
		}
	}

	if window, changed := c.policy.Observe(event); changed {
		return c.applyWindow(window)
	}

	return nil
}

func (c *Core) applyWindow(window hg.EventWindow) error {
	if err := c.graph.UpdateEventWindow(window); err != nil {
		return err
	}
	return c.store.SetEventWindow(window)
}

/*******************************************************************************
Self-events
*******************************************************************************/

// Busy returns a boolean that denotes whether there is something to record.
func (c *Core) Busy() bool {
	c.Lock()
	defer c.Unlock()
	return len(c.transactionPool) > 0
}

// CreateEvent creates a self-event on top of the head, with otherParent as
// other-parent if it is not nil, and the pending transactions as payload.
func (c *Core) CreateEvent(otherParent *hg.Event) (*hg.Event, error) {
	c.Lock()
	defer c.Unlock()
	return c.createEvent(otherParent)
}

func (c *Core) createEvent(otherParent *hg.Event) (*hg.Event, error) {
	var others []*hg.Event
	if otherParent != nil {
		others = append(others, otherParent)
	}

	event := hg.NewEvent(c.selfID,
		c.head,
		others,
		c.policy.NextBirthRound(),
		c.transactionPool,
		c.clock.Now())

	if err := c.graph.AddEvent(event); err != nil {
		return nil, err
	}

	if err := c.record(event); err != nil {
		return nil, err
	}

	c.head = event
	c.transactionPool = [][]byte{}

	c.logger.WithFields(logrus.Fields{
		"event":        event.Hash(),
		"generation":   event.Generation(),
		"birth_round":  event.BirthRound(),
		"transactions": len(event.Transactions()),
	}).Debug("Created self-event")

	return event, nil
}

// RecordHead creates a self-event on top of the last event received from
// fromID, if the node has something to record or has no self-event yet.
func (c *Core) RecordHead(fromID uint32) (*hg.Event, error) {
	c.Lock()
	defer c.Unlock()

	if len(c.transactionPool) == 0 && c.head != nil {
		return nil, nil
	}

	other := c.heads[fromID]
	delete(c.heads, fromID)

	// The other head may have expired since it was received.
	if other != nil && !c.graph.IsHashInGraph(other.Hash()) {
		other = nil
	}

	return c.createEvent(other)
}

// AddTransactions appends transactions to the pool.
func (c *Core) AddTransactions(txs [][]byte) {
	c.Lock()
	defer c.Unlock()
	c.transactionPool = append(c.transactionPool, txs...)
}

/*******************************************************************************
Getters
*******************************************************************************/

// Head returns the last self-event, or nil.
func (c *Core) Head() *hg.Event {
	c.Lock()
	defer c.Unlock()
	return c.head
}

// Graph returns the shadowgraph.
func (c *Core) Graph() *sg.Shadowgraph {
	return c.graph
}

// Store returns the event store.
func (c *Core) Store() hg.Store {
	return c.store
}

// EventWindow returns the current window.
func (c *Core) EventWindow() hg.EventWindow {
	c.Lock()
	defer c.Unlock()
	return c.policy.Window()
}

// TransactionPoolSize returns the number of pending transactions.
func (c *Core) TransactionPoolSize() int {
	c.Lock()
	defer c.Unlock()
	return len(c.transactionPool)
}
