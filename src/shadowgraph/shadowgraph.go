package shadowgraph

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/sirupsen/logrus"
)

// Shadowgraph indexes the non-expired events of a node.
type Shadowgraph struct {
	sync.Mutex

	mode   hg.AncientMode
	window hg.EventWindow

	hashToShadow map[hg.Hash]*ShadowEvent
	buckets      map[int64][]*ShadowEvent //[indicator] => events
	tips         map[*ShadowEvent]struct{}

	// number of indexed events naming a hash as their self-parent
	selfChildren map[hg.Hash]int

	// no indexed event has an indicator below this
	oldestUnexpired int64

	reservations []*reservation
	epoch        uint64

	logger *logrus.Entry
}

// NewShadowgraph creates an empty Shadowgraph using mode to compute event
// indicators. The mode cannot change afterwards.
func NewShadowgraph(mode hg.AncientMode, logger *logrus.Entry) *Shadowgraph {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	sg := &Shadowgraph{
		mode:   mode,
		logger: logger.WithField("prefix", "shadowgraph"),
	}
	sg.reset()

	return sg
}

func (sg *Shadowgraph) reset() {
	sg.window = hg.GenesisEventWindow(sg.mode)
	sg.hashToShadow = make(map[hg.Hash]*ShadowEvent)
	sg.buckets = make(map[int64][]*ShadowEvent)
	sg.tips = make(map[*ShadowEvent]struct{})
	sg.selfChildren = make(map[hg.Hash]int)
	sg.oldestUnexpired = sg.mode.GenesisIndicator()
	sg.reservations = nil
}

/*******************************************************************************
Insertion and lookup
*******************************************************************************/

// AddEvent indexes an event. It fails with an InsertionError if the event is
// nil, already indexed, or below the expired threshold of the current window.
// Parents that are not indexed yet are linked when they arrive.
func (sg *Shadowgraph) AddEvent(event *hg.Event) error {
	sg.Lock()
	defer sg.Unlock()

	err := sg.addEvent(event)
	if err != nil {
		var ie InsertionError
		if ok := asInsertionError(err, &ie); ok {
			insertFailures.WithLabelValues(ie.Reason.String()).Inc()
		}
	}

	sg.updateGauges()
	return err
}

func (sg *Shadowgraph) addEvent(event *hg.Event) error {
	if event == nil || event.Hash().IsZero() {
		return InsertionError{Reason: NullEvent}
	}

	hash := event.Hash()
	indicator := sg.mode.Indicator(event)

	if _, ok := sg.hashToShadow[hash]; ok {
		return InsertionError{Reason: DuplicateEvent, Hash: hash, Indicator: indicator}
	}

	if sg.window.IsExpiredIndicator(indicator) {
		return InsertionError{
			Reason:    ExpiredEvent,
			Hash:      hash,
			Indicator: indicator,
			Expired:   sg.window.ExpiredThreshold,
		}
	}

	s := &ShadowEvent{
		event:     event,
		indicator: indicator,
		graph:     sg,
	}

	// Parents are linked by hash whether or not they are indexed yet, so a
	// parent received after its child resolves once it arrives.
	if sp := event.SelfParent(); !sp.IsZero() {
		s.selfParent = sp
		if parent, ok := sg.hashToShadow[sp]; ok {
			delete(sg.tips, parent)
		}
		sg.selfChildren[sp]++
	}

	if ops := event.OtherParents(); len(ops) > 0 {
		s.otherParents = append([]hg.Hash(nil), ops...)
	}

	sg.hashToShadow[hash] = s
	sg.buckets[indicator] = append(sg.buckets[indicator], s)

	// an event received after its self-child is not a tip
	if sg.selfChildren[hash] == 0 {
		sg.tips[s] = struct{}{}
	}

	if indicator < sg.oldestUnexpired {
		sg.oldestUnexpired = indicator
	}

	return nil
}

// Shadow returns the ShadowEvent of the given hash, or nil if it is not
// indexed.
func (sg *Shadowgraph) Shadow(hash hg.Hash) *ShadowEvent {
	if hash.IsZero() {
		return nil
	}

	sg.Lock()
	defer sg.Unlock()

	return sg.hashToShadow[hash]
}

// Shadows returns the ShadowEvents of the given hashes, in the same order,
// with nil for unknown hashes. It fails with ErrNullArgument if hashes is nil.
func (sg *Shadowgraph) Shadows(hashes []hg.Hash) ([]*ShadowEvent, error) {
	if hashes == nil {
		return nil, ErrNullArgument
	}

	sg.Lock()
	defer sg.Unlock()

	res := make([]*ShadowEvent, len(hashes))
	for i, h := range hashes {
		if h.IsZero() {
			continue
		}
		res[i] = sg.hashToShadow[h]
	}

	return res, nil
}

// Event returns the indexed event with the given hash, or nil.
func (sg *Shadowgraph) Event(hash hg.Hash) *hg.Event {
	if s := sg.Shadow(hash); s != nil {
		return s.event
	}
	return nil
}

// IsHashInGraph reports whether an event with the given hash is indexed.
func (sg *Shadowgraph) IsHashInGraph(hash hg.Hash) bool {
	return sg.Shadow(hash) != nil
}

// Tips returns a snapshot of the tip set, ordered by indicator and then by
// hash.
func (sg *Shadowgraph) Tips() []*ShadowEvent {
	sg.Lock()
	defer sg.Unlock()

	res := make([]*ShadowEvent, 0, len(sg.tips))
	for s := range sg.tips {
		res = append(res, s)
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].indicator != res[j].indicator {
			return res[i].indicator < res[j].indicator
		}
		hi, hj := res[i].Hash(), res[j].Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})

	return res
}

// Len returns the number of indexed events.
func (sg *Shadowgraph) Len() int {
	sg.Lock()
	defer sg.Unlock()
	return len(sg.hashToShadow)
}

// Mode returns the AncientMode of the graph.
func (sg *Shadowgraph) Mode() hg.AncientMode {
	return sg.mode
}

/*******************************************************************************
Traversal
*******************************************************************************/

// FindAncestors returns the events reachable from start through parent links,
// start included, for which predicate holds. A node that fails the predicate
// is not traversed, so its ancestors are only included if they are reachable
// some other way. Each node is visited at most once.
//
// The predicate runs with the graph locked and must not call back into the
// Shadowgraph.
func (sg *Shadowgraph) FindAncestors(start []*ShadowEvent, predicate func(*ShadowEvent) bool) ShadowSet {
	sg.Lock()
	defer sg.Unlock()

	res := make(ShadowSet)
	visited := make(map[*ShadowEvent]struct{})

	queue := make([]*ShadowEvent, 0, len(start))
	for _, s := range start {
		if s != nil {
			queue = append(queue, s)
		}
	}

	var parents []*ShadowEvent
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		if _, ok := visited[s]; ok {
			continue
		}
		visited[s] = struct{}{}

		if !predicate(s) {
			continue
		}
		res.Add(s)

		parents = s.parents(parents[:0])
		for _, p := range parents {
			if _, ok := visited[p]; !ok {
				queue = append(queue, p)
			}
		}
	}

	return res
}

/*******************************************************************************
Window and expiry
*******************************************************************************/

// EventWindow returns the current window.
func (sg *Shadowgraph) EventWindow() hg.EventWindow {
	sg.Lock()
	defer sg.Unlock()
	return sg.window
}

// UpdateEventWindow installs a new window and expires every event below the
// lowest expired threshold still needed, which is the minimum over the new
// window and all open reservations. Calling it again with the same window
// does nothing unless a reservation was closed in between.
//
// The window must use the graph's AncientMode. Keeping thresholds monotonic
// is up to the caller.
func (sg *Shadowgraph) UpdateEventWindow(w hg.EventWindow) error {
	if w.Mode != sg.mode {
		return fmt.Errorf("event window uses %s, shadowgraph uses %s", w.Mode, sg.mode)
	}
	if w.ExpiredThreshold > w.AncientThreshold {
		return fmt.Errorf("invalid %s", w)
	}

	sg.Lock()
	defer sg.Unlock()

	sg.window = w
	sg.expire()
	sg.updateGauges()

	return nil
}

// expire removes every event below the effective floor. The lock must be held.
func (sg *Shadowgraph) expire() {
	floor := sg.window.ExpiredThreshold

	open := sg.reservations[:0]
	for _, r := range sg.reservations {
		if r.count == 0 {
			continue
		}
		open = append(open, r)
		if r.window.ExpiredThreshold < floor {
			floor = r.window.ExpiredThreshold
		}
	}
	for i := len(open); i < len(sg.reservations); i++ {
		sg.reservations[i] = nil
	}
	sg.reservations = open

	if floor <= sg.oldestUnexpired {
		return
	}

	expired := 0
	for indicator, bucket := range sg.buckets {
		if indicator >= floor {
			continue
		}
		for _, s := range bucket {
			sg.disconnect(s)
		}
		expired += len(bucket)
		delete(sg.buckets, indicator)
	}

	sg.oldestUnexpired = floor

	if expired > 0 {
		expiredEvents.Add(float64(expired))
		sg.logger.WithFields(logrus.Fields{
			"below":   floor,
			"expired": expired,
			"indexed": len(sg.hashToShadow),
		}).Debug("Expired events")
	}
}

// disconnect removes s from every index. The lock must be held.
func (sg *Shadowgraph) disconnect(s *ShadowEvent) {
	hash := s.Hash()
	delete(sg.hashToShadow, hash)
	delete(sg.tips, s)

	if sp := s.event.SelfParent(); !sp.IsZero() {
		if sg.selfChildren[sp]--; sg.selfChildren[sp] <= 0 {
			delete(sg.selfChildren, sp)
		}
	}

	s.disconnected = true
}

// Clear empties the graph and resets its window to genesis. Outstanding
// reservations become stale: closing them has no effect.
func (sg *Shadowgraph) Clear() {
	sg.Lock()
	defer sg.Unlock()

	for _, s := range sg.hashToShadow {
		s.disconnected = true
	}

	sg.epoch++
	sg.reset()
	sg.updateGauges()

	sg.logger.Debug("Cleared shadowgraph")
}

// InitFromEvents loads a graph from previously stored events, typically on
// restart. The graph must be empty. Events are inserted in the given order
// after installing window; events that fail to insert are logged and skipped.
func (sg *Shadowgraph) InitFromEvents(events []*hg.Event, window hg.EventWindow) error {
	if len(events) == 0 {
		return fmt.Errorf("shadowgraph: cannot initialize from an empty event list: %w", ErrNullArgument)
	}
	if window.Mode != sg.mode {
		return fmt.Errorf("event window uses %s, shadowgraph uses %s", window.Mode, sg.mode)
	}

	sg.Lock()
	defer sg.Unlock()

	if len(sg.hashToShadow) > 0 {
		return fmt.Errorf("shadowgraph: cannot initialize a non-empty graph")
	}

	sg.window = window
	sg.oldestUnexpired = window.ExpiredThreshold

	skipped := 0
	for _, e := range events {
		if err := sg.addEvent(e); err != nil {
			skipped++
			sg.logger.WithError(err).Debug("Skipping event during initialization")
		}
	}

	sg.updateGauges()

	sg.logger.WithFields(logrus.Fields{
		"events":  len(sg.hashToShadow),
		"skipped": skipped,
		"window":  window,
	}).Info("Initialized shadowgraph")

	return nil
}

func (sg *Shadowgraph) updateGauges() {
	indexedEvents.Set(float64(len(sg.hashToShadow)))
	tipCount.Set(float64(len(sg.tips)))
	openReservations.Set(float64(len(sg.reservations)))
}

func asInsertionError(err error, target *InsertionError) bool {
	ie, ok := err.(InsertionError)
	if ok {
		*target = ie
	}
	return ok
}
