package hashgraph

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	cm "github.com/mosaicnetworks/dagsync/src/common"
)

// InmemStore implements the Store interface with in-memory caches. When the
// caches are full, older items are evicted, so InmemStore cannot replay a
// long-running node from the beginning.
type InmemStore struct {
	sync.RWMutex

	cacheSize  int
	eventCache *lru.Cache[Hash, *Event]

	// topological ring: topo[i] has topological index topoOffset+i
	topo       []*Event
	topoOffset int

	window    EventWindow
	hasWindow bool
}

// NewInmemStore creates an InmemStore whose caches are limited to cacheSize
// items.
func NewInmemStore(cacheSize int) *InmemStore {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	eventCache, _ := lru.New[Hash, *Event](cacheSize)
	return &InmemStore{
		cacheSize:  cacheSize,
		eventCache: eventCache,
	}
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// GetEvent implements the Store interface.
func (s *InmemStore) GetEvent(hash Hash) (*Event, error) {
	ev, ok := s.eventCache.Get(hash)
	if !ok {
		return nil, cm.NewStoreErr("EventCache", cm.KeyNotFound, hash.Hex())
	}
	return ev, nil
}

// SetEvent implements the Store interface.
func (s *InmemStore) SetEvent(event *Event) error {
	s.Lock()
	defer s.Unlock()

	if s.eventCache.Contains(event.Hash()) {
		return nil
	}

	s.eventCache.Add(event.Hash(), event)

	s.topo = append(s.topo, event)
	if over := len(s.topo) - s.cacheSize; over > 0 {
		s.topo = append([]*Event(nil), s.topo[over:]...)
		s.topoOffset += over
	}

	return nil
}

// TopologicalEvents implements the Store interface. It fails with TooLate if
// start was evicted.
func (s *InmemStore) TopologicalEvents(start, count int) ([]*Event, error) {
	s.RLock()
	defer s.RUnlock()

	if start < s.topoOffset {
		return nil, cm.NewStoreErr("TopologicalEvents", cm.TooLate, strconv.Itoa(start))
	}

	from := start - s.topoOffset
	if from >= len(s.topo) {
		return []*Event{}, nil
	}
	to := len(s.topo)
	if count >= 0 && from+count < to {
		to = from + count
	}

	res := make([]*Event, to-from)
	copy(res, s.topo[from:to])
	return res, nil
}

// EventCount implements the Store interface.
func (s *InmemStore) EventCount() int {
	s.RLock()
	defer s.RUnlock()
	return s.topoOffset + len(s.topo)
}

// LastEventWindow implements the Store interface.
func (s *InmemStore) LastEventWindow() (EventWindow, error) {
	s.RLock()
	defer s.RUnlock()

	if !s.hasWindow {
		return EventWindow{}, cm.NewStoreErr("EventWindow", cm.Empty, "")
	}
	return s.window, nil
}

// SetEventWindow implements the Store interface.
func (s *InmemStore) SetEventWindow(w EventWindow) error {
	s.Lock()
	defer s.Unlock()

	s.window = w
	s.hasWindow = true
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface. InmemStore has no path.
func (s *InmemStore) StorePath() string {
	return ""
}
