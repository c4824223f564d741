package shadowgraph

import (
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// ShadowEvent is the Shadowgraph's wrapper around one event. Parents are held
// as hashes and resolved through the graph, so a parent that has expired
// simply stops resolving.
type ShadowEvent struct {
	event     *hg.Event
	indicator int64
	graph     *Shadowgraph

	// parent hashes, resolved through the graph on every access
	selfParent   hg.Hash
	otherParents []hg.Hash

	// set when the event leaves the graph
	disconnected bool
}

// Event returns the wrapped event.
func (s *ShadowEvent) Event() *hg.Event {
	return s.event
}

// Hash returns the hash of the wrapped event.
func (s *ShadowEvent) Hash() hg.Hash {
	return s.event.Hash()
}

// Indicator returns the indicator of the wrapped event under the graph's
// AncientMode.
func (s *ShadowEvent) Indicator() int64 {
	return s.indicator
}

// SelfParent returns the self-parent while it is indexed, or nil.
func (s *ShadowEvent) SelfParent() *ShadowEvent {
	s.graph.Lock()
	defer s.graph.Unlock()
	return s.resolveSelfParent()
}

// OtherParents returns the other-parents that are still indexed.
func (s *ShadowEvent) OtherParents() []*ShadowEvent {
	s.graph.Lock()
	defer s.graph.Unlock()

	res := []*ShadowEvent{}
	for _, h := range s.otherParents {
		if p := s.resolve(h); p != nil {
			res = append(res, p)
		}
	}
	return res
}

// Disconnected reports whether the event has left the graph, either because it
// expired or because the graph was cleared.
func (s *ShadowEvent) Disconnected() bool {
	s.graph.Lock()
	defer s.graph.Unlock()
	return s.disconnected
}

func (s *ShadowEvent) resolveSelfParent() *ShadowEvent {
	return s.resolve(s.selfParent)
}

func (s *ShadowEvent) resolve(h hg.Hash) *ShadowEvent {
	if s.disconnected || h.IsZero() {
		return nil
	}
	return s.graph.hashToShadow[h]
}

// parents appends the indexed parents of s to dst. The graph lock must be
// held.
func (s *ShadowEvent) parents(dst []*ShadowEvent) []*ShadowEvent {
	if p := s.resolveSelfParent(); p != nil {
		dst = append(dst, p)
	}
	for _, h := range s.otherParents {
		if p := s.resolve(h); p != nil {
			dst = append(dst, p)
		}
	}
	return dst
}

// ShadowSet is a set of ShadowEvents.
type ShadowSet map[*ShadowEvent]struct{}

// Add inserts s.
func (ss ShadowSet) Add(s *ShadowEvent) {
	ss[s] = struct{}{}
}

// AddAll inserts every element of other.
func (ss ShadowSet) AddAll(other ShadowSet) {
	for s := range other {
		ss[s] = struct{}{}
	}
}

// Contains reports whether s is in the set.
func (ss ShadowSet) Contains(s *ShadowEvent) bool {
	_, ok := ss[s]
	return ok
}

// Events returns the wrapped events in no particular order.
func (ss ShadowSet) Events() []*hg.Event {
	res := make([]*hg.Event, 0, len(ss))
	for s := range ss {
		res = append(res, s.event)
	}
	return res
}
