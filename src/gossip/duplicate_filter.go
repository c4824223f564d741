package gossip

import (
	"time"

	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// FilterLikelyDuplicates withholds events the peer has probably received
// already through other syncs. Events created by selfID are always kept, as
// are events received more than threshold ago. Every ancestor of a kept event
// that is in the list is kept too, so the output never contains an event
// without the ancestors it was sent with. The input order is preserved.
func FilterLikelyDuplicates(selfID uint32, threshold time.Duration, now time.Time, events []*hg.Event) []*hg.Event {
	if len(events) == 0 {
		return events
	}

	byHash := make(map[hg.Hash]int, len(events))
	for i, e := range events {
		byHash[e.Hash()] = i
	}

	keep := make([]bool, len(events))
	queue := make([]int, 0, len(events))

	for i, e := range events {
		if e.Creator() == selfID || now.Sub(e.TimeReceived()) > threshold {
			keep[i] = true
			queue = append(queue, i)
		}
	}

	mark := func(h hg.Hash) {
		if j, ok := byHash[h]; ok && !keep[j] {
			keep[j] = true
			queue = append(queue, j)
		}
	}

	for len(queue) > 0 {
		e := events[queue[len(queue)-1]]
		queue = queue[:len(queue)-1]

		mark(e.SelfParent())
		for _, op := range e.OtherParents() {
			mark(op)
		}
	}

	res := make([]*hg.Event, 0, len(events))
	for i, e := range events {
		if keep[i] {
			res = append(res, e)
		}
	}
	return res
}
