package shadowgraph

import (
	"testing"

	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"pgregory.net/rapid"
)

// TestShadowgraphProperties drives a Shadowgraph with random insertions,
// window updates and reservations, and checks the tip and expiry invariants
// after every step.
func TestShadowgraphProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sg := NewShadowgraph(hg.GenerationThreshold, nil)
		g := newTestGraph(rapid.Int64().Draw(rt, "seed"))
		events := g.generate(rapid.IntRange(1, 5).Draw(rt, "creators"), rapid.IntRange(1, 150).Draw(rt, "events"))

		var open []*ReservedEventWindow
		expired := int64(0)
		next := 0

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0, 1, 2:
				if next < len(events) {
					ev := events[next]
					next++
					err := sg.AddEvent(ev)
					if sg.window.IsExpired(ev) {
						if !IsInsertion(err, ExpiredEvent) {
							rt.Fatalf("expected ExpiredEvent, got %v", err)
						}
					} else if err != nil {
						rt.Fatalf("err: %v", err)
					}
				}
			case 3:
				expired += rapid.Int64Range(0, 3).Draw(rt, "advance")
				w, _ := hg.NewEventWindow(0, expired+2, expired, hg.GenerationThreshold)
				if err := sg.UpdateEventWindow(w); err != nil {
					rt.Fatalf("err: %v", err)
				}
			case 4:
				open = append(open, sg.Reserve())
			case 5:
				if len(open) > 0 {
					j := rapid.IntRange(0, len(open)-1).Draw(rt, "close")
					open[j].Close()
					open = append(open[:j], open[j+1:]...)
				}
			}

			checkTipInvariant(rt, sg)
			checkExpiryFloor(rt, sg, open)
		}

		for _, r := range open {
			r.Close()
		}
		checkExpiryFloor(rt, sg, nil)
	})
}

// checkExpiryFloor verifies that no indexed event is below the effective
// floor, and that every indexed parent link resolves.
func checkExpiryFloor(t fatalfer, sg *Shadowgraph, open []*ReservedEventWindow) {
	floor := sg.EventWindow().ExpiredThreshold
	for _, r := range open {
		if e := r.EventWindow().ExpiredThreshold; e < floor {
			floor = e
		}
	}

	sg.Lock()
	defer sg.Unlock()

	for h, s := range sg.hashToShadow {
		if s.indicator < floor {
			t.Fatalf("event %s with indicator %d is below floor %d", h, s.indicator, floor)
		}
		if s.disconnected {
			t.Fatalf("indexed event %s is disconnected", h)
		}
		if !s.selfParent.IsZero() {
			if sg.hashToShadow[s.selfParent] == nil && s.resolveSelfParent() != nil {
				t.Fatalf("self-parent of %s resolves after expiry", h)
			}
		}
	}
}
