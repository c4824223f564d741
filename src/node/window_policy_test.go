package node

import (
	"testing"
	"time"

	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

func TestWindowPolicyGeneration(t *testing.T) {
	p := NewWindowPolicy(hg.GenerationThreshold, 3, 2)

	if !p.Window().IsGenesis() {
		t.Fatalf("policy should start at genesis, got %s", p.Window())
	}

	var prev *hg.Event
	for i := 0; i < 3; i++ {
		prev = hg.NewEvent(1, prev, nil, hg.FirstRound, nil, time.Unix(int64(i), 0))
		if _, changed := p.Observe(prev); changed && p.Window().AncientThreshold != 0 {
			t.Fatalf("window should not move before the span is reached, got %s", p.Window())
		}
	}

	for i := 3; i < 10; i++ {
		prev = hg.NewEvent(1, prev, nil, hg.FirstRound, nil, time.Unix(int64(i), 0))
		p.Observe(prev)
	}

	w := p.Window()
	if w.AncientThreshold != 6 || w.ExpiredThreshold != 4 {
		t.Fatalf("expected ancient 6 and expired 4, got %s", w)
	}

	// An old event does not move thresholds back.
	old := hg.NewEvent(2, nil, nil, hg.FirstRound, nil, time.Unix(100, 0))
	if _, changed := p.Observe(old); changed {
		t.Fatalf("old event should not change the window")
	}
	if p.Window() != w {
		t.Fatalf("window moved back to %s", p.Window())
	}
}

func TestWindowPolicyBirthRound(t *testing.T) {
	p := NewWindowPolicy(hg.BirthRoundThreshold, 2, 1)

	if p.NextBirthRound() != hg.FirstRound {
		t.Fatalf("first birth round should be %d, got %d", hg.FirstRound, p.NextBirthRound())
	}

	var prev *hg.Event
	for i := 0; i < 6; i++ {
		prev = hg.NewEvent(1, prev, nil, p.NextBirthRound(), nil, time.Unix(int64(i), 0))
		p.Observe(prev)
	}

	w := p.Window()
	if w.LatestConsensusRound != 6 {
		t.Fatalf("latest round should be 6, got %d", w.LatestConsensusRound)
	}
	if w.AncientThreshold != 4 || w.ExpiredThreshold != 3 {
		t.Fatalf("expected ancient 4 and expired 3, got %s", w)
	}
}

func TestWindowPolicyReset(t *testing.T) {
	p := NewWindowPolicy(hg.GenerationThreshold, 3, 2)

	w, err := hg.NewEventWindow(4, 10, 8, hg.GenerationThreshold)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	p.Reset(w)

	if p.Window() != w {
		t.Fatalf("Reset should install %s, got %s", w, p.Window())
	}

	e := hg.NewEvent(1, nil, nil, hg.FirstRound, nil, time.Unix(0, 0))
	if _, changed := p.Observe(e); changed {
		t.Fatalf("low event should not change a restored window, got %s", p.Window())
	}
}
