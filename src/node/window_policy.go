package node

import (
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// WindowPolicy derives the event window from the events a node has seen. It
// stands in for consensus: the highest birth round seen is treated as the
// latest consensus round, events more than NonAncientSpan below the highest
// indicator are ancient, and events more than ExpiredSpan below the ancient
// threshold are expired. Thresholds never go down.
//
// WindowPolicy is not safe for concurrent use.
type WindowPolicy struct {
	mode           hg.AncientMode
	nonAncientSpan int64
	expiredSpan    int64

	maxIndicator  int64
	maxBirthRound int64

	window hg.EventWindow
}

// NewWindowPolicy returns a WindowPolicy starting at the genesis window.
func NewWindowPolicy(mode hg.AncientMode, nonAncientSpan, expiredSpan int64) *WindowPolicy {
	if nonAncientSpan < 0 {
		nonAncientSpan = 0
	}
	if expiredSpan < 0 {
		expiredSpan = 0
	}
	return &WindowPolicy{
		mode:           mode,
		nonAncientSpan: nonAncientSpan,
		expiredSpan:    expiredSpan,
		maxIndicator:   mode.GenesisIndicator(),
		maxBirthRound:  hg.FirstRound - 1,
		window:         hg.GenesisEventWindow(mode),
	}
}

// Window returns the current window.
func (p *WindowPolicy) Window() hg.EventWindow {
	return p.window
}

// NextBirthRound is the birth round given to new self-events.
func (p *WindowPolicy) NextBirthRound() int64 {
	return p.window.LatestConsensusRound + 1
}

// Reset restarts the policy from a stored window.
func (p *WindowPolicy) Reset(w hg.EventWindow) {
	p.window = w
	if w.AncientThreshold > p.maxIndicator {
		p.maxIndicator = w.AncientThreshold
	}
	if w.LatestConsensusRound > p.maxBirthRound {
		p.maxBirthRound = w.LatestConsensusRound
	}
}

// Observe accounts for e and returns the resulting window and whether it
// changed.
func (p *WindowPolicy) Observe(e *hg.Event) (hg.EventWindow, bool) {
	if ind := p.mode.Indicator(e); ind > p.maxIndicator {
		p.maxIndicator = ind
	}
	if e.BirthRound() > p.maxBirthRound {
		p.maxBirthRound = e.BirthRound()
	}

	genesis := p.mode.GenesisIndicator()

	ancient := max64(genesis, p.maxIndicator-p.nonAncientSpan)
	ancient = max64(ancient, p.window.AncientThreshold)

	expired := max64(genesis, ancient-p.expiredSpan)
	expired = max64(expired, p.window.ExpiredThreshold)

	latest := max64(p.maxBirthRound, p.window.LatestConsensusRound)

	next := hg.EventWindow{
		LatestConsensusRound: latest,
		AncientThreshold:     ancient,
		ExpiredThreshold:     expired,
		Mode:                 p.mode,
	}

	if next == p.window {
		return p.window, false
	}

	p.window = next
	return next, true
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
