package hashgraph

import "fmt"

// EventWindow describes the range of indicators a node accepts. Events below
// ExpiredThreshold are discarded. Events below AncientThreshold are still
// indexed but are no longer offered in gossip.
type EventWindow struct {
	LatestConsensusRound int64
	AncientThreshold     int64
	ExpiredThreshold     int64
	Mode                 AncientMode
}

// NewEventWindow validates and returns an EventWindow.
func NewEventWindow(latestConsensusRound, ancientThreshold, expiredThreshold int64, mode AncientMode) (EventWindow, error) {
	if expiredThreshold > ancientThreshold {
		return EventWindow{}, fmt.Errorf("expired threshold %d is above ancient threshold %d",
			expiredThreshold, ancientThreshold)
	}
	return EventWindow{
		LatestConsensusRound: latestConsensusRound,
		AncientThreshold:     ancientThreshold,
		ExpiredThreshold:     expiredThreshold,
		Mode:                 mode,
	}, nil
}

// GenesisEventWindow returns the window of a node that has not advanced yet.
// Nothing is ancient or expired.
func GenesisEventWindow(mode AncientMode) EventWindow {
	return EventWindow{
		LatestConsensusRound: FirstRound - 1,
		AncientThreshold:     mode.GenesisIndicator(),
		ExpiredThreshold:     mode.GenesisIndicator(),
		Mode:                 mode,
	}
}

// IsGenesis reports whether no threshold has moved past genesis.
func (w EventWindow) IsGenesis() bool {
	return w.AncientThreshold == w.Mode.GenesisIndicator() &&
		w.ExpiredThreshold == w.Mode.GenesisIndicator()
}

// IsAncient reports whether e is below the ancient threshold.
func (w EventWindow) IsAncient(e *Event) bool {
	return w.IsAncientIndicator(w.Mode.Indicator(e))
}

// IsAncientIndicator reports whether an indicator is below the ancient
// threshold.
func (w EventWindow) IsAncientIndicator(indicator int64) bool {
	return indicator < w.AncientThreshold
}

// IsExpired reports whether e is below the expired threshold.
func (w EventWindow) IsExpired(e *Event) bool {
	return w.IsExpiredIndicator(w.Mode.Indicator(e))
}

// IsExpiredIndicator reports whether an indicator is below the expired
// threshold.
func (w EventWindow) IsExpiredIndicator(indicator int64) bool {
	return indicator < w.ExpiredThreshold
}

func (w EventWindow) String() string {
	return fmt.Sprintf("EventWindow{%s, latestRound=%d, ancient=%d, expired=%d}",
		w.Mode, w.LatestConsensusRound, w.AncientThreshold, w.ExpiredThreshold)
}
