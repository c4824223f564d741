package hashgraph

import (
	"fmt"
	"strings"
)

const (
	// FirstGeneration is the generation of a parentless event.
	FirstGeneration int64 = 0
	// FirstRound is the first round of the network and the lowest birth round.
	FirstRound int64 = 1
)

// AncientMode selects the indicator used to decide whether an event is
// ancient or expired. It is fixed for the lifetime of a node.
type AncientMode uint8

const (
	// GenerationThreshold uses the generation of events.
	GenerationThreshold AncientMode = iota
	// BirthRoundThreshold uses the birth round of events.
	BirthRoundThreshold
)

// Indicator returns the value of the event that is compared to thresholds.
func (m AncientMode) Indicator(e *Event) int64 {
	if m == BirthRoundThreshold {
		return e.Body.BirthRound
	}
	return e.Body.Generation
}

// GenesisIndicator returns the lowest indicator an event can have.
func (m AncientMode) GenesisIndicator() int64 {
	if m == BirthRoundThreshold {
		return FirstRound
	}
	return FirstGeneration
}

func (m AncientMode) String() string {
	switch m {
	case GenerationThreshold:
		return "generation"
	case BirthRoundThreshold:
		return "birth-round"
	default:
		return fmt.Sprintf("AncientMode(%d)", uint8(m))
	}
}

// ParseAncientMode parses the output of String.
func ParseAncientMode(s string) (AncientMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generation", "":
		return GenerationThreshold, nil
	case "birth-round", "birthround", "birth_round":
		return BirthRoundThreshold, nil
	default:
		return GenerationThreshold, fmt.Errorf("unknown ancient mode %q", s)
	}
}
