package gossip

import (
	"fmt"

	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// FallenBehindStatus is the outcome of comparing two event windows.
type FallenBehindStatus int

const (
	// NoneFallenBehind means the windows overlap and the sync can proceed.
	NoneFallenBehind FallenBehindStatus = iota
	// SelfFallenBehind means the local node cannot catch up through gossip
	// with this peer.
	SelfFallenBehind
	// OtherFallenBehind means the peer cannot catch up through gossip with
	// the local node.
	OtherFallenBehind
)

func (s FallenBehindStatus) String() string {
	switch s {
	case NoneFallenBehind:
		return "none"
	case SelfFallenBehind:
		return "self"
	case OtherFallenBehind:
		return "other"
	default:
		return fmt.Sprintf("FallenBehindStatus(%d)", int(s))
	}
}

// FallenBehindStatusOf compares the local window with the peer's. A side has
// fallen behind when its whole non-ancient range is below the other side's
// expired threshold: the other side has discarded everything it could offer,
// and it cannot name anything the other side still keeps.
func FallenBehindStatusOf(self, other hg.EventWindow) FallenBehindStatus {
	if self.AncientThreshold < other.ExpiredThreshold {
		return SelfFallenBehind
	}
	if other.AncientThreshold < self.ExpiredThreshold {
		return OtherFallenBehind
	}
	return NoneFallenBehind
}

// FallenBehindManager is notified when a sync finds that the local node has
// fallen behind a peer. Recovering is up to the implementation.
type FallenBehindManager interface {
	ReportFallenBehind(peerID uint32)
}
