package node

import (
	"fmt"
	"testing"

	"github.com/mosaicnetworks/dagsync/src/crypto/keys"
	"github.com/mosaicnetworks/dagsync/src/peers"
)

func initPeerSet(t *testing.T, n int) *peers.PeerSet {
	pirs := []*peers.Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		pirs = append(pirs, peers.NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("addr%d", i),
			fmt.Sprintf("node%d", i),
		))
	}
	return peers.NewPeerSet(pirs)
}

func TestRandomPeerSelector(t *testing.T) {
	ps := initPeerSet(t, 3)
	self := ps.Peers[0].ID()

	selector := NewRandomPeerSelector(ps, self)

	for i := 0; i < 50; i++ {
		p := selector.Next()
		if p == nil {
			t.Fatalf("Next should return a peer")
		}
		if p.ID() == self {
			t.Fatalf("Next should never return self")
		}
		if i > 0 && p.ID() == selector.last {
			t.Fatalf("Next should not return the last peer twice in a row")
		}
		selector.UpdateLast(p.ID())
	}
}

func TestRandomPeerSelectorAlone(t *testing.T) {
	ps := initPeerSet(t, 1)
	selector := NewRandomPeerSelector(ps, ps.Peers[0].ID())

	if p := selector.Next(); p != nil {
		t.Fatalf("a node alone should get no peer, got %s", p)
	}
}

func TestRandomPeerSelectorSinglePeer(t *testing.T) {
	ps := initPeerSet(t, 2)
	selector := NewRandomPeerSelector(ps, ps.Peers[0].ID())
	other := ps.Peers[1].ID()

	selector.UpdateLast(other)
	if p := selector.Next(); p == nil || p.ID() != other {
		t.Fatalf("the only peer should be selected even if it was the last")
	}
}
