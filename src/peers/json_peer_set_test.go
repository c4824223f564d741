package peers

import (
	"fmt"
	"testing"

	"github.com/mosaicnetworks/dagsync/src/crypto/keys"
)

func TestJSONPeerSet(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONPeerSet(dir)

	if _, err := store.PeerSet(); err == nil {
		t.Fatalf("reading a missing peers.json should fail")
	}

	var peers []*Peer
	for i := 0; i < 3; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		peers = append(peers, NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("127.0.0.1:%d", 1337+i),
			fmt.Sprintf("node%d", i),
		))
	}

	if err := store.Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	ps, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if ps.Len() != len(peers) {
		t.Fatalf("expected %d peers, got %d", len(peers), ps.Len())
	}

	for i, p := range ps.Peers {
		if p.ID() != peers[i].ID() {
			t.Fatalf("peer %d: ID should be %d, not %d", i, peers[i].ID(), p.ID())
		}
		if p.NetAddr != peers[i].NetAddr {
			t.Fatalf("peer %d: NetAddr should be %s, not %s", i, peers[i].NetAddr, p.NetAddr)
		}
	}

	others := ps.WithoutID(peers[0].ID())
	if others.Len() != 2 {
		t.Fatalf("expected 2 peers, got %d", others.Len())
	}
	if _, ok := others.ByID[peers[0].ID()]; ok {
		t.Fatalf("excluded peer should not be in the set")
	}
}
