package node

import (
	"math/rand"

	"github.com/mosaicnetworks/dagsync/src/peers"
)

//PeerSelector defines and interface for Peer Selectors
type PeerSelector interface {
	Peers() *peers.PeerSet
	UpdateLast(peer uint32)
	Next() *peers.Peer
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

//RandomPeerSelector picks a random peer other than itself, avoiding the last
//peer it synced with when it can.
type RandomPeerSelector struct {
	peers           *peers.PeerSet
	selfID          uint32
	selectablePeers *peers.PeerSet
	last            uint32
}

//NewRandomPeerSelector is a factory method that returns a new instance of RandomPeerSelector
func NewRandomPeerSelector(peerSet *peers.PeerSet, selfID uint32) *RandomPeerSelector {
	return &RandomPeerSelector{
		peers:           peerSet,
		selfID:          selfID,
		selectablePeers: peerSet.WithoutID(selfID),
	}
}

//Peers returns a set of peers
func (ps *RandomPeerSelector) Peers() *peers.PeerSet {
	return ps.peers
}

//UpdateLast sets the last peer
func (ps *RandomPeerSelector) UpdateLast(peer uint32) {
	ps.last = peer
}

//Next returns the next peer, or nil if there is none
func (ps *RandomPeerSelector) Next() *peers.Peer {
	selectablePeers := ps.selectablePeers

	if selectablePeers.Len() == 0 {
		return nil
	}

	if selectablePeers.Len() > 1 {
		selectablePeers = selectablePeers.WithoutID(ps.last)
	}

	i := rand.Intn(selectablePeers.Len())

	return selectablePeers.Peers[i]
}
