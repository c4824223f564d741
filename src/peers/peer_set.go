package peers

// PeerSet is an immutable set of peers indexed by ID.
type PeerSet struct {
	Peers []*Peer
	ByID  map[uint32]*Peer
}

// NewPeerSet creates a PeerSet from a list of peers. Duplicate IDs keep the
// first occurrence.
func NewPeerSet(peers []*Peer) *PeerSet {
	ps := &PeerSet{
		ByID: make(map[uint32]*Peer),
	}
	for _, p := range peers {
		if _, ok := ps.ByID[p.ID()]; ok {
			continue
		}
		ps.ByID[p.ID()] = p
		ps.Peers = append(ps.Peers, p)
	}
	return ps
}

// Len returns the number of peers.
func (ps *PeerSet) Len() int {
	return len(ps.Peers)
}

// IDs returns the IDs of the peers in insertion order.
func (ps *PeerSet) IDs() []uint32 {
	res := make([]uint32, 0, len(ps.Peers))
	for _, p := range ps.Peers {
		res = append(res, p.ID())
	}
	return res
}

// WithoutID returns a new PeerSet excluding the peer with the given ID. Nodes
// use it to remove themselves from the list of gossip targets.
func (ps *PeerSet) WithoutID(id uint32) *PeerSet {
	peers := make([]*Peer, 0, len(ps.Peers))
	for _, p := range ps.Peers {
		if p.ID() != id {
			peers = append(peers, p)
		}
	}
	return NewPeerSet(peers)
}
