package peers

import (
	"fmt"

	"github.com/mosaicnetworks/dagsync/src/common"
	"github.com/mosaicnetworks/dagsync/src/crypto/keys"
)

// Peer is a member of the gossip network.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string

	id uint32
}

// NewPeer creates a Peer and computes its ID.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
	peer.computeID()
	return peer
}

// ID returns the uint32 identifier of the peer, derived from its public key.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		p.computeID()
	}
	return p.id
}

// PubKeyBytes decodes PubKeyHex.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

func (p *Peer) computeID() {
	pub, err := p.PubKeyBytes()
	if err != nil {
		return
	}
	p.id = keys.PublicKeyID(pub)
}

// String is used in logs.
func (p *Peer) String() string {
	if p.Moniker != "" {
		return fmt.Sprintf("%s(%d)@%s", p.Moniker, p.ID(), p.NetAddr)
	}
	return fmt.Sprintf("%d@%s", p.ID(), p.NetAddr)
}
