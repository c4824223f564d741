package peers

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

const jsonPeerSetPath = "peers.json"

// JSONPeerSet reads and writes a list of peers in a JSON file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a JSONPeerSet for peers.json in the given directory.
func NewJSONPeerSet(base string) *JSONPeerSet {
	return &JSONPeerSet{
		path: filepath.Join(base, jsonPeerSetPath),
	}
}

// PeerSet loads the peers from the file.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	var peers []*Peer
	if len(buf) > 0 {
		if err := json.Unmarshal(buf, &peers); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", j.path, err)
		}
	}

	for _, p := range peers {
		if _, err := p.PubKeyBytes(); err != nil {
			return nil, fmt.Errorf("peer %s: invalid public key: %w", p.NetAddr, err)
		}
		p.computeID()
	}

	return NewPeerSet(peers), nil
}

// Write stores the peers in the file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := json.MarshalIndent(peers, "", "\t")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf, 0644)
}
