package gossip

import (
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// syncRequest opens a sync on a connection.
type syncRequest struct {
	FromID uint32
}

// syncResponse tells the caller whether the listener accepted the sync.
type syncResponse struct {
	FromID   uint32
	Accepted bool
}

// tipsMessage is sent in phase 1.
type tipsMessage struct {
	Window hg.EventWindow
	Tips   []hg.Hash
}

// booleansMessage is sent in phase 2. Known[i] tells whether the sender has
// the i-th tip the receiver declared in phase 1.
type booleansMessage struct {
	Known []bool
}

// eventFrame carries one event in phase 3. The last frame has Done set and
// no body.
type eventFrame struct {
	Body *hg.EventBody
	Done bool
}
