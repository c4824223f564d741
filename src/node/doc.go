// Package node implements the reactive component of a dagsync node.
//
// This is the part of dagsync that drives the gossip routines and feeds the
// events it learns into the shadowgraph and the store. Node implements a
// state machine with three states: Babbling, CatchingUp and Shutdown.
//
// Gossip
//
// Nodes gossip by repeatedly choosing another node at random and running a
// sync with it (see the gossip package). Each sync leaves both sides with the
// non-ancient events the other one had. After a sync, a node that has
// something to record creates a self-event whose other-parent is the last
// event it received from that peer, so the DAG records the gossip itself.
//
// Incoming connections are served by a background routine which answers
// syncs on each connection until it fails. The number of syncs answered at the
// same time is bounded by the max-incoming-syncs option.
//
// Event window
//
// Core advances the event window as events arrive. Without a consensus
// algorithm, the WindowPolicy derives the thresholds from the highest
// indicator seen, which keeps the shadowgraph bounded.
//
// Falling behind
//
// When a sync finds that a peer has already expired everything this node
// could still use, the peer is recorded. Once enough peers have been recorded
// the node enters the CatchingUp state and stops initiating syncs.
package node
