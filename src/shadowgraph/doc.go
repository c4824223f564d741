// Package shadowgraph implements the in-memory index of a node's non-expired
// events.
//
// A Shadowgraph wraps every indexed event in a ShadowEvent. It tracks the tips
// of the DAG, answers ancestor queries, and discards events once they fall
// below the expired threshold of its EventWindow. A gossip sync that needs a
// stable view of the graph calls Reserve; events above the window it reserved
// are kept until the reservation is closed, even if the window advances in
// the meantime.
//
// All operations are serialized by a single lock covering the whole graph.
package shadowgraph
