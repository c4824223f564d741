// Package net provides the connections gossip syncs run over.
//
// A Connection is a full-duplex stream between two nodes, framed with msgpack.
// One goroutine may write while another reads, which is what the sync
// protocol relies on to exchange both directions of a phase at once.
//
// Transports establish Connections. NetworkTransport works over a
// StreamLayer (plain TCP by default) and pools outbound connections per
// target. InmemTransport connects nodes in the same process and is used in
// tests. Both exchange node IDs in a short handshake when a connection is
// opened.
package net
