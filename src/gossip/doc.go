// Package gossip implements the pairwise sync protocol nodes run to exchange
// the events they are missing.
//
// A sync is initiated by a caller and answered by a listener over one
// Connection. After the listener accepts, both sides run the same three
// phases:
//
//	1. exchange their event windows and the hashes of their tips, and stop
//	   if one of them has fallen behind the other;
//	2. tell each other which of the peer's tips they have, and work out the
//	   events the peer lacks;
//	3. exchange those events in ascending indicator order.
//
// Each phase writes and reads at the same time, and both sides finish a phase
// before either starts the next one. An error in any phase closes the
// connection, which aborts the sync on both sides. Each side holds a
// reservation on its shadowgraph for the whole sync.
package gossip
