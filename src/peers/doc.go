// Package peers describes the nodes a dagsync node gossips with. Peers are
// listed in a peers.json file in the data directory; each peer is identified
// by its public key, from which its uint32 ID is derived.
package peers
