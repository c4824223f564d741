package net

// Transport establishes Connections with other nodes.
type Transport interface {

	// Listen accepts incoming connections until the transport is closed.
	Listen()

	// Consumer returns the channel on which accepted connections are
	// delivered, after the handshake.
	Consumer() <-chan *Connection

	// Dial returns a connection to the node at target. If otherID is not
	// zero, the node must have that ID.
	Dial(target string, otherID uint32) (*Connection, error)

	// Release gives back a connection obtained with Dial. If err is nil the
	// connection may be reused, otherwise it is closed.
	Release(conn *Connection, err error)

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
