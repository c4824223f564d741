package net

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

/*
NetworkTransport provides a network based transport that can be used to
gossip with dagsync nodes on remote machines. It requires an underlying stream
layer to provide a stream abstraction, which can be simple TCP, TLS, etc.

Every connection starts with a hello exchange carrying the node IDs. After
that the connection belongs to the gossip layer, which frames its messages
with msgpack. Outbound connections are pooled per target and reused for
subsequent syncs.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	selfID uint32

	connPool     map[string][]*Connection
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan *Connection

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The maxPool controls how many connections we will pool per target.
// The timeout is used to apply I/O deadlines.
func NewNetworkTransport(
	stream StreamLayer,
	selfID uint32,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &NetworkTransport{
		connPool:   make(map[string][]*Connection),
		consumeCh:  make(chan *Connection),
		logger:     logger.WithField("prefix", "net"),
		selfID:     selfID,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()
		n.shutdown = true

		n.connPoolLock.Lock()
		for target, conns := range n.connPool {
			for _, c := range conns {
				c.Close()
			}
			delete(n.connPool, target)
		}
		n.connPoolLock.Unlock()
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan *Connection {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	if addr := n.stream.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *Connection {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns := n.connPool[target]
	for len(conns) > 0 {
		num := len(conns)
		conn := conns[num-1]
		conns[num-1] = nil
		conns = conns[:num-1]
		if conn.Connected() {
			n.connPool[target] = conns
			return conn
		}
	}
	n.connPool[target] = conns
	return nil
}

// Dial implements the Transport interface.
func (n *NetworkTransport) Dial(target string, otherID uint32) (*Connection, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	raw, err := n.stream.Dial(target, n.timeout)
	if err != nil {
		return nil, err
	}

	return dialHandshake(raw, n.selfID, otherID, target, n.timeout)
}

// Release implements the Transport interface.
func (n *NetworkTransport) Release(conn *Connection, err error) {
	if err != nil || !conn.Connected() || conn.Target() == "" {
		conn.Close()
		return
	}

	conn.SetDeadline(time.Time{})

	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns := n.connPool[conn.Target()]
	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[conn.Target()] = append(conns, conn)
	} else {
		conn.Close()
	}
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		go n.handleConn(conn)
	}
}

// handleConn runs the listener handshake and hands the connection over to
// the consumer.
func (n *NetworkTransport) handleConn(raw net.Conn) {
	conn, err := acceptHandshake(raw, n.selfID, n.timeout)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"from":  raw.RemoteAddr(),
			"error": err,
		}).Debug("Handshake failed")
		return
	}

	select {
	case n.consumeCh <- conn:
	case <-n.shutdownCh:
		conn.Close()
	}
}
