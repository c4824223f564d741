package net

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"
)

// inmemMedium connects the InmemTransports of a process by address.
var inmemMedium = struct {
	sync.RWMutex
	transports map[string]*InmemTransport
}{
	transports: make(map[string]*InmemTransport),
}

// NewInmemAddr returns a new in-memory addr with a randomly generated UUID as
// the ID.
func NewInmemAddr() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport implements the Transport interface with in-memory pipes, to
// allow nodes to be tested without going over a network. Connections are not
// pooled.
type InmemTransport struct {
	selfID     uint32
	consumerCh chan *Connection
	localAddr  string
	timeout    time.Duration

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewInmemTransport registers a new transport under addr, or under a random
// address if addr is empty.
func NewInmemTransport(addr string, selfID uint32, timeout time.Duration) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}

	trans := &InmemTransport{
		selfID:     selfID,
		consumerCh: make(chan *Connection, 16),
		localAddr:  addr,
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
	}

	inmemMedium.Lock()
	inmemMedium.transports[addr] = trans
	inmemMedium.Unlock()

	return addr, trans
}

// Listen implements the Transport interface. Connections are delivered by the
// dialing side, so there is nothing to do until shutdown.
func (i *InmemTransport) Listen() {
	<-i.shutdownCh
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan *Connection {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Dial implements the Transport interface.
func (i *InmemTransport) Dial(target string, otherID uint32) (*Connection, error) {
	if i.isShutdown() {
		return nil, ErrTransportShutdown
	}

	inmemMedium.RLock()
	peer, ok := inmemMedium.transports[target]
	inmemMedium.RUnlock()

	if !ok || peer.isShutdown() {
		return nil, fmt.Errorf("failed to connect to peer: %v", target)
	}

	p1, p2 := net.Pipe()

	go peer.accept(p2)

	return dialHandshake(p1, i.selfID, otherID, target, i.timeout)
}

func (i *InmemTransport) accept(raw net.Conn) {
	conn, err := acceptHandshake(raw, i.selfID, i.timeout)
	if err != nil {
		return
	}

	select {
	case i.consumerCh <- conn:
	case <-i.shutdownCh:
		conn.Close()
	}
}

// Release implements the Transport interface.
func (i *InmemTransport) Release(conn *Connection, err error) {
	conn.Close()
}

// Close implements the Transport interface.
func (i *InmemTransport) Close() error {
	i.shutdownOnce.Do(func() {
		close(i.shutdownCh)

		inmemMedium.Lock()
		if inmemMedium.transports[i.localAddr] == i {
			delete(inmemMedium.transports, i.localAddr)
		}
		inmemMedium.Unlock()
	})
	return nil
}

func (i *InmemTransport) isShutdown() bool {
	select {
	case <-i.shutdownCh:
		return true
	default:
		return false
	}
}
