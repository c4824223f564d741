package net

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/ugorji/go/codec"
)

const (
	bufSize = math.MaxUint16
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnexpectedPeer is returned when the node at the other end of a new
	// connection is not the one that was dialed.
	ErrUnexpectedPeer = errors.New("unexpected peer")
)

// Connection is a framed, full-duplex stream to another node.
type Connection struct {
	selfID   uint32
	otherID  uint32
	outbound bool
	target   string

	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	dec  *codec.Decoder
	enc  *codec.Encoder

	timeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func msgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	return mh
}

func newConnection(conn net.Conn, selfID uint32, outbound bool, target string, timeout time.Duration) *Connection {
	c := &Connection{
		selfID:   selfID,
		outbound: outbound,
		target:   target,
		conn:     conn,
		r:        bufio.NewReaderSize(conn, bufSize),
		w:        bufio.NewWriterSize(conn, bufSize),
		timeout:  timeout,
		closed:   make(chan struct{}),
	}
	mh := msgpackHandle()
	c.dec = codec.NewDecoder(c.r, mh)
	c.enc = codec.NewEncoder(c.w, mh)
	return c
}

// SelfID returns the ID of the local node.
func (c *Connection) SelfID() uint32 {
	return c.selfID
}

// OtherID returns the ID of the node at the other end.
func (c *Connection) OtherID() uint32 {
	return c.otherID
}

// IsOutbound reports whether the local node dialed the connection.
func (c *Connection) IsOutbound() bool {
	return c.outbound
}

// Target returns the address that was dialed, for outbound connections.
func (c *Connection) Target() string {
	return c.target
}

// Timeout returns the I/O timeout of the connection.
func (c *Connection) Timeout() time.Duration {
	return c.timeout
}

// Encode writes one message to the send buffer. Messages are not sent until
// Flush is called.
func (c *Connection) Encode(v interface{}) error {
	return c.enc.Encode(v)
}

// Decode reads one message.
func (c *Connection) Decode(v interface{}) error {
	return c.dec.Decode(v)
}

// Flush sends the buffered messages.
func (c *Connection) Flush() error {
	return c.w.Flush()
}

// SetDeadline sets the read and write deadline of the underlying connection.
// A zero time clears it.
func (c *Connection) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// ResetTimeout moves the deadline to now plus the connection's timeout. It
// does nothing if the timeout is zero.
func (c *Connection) ResetTimeout() error {
	if c.timeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}

// Close closes the underlying connection. It is safe to call more than once
// and from any goroutine; pending reads and writes fail.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// Connected reports whether Close has not been called.
func (c *Connection) Connected() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *Connection) String() string {
	dir := "in"
	if c.outbound {
		dir = "out"
	}
	return fmt.Sprintf("%d->%d(%s)", c.selfID, c.otherID, dir)
}

/*******************************************************************************
Handshake
*******************************************************************************/

type hello struct {
	ID uint32
}

// dialHandshake sends our ID and reads the ID of the listener. If expected is
// not zero, the listener must have that ID.
func dialHandshake(conn net.Conn, selfID, expected uint32, target string, timeout time.Duration) (*Connection, error) {
	c := newConnection(conn, selfID, true, target, timeout)
	if err := c.handshake(); err != nil {
		c.Close()
		return nil, err
	}

	if expected != 0 && c.otherID != expected {
		c.Close()
		return nil, fmt.Errorf("%w: dialed %d at %s, got %d", ErrUnexpectedPeer, expected, target, c.otherID)
	}

	return c, nil
}

// acceptHandshake is the listener side of dialHandshake.
func acceptHandshake(conn net.Conn, selfID uint32, timeout time.Duration) (*Connection, error) {
	c := newConnection(conn, selfID, false, "", timeout)
	if err := c.handshake(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// handshake writes our hello and reads the other side's concurrently, so that
// it also works over unbuffered pipes.
func (c *Connection) handshake() error {
	if err := c.ResetTimeout(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := c.Encode(&hello{ID: c.selfID}); err != nil {
			errCh <- err
			return
		}
		errCh <- c.Flush()
	}()

	var h hello
	readErr := c.Decode(&h)
	writeErr := <-errCh

	if readErr != nil {
		return fmt.Errorf("reading hello: %w", readErr)
	}
	if writeErr != nil {
		return fmt.Errorf("writing hello: %w", writeErr)
	}

	c.otherID = h.ID

	return c.SetDeadline(time.Time{})
}

// Pipe returns two connected in-memory Connections, the first one outbound.
func Pipe(selfID, otherID uint32, timeout time.Duration) (*Connection, *Connection) {
	p1, p2 := net.Pipe()

	a := newConnection(p1, selfID, true, "pipe", timeout)
	a.otherID = otherID

	b := newConnection(p2, otherID, false, "", timeout)
	b.otherID = selfID

	return a, b
}
