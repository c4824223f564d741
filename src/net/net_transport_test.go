package net

import (
	"errors"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/mosaicnetworks/dagsync/src/common"
)

type testMessage struct {
	Seq     int
	Payload []byte
}

func newTestTCPTransport(t *testing.T, id uint32) *NetworkTransport {
	trans, err := NewTCPTransport("127.0.0.1:0", "", id, 2, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return trans
}

func TestNetworkTransport_StartStop(t *testing.T) {
	trans := newTestTCPTransport(t, 1)
	go trans.Listen()
	trans.Close()

	if _, err := trans.Dial("127.0.0.1:1", 2); err != ErrTransportShutdown {
		t.Fatalf("expected ErrTransportShutdown, got %v", err)
	}
}

func TestNetworkTransport_Dial(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	trans1 := newTestTCPTransport(t, 1)
	defer trans1.Close()
	go trans1.Listen()

	trans2 := newTestTCPTransport(t, 2)
	defer trans2.Close()

	done := make(chan error, 1)
	go func() {
		conn := <-trans1.Consumer()
		defer conn.Close()

		if conn.OtherID() != 2 || conn.IsOutbound() {
			done <- errors.New("unexpected inbound connection")
			return
		}

		for i := 0; i < 2; i++ {
			var msg testMessage
			if err := conn.Decode(&msg); err != nil {
				done <- err
				return
			}
			msg.Seq++
			if err := conn.Encode(&msg); err != nil {
				done <- err
				return
			}
			if err := conn.Flush(); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < 2; i++ {
		conn, err := trans2.Dial(trans1.AdvertiseAddr(), 1)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if conn.OtherID() != 1 || !conn.IsOutbound() {
			t.Fatalf("unexpected outbound connection %s", conn)
		}

		if err := conn.Encode(&testMessage{Seq: i * 10, Payload: []byte("hello")}); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := conn.Flush(); err != nil {
			t.Fatalf("err: %v", err)
		}

		var resp testMessage
		if err := conn.Decode(&resp); err != nil {
			t.Fatalf("err: %v", err)
		}
		if resp.Seq != i*10+1 || string(resp.Payload) != "hello" {
			t.Fatalf("unexpected response %#v", resp)
		}

		// the second iteration reuses the pooled connection
		trans2.Release(conn, nil)
	}

	if err := <-done; err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestNetworkTransport_UnexpectedPeer(t *testing.T) {
	trans1 := newTestTCPTransport(t, 1)
	defer trans1.Close()
	go trans1.Listen()

	go func() {
		for conn := range trans1.Consumer() {
			conn.Close()
		}
	}()

	trans2 := newTestTCPTransport(t, 2)
	defer trans2.Close()

	_, err := trans2.Dial(trans1.AdvertiseAddr(), 3)
	if !errors.Is(err, ErrUnexpectedPeer) {
		t.Fatalf("expected ErrUnexpectedPeer, got %v", err)
	}
}

func TestInmemTransport(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	addr1, trans1 := NewInmemTransport("", 1, time.Second)
	defer trans1.Close()
	_, trans2 := NewInmemTransport("", 2, time.Second)
	defer trans2.Close()

	go func() {
		conn := <-trans1.Consumer()
		defer conn.Close()

		var msg testMessage
		if err := conn.Decode(&msg); err != nil {
			return
		}
		conn.Encode(&msg)
		conn.Flush()
	}()

	conn, err := trans2.Dial(addr1, 1)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Release(conn, nil)

	if err := conn.Encode(&testMessage{Seq: 7}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("err: %v", err)
	}

	var resp testMessage
	if err := conn.Decode(&resp); err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Seq != 7 {
		t.Fatalf("expected 7, got %d", resp.Seq)
	}

	if _, err := trans2.Dial("nowhere", 0); err == nil {
		t.Fatalf("dialing an unknown address should fail")
	}
}

func TestPipeTimeout(t *testing.T) {
	a, b := Pipe(1, 2, 50*time.Millisecond)
	defer a.Close()
	defer b.Close()

	if a.OtherID() != 2 || b.OtherID() != 1 {
		t.Fatalf("unexpected IDs")
	}

	if err := a.ResetTimeout(); err != nil {
		t.Fatalf("err: %v", err)
	}

	var msg testMessage
	if err := a.Decode(&msg); err == nil {
		t.Fatalf("reading from a silent peer should time out")
	}

	a.Close()
	if a.Connected() {
		t.Fatalf("closed connection reports connected")
	}
}
