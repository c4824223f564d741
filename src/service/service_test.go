package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mosaicnetworks/dagsync/src/common"
	"github.com/mosaicnetworks/dagsync/src/config"
	"github.com/mosaicnetworks/dagsync/src/crypto/keys"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/mosaicnetworks/dagsync/src/net"
	"github.com/mosaicnetworks/dagsync/src/node"
	"github.com/mosaicnetworks/dagsync/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *node.Node {
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	validator := node.NewValidator(key, "alice")
	addr, trans := net.NewInmemTransport("", validator.ID(), time.Second)

	peerSet := peers.NewPeerSet([]*peers.Peer{
		peers.NewPeer(validator.PublicKeyHex(), addr, validator.Moniker),
	})

	n, err := node.NewNode(config.NewTestConfig(t, logrus.DebugLevel),
		validator,
		peerSet,
		hg.NewInmemStore(100),
		trans,
		nil)
	require.NoError(t, err)
	require.NoError(t, n.Init())

	t.Cleanup(n.Shutdown)

	return n
}

func get(t *testing.T, server *httptest.Server, path string) *http.Response {
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp
}

func TestService(t *testing.T) {
	n := newTestNode(t)

	n.AddTransaction([]byte("tx"))
	ev, err := n.Core().CreateEvent(nil)
	require.NoError(t, err)

	s := NewService("", n, common.NewTestEntry(t, "service"))
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	t.Run("stats", func(t *testing.T) {
		resp := get(t, server, "/stats")
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		var stats map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		require.Equal(t, "1", stats["graph_events"])
		require.Equal(t, "alice", stats["moniker"])
	})

	t.Run("graph", func(t *testing.T) {
		resp := get(t, server, "/graph")

		var infos node.Infos
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
		require.Equal(t, []string{ev.Hash().Hex()}, infos.Tips)
		require.Len(t, infos.Events[n.ID()], 1)
		require.Equal(t, 1, infos.Events[n.ID()][0].Transactions)
	})

	t.Run("tips", func(t *testing.T) {
		resp := get(t, server, "/tips")

		var tips []string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tips))
		require.Equal(t, []string{ev.Hash().Hex()}, tips)
	})

	t.Run("peers", func(t *testing.T) {
		resp := get(t, server, "/peers")

		var ps []*peers.Peer
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ps))
		require.Len(t, ps, 1)
		require.Equal(t, "alice", ps[0].Moniker)
	})

	t.Run("metrics", func(t *testing.T) {
		resp := get(t, server, "/metrics")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "go_goroutines")
	})
}
