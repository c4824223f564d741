package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/dagsync/src/node"
	"github.com/mosaicnetworks/dagsync/src/peers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	graph       *node.Graph
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService creates a Service and registers its handlers on a private mux.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		graph:       node.NewGraph(n),
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/graph", s.makeHandler(s.GetGraph))
	s.mux.HandleFunc("/tips", s.makeHandler(s.GetTips))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns the stats of the node.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats(), s.logger)
}

// GetGraph returns the events indexed by the node, grouped by creator.
func (s *Service) GetGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.graph.GetInfos(), s.logger)
}

// GetTips returns the hashes of the current tips.
func (s *Service) GetTips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.graph.GetTips(), s.logger)
}

// GetPeers returns the peers the node gossips with.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	returnPeerSet(w, s.node.GetPeers(), s.logger)
}

func returnPeerSet(w http.ResponseWriter, peers []*peers.Peer, logger *logrus.Entry) {
	writeJSON(w, peers, logger)
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Encoding response")
	}
}
