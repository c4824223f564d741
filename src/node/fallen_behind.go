package node

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// fallenBehindMonitor collects the peers that found this node behind them.
// Once the share of reporting peers reaches the threshold it calls
// onFallenBehind, once, until reset.
type fallenBehindMonitor struct {
	sync.Mutex

	numPeers       int
	threshold      float64
	reports        map[uint32]struct{}
	fallenBehind   bool
	onFallenBehind func()

	logger *logrus.Entry
}

func newFallenBehindMonitor(numPeers int, threshold float64, onFallenBehind func(), logger *logrus.Entry) *fallenBehindMonitor {
	return &fallenBehindMonitor{
		numPeers:       numPeers,
		threshold:      threshold,
		reports:        make(map[uint32]struct{}),
		onFallenBehind: onFallenBehind,
		logger:         logger,
	}
}

// ReportFallenBehind implements gossip.FallenBehindManager.
func (m *fallenBehindMonitor) ReportFallenBehind(peerID uint32) {
	m.Lock()

	m.reports[peerID] = struct{}{}

	m.logger.WithFields(logrus.Fields{
		"peer":    peerID,
		"reports": len(m.reports),
		"peers":   m.numPeers,
	}).Warn("Peer reports us behind")

	trigger := false
	if !m.fallenBehind && m.reached() {
		m.fallenBehind = true
		trigger = true
	}

	m.Unlock()

	if trigger && m.onFallenBehind != nil {
		m.onFallenBehind()
	}
}

func (m *fallenBehindMonitor) reached() bool {
	if m.numPeers <= 0 {
		return len(m.reports) > 0
	}
	return float64(len(m.reports)) >= m.threshold*float64(m.numPeers)
}

func (m *fallenBehindMonitor) hasFallenBehind() bool {
	m.Lock()
	defer m.Unlock()
	return m.fallenBehind
}

func (m *fallenBehindMonitor) numReports() int {
	m.Lock()
	defer m.Unlock()
	return len(m.reports)
}

func (m *fallenBehindMonitor) reset() {
	m.Lock()
	defer m.Unlock()
	m.reports = make(map[uint32]struct{})
	m.fallenBehind = false
}
