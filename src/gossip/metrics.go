package gossip

import (
	"github.com/mosaicnetworks/dagsync/src/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "gossip"

const (
	outcomeOK           = "ok"
	outcomeRejected     = "rejected"
	outcomeFallenBehind = "fallen_behind"
	outcomeError        = "error"
)

var (
	syncOutcomes = metrics.NewCounter(
		"syncs_total",
		subsystem,
		"Number of syncs by role and outcome",
		[]string{"role", "outcome"},
	)

	eventsSent = metrics.NewCounter(
		"events_sent_total",
		subsystem,
		"Number of events sent in phase 3",
		[]string{},
	).WithLabelValues()

	eventsReceived = metrics.NewCounter(
		"events_received_total",
		subsystem,
		"Number of events received in phase 3 and added to the shadowgraph",
		[]string{},
	).WithLabelValues()

	filteredEvents = metrics.NewCounter(
		"filtered_events_total",
		subsystem,
		"Number of events withheld as likely duplicates",
		[]string{},
	).WithLabelValues()

	syncDuration = metrics.NewHistogramWithBuckets(
		"sync_duration_seconds",
		subsystem,
		"Duration of completed syncs",
		[]string{"role"},
		prometheus.ExponentialBuckets(0.001, 2, 14),
	)
)
