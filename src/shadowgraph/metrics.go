package shadowgraph

import "github.com/mosaicnetworks/dagsync/src/metrics"

const subsystem = "shadowgraph"

var (
	indexedEvents = metrics.NewGauge(
		"events",
		subsystem,
		"Number of events currently indexed",
		[]string{},
	).WithLabelValues()

	tipCount = metrics.NewGauge(
		"tips",
		subsystem,
		"Number of tips",
		[]string{},
	).WithLabelValues()

	openReservations = metrics.NewGauge(
		"reservations",
		subsystem,
		"Number of open reservations",
		[]string{},
	).WithLabelValues()

	expiredEvents = metrics.NewCounter(
		"expired_events_total",
		subsystem,
		"Number of events removed from the index by expiry",
		[]string{},
	).WithLabelValues()

	insertFailures = metrics.NewCounter(
		"insert_failures_total",
		subsystem,
		"Number of rejected insertions by reason",
		[]string{"reason"},
	)
)
