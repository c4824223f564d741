// Package hashgraph defines the event DAG value types shared by the rest of
// dagsync: content-addressed Events, the AncientMode used to assign each event
// an indicator, the EventWindow that bounds which indicators a node still
// cares about, and the event stores used to persist events across restarts.
//
// Events reference up to one self-parent (the previous event by the same
// creator) and any number of other-parents. The indicator of an event is its
// generation or its birth round, depending on the AncientMode chosen for a
// node. All window comparisons go through AncientMode.Indicator.
package hashgraph
