package hashgraph

// Store persists the events a node has accepted, in the order it accepted
// them, together with the last EventWindow it applied. A node replays a Store
// into a fresh shadow graph when it restarts.
type Store interface {
	// CacheSize returns the size limit of the in-memory caches.
	CacheSize() int
	// GetEvent returns the event with the given hash.
	GetEvent(Hash) (*Event, error)
	// SetEvent records a new event. Setting a known event again is a no-op.
	SetEvent(*Event) error
	// TopologicalEvents returns up to count events in insertion order,
	// starting at the given topological index.
	TopologicalEvents(start, count int) ([]*Event, error)
	// EventCount returns the number of events ever stored.
	EventCount() int
	// LastEventWindow returns the last window passed to SetEventWindow.
	LastEventWindow() (EventWindow, error)
	// SetEventWindow records the current window.
	SetEventWindow(EventWindow) error
	// Close releases the underlying resources.
	Close() error
	// StorePath returns the location of the database, if any.
	StorePath() string
}
