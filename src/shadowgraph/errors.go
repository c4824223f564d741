package shadowgraph

import (
	"errors"
	"fmt"

	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// ErrNullArgument is returned when a required argument is nil.
var ErrNullArgument = errors.New("null argument")

// InsertionFailure enumerates the reasons AddEvent can reject an event.
type InsertionFailure int

const (
	// NullEvent means the event is nil or has no hash.
	NullEvent InsertionFailure = iota
	// DuplicateEvent means an event with the same hash is already indexed.
	DuplicateEvent
	// ExpiredEvent means the event is below the expired threshold.
	ExpiredEvent
)

func (f InsertionFailure) String() string {
	switch f {
	case NullEvent:
		return "null event"
	case DuplicateEvent:
		return "duplicate event"
	case ExpiredEvent:
		return "expired event"
	default:
		return fmt.Sprintf("InsertionFailure(%d)", int(f))
	}
}

// InsertionError is returned by AddEvent.
type InsertionError struct {
	Reason    InsertionFailure
	Hash      hg.Hash
	Indicator int64
	Expired   int64
}

func (e InsertionError) Error() string {
	switch e.Reason {
	case NullEvent:
		return "shadowgraph: null event"
	case ExpiredEvent:
		return fmt.Sprintf("shadowgraph: %s %s, indicator %d is below expired threshold %d",
			e.Reason, e.Hash, e.Indicator, e.Expired)
	default:
		return fmt.Sprintf("shadowgraph: %s %s", e.Reason, e.Hash)
	}
}

// IsInsertion checks that err is an InsertionError with the given reason.
func IsInsertion(err error, reason InsertionFailure) bool {
	var ie InsertionError
	return errors.As(err, &ie) && ie.Reason == reason
}

// IsBenign reports whether err is an insertion failure that is expected when
// receiving events from the network: the event is already known or too old.
func IsBenign(err error) bool {
	return IsInsertion(err, DuplicateEvent) || IsInsertion(err, ExpiredEvent)
}
