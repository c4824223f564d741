package shadowgraph

import (
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
)

// reservation pins the expired threshold of a window. Handles taken while the
// graph's window does not change share one reservation.
type reservation struct {
	window hg.EventWindow
	count  int
	epoch  uint64
}

// ReservedEventWindow is the handle returned by Reserve. Every handle must be
// closed once; closing it again does nothing.
type ReservedEventWindow struct {
	graph  *Shadowgraph
	res    *reservation
	closed bool
}

// Reserve pins the current window. Until the returned handle is closed, no
// event at or above the window's expired threshold is expired, whatever
// windows are installed later.
func (sg *Shadowgraph) Reserve() *ReservedEventWindow {
	sg.Lock()
	defer sg.Unlock()

	var res *reservation
	if n := len(sg.reservations); n > 0 && sg.reservations[n-1].window == sg.window {
		res = sg.reservations[n-1]
		res.count++
	} else {
		res = &reservation{
			window: sg.window,
			count:  1,
			epoch:  sg.epoch,
		}
		sg.reservations = append(sg.reservations, res)
	}

	sg.updateGauges()

	return &ReservedEventWindow{
		graph: sg,
		res:   res,
	}
}

// EventWindow returns the window captured by the reservation.
func (r *ReservedEventWindow) EventWindow() hg.EventWindow {
	return r.res.window
}

// ReservationCount returns the number of open handles sharing this
// reservation, or 0 if the graph was cleared since it was taken.
func (r *ReservedEventWindow) ReservationCount() int {
	r.graph.Lock()
	defer r.graph.Unlock()
	if r.res.epoch != r.graph.epoch {
		return 0
	}
	return r.res.count
}

// Close releases the handle. When the last handle of a reservation is
// closed, expiry that was deferred because of it runs immediately.
func (r *ReservedEventWindow) Close() {
	sg := r.graph

	sg.Lock()
	defer sg.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	if r.res.epoch != sg.epoch {
		// reserved before the last Clear
		return
	}

	r.res.count--
	if r.res.count == 0 {
		sg.expire()
	}

	sg.updateGauges()
}
