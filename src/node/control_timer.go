package node

import (
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer paces the gossip routine. It ticks once per reset, after the
// duration given to the reset, and stays silent until reset again.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the heartbeatTimer
	stopCh       chan struct{}      //receives instruction to stop the heartbeatTimer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	set          bool
}

// NewControlTimer returns a ControlTimer using timerFactory to wait.
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRandomControlTimer returns a ControlTimer that waits between d and 2*d
// after a reset to d, so that nodes started together do not gossip in lockstep.
func NewRandomControlTimer(clock clockwork.Clock) *ControlTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return clock.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run is the timer loop. It returns after Shutdown.
func (c *ControlTimer) Run(init time.Duration) {

	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			c.set = false
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			c.set = false
		case <-c.shutdownCh:
			c.set = false
			return
		}
	}
}

// Shutdown stops Run.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
