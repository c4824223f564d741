package gossip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	"github.com/mosaicnetworks/dagsync/src/net"
	sg "github.com/mosaicnetworks/dagsync/src/shadowgraph"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSyncRejected is returned when the listener has no sync permit left.
	// The connection stays usable.
	ErrSyncRejected = errors.New("sync rejected")

	// ErrMalformed is returned when the peer sends a message that does not
	// fit the protocol.
	ErrMalformed = errors.New("malformed sync message")
)

const (
	roleCaller   = "caller"
	roleListener = "listener"
)

// EventHandler is called once for every event received in phase 3 that was
// added to the shadowgraph, in the order the events were received.
type EventHandler func(*hg.Event)

// SyncConfig holds the tunables of a Synchronizer.
type SyncConfig struct {
	// FilterLikelyDuplicates withholds events received recently from other
	// nodes, on the assumption that the peer got them too.
	FilterLikelyDuplicates bool

	// NonAncestorFilterThreshold is how long ago an event created by
	// another node must have been received before it is sent again when
	// FilterLikelyDuplicates is set.
	NonAncestorFilterThreshold time.Duration
}

// DefaultSyncConfig returns the default SyncConfig.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		FilterLikelyDuplicates:     false,
		NonAncestorFilterThreshold: 3 * time.Second,
	}
}

// SyncResult describes a finished sync.
type SyncResult struct {
	PeerID         uint32
	Status         FallenBehindStatus
	EventsSent     int
	EventsReceived int
	// Synced is true when phase 3 ran.
	Synced   bool
	Duration time.Duration
}

// Synchronizer runs the sync protocol for one node, as caller or listener,
// against a shared Shadowgraph. It is safe to run many syncs concurrently.
type Synchronizer struct {
	graph        *sg.Shadowgraph
	selfID       uint32
	conf         SyncConfig
	handler      EventHandler
	fallenBehind FallenBehindManager
	permits      *SyncPermits
	clock        clockwork.Clock
	logger       *logrus.Entry
}

// NewSynchronizer returns a Synchronizer. handler and fallenBehind may be nil.
// A nil permits accepts every sync, a nil clock uses the real clock, and a
// nil logger logs to a new logrus logger.
func NewSynchronizer(graph *sg.Shadowgraph,
	selfID uint32,
	conf SyncConfig,
	handler EventHandler,
	fallenBehind FallenBehindManager,
	permits *SyncPermits,
	clock clockwork.Clock,
	logger *logrus.Entry) *Synchronizer {

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &Synchronizer{
		graph:        graph,
		selfID:       selfID,
		conf:         conf,
		handler:      handler,
		fallenBehind: fallenBehind,
		permits:      permits,
		clock:        clock,
		logger:       logger.WithField("prefix", "gossip"),
	}
}

/*******************************************************************************
Phase 0
*******************************************************************************/

// Synchronize runs a sync as the caller. It returns ErrSyncRejected if the
// listener declines. Any other error means the connection was closed.
func (s *Synchronizer) Synchronize(ctx context.Context, conn *net.Connection) (*SyncResult, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.ResetTimeout(); err != nil {
		return s.fail(roleCaller, conn, err)
	}

	if err := conn.Encode(&syncRequest{FromID: s.selfID}); err != nil {
		return s.fail(roleCaller, conn, err)
	}
	if err := conn.Flush(); err != nil {
		return s.fail(roleCaller, conn, err)
	}

	var resp syncResponse
	if err := conn.Decode(&resp); err != nil {
		return s.fail(roleCaller, conn, err)
	}

	if !resp.Accepted {
		syncOutcomes.WithLabelValues(roleCaller, outcomeRejected).Inc()
		s.logger.WithField("peer", conn.OtherID()).Debug("Sync rejected")
		return &SyncResult{PeerID: conn.OtherID()}, ErrSyncRejected
	}

	return s.sync(ctx, roleCaller, conn)
}

// AcceptSync waits for the next sync request on conn and runs the sync as the
// listener. If no permit is available it declines the request and returns
// ErrSyncRejected, leaving the connection open for the next request. Any
// other error means the connection was closed.
func (s *Synchronizer) AcceptSync(ctx context.Context, conn *net.Connection) (*SyncResult, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// The caller decides when to sync, so the request has no deadline.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return s.fail(roleListener, conn, err)
	}

	// An idle connection closing here is not a failed sync.
	var req syncRequest
	if err := conn.Decode(&req); err != nil {
		conn.Close()
		s.logger.WithField("peer", conn.OtherID()).WithError(err).Debug("Connection closed while idle")
		return &SyncResult{PeerID: conn.OtherID()}, err
	}

	if err := conn.ResetTimeout(); err != nil {
		return s.fail(roleListener, conn, err)
	}

	accepted := s.permits == nil || s.permits.TryAcquire()
	if accepted && s.permits != nil {
		defer s.permits.Release()
	}

	if err := conn.Encode(&syncResponse{FromID: s.selfID, Accepted: accepted}); err != nil {
		return s.fail(roleListener, conn, err)
	}
	if err := conn.Flush(); err != nil {
		return s.fail(roleListener, conn, err)
	}

	if !accepted {
		syncOutcomes.WithLabelValues(roleListener, outcomeRejected).Inc()
		s.logger.WithField("peer", conn.OtherID()).Debug("No sync permit left, rejected")
		return &SyncResult{PeerID: conn.OtherID()}, ErrSyncRejected
	}

	return s.sync(ctx, roleListener, conn)
}

/*******************************************************************************
Phases 1 to 3
*******************************************************************************/

func (s *Synchronizer) sync(ctx context.Context, role string, conn *net.Connection) (*SyncResult, error) {
	start := s.clock.Now()
	mode := s.graph.Mode()

	reservation := s.graph.Reserve()
	defer reservation.Close()

	res := &SyncResult{PeerID: conn.OtherID()}

	// Phase 1
	myWindow := reservation.EventWindow()
	myTips := s.graph.Tips()
	myTipHashes := make([]hg.Hash, len(myTips))
	for i, t := range myTips {
		myTipHashes[i] = t.Hash()
	}

	var theirs tipsMessage
	err := s.phase(ctx, conn,
		func() error {
			return conn.Encode(&tipsMessage{Window: myWindow, Tips: myTipHashes})
		},
		func() error {
			return conn.Decode(&theirs)
		})
	if err != nil {
		return s.fail(role, conn, err)
	}

	if theirs.Window.Mode != mode || theirs.Window.ExpiredThreshold > theirs.Window.AncientThreshold {
		return s.fail(role, conn, fmt.Errorf("%w: peer sent %s", ErrMalformed, theirs.Window))
	}

	res.Status = FallenBehindStatusOf(myWindow, theirs.Window)
	if res.Status != NoneFallenBehind {
		if res.Status == SelfFallenBehind && s.fallenBehind != nil {
			s.fallenBehind.ReportFallenBehind(conn.OtherID())
		}
		res.Duration = s.clock.Since(start)
		syncOutcomes.WithLabelValues(role, outcomeFallenBehind).Inc()
		s.logger.WithFields(logrus.Fields{
			"peer":   conn.OtherID(),
			"status": res.Status,
			"self":   myWindow,
			"other":  theirs.Window,
		}).Warn("Fallen behind")
		return res, nil
	}

	// Phase 2
	if theirs.Tips == nil {
		theirs.Tips = []hg.Hash{}
	}
	theirTips, err := s.graph.Shadows(theirs.Tips)
	if err != nil {
		return s.fail(role, conn, err)
	}

	haveTheirTips := make([]bool, len(theirTips))
	for i, t := range theirTips {
		haveTheirTips[i] = t != nil
	}

	var theirBooleans booleansMessage
	err = s.phase(ctx, conn,
		func() error {
			return conn.Encode(&booleansMessage{Known: haveTheirTips})
		},
		func() error {
			return conn.Decode(&theirBooleans)
		})
	if err != nil {
		return s.fail(role, conn, err)
	}

	if len(theirBooleans.Known) != len(myTips) {
		return s.fail(role, conn, fmt.Errorf("%w: %d booleans for %d tips",
			ErrMalformed, len(theirBooleans.Known), len(myTips)))
	}

	notAncient := func(se *sg.ShadowEvent) bool {
		return !myWindow.IsAncientIndicator(se.Indicator()) &&
			!theirs.Window.IsAncientIndicator(se.Indicator())
	}

	knownTips := make([]*sg.ShadowEvent, 0, len(theirTips)+len(myTips))
	for _, t := range theirTips {
		if t != nil {
			knownTips = append(knownTips, t)
		}
	}
	for i, known := range theirBooleans.Known {
		if known {
			knownTips = append(knownTips, myTips[i])
		}
	}
	knownSet := s.graph.FindAncestors(knownTips, notAncient)

	// Phase 3
	sendSet := s.graph.FindAncestors(s.graph.Tips(), func(se *sg.ShadowEvent) bool {
		return notAncient(se) && !knownSet.Contains(se)
	})

	toSend := sendSet.Events()
	hg.SortByIndicator(toSend, mode)

	if s.conf.FilterLikelyDuplicates {
		before := len(toSend)
		toSend = FilterLikelyDuplicates(s.selfID, s.conf.NonAncestorFilterThreshold, s.clock.Now(), toSend)
		filteredEvents.Add(float64(before - len(toSend)))
	}

	err = s.phase(ctx, conn,
		func() error {
			return s.writeEvents(conn, toSend)
		},
		func() error {
			n, err := s.readEvents(conn)
			res.EventsReceived = n
			return err
		})
	if err != nil {
		return s.fail(role, conn, err)
	}

	res.EventsSent = len(toSend)
	res.Synced = true
	res.Duration = s.clock.Since(start)

	eventsSent.Add(float64(res.EventsSent))
	eventsReceived.Add(float64(res.EventsReceived))
	syncOutcomes.WithLabelValues(role, outcomeOK).Inc()
	syncDuration.WithLabelValues(role).Observe(res.Duration.Seconds())

	s.logger.WithFields(logrus.Fields{
		"peer":     conn.OtherID(),
		"role":     role,
		"sent":     res.EventsSent,
		"received": res.EventsReceived,
		"duration": res.Duration,
	}).Debug("Sync done")

	return res, nil
}

// phase runs write and read concurrently and waits for both. The first one to
// fail closes the connection so that the other one returns too.
func (s *Synchronizer) phase(ctx context.Context, conn *net.Connection, write, read func() error) error {
	if err := conn.ResetTimeout(); err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := write()
		if err == nil {
			err = conn.Flush()
		}
		if err != nil {
			conn.Close()
		}
		return err
	})

	g.Go(func() error {
		err := read()
		if err != nil {
			conn.Close()
		}
		return err
	})

	return g.Wait()
}

func (s *Synchronizer) writeEvents(conn *net.Connection, events []*hg.Event) error {
	for _, e := range events {
		// A peer that keeps reading keeps the sync alive.
		if err := conn.ResetTimeout(); err != nil {
			return err
		}
		body := e.Body
		if err := conn.Encode(&eventFrame{Body: &body}); err != nil {
			return err
		}
	}
	if err := conn.ResetTimeout(); err != nil {
		return err
	}
	return conn.Encode(&eventFrame{Done: true})
}

func (s *Synchronizer) readEvents(conn *net.Connection) (int, error) {
	received := 0
	for {
		var frame eventFrame
		if err := conn.Decode(&frame); err != nil {
			return received, err
		}

		if frame.Done {
			return received, nil
		}

		if frame.Body == nil {
			return received, fmt.Errorf("%w: event frame without body", ErrMalformed)
		}

		// A slow but steady stream keeps the sync alive.
		if err := conn.ResetTimeout(); err != nil {
			return received, err
		}

		event := hg.NewEventFromBody(*frame.Body)
		event.SetTimeReceived(s.clock.Now())

		if err := s.graph.AddEvent(event); err != nil {
			if sg.IsBenign(err) {
				s.logger.WithError(err).Debug("Skipping received event")
				continue
			}
			return received, err
		}

		received++

		if s.handler != nil {
			s.handler(event)
		}
	}
}

func (s *Synchronizer) fail(role string, conn *net.Connection, err error) (*SyncResult, error) {
	conn.Close()
	syncOutcomes.WithLabelValues(role, outcomeError).Inc()
	s.logger.WithFields(logrus.Fields{
		"peer":  conn.OtherID(),
		"role":  role,
		"error": err,
	}).Error("Sync aborted")
	return &SyncResult{PeerID: conn.OtherID()}, err
}
