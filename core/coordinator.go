// Package core implements the coordination hub of the multilateration
// server: the receiver registry, symmetric interest relations, the
// inter-receiver distance matrix, receiver lifecycle, traffic
// reconciliation and result fan-out.
//
// The coordinator is the only component with global knowledge of all
// connected receivers. Connections push events in through its methods;
// tracking, clock-sync and mlat solving are external collaborators that
// see only the receivers the coordinator routes to them.
package core

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/signalsfoundry/mlat-coordinator/geo"
	"github.com/signalsfoundry/mlat-coordinator/internal/clock"
	"github.com/signalsfoundry/mlat-coordinator/internal/logging"
	"github.com/signalsfoundry/mlat-coordinator/internal/observability"
	"github.com/signalsfoundry/mlat-coordinator/internal/sigmux"
)

// Config carries the coordinator's collaborators and settings. Tracker,
// ClockTracker and MlatTracker are required; everything else has a usable
// default.
type Config struct {
	Tracker      Tracker
	ClockTracker ClockTracker
	MlatTracker  MlatTracker

	// Authenticator may reject or normalize admissions. Nil admits all.
	Authenticator Authenticator

	// ClockFactory builds per-receiver clock models from the declared
	// clock type. Nil leaves the clock model nil.
	ClockFactory ClockFactory

	// SnapshotInterval is the pause between state snapshot writes,
	// measured from the end of the previous write. Defaults to 30s.
	SnapshotInterval time.Duration

	// SyncStatePath and LocationsPath are the snapshot artifact paths.
	// Default "sync.json" and "locations.json".
	SyncStatePath string
	LocationsPath string

	Logger  logging.Logger
	Metrics *observability.CoordinatorCollector

	// Clock provides the snapshot interval wait; tests inject a fake.
	Clock clock.Clock

	// Signals multiplexes SIGHUP to registered handlers. When nil the
	// coordinator creates its own mux and closes it on Close.
	Signals *sigmux.Mux
}

// Coordinator owns the receiver registry and all state derived from it.
// A single mutex guards the registry, the distance matrix and the
// relation graph, so every mutating operation is atomic end to end; no
// suspension point exists inside those critical sections.
type Coordinator struct {
	cfg     Config
	log     logging.Logger
	metrics *observability.CoordinatorCollector
	clk     clock.Clock

	signals     *sigmux.Mux
	ownsSignals bool

	mu         sync.Mutex
	receivers  map[string]*Receiver
	byHandle   map[handle]*Receiver
	relations  *relationGraph
	distances  *distanceMatrix
	nextHandle handle

	outMu        sync.Mutex
	outputs      []outputEntry
	nextOutputID uint64

	snapCancel context.CancelFunc
	snapDone   chan struct{}
}

type outputEntry struct {
	id uint64
	fn OutputHandler
}

// OutputRegistration identifies a registered output handler for removal.
type OutputRegistration struct {
	id uint64
}

// New constructs a Coordinator. The result-forwarding handler that pushes
// positions to contributing receivers is pre-registered.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Wall{}
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 30 * time.Second
	}
	if cfg.SyncStatePath == "" {
		cfg.SyncStatePath = "sync.json"
	}
	if cfg.LocationsPath == "" {
		cfg.LocationsPath = "locations.json"
	}

	c := &Coordinator{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		clk:       cfg.Clock,
		signals:   cfg.Signals,
		receivers: make(map[string]*Receiver),
		byHandle:  make(map[handle]*Receiver),
		relations: newRelationGraph(),
		distances: newDistanceMatrix(),
	}
	if c.signals == nil {
		c.signals = sigmux.New(syscall.SIGHUP)
		c.ownsSignals = true
	}

	c.AddOutputHandler(c.forwardResults)
	return c
}

// NewReceiver admits a receiver for the given identity.
//
// If the identity already maps to a live receiver the admission fails with
// ErrDuplicateIdentity and nothing is mutated. The authenticator (if any)
// runs before any shared state is touched and may normalize the identity;
// a rejection discards the receiver and fails with
// ErrAuthenticationRejected. On success the distance to every live
// receiver is computed and written into both sides of the matrix before
// the receiver becomes visible in the registry.
func (c *Coordinator) NewReceiver(conn Connection, user string, auth any, pos geo.LLH, clockType string, privacy bool, connInfo string) (*Receiver, error) {
	c.mu.Lock()
	_, taken := c.receivers[user]
	c.mu.Unlock()
	if taken {
		c.metrics.IncAdmission("duplicate")
		return nil, fmt.Errorf("%w: %q", ErrDuplicateIdentity, user)
	}

	var clk ClockModel
	if c.cfg.ClockFactory != nil {
		clk = c.cfg.ClockFactory(clockType)
	}
	r := newReceiver(user, conn, clk, pos, privacy, connInfo)

	if c.cfg.Authenticator != nil {
		if err := c.cfg.Authenticator(r, auth); err != nil {
			c.metrics.IncAdmission("rejected")
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationRejected, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The authenticator may have renamed the receiver; the final identity
	// decides uniqueness.
	if _, taken := c.receivers[r.name]; taken {
		c.metrics.IncAdmission("duplicate")
		return nil, fmt.Errorf("%w: %q", ErrDuplicateIdentity, r.name)
	}

	r.handle = c.nextHandle
	c.nextHandle++

	dists := make(map[handle]float64, len(c.receivers))
	for _, other := range c.receivers {
		dists[other.handle] = r.position.DistanceTo(other.position)
	}
	c.distances.insert(r.handle, dists)

	c.receivers[r.name] = r
	c.byHandle[r.handle] = r

	c.metrics.IncAdmission("admitted")
	c.metrics.SetConnectedReceivers(len(c.receivers))
	c.log.Info(context.Background(), "receiver connected",
		logging.String("receiver", r.name),
		logging.Int("connected", len(c.receivers)))
	return r, nil
}

// ReceiverDisconnect retires a receiver. It is idempotent with respect to
// stale handles: if a reconnect under the same identity has already
// superseded this instance, only the dead flag is set and no shared state
// changes. Teardown drops tracker and clock-tracker state, removes the
// receiver from the registry and purges it from the distance matrix and
// from both interest relations.
func (c *Coordinator) ReceiverDisconnect(r *Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r.dead = true
	if c.receivers[r.name] != r {
		return
	}

	c.cfg.Tracker.RemoveAll(r)
	c.cfg.ClockTracker.ReceiverDisconnect(r)

	delete(c.receivers, r.name)
	delete(c.byHandle, r.handle)
	c.distances.remove(r.handle)
	c.relations.removeAll(r.handle)

	c.metrics.SetConnectedReceivers(len(c.receivers))
	c.log.Info(context.Background(), "receiver disconnected",
		logging.String("receiver", r.name),
		logging.Int("connected", len(c.receivers)))
}

// ReceiverSync routes a correlated DF17 message pair to the clock-sync
// collaborator.
func (c *Coordinator) ReceiverSync(r *Receiver, evenTime, oddTime float64, evenMessage, oddMessage []byte) {
	c.cfg.ClockTracker.ReceiverSync(r, evenTime, oddTime, evenMessage, oddMessage)
	c.metrics.IncSyncPair()
}

// ReceiverMlat routes a single timestamped message to the mlat solver.
func (c *Coordinator) ReceiverMlat(r *Receiver, timestamp float64, message []byte, utc time.Time) {
	c.cfg.MlatTracker.ReceiverMlat(r, timestamp, message, utc)
	c.metrics.IncMlatMessage()
}

// ReceiverTrackingAdd adds aircraft to a receiver's tracked set. When the
// receiver does not send rate reports, interest policy is recomputed
// immediately; otherwise rate-report arrival drives recomputation.
func (c *Coordinator) ReceiverTrackingAdd(r *Receiver, addrs []AircraftAddress) {
	c.mu.Lock()
	if c.receivers[r.name] != r {
		c.mu.Unlock()
		return
	}
	for _, a := range addrs {
		r.tracking[a] = struct{}{}
	}
	noReport := r.lastRateReport == nil
	c.mu.Unlock()

	c.cfg.Tracker.Add(r, addrs)
	if noReport {
		c.cfg.Tracker.UpdateInterest(r)
	}
}

// ReceiverTrackingRemove removes aircraft from a receiver's tracked set.
// Removed aircraft are also dropped from the requested set so that
// requested stays a subset of tracking.
func (c *Coordinator) ReceiverTrackingRemove(r *Receiver, addrs []AircraftAddress) {
	c.mu.Lock()
	if c.receivers[r.name] != r {
		c.mu.Unlock()
		return
	}
	for _, a := range addrs {
		delete(r.tracking, a)
		delete(r.requested, a)
	}
	noReport := r.lastRateReport == nil
	c.mu.Unlock()

	c.cfg.Tracker.Remove(r, addrs)
	if noReport {
		c.cfg.Tracker.UpdateInterest(r)
	}
}

// ReceiverClockReset resets the receiver's clock-sync state.
func (c *Coordinator) ReceiverClockReset(r *Receiver) {
	c.cfg.ClockTracker.ReceiverClockReset(r)
}

// ReceiverRateReport stores a traffic-rate report and always forces an
// interest-policy recomputation, regardless of rate-report history.
func (c *Coordinator) ReceiverRateReport(r *Receiver, report RateReport) {
	c.mu.Lock()
	if c.receivers[r.name] != r {
		c.mu.Unlock()
		return
	}
	r.lastRateReport = report
	c.mu.Unlock()

	c.cfg.Tracker.UpdateInterest(r)
}

// Lookup returns the live receiver registered under the identity, or nil.
func (c *Coordinator) Lookup(name string) *Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers[name]
}

// NumReceivers returns the number of live receivers.
func (c *Coordinator) NumReceivers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.receivers)
}

// Receivers returns a snapshot of all live receivers.
func (c *Coordinator) Receivers() []*Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Receiver, 0, len(c.receivers))
	for _, r := range c.receivers {
		out = append(out, r)
	}
	return out
}

// AddSignalHandler registers a SIGHUP handler on the coordinator's signal
// multiplexer.
func (c *Coordinator) AddSignalHandler(h sigmux.Handler) *sigmux.Registration {
	return c.signals.Add(h)
}

// RemoveSignalHandler deregisters a previously added handler.
func (c *Coordinator) RemoveSignalHandler(reg *sigmux.Registration) {
	c.signals.Remove(reg)
}
