package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/mlat-coordinator/geo"
)

// AircraftAddress is a 24-bit ICAO transponder address.
type AircraftAddress uint32

func (a AircraftAddress) String() string {
	return fmt.Sprintf("%06X", uint32(a))
}

// handle is a stable, process-unique identifier assigned to a receiver at
// admission. Relation and distance state is keyed by handle so receivers
// never hold live references to each other.
type handle uint64

// RateReport is the last traffic-rate report supplied by a receiver's
// connection: observed ADS-B position message rates per aircraft. A nil
// report means the receiver does not send rate reports and the coordinator
// drives interest recomputation from tracking changes instead.
type RateReport map[AircraftAddress]float64

// Receiver represents one authenticated receiver session. All mutable
// state on a Receiver is written only from within Coordinator operations;
// reading it is safe from collaborator callbacks (which run inside those
// operations) and from single-threaded tests.
type Receiver struct {
	handle handle
	name   string

	conn     Connection
	clock    ClockModel
	privacy  bool
	connInfo string

	positionLLH geo.LLH
	position    geo.Vec3

	dead bool

	syncCount      int64
	lastRateReport RateReport

	tracking  map[AircraftAddress]struct{}
	requested map[AircraftAddress]struct{}
}

func newReceiver(name string, conn Connection, clock ClockModel, pos geo.LLH, privacy bool, connInfo string) *Receiver {
	return &Receiver{
		name:        name,
		conn:        conn,
		clock:       clock,
		privacy:     privacy,
		connInfo:    connInfo,
		positionLLH: pos,
		position:    pos.ToECEF(),
		tracking:    make(map[AircraftAddress]struct{}),
		requested:   make(map[AircraftAddress]struct{}),
	}
}

// Name returns the receiver's identity, the registry key.
func (r *Receiver) Name() string { return r.name }

// SetName changes the receiver's identity. Valid only from an
// Authenticator, before admission completes; renaming an admitted receiver
// is not supported.
func (r *Receiver) SetName(name string) { r.name = name }

// Connection returns the owning transport session.
func (r *Receiver) Connection() Connection { return r.conn }

// Clock returns the opaque clock model attached at admission.
func (r *Receiver) Clock() ClockModel { return r.clock }

// Position returns the receiver's ECEF position in metres.
func (r *Receiver) Position() geo.Vec3 { return r.position }

// PositionLLH returns the receiver's geodetic position.
func (r *Receiver) PositionLLH() geo.LLH { return r.positionLLH }

// Privacy reports whether the receiver asked for its location to be
// treated as private by snapshot consumers.
func (r *Receiver) Privacy() bool { return r.privacy }

// ConnectionInfo returns opaque connection metadata for snapshots.
func (r *Receiver) ConnectionInfo() string { return r.connInfo }

// Dead reports whether the receiver has been retired. It transitions
// false to true exactly once, at disconnect.
func (r *Receiver) Dead() bool { return r.dead }

// SyncCount is the number of sync message pairs accepted for this
// receiver. Incremented by the clock-sync collaborator via AddSyncCount.
func (r *Receiver) SyncCount() int64 { return r.syncCount }

// AddSyncCount bumps the receiver's accepted sync pair count.
func (r *Receiver) AddSyncCount(n int64) { r.syncCount += n }

// LastRateReport returns the most recent rate report, or nil if the
// receiver has never sent one.
func (r *Receiver) LastRateReport() RateReport { return r.lastRateReport }

// Tracking returns a sorted copy of the tracked-aircraft set.
func (r *Receiver) Tracking() []AircraftAddress { return sortedAddresses(r.tracking) }

// Requested returns a sorted copy of the last requested traffic set. It
// is always a subset of Tracking.
func (r *Receiver) Requested() []AircraftAddress { return sortedAddresses(r.requested) }

func (r *Receiver) String() string { return r.name }

func sortedAddresses(set map[AircraftAddress]struct{}) []AircraftAddress {
	out := make([]AircraftAddress, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
