package core

import (
	"time"

	"github.com/signalsfoundry/mlat-coordinator/geo"
)

// Connection is the transport session owning a receiver. The coordinator
// holds a reference for outbound calls only; the connection's lifecycle is
// managed by the transport layer.
//
// Implementations must not call back into the Coordinator from these
// methods: they are invoked synchronously from inside coordinator
// operations.
type Connection interface {
	// RequestTraffic asks the receiver to report messages for exactly the
	// given set of aircraft. The slice is sorted and owned by the callee.
	RequestTraffic(r *Receiver, addrs []AircraftAddress)

	// ReportMlatPosition delivers a resolved position result to the
	// receiver. A returned error (or a panic) is logged by the caller and
	// never propagated further.
	ReportMlatPosition(r *Receiver, res *Result) error
}

// Tracker is the per-aircraft tracking collaborator. It decides which
// aircraft are interesting and which receiver pairs should exchange sync
// and mlat data; the coordinator only routes events to it.
type Tracker interface {
	// Add and Remove mirror changes the coordinator applied to a
	// receiver's tracked-aircraft set.
	Add(r *Receiver, addrs []AircraftAddress)
	Remove(r *Receiver, addrs []AircraftAddress)

	// RemoveAll drops all tracking state for a retiring receiver. Must
	// not call back into the Coordinator.
	RemoveAll(r *Receiver)

	// UpdateInterest recomputes interest policy for the receiver. It is
	// expected to call Coordinator.SetInterestSets and
	// Coordinator.RefreshTrafficRequests as needed.
	UpdateInterest(r *Receiver)

	// Interesting reports whether an aircraft is currently worth
	// requesting traffic for. Must be a pure, non-blocking predicate.
	Interesting(addr AircraftAddress) bool
}

// ClockTracker is the pairwise clock-synchronization collaborator.
type ClockTracker interface {
	ReceiverSync(r *Receiver, evenTime, oddTime float64, evenMessage, oddMessage []byte)
	ReceiverClockReset(r *Receiver)

	// ReceiverDisconnect drops all pairing state for a retiring receiver.
	// Must not call back into the Coordinator.
	ReceiverDisconnect(r *Receiver)

	// DumpReceiverState returns a JSON-marshalable description of the
	// receiver's current sync peers for the periodic state snapshot.
	DumpReceiverState(r *Receiver) any
}

// MlatTracker consumes individual timestamped messages for
// multilateration. Resolved positions come back to the coordinator via
// DispatchResult.
type MlatTracker interface {
	ReceiverMlat(r *Receiver, timestamp float64, message []byte, utc time.Time)
}

// ClockModel is the opaque per-receiver clock model owned by the
// clock-sync subsystem. The coordinator stores it but never interprets it.
type ClockModel any

// ClockFactory builds a clock model for a receiver's declared clock type
// at admission time.
type ClockFactory func(clockType string) ClockModel

// Authenticator validates a receiver at admission, before any shared state
// is touched. It may mutate the receiver (e.g. normalize its identity via
// SetName) and should return an error to reject the connection.
type Authenticator func(r *Receiver, auth any) error

// Result is a resolved multilateration position estimate.
type Result struct {
	// ReceiveTimestamp is the server-timebase receive time of the
	// resolved message, in seconds.
	ReceiveTimestamp float64

	Address AircraftAddress

	// Position is the ECEF position estimate in metres.
	Position geo.Vec3

	// Covariance is the position covariance, row-major, or nil when the
	// solver did not produce one.
	Covariance []float64

	// Receivers contributed measurements to this solution.
	Receivers []*Receiver

	// Distinct is the number of receivers with distinct measurements.
	Distinct int

	// SolverState is opaque solver state (e.g. Kalman filter status)
	// passed through to output handlers.
	SolverState any
}

// OutputHandler consumes resolved results. Handlers registered on the
// coordinator are invoked synchronously, in registration order.
type OutputHandler func(res *Result)
