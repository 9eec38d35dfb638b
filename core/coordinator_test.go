package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/mlat-coordinator/geo"
)

func TestNewReceiver_DistanceMatrixSymmetric(t *testing.T) {
	env := newTestEnv()

	north, _ := env.admit("north", posCambridge)
	south, _ := env.admit("south", posParis)

	ns, ok := env.coordinator.Distance(north, south)
	if !ok {
		t.Fatalf("no distance entry north->south")
	}
	sn, ok := env.coordinator.Distance(south, north)
	if !ok {
		t.Fatalf("no distance entry south->north")
	}
	if ns != sn {
		t.Fatalf("distance matrix asymmetric: %v vs %v", ns, sn)
	}

	want := geo.Distance(posCambridge, posParis)
	if math.Abs(ns-want) > 1.0 {
		t.Fatalf("north-south distance %vm, want %vm within 1m", ns, want)
	}

	if self, ok := env.coordinator.Distance(north, north); !ok || self != 0 {
		t.Fatalf("self distance = %v/%v, want 0/true", self, ok)
	}
}

func TestNewReceiver_MeshCompleteAfterEachAdmission(t *testing.T) {
	env := newTestEnv()

	positions := []geo.LLH{posCambridge, posParis, posBerlin}
	var admitted []*Receiver
	for i, pos := range positions {
		r, _ := env.admit(fmt.Sprintf("recv%d", i), pos)
		admitted = append(admitted, r)

		for _, a := range admitted {
			for _, b := range admitted {
				ab, okA := env.coordinator.Distance(a, b)
				ba, okB := env.coordinator.Distance(b, a)
				if !okA || !okB || ab != ba {
					t.Fatalf("mesh incomplete or asymmetric for %s/%s: %v/%v %v/%v",
						a.Name(), b.Name(), ab, okA, ba, okB)
				}
				want := geo.Distance(a.PositionLLH(), b.PositionLLH())
				if math.Abs(ab-want) > 1e-6 {
					t.Fatalf("distance %s-%s = %v, want %v", a.Name(), b.Name(), ab, want)
				}
			}
		}
	}
}

func TestNewReceiver_DuplicateIdentityRejected(t *testing.T) {
	env := newTestEnv()

	original, _ := env.admit("north", posCambridge)
	peer, _ := env.admit("peer", posParis)

	distBefore, _ := env.coordinator.Distance(original, peer)

	dupConn := &fakeConnection{}
	dup, err := env.coordinator.NewReceiver(dupConn, "north", nil, posBerlin, "dump1090", false, "dup")
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("duplicate admission: got (%v, %v), want ErrDuplicateIdentity", dup, err)
	}

	if got := env.coordinator.Lookup("north"); got != original {
		t.Fatalf("registry entry replaced by rejected duplicate")
	}
	if n := env.coordinator.NumReceivers(); n != 2 {
		t.Fatalf("NumReceivers = %d after rejected duplicate, want 2", n)
	}
	if distAfter, _ := env.coordinator.Distance(original, peer); distAfter != distBefore {
		t.Fatalf("distance mutated by rejected duplicate: %v -> %v", distBefore, distAfter)
	}
	if len(dupConn.trafficCalls) != 0 {
		t.Fatalf("rejected receiver's connection was contacted")
	}
}

func TestNewReceiver_AuthenticationRejected(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Authenticator = func(r *Receiver, auth any) error {
			return errors.New("bad credentials")
		}
	})

	r, err := env.coordinator.NewReceiver(&fakeConnection{}, "north", "secret", posCambridge, "dump1090", false, "")
	if !errors.Is(err, ErrAuthenticationRejected) {
		t.Fatalf("got (%v, %v), want ErrAuthenticationRejected", r, err)
	}
	if n := env.coordinator.NumReceivers(); n != 0 {
		t.Fatalf("registry touched by rejected admission: %d receivers", n)
	}
}

func TestNewReceiver_AuthenticatorNormalizesIdentity(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Authenticator = func(r *Receiver, auth any) error {
			r.SetName(strings.ToLower(r.Name()))
			return nil
		}
	})

	r, err := env.coordinator.NewReceiver(&fakeConnection{}, "NORTH", nil, posCambridge, "dump1090", false, "")
	if err != nil {
		t.Fatalf("admission failed: %v", err)
	}
	if r.Name() != "north" {
		t.Fatalf("identity = %q, want normalized %q", r.Name(), "north")
	}
	if env.coordinator.Lookup("north") != r {
		t.Fatalf("receiver not registered under normalized identity")
	}
	if env.coordinator.Lookup("NORTH") != nil {
		t.Fatalf("receiver registered under pre-normalization identity")
	}
}

func TestNewReceiver_AuthenticatorRenameCollisionRejected(t *testing.T) {
	env := newTestEnv(func(cfg *Config) {
		cfg.Authenticator = func(r *Receiver, auth any) error {
			r.SetName(strings.ToLower(r.Name()))
			return nil
		}
	})

	original, _ := env.admit("north", posCambridge)

	_, err := env.coordinator.NewReceiver(&fakeConnection{}, "NORTH", nil, posParis, "dump1090", false, "")
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("renamed-to-existing admission: err = %v, want ErrDuplicateIdentity", err)
	}
	if env.coordinator.Lookup("north") != original {
		t.Fatalf("original receiver displaced by rejected rename collision")
	}
}

func TestNewReceiver_ClockFactoryAttachesModel(t *testing.T) {
	type testClock struct{ kind string }

	env := newTestEnv(func(cfg *Config) {
		cfg.ClockFactory = func(clockType string) ClockModel {
			return &testClock{kind: clockType}
		}
	})

	r, _ := env.admit("north", posCambridge)
	clk, ok := r.Clock().(*testClock)
	if !ok || clk.kind != "dump1090" {
		t.Fatalf("clock model = %#v, want testClock{dump1090}", r.Clock())
	}
}

func TestReceiverDisconnect_RemovesAllState(t *testing.T) {
	env := newTestEnv()

	a, _ := env.admit("a", posCambridge)
	b, _ := env.admit("b", posParis)
	c, _ := env.admit("c", posBerlin)

	env.coordinator.SetInterestSets(b, []*Receiver{a, c}, []*Receiver{a})

	env.coordinator.ReceiverDisconnect(b)

	if !b.Dead() {
		t.Fatalf("retired receiver not marked dead")
	}
	if env.coordinator.Lookup("b") != nil {
		t.Fatalf("retired receiver still in registry")
	}
	if _, ok := env.coordinator.Distance(a, b); ok {
		t.Fatalf("retired receiver still in a's distance map")
	}
	if _, ok := env.coordinator.Distance(c, b); ok {
		t.Fatalf("retired receiver still in c's distance map")
	}
	if containsReceiver(env.coordinator.SyncInterest(a), b) {
		t.Fatalf("retired receiver still in a's sync interest")
	}
	if containsReceiver(env.coordinator.MlatInterest(a), b) {
		t.Fatalf("retired receiver still in a's mlat interest")
	}
	if containsReceiver(env.coordinator.SyncInterest(c), b) {
		t.Fatalf("retired receiver still in c's sync interest")
	}

	if len(env.tracker.removedAll) != 1 || env.tracker.removedAll[0] != b {
		t.Fatalf("tracker.RemoveAll calls = %v, want exactly [b]", env.tracker.removedAll)
	}
	if len(env.clockTracker.disconnects) != 1 || env.clockTracker.disconnects[0] != b {
		t.Fatalf("clock tracker disconnects = %v, want exactly [b]", env.clockTracker.disconnects)
	}
}

func TestReceiverDisconnect_StaleHandleIgnored(t *testing.T) {
	env := newTestEnv()

	first, _ := env.admit("north", posCambridge)
	env.coordinator.ReceiverDisconnect(first)

	// Reconnect under the same identity.
	second, _ := env.admit("north", posParis)

	// A late disconnect for the first session must not touch the second.
	env.coordinator.ReceiverDisconnect(first)

	if env.coordinator.Lookup("north") != second {
		t.Fatalf("stale disconnect removed the superseding receiver")
	}
	if second.Dead() {
		t.Fatalf("stale disconnect killed the superseding receiver")
	}
	if !first.Dead() {
		t.Fatalf("stale receiver should stay dead")
	}
	if len(env.tracker.removedAll) != 1 {
		t.Fatalf("tracker.RemoveAll called %d times, want 1", len(env.tracker.removedAll))
	}
}

func TestReceiverTrackingAdd_InterestRecomputedWithoutRateReports(t *testing.T) {
	env := newTestEnv()
	r, _ := env.admit("north", posCambridge)

	env.coordinator.ReceiverTrackingAdd(r, []AircraftAddress{0x4CA123})

	if len(env.tracker.added) != 1 {
		t.Fatalf("tracker.Add calls = %d, want 1", len(env.tracker.added))
	}
	if len(env.tracker.interestUpdates) != 1 {
		t.Fatalf("interest updates = %d, want 1 (no rate reports yet)", len(env.tracker.interestUpdates))
	}

	// Once the receiver reports rates, tracking changes no longer drive
	// interest recomputation; the rate reports do.
	env.coordinator.ReceiverRateReport(r, RateReport{0x4CA123: 1.5})
	if len(env.tracker.interestUpdates) != 2 {
		t.Fatalf("interest updates = %d after rate report, want 2", len(env.tracker.interestUpdates))
	}

	env.coordinator.ReceiverTrackingAdd(r, []AircraftAddress{0x3C6789})
	if len(env.tracker.interestUpdates) != 2 {
		t.Fatalf("tracking add after rate report triggered interest update")
	}

	env.coordinator.ReceiverRateReport(r, RateReport{0x3C6789: 0.2})
	if len(env.tracker.interestUpdates) != 3 {
		t.Fatalf("rate report did not force interest update")
	}
}

func TestReceiverTrackingRemove_KeepsRequestedSubsetOfTracking(t *testing.T) {
	env := newTestEnv()
	r, _ := env.admit("north", posCambridge)

	env.tracker.interesting[0x4CA123] = true
	env.tracker.interesting[0x3C6789] = true

	env.coordinator.ReceiverTrackingAdd(r, []AircraftAddress{0x4CA123, 0x3C6789})
	env.coordinator.RefreshTrafficRequests(r)

	if got := r.Requested(); !equalAddresses(got, []AircraftAddress{0x3C6789, 0x4CA123}) {
		t.Fatalf("requested = %v, want both tracked aircraft", got)
	}

	env.coordinator.ReceiverTrackingRemove(r, []AircraftAddress{0x4CA123})

	tracking := r.Tracking()
	for _, req := range r.Requested() {
		found := false
		for _, tr := range tracking {
			if tr == req {
				found = true
			}
		}
		if !found {
			t.Fatalf("requested %v not a subset of tracking %v", r.Requested(), tracking)
		}
	}
	if got := r.Requested(); !equalAddresses(got, []AircraftAddress{0x3C6789}) {
		t.Fatalf("requested = %v after removal, want [3C6789]", got)
	}
}

func TestEventRouting_Delegation(t *testing.T) {
	env := newTestEnv()
	r, _ := env.admit("north", posCambridge)

	env.coordinator.ReceiverSync(r, 1.0, 2.0, []byte{0x8d}, []byte{0x8d})
	if env.clockTracker.syncPairs != 1 {
		t.Fatalf("sync pair not routed to clock tracker")
	}

	env.coordinator.ReceiverMlat(r, 3.0, []byte{0x8d}, time.Now())
	if env.mlatTracker.messages != 1 {
		t.Fatalf("mlat message not routed to solver")
	}

	env.coordinator.ReceiverClockReset(r)
	if len(env.clockTracker.resets) != 1 || env.clockTracker.resets[0] != r {
		t.Fatalf("clock reset not routed")
	}
}

func TestReceiverRateReport_StaleHandleIgnored(t *testing.T) {
	env := newTestEnv()

	first, _ := env.admit("north", posCambridge)
	env.coordinator.ReceiverDisconnect(first)
	env.admit("north", posParis)

	env.coordinator.ReceiverRateReport(first, RateReport{0x4CA123: 1.0})
	if len(env.tracker.interestUpdates) != 0 {
		t.Fatalf("stale rate report triggered interest update")
	}
	if first.LastRateReport() != nil {
		t.Fatalf("stale rate report stored on retired receiver")
	}
}
