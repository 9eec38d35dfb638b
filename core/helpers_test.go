package core

import (
	"time"

	"github.com/signalsfoundry/mlat-coordinator/geo"
)

// Test doubles for the external collaborators. They record every call so
// tests can assert on routing, and the tracker can be wired to call back
// into the coordinator the way the real tracking subsystem does.

type fakeConnection struct {
	trafficCalls [][]AircraftAddress
	reports      []*Result
	reportErr    error
	reportPanic  string
}

func (c *fakeConnection) RequestTraffic(_ *Receiver, addrs []AircraftAddress) {
	cp := make([]AircraftAddress, len(addrs))
	copy(cp, addrs)
	c.trafficCalls = append(c.trafficCalls, cp)
}

func (c *fakeConnection) ReportMlatPosition(_ *Receiver, res *Result) error {
	if c.reportPanic != "" {
		panic(c.reportPanic)
	}
	if c.reportErr != nil {
		return c.reportErr
	}
	c.reports = append(c.reports, res)
	return nil
}

type fakeTracker struct {
	interesting map[AircraftAddress]bool

	added           [][]AircraftAddress
	removed         [][]AircraftAddress
	removedAll      []*Receiver
	interestUpdates []*Receiver

	onUpdateInterest func(r *Receiver)
}

func (t *fakeTracker) Add(_ *Receiver, addrs []AircraftAddress) {
	t.added = append(t.added, addrs)
}

func (t *fakeTracker) Remove(_ *Receiver, addrs []AircraftAddress) {
	t.removed = append(t.removed, addrs)
}

func (t *fakeTracker) RemoveAll(r *Receiver) {
	t.removedAll = append(t.removedAll, r)
}

func (t *fakeTracker) UpdateInterest(r *Receiver) {
	t.interestUpdates = append(t.interestUpdates, r)
	if t.onUpdateInterest != nil {
		t.onUpdateInterest(r)
	}
}

func (t *fakeTracker) Interesting(addr AircraftAddress) bool {
	return t.interesting[addr]
}

type fakeClockTracker struct {
	syncPairs   int
	resets      []*Receiver
	disconnects []*Receiver
	dumps       map[string]any
}

func (ct *fakeClockTracker) ReceiverSync(*Receiver, float64, float64, []byte, []byte) {
	ct.syncPairs++
}

func (ct *fakeClockTracker) ReceiverClockReset(r *Receiver) {
	ct.resets = append(ct.resets, r)
}

func (ct *fakeClockTracker) ReceiverDisconnect(r *Receiver) {
	ct.disconnects = append(ct.disconnects, r)
}

func (ct *fakeClockTracker) DumpReceiverState(r *Receiver) any {
	if ct.dumps == nil {
		return map[string]any{}
	}
	return ct.dumps[r.Name()]
}

type fakeMlatTracker struct {
	messages int
}

func (mt *fakeMlatTracker) ReceiverMlat(*Receiver, float64, []byte, time.Time) {
	mt.messages++
}

type testEnv struct {
	coordinator  *Coordinator
	tracker      *fakeTracker
	clockTracker *fakeClockTracker
	mlatTracker  *fakeMlatTracker
}

func newTestEnv(mutate ...func(*Config)) *testEnv {
	env := &testEnv{
		tracker:      &fakeTracker{interesting: make(map[AircraftAddress]bool)},
		clockTracker: &fakeClockTracker{},
		mlatTracker:  &fakeMlatTracker{},
	}
	cfg := Config{
		Tracker:      env.tracker,
		ClockTracker: env.clockTracker,
		MlatTracker:  env.mlatTracker,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	env.coordinator = New(cfg)
	return env
}

// admit registers a receiver with a fresh fake connection.
func (env *testEnv) admit(name string, pos geo.LLH) (*Receiver, *fakeConnection) {
	conn := &fakeConnection{}
	r, err := env.coordinator.NewReceiver(conn, name, nil, pos, "dump1090", false, "test")
	if err != nil {
		panic(err)
	}
	return r, conn
}

var (
	posCambridge = geo.LLH{Lat: 52.2053, Lon: 0.1218, Alt: 20}
	posParis     = geo.LLH{Lat: 48.8566, Lon: 2.3522, Alt: 35}
	posBerlin    = geo.LLH{Lat: 52.52, Lon: 13.405, Alt: 34}
)

func containsReceiver(set []*Receiver, want *Receiver) bool {
	for _, r := range set {
		if r == want {
			return true
		}
	}
	return false
}

func equalAddresses(a, b []AircraftAddress) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
