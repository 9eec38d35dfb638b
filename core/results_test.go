package core

import (
	"errors"
	"testing"
)

func TestForwardResults_DeliversToAllContributors(t *testing.T) {
	env := newTestEnv()
	a, connA := env.admit("a", posCambridge)
	b, connB := env.admit("b", posParis)
	c, connC := env.admit("c", posBerlin)

	res := &Result{
		Address:   0x4CA123,
		Receivers: []*Receiver{a, b, c},
		Distinct:  3,
	}
	env.coordinator.DispatchResult(res)

	for name, conn := range map[string]*fakeConnection{"a": connA, "b": connB, "c": connC} {
		if len(conn.reports) != 1 || conn.reports[0] != res {
			t.Fatalf("receiver %s reports = %v, want exactly the dispatched result", name, conn.reports)
		}
	}
}

func TestForwardResults_ErrorIsolatedPerRecipient(t *testing.T) {
	env := newTestEnv()
	a, connA := env.admit("a", posCambridge)
	b, connB := env.admit("b", posParis)
	c, connC := env.admit("c", posBerlin)

	connB.reportErr = errors.New("write: broken pipe")

	env.coordinator.DispatchResult(&Result{
		Address:   0x3C6789,
		Receivers: []*Receiver{a, b, c},
	})

	if len(connA.reports) != 1 || len(connC.reports) != 1 {
		t.Fatalf("failure on b interrupted delivery: a=%d c=%d", len(connA.reports), len(connC.reports))
	}
	if len(connB.reports) != 0 {
		t.Fatalf("failing connection recorded a delivery")
	}
}

func TestForwardResults_PanicIsolatedPerRecipient(t *testing.T) {
	env := newTestEnv()
	a, connA := env.admit("a", posCambridge)
	b, connB := env.admit("b", posParis)
	c, connC := env.admit("c", posBerlin)

	connB.reportPanic = "connection torn down mid-write"

	env.coordinator.DispatchResult(&Result{
		Address:   0xA0B1C2,
		Receivers: []*Receiver{a, b, c},
	})

	if len(connA.reports) != 1 || len(connC.reports) != 1 {
		t.Fatalf("panic on b interrupted delivery: a=%d c=%d", len(connA.reports), len(connC.reports))
	}
}

func TestOutputHandlers_OrderAndRemoval(t *testing.T) {
	env := newTestEnv()

	var order []string
	regFirst := env.coordinator.AddOutputHandler(func(*Result) { order = append(order, "first") })
	regSecond := env.coordinator.AddOutputHandler(func(*Result) { order = append(order, "second") })

	env.coordinator.DispatchResult(&Result{Address: 0x4CA123})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("handler order = %v, want [first second]", order)
	}

	env.coordinator.RemoveOutputHandler(regFirst)
	order = nil
	env.coordinator.DispatchResult(&Result{Address: 0x4CA123})
	if len(order) != 1 || order[0] != "second" {
		t.Fatalf("after removal order = %v, want [second]", order)
	}

	env.coordinator.RemoveOutputHandler(regSecond)
	env.coordinator.RemoveOutputHandler(regSecond) // double remove is harmless
	env.coordinator.RemoveOutputHandler(nil)
}
