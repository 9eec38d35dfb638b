package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/mlat-coordinator/internal/logging"
)

// AddOutputHandler registers a consumer for resolved results. Handlers
// run synchronously, in registration order, when DispatchResult is called.
func (c *Coordinator) AddOutputHandler(h OutputHandler) *OutputRegistration {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	id := c.nextOutputID
	c.nextOutputID++
	c.outputs = append(c.outputs, outputEntry{id: id, fn: h})
	return &OutputRegistration{id: id}
}

// RemoveOutputHandler deregisters a previously added handler.
func (c *Coordinator) RemoveOutputHandler(reg *OutputRegistration) {
	if reg == nil {
		return
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()

	for i, e := range c.outputs {
		if e.id == reg.id {
			c.outputs = append(c.outputs[:i], c.outputs[i+1:]...)
			return
		}
	}
}

// DispatchResult hands a resolved position to every registered output
// handler. The mlat solver calls this once per solution.
func (c *Coordinator) DispatchResult(res *Result) {
	c.outMu.Lock()
	handlers := make([]OutputHandler, len(c.outputs))
	for i, e := range c.outputs {
		handlers[i] = e.fn
	}
	c.outMu.Unlock()

	for _, h := range handlers {
		h(res)
	}
}

// forwardResults delivers a result to every contributing receiver,
// isolating per-recipient failures: a failed delivery is logged with the
// recipient's identity and does not stop delivery to the rest. Best
// effort, no retry, no ordering guarantee among recipients.
func (c *Coordinator) forwardResults(res *Result) {
	for _, r := range res.Receivers {
		c.deliverOne(r, res)
	}
}

func (c *Coordinator) deliverOne(r *Receiver, res *Result) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return r.conn.ReportMlatPosition(r, res)
	}()

	if err != nil {
		c.metrics.IncDeliveryFailure()
		c.log.Error(context.Background(), "failed to forward result to receiver",
			logging.String("receiver", r.name),
			logging.String("aircraft", res.Address.String()),
			logging.String("error", err.Error()))
		return
	}
	c.metrics.IncResultDelivered()
}
