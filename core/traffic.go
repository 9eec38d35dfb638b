package core

// RefreshTrafficRequests recomputes the receiver's requested traffic set
// from scratch as the tracked aircraft the Tracker currently considers
// interesting, then synchronously pushes the resulting address list to the
// receiver's connection. The set is always rebuilt, never patched.
//
// The Tracker calls this whenever its interest policy for the receiver may
// have changed.
func (c *Coordinator) RefreshTrafficRequests(r *Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receivers[r.name] != r {
		return
	}

	requested := make(map[AircraftAddress]struct{}, len(r.tracking))
	for a := range r.tracking {
		if c.cfg.Tracker.Interesting(a) {
			requested[a] = struct{}{}
		}
	}
	r.requested = requested

	r.conn.RequestTraffic(r, sortedAddresses(requested))
}
