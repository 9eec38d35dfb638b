package core

// relationKind selects one of the two independent symmetric relations
// maintained per receiver pair.
type relationKind int

const (
	relationSync relationKind = iota
	relationMlat
	relationKinds
)

// relationGraph holds the symmetric interest relations as handle-keyed
// adjacency sets, so receivers never reference each other directly.
//
// All methods must be called with the coordinator mutex held and must run
// to completion without suspension: they touch both sides of each edge and
// any interleaving mid-update would break the symmetry invariant.
type relationGraph struct {
	adj [relationKinds]map[handle]map[handle]struct{}
}

func newRelationGraph() *relationGraph {
	g := &relationGraph{}
	for k := range g.adj {
		g.adj[k] = make(map[handle]map[handle]struct{})
	}
	return g
}

// setDesired replaces h's adjacency for the given relation with the
// desired set, patching the reciprocal half of every changed edge. Runs in
// time proportional to the symmetric difference and is idempotent.
func (g *relationGraph) setDesired(h handle, kind relationKind, desired map[handle]struct{}) {
	adj := g.adj[kind]
	current := adj[h]

	for peer := range desired {
		if _, ok := current[peer]; ok {
			continue
		}
		// Newly added: establish the reciprocal edge.
		peerSet := adj[peer]
		if peerSet == nil {
			peerSet = make(map[handle]struct{})
			adj[peer] = peerSet
		}
		peerSet[h] = struct{}{}
	}

	for peer := range current {
		if _, ok := desired[peer]; ok {
			continue
		}
		delete(adj[peer], h)
	}

	own := make(map[handle]struct{}, len(desired))
	for peer := range desired {
		own[peer] = struct{}{}
	}
	adj[h] = own
}

// peers returns h's current adjacency for the given relation.
func (g *relationGraph) peers(h handle, kind relationKind) []handle {
	out := make([]handle, 0, len(g.adj[kind][h]))
	for peer := range g.adj[kind][h] {
		out = append(out, peer)
	}
	return out
}

// contains reports whether the edge (h, peer) exists in the relation.
func (g *relationGraph) contains(h handle, kind relationKind, peer handle) bool {
	_, ok := g.adj[kind][h][peer]
	return ok
}

// removeAll detaches h from both relations, clearing the reciprocal half
// of every remaining edge, and drops h's own entries.
func (g *relationGraph) removeAll(h handle) {
	for kind := range g.adj {
		for peer := range g.adj[kind][h] {
			delete(g.adj[kind][peer], h)
		}
		delete(g.adj[kind], h)
	}
}

// SetInterestSets replaces a receiver's desired sync and mlat interest
// sets, patching the reciprocal half of every changed pairing. The policy
// deciding the desired sets lives in the Tracker; this only applies them.
//
// Calling it twice with the same sets is a no-op on the second call.
// Pairings with retired receivers are ignored.
func (c *Coordinator) SetInterestSets(r *Receiver, syncSet, mlatSet []*Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receivers[r.name] != r {
		// Stale handle: a reconnect superseded this receiver, or it was
		// already retired.
		return
	}

	c.relations.setDesired(r.handle, relationSync, c.liveHandleSet(syncSet))
	c.relations.setDesired(r.handle, relationMlat, c.liveHandleSet(mlatSet))
}

// SyncInterest returns the receivers currently paired with r for clock
// synchronization.
func (c *Coordinator) SyncInterest(r *Receiver) []*Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveHandles(c.relations.peers(r.handle, relationSync))
}

// MlatInterest returns the receivers currently paired with r for
// multilateration data exchange.
func (c *Coordinator) MlatInterest(r *Receiver) []*Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveHandles(c.relations.peers(r.handle, relationMlat))
}

// liveHandleSet maps receivers to a handle set, skipping dead entries.
// Caller holds c.mu.
func (c *Coordinator) liveHandleSet(peers []*Receiver) map[handle]struct{} {
	set := make(map[handle]struct{}, len(peers))
	for _, p := range peers {
		if p == nil || p.dead {
			continue
		}
		set[p.handle] = struct{}{}
	}
	return set
}

// resolveHandles maps handles back to live receivers. Caller holds c.mu.
func (c *Coordinator) resolveHandles(handles []handle) []*Receiver {
	out := make([]*Receiver, 0, len(handles))
	for _, h := range handles {
		if r, ok := c.byHandle[h]; ok {
			out = append(out, r)
		}
	}
	return out
}
