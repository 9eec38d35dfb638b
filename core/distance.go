package core

// distanceMatrix is the all-pairs distance cache among live receivers,
// stored as a flat handle-keyed table owned by the coordinator. It is
// maintained incrementally: O(live receivers) per insert/remove, never
// recomputed wholesale.
//
// All methods must be called with the coordinator mutex held.
type distanceMatrix struct {
	d map[handle]map[handle]float64
}

func newDistanceMatrix() *distanceMatrix {
	return &distanceMatrix{d: make(map[handle]map[handle]float64)}
}

// insert adds h with the given distances to every existing entry, writing
// both sides of each pair, and sets the self-distance to zero. The others
// map must cover exactly the current live handles.
func (m *distanceMatrix) insert(h handle, others map[handle]float64) {
	row := make(map[handle]float64, len(others)+1)
	row[h] = 0
	for o, dist := range others {
		row[o] = dist
		m.d[o][h] = dist
	}
	m.d[h] = row
}

// remove drops h's row and purges the h column from every remaining row.
func (m *distanceMatrix) remove(h handle) {
	delete(m.d, h)
	for _, row := range m.d {
		delete(row, h)
	}
}

// between returns the cached distance between two live handles.
func (m *distanceMatrix) between(a, b handle) (float64, bool) {
	dist, ok := m.d[a][b]
	return dist, ok
}

// size returns the number of rows, i.e. live receivers.
func (m *distanceMatrix) size() int { return len(m.d) }

// Distance returns the precomputed distance in metres between two live
// receivers, or false if either has been retired.
func (c *Coordinator) Distance(a, b *Receiver) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distances.between(a.handle, b.handle)
}
