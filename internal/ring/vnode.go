package ring

import "fmt"

// Snapshot returns a point-in-time view of every physical node's virtual
// entry count and status, for the coordinator's /health endpoint and for
// tests. It carries no quorum semantics of its own.
type Snapshot struct {
	NodeID     string `json:"node_id"`
	Status     string `json:"status"`
	VNodeCount int    `json:"vnode_count"`
}

// Snapshot reports the current per-node vnode counts and statuses. Useful
// for admin/debug endpoints; never consulted by GetNodes itself.
func (r *Ring) Snapshot() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.status))
	for _, vn := range r.vnodes {
		counts[vn.node]++
	}

	out := make([]Snapshot, 0, len(r.status))
	for nodeID, status := range r.status {
		out = append(out, Snapshot{
			NodeID:     nodeID,
			Status:     status.String(),
			VNodeCount: counts[nodeID],
		})
	}
	return out
}

// LoadDistribution estimates the fraction of keyspace each physical node
// owns, based on the gaps between consecutive virtual-node hashes. This is
// an approximation: it walks the ring once and assigns each interval to the
// vnode that closes it, matching the teacher's load-distribution helper
// adapted to the 128-bit hash and sticky-offline status model.
func (r *Ring) LoadDistribution() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.vnodes)
	if n == 0 {
		return nil
	}

	load := make(map[string]float64, len(r.status))
	if n == 1 {
		load[r.vnodes[0].node] = 1.0
		return load
	}
	// Each vnode closes the interval that starts just after its predecessor
	// (wrapping at the top of the ring). Only the high 64 bits of each hash
	// are used; uint64 subtraction handles the wrap.
	const ringSize = float64(1 << 64)
	for i := range r.vnodes {
		prev := r.vnodes[(i+n-1)%n].hash.Hi
		gap := r.vnodes[i].hash.Hi - prev
		load[r.vnodes[i].node] += float64(gap) / ringSize
	}
	return load
}

// Describe renders a one-line human-readable summary of ring occupancy.
func (r *Ring) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("ring: %d physical nodes (%d online), %d virtual entries",
		len(r.status), r.onlineCountLocked(), len(r.vnodes))
}

func (r *Ring) onlineCountLocked() int {
	count := 0
	for _, s := range r.status {
		if s.String() == "online" {
			count++
		}
	}
	return count
}
