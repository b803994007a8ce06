// Package coordinator is the single entry point for client traffic: it
// owns one Ring and one Replicator and reacts to failure notifications.
package coordinator

import (
	"context"
	"log"
	"sync"

	"github.com/tunablekv/tunablekv/internal/replicator"
	"github.com/tunablekv/tunablekv/internal/ring"
)

// Coordinator routes PUT/GET requests through a Ring and a Replicator and
// owns the sticky anyOffline flag. It must be constructed once per process
// and passed explicitly to HTTP handlers rather than held as a global.
type Coordinator struct {
	ring *ring.Ring
	rep  *replicator.Replicator
	n    int

	mu         sync.Mutex
	anyOffline bool
}

// New creates a Coordinator over an already-populated ring and replicator.
// n is the replication factor passed to ring.GetNodes on every request.
func New(r *ring.Ring, rep *replicator.Replicator, n int) *Coordinator {
	return &Coordinator{ring: r, rep: rep, n: n}
}

// Put replicates key/value to the replica set and reports whether the
// write quorum was met.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte) bool {
	nodes := c.ring.GetNodes(key, c.n)
	return c.rep.ReplicateWrite(ctx, key, value, nodes)
}

// Get reads key from the replica set, applying the degraded R_effective
// reduction when any node is known offline, and triggers asynchronous
// read-repair on success while degraded.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	nodes := c.ring.GetNodes(key, c.n)
	degraded := c.AnyOffline()

	// rep.R() is already the cumulative degraded value from prior
	// /node_offline calls (see DegradeQuorum); this subtracts one more
	// on top of that for this call, so repeated offline reports compound.
	rEffective := c.rep.R()
	if degraded {
		rEffective--
		if rEffective < 1 {
			rEffective = 1
		}
	}

	value, err := c.rep.GetFromReplicas(ctx, key, nodes, rEffective)
	if err != nil {
		return nil, false
	}

	if degraded {
		go c.readRepair(context.Background(), key, value, nodes)
	}

	return value, true
}

// NodeOffline reacts to a failure-detector notification: it removes the
// node from the ring (flip-status, not deletion), sets the sticky
// anyOffline flag, and permanently degrades the replicator's quorum.
func (c *Coordinator) NodeOffline(nodeID string) {
	c.ring.RemoveNode(nodeID)
	c.rep.DegradeQuorum()

	c.mu.Lock()
	c.anyOffline = true
	c.mu.Unlock()

	log.Printf("node %s marked offline, quorum now W=%d R=%d", nodeID, c.rep.W(), c.rep.R())
}

// AnyOffline reports whether any node has ever been reported offline for
// the life of this process. There is no transition back to false.
func (c *Coordinator) AnyOffline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anyOffline
}

// Ring exposes the underlying ring for admin/health endpoints.
func (c *Coordinator) Ring() *ring.Ring {
	return c.ring
}

// Replicator exposes the underlying replicator for admin/health endpoints.
func (c *Coordinator) Replicator() *replicator.Replicator {
	return c.rep
}

// readRepair probes each replica for key and rewrites value to any replica
// that reports absence. It is best-effort: failures are logged and never
// affect the GET result that triggered it.
func (c *Coordinator) readRepair(ctx context.Context, key string, value []byte, nodes []string) {
	for _, node := range nodes {
		if c.rep.HasValue(ctx, node, key) {
			continue
		}
		if err := c.rep.ReplicateTo(ctx, node, key, value); err != nil {
			log.Printf("read-repair: failed to heal %s for key %q: %v", node, key, err)
		}
	}
}
