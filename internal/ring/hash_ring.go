// Package ring implements consistent hashing with virtual nodes over a set
// of storage node ids.
package ring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/tunablekv/tunablekv/pkg/types"
)

// Hash128 is a 128-bit ring position, split into two halves so it remains a
// comparable, zero-allocation value usable as a sort key.
type Hash128 struct {
	Hi uint64
	Lo uint64
}

func less128(a, b Hash128) bool {
	if a.Hi != b.Hi {
		return a.Hi < b.Hi
	}
	return a.Lo < b.Lo
}

// hash128 computes the 128-bit murmur3 digest of a UTF-8 string.
func hash128(s string) Hash128 {
	hi, lo := murmur3.Sum128([]byte(s))
	return Hash128{Hi: hi, Lo: lo}
}

// vnode is a single virtual-node entry on the ring.
type vnode struct {
	hash Hash128
	node string
}

// Ring is a consistent hash ring with virtual replicas per physical node.
// Removed nodes are never deleted from the underlying slice: their status
// flips to Offline and get_nodes filters them out, which keeps positional
// traversal stable under concurrent removal.
type Ring struct {
	mu       sync.RWMutex
	vnodes   []vnode
	status   map[string]types.NodeStatus
	replicas int
}

// NewRing creates a ring with the given number of virtual nodes per physical
// node (the teacher's default of 150 is far above this spec's recommended
// V=3; callers pass the configured value explicitly).
func NewRing(virtualNodes int) *Ring {
	if virtualNodes < 1 {
		virtualNodes = 3
	}
	return &Ring{
		vnodes:   make([]vnode, 0),
		status:   make(map[string]types.NodeStatus),
		replicas: virtualNodes,
	}
}

// AddNode inserts V virtual entries for nodeID and marks it Online. Calling
// AddNode on a node already present (including one previously removed) is
// the only way a node status returns to Online; it does not happen
// automatically.
func (r *Ring) AddNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.status[nodeID]; exists {
		r.status[nodeID] = types.NodeOnline
		return
	}

	for i := 0; i < r.replicas; i++ {
		label := fmt.Sprintf("%s-%d", nodeID, i)
		r.vnodes = append(r.vnodes, vnode{hash: hash128(label), node: nodeID})
	}
	r.status[nodeID] = types.NodeOnline

	sort.Slice(r.vnodes, func(i, j int) bool {
		return less128(r.vnodes[i].hash, r.vnodes[j].hash)
	})
}

// RemoveNode flips nodeID's status to Offline. Virtual entries remain in
// the sorted slice; GetNodes filters by status rather than by presence.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.status[nodeID]; !exists {
		return
	}
	r.status[nodeID] = types.NodeOffline
}

// GetNodes returns up to count distinct Online node ids responsible for key,
// walking the ring clockwise from key's hash position. Fewer than count may
// be returned if fewer Online nodes exist; an empty ring returns nil.
func (r *Ring) GetNodes(key string, count int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 || count <= 0 {
		return nil
	}

	h := hash128(key)
	start := sort.Search(len(r.vnodes), func(i int) bool {
		return !less128(r.vnodes[i].hash, h)
	})
	if start >= len(r.vnodes) {
		start = 0
	}

	nodes := make([]string, 0, count)
	seen := make(map[string]bool, count)

	for i := 0; i < len(r.vnodes) && len(nodes) < count; i++ {
		idx := (start + i) % len(r.vnodes)
		nodeID := r.vnodes[idx].node

		if seen[nodeID] {
			continue
		}
		seen[nodeID] = true

		if r.status[nodeID] == types.NodeOnline {
			nodes = append(nodes, nodeID)
		}
	}

	return nodes
}

// NodeCount returns the number of distinct physical nodes known to the ring,
// regardless of status.
func (r *Ring) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.status)
}

// OnlineCount returns the number of physical nodes currently Online.
func (r *Ring) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.status {
		if s == types.NodeOnline {
			count++
		}
	}
	return count
}

// Status returns the current status of nodeID and whether it is known to
// the ring at all.
func (r *Ring) Status(nodeID string) (types.NodeStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[nodeID]
	return s, ok
}

// IsEmpty reports whether the ring has no virtual entries at all.
func (r *Ring) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vnodes) == 0
}
