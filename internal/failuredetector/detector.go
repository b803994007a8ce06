// Package failuredetector tracks storage-node liveness via pushed
// heartbeats and reports silent nodes to the coordinator.
package failuredetector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tunablekv/tunablekv/pkg/types"
)

const defaultReportTimeout = 5 * time.Second

// Detector holds the heartbeat table and confirmed-failures set for a
// known, static set of storage nodes, and periodically scans for silence.
type Detector struct {
	mu        sync.Mutex
	lastSeen  map[string]time.Time
	confirmed map[string]bool

	threshold         time.Duration
	scanInterval      time.Duration
	coordinatorAddr   string
	httpClient        *http.Client

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New seeds the heartbeat table with the startup time for every known node
// and prepares (but does not start) the detection loop.
func New(nodes []string, threshold, scanInterval time.Duration, coordinatorAddr string) *Detector {
	now := time.Now()
	lastSeen := make(map[string]time.Time, len(nodes))
	for _, n := range nodes {
		lastSeen[n] = now
	}

	return &Detector{
		lastSeen:        lastSeen,
		confirmed:       make(map[string]bool),
		threshold:       threshold,
		scanInterval:    scanInterval,
		coordinatorAddr: coordinatorAddr,
		httpClient:      &http.Client{Timeout: defaultReportTimeout},
		stopCh:          make(chan struct{}),
	}
}

// Heartbeat records a heartbeat from node. The given clientTimestamp is
// informational only: the detector always measures elapsed time against
// its own clock, so loose clock sync between nodes and detector is
// tolerated.
func (d *Detector) Heartbeat(node string, clientTimestamp int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen[node] = time.Now()
	_ = clientTimestamp
}

// Start begins the detection loop in a background goroutine. Stop must be
// called on shutdown to drain it.
func (d *Detector) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop signals the detection loop to exit and waits for it to finish.
func (d *Detector) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Detector) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scan(ctx)
		}
	}
}

// scan checks every node's last-seen time against the failure threshold
// and reports any newly-silent node to the coordinator, at most once.
func (d *Detector) scan(ctx context.Context) {
	now := time.Now()

	d.mu.Lock()
	var toReport []string
	for node, last := range d.lastSeen {
		if d.confirmed[node] {
			continue
		}
		if now.Sub(last) > d.threshold {
			toReport = append(toReport, node)
		}
	}
	d.mu.Unlock()

	for _, node := range toReport {
		if d.reportOffline(ctx, node) {
			d.mu.Lock()
			d.confirmed[node] = true
			d.mu.Unlock()
		}
	}
}

// reportOffline POSTs /node_offline to the coordinator and reports whether
// it returned a 2xx response. Failures are logged and retried on the next
// scan; they never panic or terminate the process.
func (d *Detector) reportOffline(ctx context.Context, node string) bool {
	body, err := json.Marshal(types.NodeOfflineRequest{Node: node})
	if err != nil {
		log.Printf("failuredetector: encode node_offline body for %s: %v", node, err)
		return false
	}

	url := fmt.Sprintf("http://%s/node_offline", d.coordinatorAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("failuredetector: build node_offline request for %s: %v", node, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.Printf("failuredetector: report %s offline: %v", node, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Printf("failuredetector: reported %s offline", node)
		return true
	}
	log.Printf("failuredetector: coordinator rejected offline report for %s: status %d", node, resp.StatusCode)
	return false
}

// NodeState is a point-in-time view of one node's heartbeat state, used by
// the /health endpoint.
type NodeState struct {
	Node          string    `json:"node"`
	LastSeen      time.Time `json:"last_seen"`
	Confirmed     bool      `json:"confirmed_offline"`
}

// Snapshot returns the current heartbeat and confirmed-failure state of
// every known node.
func (d *Detector) Snapshot() []NodeState {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]NodeState, 0, len(d.lastSeen))
	for node, last := range d.lastSeen {
		out = append(out, NodeState{
			Node:      node,
			LastSeen:  last,
			Confirmed: d.confirmed[node],
		})
	}
	return out
}
