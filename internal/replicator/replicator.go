// Package replicator fans PUT/GET requests out to a key's replica set in
// parallel and resolves quorum.
package replicator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tunablekv/tunablekv/internal/transport"
)

// ErrQuorumMiss is returned by GetFromReplicas when fewer than R_effective
// replicas returned a non-empty value.
var ErrQuorumMiss = errors.New("quorum not met")

const defaultWorkerPoolSize = 32

// Replicator owns the (N, W, R) triple and fans requests out to a bounded
// pool of concurrent workers, resolving a write or read as soon as the
// quorum threshold is reached or proven unreachable.
type Replicator struct {
	mu      sync.RWMutex
	n       int
	w       int
	r       int
	backend transport.Backend
	sem     chan struct{}
	timeout time.Duration
}

// New creates a Replicator. n, w, and r are the configured replication
// factor, write quorum, and read quorum; timeout bounds each individual
// fan-out request.
func New(backend transport.Backend, n, w, r int, timeout time.Duration) *Replicator {
	return &Replicator{
		n:       n,
		w:       w,
		r:       r,
		backend: backend,
		sem:     make(chan struct{}, defaultWorkerPoolSize),
		timeout: timeout,
	}
}

// N returns the configured replication factor.
func (rep *Replicator) N() int {
	rep.mu.RLock()
	defer rep.mu.RUnlock()
	return rep.n
}

// W returns the current write quorum, post-degradation.
func (rep *Replicator) W() int {
	rep.mu.RLock()
	defer rep.mu.RUnlock()
	return rep.w
}

// R returns the current read quorum, post-degradation.
func (rep *Replicator) R() int {
	rep.mu.RLock()
	defer rep.mu.RUnlock()
	return rep.r
}

// DegradeQuorum permanently reduces W and R by one each, floored at 1. It
// is called once per /node_offline notification and is cumulative: there
// is no ceiling check and no path back to the configured values.
func (rep *Replicator) DegradeQuorum() {
	rep.mu.Lock()
	defer rep.mu.Unlock()

	if rep.w > 1 {
		rep.w--
	}
	if rep.r > 1 {
		rep.r--
	}
}

type writeOutcome struct {
	ok bool
}

// ReplicateWrite fans a PUT out to every node in nodes in parallel and
// returns true as soon as W acknowledgements arrive. It fails fast: once
// the remaining outstanding requests can no longer bring the success count
// to W, it returns false without waiting for every goroutine to finish
// (those goroutines keep running to their own timeout and their results
// are discarded).
func (rep *Replicator) ReplicateWrite(ctx context.Context, key string, value []byte, nodes []string) bool {
	w := rep.W()
	if len(nodes) == 0 {
		return w == 0
	}

	results := make(chan writeOutcome, len(nodes))
	for _, node := range nodes {
		node := node
		go func() {
			rep.sem <- struct{}{}
			defer func() { <-rep.sem }()

			reqCtx, cancel := context.WithTimeout(ctx, rep.timeout)
			defer cancel()

			err := rep.backend.Put(reqCtx, node, key, value)
			results <- writeOutcome{ok: err == nil}
		}()
	}

	success, received := 0, 0
	for received < len(nodes) {
		out := <-results
		received++
		if out.ok {
			success++
		}
		if success >= w {
			return true
		}
		if len(nodes)-received < w-success {
			return false
		}
	}
	return success >= w
}

type readOutcome struct {
	value []byte
	ok    bool
}

// GetFromReplicas fans a GET out to every node in nodes in parallel and
// returns the first non-empty value received once at least rEffective
// replicas have reported a non-empty value. It returns ErrQuorumMiss if
// fewer than rEffective non-empty responses arrive.
func (rep *Replicator) GetFromReplicas(ctx context.Context, key string, nodes []string, rEffective int) ([]byte, error) {
	if len(nodes) == 0 || rEffective <= 0 {
		return nil, ErrQuorumMiss
	}

	results := make(chan readOutcome, len(nodes))
	for _, node := range nodes {
		node := node
		go func() {
			rep.sem <- struct{}{}
			defer func() { <-rep.sem }()

			reqCtx, cancel := context.WithTimeout(ctx, rep.timeout)
			defer cancel()

			value, err := rep.backend.Get(reqCtx, node, key)
			results <- readOutcome{value: value, ok: err == nil && len(value) > 0}
		}()
	}

	var winning []byte
	success, received := 0, 0
	for received < len(nodes) {
		out := <-results
		received++
		if out.ok {
			if success == 0 {
				winning = out.value
			}
			success++
			if success >= rEffective {
				return winning, nil
			}
		}
		if len(nodes)-received < rEffective-success {
			return nil, ErrQuorumMiss
		}
	}

	if success >= rEffective {
		return winning, nil
	}
	return nil, ErrQuorumMiss
}

// ReplicateTo issues a single-target PUT, bypassing quorum accounting. It
// is used by read-repair, which writes to exactly one replica at a time.
func (rep *Replicator) ReplicateTo(ctx context.Context, node string, key string, value []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, rep.timeout)
	defer cancel()
	return rep.backend.Put(reqCtx, node, key, value)
}

// HasValue is a single-replica probe used by read-repair.
func (rep *Replicator) HasValue(ctx context.Context, node string, key string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, rep.timeout)
	defer cancel()

	has, err := rep.backend.Has(reqCtx, node, key)
	return err == nil && has
}
