package replicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunablekv/tunablekv/internal/transport"
)

// fakeBackend lets tests script per-node put/get behavior without a real
// HTTP round trip.
type fakeBackend struct {
	mu       sync.Mutex
	failPut  map[string]bool
	values   map[string][]byte
	failHas  map[string]bool
	putCalls map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		failPut:  make(map[string]bool),
		values:   make(map[string][]byte),
		failHas:  make(map[string]bool),
		putCalls: make(map[string]int),
	}
}

func (f *fakeBackend) Put(_ context.Context, node string, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls[node]++
	if f.failPut[node] {
		return transport.ErrBackendUnavailable
	}
	f.values[node+"/"+key] = value
	return nil
}

func (f *fakeBackend) Get(_ context.Context, node string, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[node+"/"+key]
	if !ok {
		return nil, transport.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeBackend) Has(ctx context.Context, node string, key string) (bool, error) {
	f.mu.Lock()
	if f.failHas[node] {
		f.mu.Unlock()
		return false, errors.New("probe failed")
	}
	f.mu.Unlock()
	v, err := f.Get(ctx, node, key)
	if errors.Is(err, transport.ErrKeyNotFound) {
		return false, nil
	}
	return len(v) > 0, err
}

func TestReplicateWriteSucceedsAtQuorum(t *testing.T) {
	backend := newFakeBackend()
	backend.failPut["C"] = true

	rep := New(backend, 3, 2, 2, time.Second)
	ok := rep.ReplicateWrite(context.Background(), "k", []byte("v"), []string{"A", "B", "C"})
	assert.True(t, ok)
}

func TestReplicateWriteFailsBelowQuorum(t *testing.T) {
	backend := newFakeBackend()
	backend.failPut["B"] = true
	backend.failPut["C"] = true

	rep := New(backend, 3, 2, 2, time.Second)
	ok := rep.ReplicateWrite(context.Background(), "k", []byte("v"), []string{"A", "B", "C"})
	assert.False(t, ok)
}

func TestGetFromReplicasReturnsValueAtQuorum(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Put(context.Background(), "A", "k", []byte("v")))
	require.NoError(t, backend.Put(context.Background(), "B", "k", []byte("v")))

	rep := New(backend, 3, 2, 2, time.Second)
	value, err := rep.GetFromReplicas(context.Background(), "k", []string{"A", "B", "C"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestGetFromReplicasQuorumMiss(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Put(context.Background(), "A", "k", []byte("v")))

	rep := New(backend, 3, 2, 2, time.Second)
	_, err := rep.GetFromReplicas(context.Background(), "k", []string{"A", "B", "C"}, 2)
	assert.ErrorIs(t, err, ErrQuorumMiss)
}

func TestDegradeQuorumIsCumulativeAndFloored(t *testing.T) {
	backend := newFakeBackend()
	rep := New(backend, 3, 2, 2, time.Second)

	rep.DegradeQuorum()
	assert.Equal(t, 1, rep.W())
	assert.Equal(t, 1, rep.R())

	rep.DegradeQuorum()
	assert.Equal(t, 1, rep.W(), "must not go below 1")
	assert.Equal(t, 1, rep.R(), "must not go below 1")
}

func TestHasValueProbe(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Put(context.Background(), "A", "k", []byte("v")))

	rep := New(backend, 3, 2, 2, time.Second)
	assert.True(t, rep.HasValue(context.Background(), "A", "k"))
	assert.False(t, rep.HasValue(context.Background(), "B", "k"))
}
