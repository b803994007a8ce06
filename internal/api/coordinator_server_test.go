package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunablekv/tunablekv/internal/coordinator"
	"github.com/tunablekv/tunablekv/internal/replicator"
	"github.com/tunablekv/tunablekv/internal/ring"
	"github.com/tunablekv/tunablekv/internal/transport"
)

func newTestCoordinatorServer(t *testing.T) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()

	r := ring.NewRing(10)
	r.AddNode("A")
	r.AddNode("B")
	r.AddNode("C")

	backend := transport.NewHTTPBackend(time.Second)
	rep := replicator.New(backend, 3, 2, 2, time.Second)
	coord := coordinator.New(r, rep, 3)

	s := NewCoordinatorServer(coord, nil)
	return httptest.NewServer(s.Router()), coord
}

func TestCoordinatorHealthEndpoint(t *testing.T) {
	server, _ := newTestCoordinatorServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.EqualValues(t, 3, decoded["total_nodes"])

	snap, ok := decoded["ring"].([]interface{})
	require.True(t, ok, "health response should include a ring snapshot")
	assert.Len(t, snap, 3)
}

func TestCoordinatorPutFailsWithUnreachableNodes(t *testing.T) {
	server, _ := newTestCoordinatorServer(t)
	defer server.Close()

	body := strings.NewReader(`{"value":"hello"}`)
	req, err := http.NewRequest(http.MethodPut, server.URL+"/put/k", body)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// No real storage nodes are listening, so the write cannot reach quorum.
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var decoded map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "failure", decoded["status"])
}

func TestCoordinatorNodeOfflineDegradesQuorum(t *testing.T) {
	server, coord := newTestCoordinatorServer(t)
	defer server.Close()

	body := strings.NewReader(`{"node":"B"}`)
	resp, err := http.Post(server.URL+"/node_offline", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, coord.AnyOffline())
	assert.Equal(t, 1, coord.Replicator().W())
}

func TestCoordinatorGetMissingKeyReturns404(t *testing.T) {
	server, _ := newTestCoordinatorServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/get/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
