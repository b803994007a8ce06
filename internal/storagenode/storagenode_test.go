package storagenode

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/tunablekv/tunablekv/internal/storage"
	"github.com/tunablekv/tunablekv/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := storage.NewBitcask(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, engine.Close()) })

	node := New(engine)
	router := mux.NewRouter()
	node.Routes(router)
	return httptest.NewServer(router)
}

func TestPutThenGet(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	body, err := json.Marshal(types.ReplicationRequest{Key: "k", Value: []byte("v")})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/put", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(server.URL + "/get?key=k")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var got types.GetResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got))
	require.Equal(t, []byte("v"), got.Value)
}

func TestGetMissingKeyReturns404(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/get?key=missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutMissingKeyReturns400(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	body, err := json.Marshal(types.ReplicationRequest{Value: []byte("v")})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/put", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthReportsStats(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats storage.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
}
