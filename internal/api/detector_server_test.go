package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunablekv/tunablekv/internal/failuredetector"
)

func TestDetectorHeartbeatEndpoint(t *testing.T) {
	d := failuredetector.New([]string{"A"}, time.Minute, time.Second, "unused:0")
	s := NewDetectorServer(d, nil)
	server := httptest.NewServer(s.Router())
	defer server.Close()

	resp, err := http.Post(server.URL+"/heartbeat", "application/json", strings.NewReader(`{"node":"A","timestamp":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDetectorHeartbeatRejectsMissingNode(t *testing.T) {
	d := failuredetector.New([]string{"A"}, time.Minute, time.Second, "unused:0")
	s := NewDetectorServer(d, nil)
	server := httptest.NewServer(s.Router())
	defer server.Close()

	resp, err := http.Post(server.URL+"/heartbeat", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetectorHealthEndpoint(t *testing.T) {
	d := failuredetector.New([]string{"A"}, time.Minute, time.Second, "unused:0")
	s := NewDetectorServer(d, nil)
	server := httptest.NewServer(s.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
