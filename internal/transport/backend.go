// Package transport defines the RPC surface the replicator fans out
// through and an HTTP implementation of it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tunablekv/tunablekv/pkg/types"
)

// ErrBackendUnavailable is returned for any transport-level failure
// (connection refused, timeout, non-2xx status) talking to a storage node.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// ErrKeyNotFound is returned when a storage node reports a 404 on GET.
var ErrKeyNotFound = errors.New("key not found on backend")

// Backend is the three-method RPC a Replicator fans out through. Nothing
// in the Replicator's logic assumes HTTP specifically; this is the only
// seam a non-HTTP port would need to replace.
type Backend interface {
	Put(ctx context.Context, node string, key string, value []byte) error
	Get(ctx context.Context, node string, key string) ([]byte, error)
	Has(ctx context.Context, node string, key string) (bool, error)
}

// HTTPBackend implements Backend over the storage-node HTTP API described
// in SPEC_FULL.md §6.
type HTTPBackend struct {
	client *http.Client
}

// NewHTTPBackend creates an HTTPBackend with the given per-request timeout.
func NewHTTPBackend(timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		client: &http.Client{Timeout: timeout},
	}
}

// Put issues PUT http://<node>/put with a JSON body.
func (b *HTTPBackend) Put(ctx context.Context, node string, key string, value []byte) error {
	body, err := json.Marshal(types.ReplicationRequest{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("encode put body: %w", err)
	}

	url := fmt.Sprintf("http://%s/put", node)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// Get issues GET http://<node>/get?key=<key>.
func (b *HTTPBackend) Get(ctx context.Context, node string, key string) ([]byte, error) {
	reqURL := fmt.Sprintf("http://%s/get?key=%s", node, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build get request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrKeyNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read get response: %w", err)
	}

	var out types.GetResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	if len(out.Value) == 0 {
		return nil, ErrKeyNotFound
	}
	return out.Value, nil
}

// Has is a single-replica probe used by read-repair; it is equivalent to
// Get but only cares whether the key exists with a non-empty value.
func (b *HTTPBackend) Has(ctx context.Context, node string, key string) (bool, error) {
	_, err := b.Get(ctx, node, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
