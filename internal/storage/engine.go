package storage

import (
	"errors"

	"github.com/tunablekv/tunablekv/pkg/types"
)

// Common errors.
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrCorruptData   = errors.New("data corruption detected")
	ErrStorageClosed = errors.New("storage engine is closed")
)

// Engine is the opaque store/retrieve backend a storage node fronts. The
// coordinator-side protocol never talks to this interface directly — it
// only sees the HTTP wire shapes internal/storagenode exposes over it, so
// the engine only needs to cover what those two verbs require: persist a
// replicated write, hand back the latest value, report whether a key is
// present, and surface enough stats for /health.
type Engine interface {
	// Store persists req durably under its own key.
	Store(req types.ReplicationRequest) error

	// Retrieve returns the latest stored value for key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Retrieve(key string) (types.GetResponse, error)

	// Has reports whether key is present in the index.
	Has(key string) bool

	// Close releases the engine's file handles.
	Close() error

	// Sync forces any buffered writes to disk.
	Sync() error

	// Stats returns storage engine statistics for the /health endpoint.
	Stats() Stats
}

// Stats contains storage engine statistics.
type Stats struct {
	ActiveKeys   int64  `json:"active_keys"`
	DataFileSize int64  `json:"data_file_size"`
	TotalReads   uint64 `json:"total_reads"`
	TotalWrites  uint64 `json:"total_writes"`
}
