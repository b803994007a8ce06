// Package config holds the per-binary configuration structs for the
// coordinator, storage node, failure detector, and client CLIs. The
// coordinator, node, and detector binaries layer flag overrides on top of an
// optional JSON file, matching the teacher's flags-win-over-file convention;
// the client reads flags only.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// CoordinatorConfig configures the coordinator binary.
type CoordinatorConfig struct {
	Address           string   `json:"address"`
	Nodes             []string `json:"nodes"`
	ReplicationFactor int      `json:"replication_factor"`
	WriteQuorum       int      `json:"quorum_write"`
	ReadQuorum        int      `json:"quorum_read"`
	VirtualNodes      int      `json:"virtual_nodes"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	LogLevel          string   `json:"log_level"`
}

// DefaultCoordinatorConfig returns sane defaults matching the tunable
// constants: 3 virtual nodes, a 2-5s per-replica timeout.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		Address:           "127.0.0.1:9000",
		Nodes:             nil,
		ReplicationFactor: 3,
		WriteQuorum:       2,
		ReadQuorum:        2,
		VirtualNodes:      3,
		RequestTimeout:    3 * time.Second,
		LogLevel:          "info",
	}
}

// Validate checks bind address, node list, and quorum bounds.
func (c *CoordinatorConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication_factor must be at least 1")
	}
	if c.WriteQuorum < 1 || c.WriteQuorum > c.ReplicationFactor {
		return fmt.Errorf("quorum_write must be between 1 and replication_factor")
	}
	if c.ReadQuorum < 1 || c.ReadQuorum > c.ReplicationFactor {
		return fmt.Errorf("quorum_read must be between 1 and replication_factor")
	}
	if c.VirtualNodes < 1 {
		return fmt.Errorf("virtual_nodes must be at least 1")
	}
	return nil
}

// NodeConfig configures a storage-node binary.
type NodeConfig struct {
	Address               string        `json:"node"`
	FaultToleranceAddress string        `json:"fault_tolerance_address"`
	DataDir               string        `json:"data_dir"`
	HeartbeatInterval     time.Duration `json:"heartbeat_interval"`
	SyncWrites            bool          `json:"sync_writes"`
}

// DefaultNodeConfig returns sane defaults: a 5s heartbeat period per the
// tunable constants.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Address:           "127.0.0.1:9100",
		DataDir:           "./data",
		HeartbeatInterval: 5 * time.Second,
		SyncWrites:        false,
	}
}

// Validate checks bind address, failure-detector address, and data dir.
func (c *NodeConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("node address is required")
	}
	if c.FaultToleranceAddress == "" {
		return fmt.Errorf("fault_tolerance_address is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	return nil
}

// DetectorConfig configures the failure-detector binary.
type DetectorConfig struct {
	Address           string        `json:"address"`
	AllNodes          []string      `json:"all_nodes"`
	CoordinatorAddress string       `json:"coordinator_address"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	FailureThreshold  time.Duration `json:"failure_threshold"`
}

// DefaultDetectorConfig returns sane defaults matching the tunable
// constants: 5s heartbeat period, 25s failure threshold.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		Address:           "127.0.0.1:9200",
		HeartbeatInterval: 5 * time.Second,
		FailureThreshold:  25 * time.Second,
	}
}

// Validate checks bind address, node list, coordinator address, and that
// the failure threshold meaningfully exceeds the heartbeat interval.
func (c *DetectorConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if len(c.AllNodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	if c.CoordinatorAddress == "" {
		return fmt.Errorf("coordinator_address is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.FailureThreshold <= c.HeartbeatInterval {
		return fmt.Errorf("failure_threshold must exceed heartbeat_interval")
	}
	return nil
}

// ClientConfig configures the one-shot CLI client.
type ClientConfig struct {
	CoordinatorAddress string `json:"coordinator_address"`
	Operation          string `json:"operation"`
	Key                string `json:"key"`
	Value              string `json:"value"`
}

// Validate checks that the requested operation and its required fields are
// present.
func (c *ClientConfig) Validate() error {
	if c.CoordinatorAddress == "" {
		return fmt.Errorf("coordinator_address is required")
	}
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	switch c.Operation {
	case "put":
		if c.Value == "" {
			return fmt.Errorf("value is required for put")
		}
	case "get":
	default:
		return fmt.Errorf("operation must be put or get, got %q", c.Operation)
	}
	return nil
}

// LoadJSONFile decodes path into cfg if path is non-empty. Callers apply
// flag overrides afterward so that flags always win.
func LoadJSONFile(path string, cfg interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// SplitAndTrim splits a comma-separated list of addresses, discarding empty
// entries.
func SplitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
