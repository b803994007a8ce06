//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"
)

const (
	coordinatorURL = "http://127.0.0.1:19000"
	detectorURL    = "http://127.0.0.1:19200"
	node1Addr      = "127.0.0.1:19101"
	node2Addr      = "127.0.0.1:19102"
	node3Addr      = "127.0.0.1:19103"
)

// TestClusterBasicOperations exercises a PUT on the coordinator and a GET
// back, against three real node processes and a real detector process.
func TestClusterBasicOperations(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cleanup := startCluster(t)
	defer cleanup()
	waitForCoordinator(t)

	resp := httpPut(t, coordinatorURL+"/put/testkey", `{"value":"hello-world"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT failed with status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = httpGet(t, coordinatorURL+"/get/testkey")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET failed with status %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()

	if result["value"] != "hello-world" {
		t.Errorf("expected 'hello-world', got '%v'", result["value"])
	}
}

// TestClusterNodeFailureStillServesWithQuorum kills one storage node, waits
// for the detector to report it offline, and checks that reads and writes
// still succeed against the degraded quorum.
func TestClusterNodeFailureStillServesWithQuorum(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cleanup := startCluster(t)
	defer cleanup()
	waitForCoordinator(t)

	resp := httpPut(t, coordinatorURL+"/put/failtest", `{"value":"before-failure"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT failed with status %d", resp.StatusCode)
	}
	resp.Body.Close()

	stopNode(t, 2)

	// Give the detector's heartbeat_interval/failure_threshold window time
	// to elapse and report the node offline to the coordinator.
	time.Sleep(4 * time.Second)

	resp = httpGet(t, coordinatorURL+"/get/failtest")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET after node failure should still succeed via degraded quorum, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = httpPut(t, coordinatorURL+"/put/afterfail", `{"value":"after-failure"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT after node failure should still succeed via degraded quorum, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// TestClusterHealthEndpoint checks that the coordinator's /health reflects
// the configured quorum.
func TestClusterHealthEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cleanup := startCluster(t)
	defer cleanup()
	waitForCoordinator(t)

	resp := httpGet(t, coordinatorURL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health endpoint failed with status %d", resp.StatusCode)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&status)

	if _, ok := status["write_quorum"]; !ok {
		t.Error("health response should contain write_quorum")
	}
}

// TestClusterManyKeys writes and reads back a batch of keys.
func TestClusterManyKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cleanup := startCluster(t)
	defer cleanup()
	waitForCoordinator(t)

	const count = 50
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("key-%03d", i)
		value := fmt.Sprintf("value-%03d", i)
		resp := httpPut(t, coordinatorURL+"/put/"+key, fmt.Sprintf(`{"value":"%s"}`, value))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("PUT %s failed with status %d", key, resp.StatusCode)
		}
		resp.Body.Close()
	}

	for i := 0; i < count; i++ {
		key := fmt.Sprintf("key-%03d", i)
		expected := fmt.Sprintf("value-%03d", i)

		resp := httpGet(t, coordinatorURL+"/get/"+key)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s failed with status %d", key, resp.StatusCode)
			continue
		}

		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()

		if result["value"] != expected {
			t.Errorf("key %s: expected %q, got %v", key, expected, result["value"])
		}
	}
}

// Helper functions

func startCluster(t *testing.T) func() {
	t.Helper()

	dataDirs := []string{
		t.TempDir(),
		t.TempDir(),
		t.TempDir(),
	}

	nodeCmds := []*exec.Cmd{
		exec.Command("go", "run", "../../cmd/node",
			"--node="+node1Addr, "--fault_tolerance_address=127.0.0.1:19200", "--data_dir="+dataDirs[0],
			"--heartbeat_interval=500ms"),
		exec.Command("go", "run", "../../cmd/node",
			"--node="+node2Addr, "--fault_tolerance_address=127.0.0.1:19200", "--data_dir="+dataDirs[1],
			"--heartbeat_interval=500ms"),
		exec.Command("go", "run", "../../cmd/node",
			"--node="+node3Addr, "--fault_tolerance_address=127.0.0.1:19200", "--data_dir="+dataDirs[2],
			"--heartbeat_interval=500ms"),
	}

	detectorCmd := exec.Command("go", "run", "../../cmd/detector",
		"--address=127.0.0.1:19200",
		"--all_nodes="+node1Addr+","+node2Addr+","+node3Addr,
		"--coordinator_address=127.0.0.1:19000",
		"--heartbeat_interval=500ms",
		"--failure_threshold=2s")

	coordinatorCmd := exec.Command("go", "run", "../../cmd/coordinator",
		"--address=127.0.0.1:19000",
		"--nodes="+node1Addr+","+node2Addr+","+node3Addr,
		"--replication_factor=3", "--quorum_write=2", "--quorum_read=2")

	cmds := append(append([]*exec.Cmd{}, nodeCmds...), detectorCmd, coordinatorCmd)
	for _, cmd := range cmds {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start %v: %v", cmd.Args, err)
		}
	}

	return func() {
		for _, cmd := range cmds {
			if cmd.Process != nil {
				cmd.Process.Kill()
				cmd.Wait()
			}
		}
	}
}

func stopNode(t *testing.T, nodeNum int) {
	t.Helper()
	port := 19100 + nodeNum
	output, _ := exec.Command("lsof", "-t", fmt.Sprintf("-i:%d", port)).Output()
	if len(output) > 0 {
		exec.Command("kill", "-9", string(bytes.TrimSpace(output))).Run()
	}
}

func waitForCoordinator(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(coordinatorURL + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("coordinator never became ready")
}

func httpPut(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, url, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP PUT failed: %v", err)
	}
	return resp
}

func httpGet(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("HTTP GET failed: %v", err)
	}
	return resp
}
