// Command client issues a single put or get against a coordinator and
// prints the result.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tunablekv/tunablekv/internal/config"
)

func main() {
	var (
		coordinatorAddress = flag.String("coordinator_address", "", "Coordinator address (host:port)")
		operation          = flag.String("operation", "", "put or get")
		key                = flag.String("key", "", "Key")
		value              = flag.String("value", "", "Value (required for put)")
	)
	flag.Parse()

	cfg := &config.ClientConfig{
		CoordinatorAddress: *coordinatorAddress,
		Operation:          *operation,
		Key:                *key,
		Value:              *value,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("client: invalid arguments: %v", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	switch cfg.Operation {
	case "put":
		if err := put(httpClient, cfg); err != nil {
			log.Fatalf("client: put failed: %v", err)
		}
		fmt.Println("ok")
	case "get":
		value, found, err := get(httpClient, cfg)
		if err != nil {
			log.Fatalf("client: get failed: %v", err)
		}
		if !found {
			fmt.Println("not found")
			os.Exit(1)
		}
		fmt.Println(value)
	}
}

func put(client *http.Client, cfg *config.ClientConfig) error {
	body, err := json.Marshal(map[string]string{"value": cfg.Value})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/put/%s", cfg.CoordinatorAddress, cfg.Key)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned status %d", resp.StatusCode)
	}
	return nil
}

func get(client *http.Client, cfg *config.ClientConfig) (string, bool, error) {
	url := fmt.Sprintf("http://%s/get/%s", cfg.CoordinatorAddress, cfg.Key)
	resp, err := client.Get(url)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("coordinator returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}

	var decoded struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", false, err
	}
	return string(decoded.Value), true, nil
}
