// Command node runs a single storage node: a Bitcask-backed HTTP server
// that serves PUT/GET for the coordinator's replicator, and pushes periodic
// heartbeats to a failure detector.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/tunablekv/tunablekv/internal/config"
	"github.com/tunablekv/tunablekv/internal/storage"
	"github.com/tunablekv/tunablekv/internal/storagenode"
	"github.com/tunablekv/tunablekv/pkg/types"
)

func main() {
	var (
		nodeAddr          = flag.String("node", "", "This node's listen address (host:port)")
		faultAddr         = flag.String("fault_tolerance_address", "", "Failure detector address (host:port)")
		dataDir           = flag.String("data_dir", "", "Bitcask storage directory")
		heartbeatInterval = flag.Duration("heartbeat_interval", 0, "Heartbeat push interval")
		configFile        = flag.String("config", "", "Optional JSON config file; flags override it")
	)
	flag.Parse()

	cfg := config.DefaultNodeConfig()
	if err := config.LoadJSONFile(*configFile, cfg); err != nil {
		log.Fatalf("node: %v", err)
	}

	if *nodeAddr != "" {
		cfg.Address = *nodeAddr
	}
	if *faultAddr != "" {
		cfg.FaultToleranceAddress = *faultAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *heartbeatInterval != 0 {
		cfg.HeartbeatInterval = *heartbeatInterval
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("node: invalid configuration: %v", err)
	}

	logger := log.New(os.Stdout, fmt.Sprintf("node[%s]: ", cfg.Address), log.LstdFlags)

	engine, err := storage.NewBitcask(cfg.DataDir, cfg.SyncWrites)
	if err != nil {
		logger.Fatalf("failed to open storage: %v", err)
	}
	defer engine.Close()
	logger.Printf("storage opened at %s with %d keys", cfg.DataDir, engine.Stats().ActiveKeys)

	node := storagenode.New(engine)
	router := mux.NewRouter()
	node.Routes(router)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runHeartbeatLoop(ctx, logger, cfg)

	go func() {
		logger.Printf("listening on %s", cfg.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("error during http shutdown: %v", err)
	}
	if err := engine.Sync(); err != nil {
		logger.Printf("error syncing storage: %v", err)
	}
	logger.Println("shutdown complete")
}

func runHeartbeatLoop(ctx context.Context, logger *log.Logger, cfg *config.NodeConfig) {
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()

	send := func() {
		body, err := json.Marshal(types.HeartbeatRequest{Node: cfg.Address, Timestamp: time.Now().Unix()})
		if err != nil {
			logger.Printf("heartbeat: encode body: %v", err)
			return
		}
		url := fmt.Sprintf("http://%s/heartbeat", cfg.FaultToleranceAddress)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			logger.Printf("heartbeat: build request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			logger.Printf("heartbeat: send: %v", err)
			return
		}
		resp.Body.Close()
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}
