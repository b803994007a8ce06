// Command detector runs the heartbeat-based failure detector: it receives
// pushed heartbeats from storage nodes and reports silent ones to the
// coordinator.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tunablekv/tunablekv/internal/api"
	"github.com/tunablekv/tunablekv/internal/config"
	"github.com/tunablekv/tunablekv/internal/failuredetector"
	"github.com/tunablekv/tunablekv/internal/metrics"
)

func main() {
	var (
		address            = flag.String("address", "", "Listen address (host:port)")
		allNodes           = flag.String("all_nodes", "", "Comma-separated storage node addresses to watch")
		coordinatorAddress = flag.String("coordinator_address", "", "Coordinator address (host:port)")
		heartbeatInterval  = flag.Duration("heartbeat_interval", 0, "Expected heartbeat period; failure_threshold must exceed it")
		failureThreshold   = flag.Duration("failure_threshold", 0, "Silence duration before a node is reported offline")
		configFile         = flag.String("config", "", "Optional JSON config file; flags override it")
	)
	flag.Parse()

	cfg := config.DefaultDetectorConfig()
	if err := config.LoadJSONFile(*configFile, cfg); err != nil {
		log.Fatalf("detector: %v", err)
	}

	if *address != "" {
		cfg.Address = *address
	}
	if *allNodes != "" {
		cfg.AllNodes = config.SplitAndTrim(*allNodes)
	}
	if *coordinatorAddress != "" {
		cfg.CoordinatorAddress = *coordinatorAddress
	}
	if *heartbeatInterval != 0 {
		cfg.HeartbeatInterval = *heartbeatInterval
	}
	if *failureThreshold != 0 {
		cfg.FailureThreshold = *failureThreshold
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("detector: invalid configuration: %v", err)
	}

	logger := log.New(os.Stdout, "detector: ", log.LstdFlags)
	logger.Printf("watching %v, threshold=%s, coordinator=%s", cfg.AllNodes, cfg.FailureThreshold, cfg.CoordinatorAddress)

	d := failuredetector.New(cfg.AllNodes, cfg.FailureThreshold, time.Second, cfg.CoordinatorAddress)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.Start(ctx)

	m := metrics.New("detector")
	server := api.NewDetectorServer(d, m)

	go func() {
		logger.Printf("listening on %s", cfg.Address)
		if err := server.ListenAndServe(cfg.Address); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	d.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("error during shutdown: %v", err)
	}
	logger.Println("shutdown complete")
}
