// Command coordinator runs the single entry point for client PUT/GET
// traffic against a fixed set of storage nodes.
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
	"github.com/tunablekv/tunablekv/internal/coordinator"
	"github.com/tunablekv/tunablekv/internal/metrics"
	"github.com/tunablekv/tunablekv/internal/replicator"
	"github.com/tunablekv/tunablekv/internal/ring"
	"github.com/tunablekv/tunablekv/internal/transport"
)

func main() {
	var (
		address           = flag.String("address", "", "Listen address (host:port)")
		nodes             = flag.String("nodes", "", "Comma-separated storage node addresses")
		replicationFactor = flag.Int("replication_factor", 0, "Replication factor (N)")
		quorumWrite       = flag.Int("quorum_write", 0, "Write quorum (W)")
		quorumRead        = flag.Int("quorum_read", 0, "Read quorum (R)")
		configFile        = flag.String("config", "", "Optional JSON config file; flags override it")
		logLevel          = flag.String("log_level", "", "Log verbosity (unused beyond the default logger prefix)")
	)
	flag.Parse()

	cfg := config.DefaultCoordinatorConfig()
	if err := config.LoadJSONFile(*configFile, cfg); err != nil {
		log.Fatalf("coordinator: %v", err)
	}

	if *address != "" {
		cfg.Address = *address
	}
	if *nodes != "" {
		cfg.Nodes = config.SplitAndTrim(*nodes)
	}
	if *replicationFactor != 0 {
		cfg.ReplicationFactor = *replicationFactor
	}
	if *quorumWrite != 0 {
		cfg.WriteQuorum = *quorumWrite
	}
	if *quorumRead != 0 {
		cfg.ReadQuorum = *quorumRead
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("coordinator: invalid configuration: %v", err)
	}

	logger := log.New(os.Stdout, "coordinator: ", log.LstdFlags)
	logger.Printf("starting with nodes=%v N=%d W=%d R=%d", cfg.Nodes, cfg.ReplicationFactor, cfg.WriteQuorum, cfg.ReadQuorum)

	r := ring.NewRing(cfg.VirtualNodes)
	for _, node := range cfg.Nodes {
		r.AddNode(node)
	}

	backend := transport.NewHTTPBackend(cfg.RequestTimeout)
	rep := replicator.New(backend, cfg.ReplicationFactor, cfg.WriteQuorum, cfg.ReadQuorum, cfg.RequestTimeout)
	coord := coordinator.New(r, rep, cfg.ReplicationFactor)

	m := metrics.New("coordinator")
	server := api.NewCoordinatorServer(coord, m)

	go func() {
		logger.Printf("listening on %s", cfg.Address)
		if err := server.ListenAndServe(cfg.Address); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("error during shutdown: %v", err)
		os.Exit(1)
	}
	logger.Println("shutdown complete")
}
