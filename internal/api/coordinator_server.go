package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tunablekv/tunablekv/internal/coordinator"
	"github.com/tunablekv/tunablekv/internal/metrics"
	"github.com/tunablekv/tunablekv/pkg/types"
)

// CoordinatorServer exposes a coordinator.Coordinator over HTTP.
type CoordinatorServer struct {
	coord      *coordinator.Coordinator
	metrics    *metrics.Metrics
	router     *mux.Router
	httpServer *http.Server
	startTime  time.Time
}

// NewCoordinatorServer builds the router for coord.
func NewCoordinatorServer(coord *coordinator.Coordinator, m *metrics.Metrics) *CoordinatorServer {
	s := &CoordinatorServer{coord: coord, metrics: m, router: mux.NewRouter(), startTime: time.Now()}
	s.setupRoutes()
	return s
}

func (s *CoordinatorServer) setupRoutes() {
	s.router.Use(loggingMiddleware)
	s.router.Use(recoveryMiddleware)
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/put/{key}", s.handlePut).Methods(http.MethodPut, http.MethodPost)
	s.router.HandleFunc("/get/{key}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/node_offline", s.handleNodeOffline).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Router exposes the mux router for testing.
func (s *CoordinatorServer) Router() *mux.Router { return s.router }

// ListenAndServe starts the HTTP server bound to addr. It blocks until the
// server stops.
func (s *CoordinatorServer) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *CoordinatorServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type putRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *CoordinatorServer) handlePut(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failure"})
		return
	}

	ok := s.coord.Put(r.Context(), key, req.Value)
	s.recordResult("put", ok)

	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "failure"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *CoordinatorServer) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, found := s.coord.Get(r.Context(), key)
	s.recordResult("get", found)

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"value": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"value": json.RawMessage(value)})
}

func (s *CoordinatorServer) handleNodeOffline(w http.ResponseWriter, r *http.Request) {
	var req types.NodeOfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == "" {
		writeError(w, http.StatusBadRequest, "node is required")
		return
	}

	s.coord.NodeOffline(req.Node)
	if s.metrics != nil {
		s.metrics.NodeOfflineTotal.Inc()
		s.metrics.RingOnlineNodes.Set(float64(s.coord.Ring().OnlineCount()))
		s.metrics.ReplicatorWriteQuorum.Set(float64(s.coord.Replicator().W()))
		s.metrics.ReplicatorReadQuorum.Set(float64(s.coord.Replicator().R()))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "node removed"})
}

func (s *CoordinatorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"any_offline":  s.coord.AnyOffline(),
		"online_nodes": s.coord.Ring().OnlineCount(),
		"total_nodes":  s.coord.Ring().NodeCount(),
		"write_quorum": s.coord.Replicator().W(),
		"read_quorum":  s.coord.Replicator().R(),
		"uptime":       time.Since(s.startTime).String(),
		"ring":         s.coord.Ring().Snapshot(),
	})
}

func (s *CoordinatorServer) recordResult(op string, ok bool) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
		s.metrics.QuorumMissTotal.Inc()
	}
	s.metrics.RequestsTotal.WithLabelValues(op, status).Inc()
}
