package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tunablekv/tunablekv/internal/failuredetector"
	"github.com/tunablekv/tunablekv/internal/metrics"
	"github.com/tunablekv/tunablekv/pkg/types"
)

// DetectorServer exposes a failuredetector.Detector over HTTP.
type DetectorServer struct {
	detector   *failuredetector.Detector
	metrics    *metrics.Metrics
	router     *mux.Router
	httpServer *http.Server
}

// NewDetectorServer builds the router for d.
func NewDetectorServer(d *failuredetector.Detector, m *metrics.Metrics) *DetectorServer {
	s := &DetectorServer{detector: d, metrics: m, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *DetectorServer) setupRoutes() {
	s.router.Use(loggingMiddleware)
	s.router.Use(recoveryMiddleware)
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Router exposes the mux router for testing.
func (s *DetectorServer) Router() *mux.Router { return s.router }

// ListenAndServe starts the HTTP server bound to addr. It blocks until the
// server stops.
func (s *DetectorServer) ListenAndServe(addr string) error {
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
func (s *DetectorServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *DetectorServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == "" {
		writeError(w, http.StatusBadRequest, "node is required")
		return
	}

	s.detector.Heartbeat(req.Node, req.Timestamp)
	if s.metrics != nil {
		s.metrics.RequestsTotal.WithLabelValues("heartbeat", "success").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *DetectorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"nodes":  s.detector.Snapshot(),
	})
}
