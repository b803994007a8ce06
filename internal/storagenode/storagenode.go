// Package storagenode exposes a storage.Engine over the three-method HTTP
// wire protocol that the coordinator's transport.HTTPBackend speaks.
package storagenode

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tunablekv/tunablekv/internal/storage"
	"github.com/tunablekv/tunablekv/pkg/types"
)

// Node adapts a storage.Engine to HTTP PUT/GET/health handlers.
type Node struct {
	engine storage.Engine
}

// New wraps engine for HTTP serving.
func New(engine storage.Engine) *Node {
	return &Node{engine: engine}
}

// Routes registers this node's handlers on router.
func (n *Node) Routes(router *mux.Router) {
	router.HandleFunc("/put", n.handlePut).Methods(http.MethodPut, http.MethodPost)
	router.HandleFunc("/get", n.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/health", n.handleHealth).Methods(http.MethodGet)
}

func (n *Node) handlePut(w http.ResponseWriter, r *http.Request) {
	var req types.ReplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := n.engine.Store(req); err != nil {
		log.Printf("storagenode: put %q: %v", req.Key, err)
		writeError(w, http.StatusInternalServerError, "put failed")
		return
	}

	writeJSON(w, http.StatusOK, types.ReplicationResponse{Status: "ok"})
}

func (n *Node) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	resp, err := n.engine.Retrieve(key)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}
		log.Printf("storagenode: get %q: %v", key, err)
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.engine.Stats())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("storagenode: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
