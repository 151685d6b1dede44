package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mnohosten/laura-core/pkg/storage"
	"github.com/mnohosten/laura-core/pkg/txn"
)

// writeJSON encodes body as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handlers bundles the read-only collaborators the HTTP surface reports on.
type handlers struct {
	engine      *storage.Engine
	lockManager *txn.LockManager
	startTime   time.Time
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).String(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	body := h.engine.Stats()
	if h.lockManager != nil {
		body["lock_manager"] = h.lockManager.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}
