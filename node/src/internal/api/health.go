package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

// StoreStats is the part of the store the admin API reads
type StoreStats interface {
	Len() int
}

// OperationStats is implemented by stores that count their operations
type OperationStats interface {
	GetMetrics() *storage.StorageMetrics
}

// ConnectionStats reports how many client connections are being served
type ConnectionStats interface {
	ActiveConnections() int
}

// HealthStatus represents the health status of the server
type HealthStatus struct {
	Status            string    `json:"status"`
	Keys              int       `json:"keys"`
	ActiveConnections int       `json:"active_connections"`
	Uptime            string    `json:"uptime"`
	Timestamp         time.Time `json:"timestamp"`

	Operations *storage.StorageMetrics `json:"operations,omitempty"`
}

// HealthHandler serves GET /health
type HealthHandler struct {
	store   StoreStats
	conns   ConnectionStats
	started time.Time
}

// NewHealthHandler creates a new health handler. conns may be nil.
func NewHealthHandler(store StoreStats, conns ConnectionStats) *HealthHandler {
	return &HealthHandler{store: store, conns: conns, started: time.Now()}
}

// Status builds the current health status
func (h *HealthHandler) Status() HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Keys:      h.store.Len(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
	if h.conns != nil {
		status.ActiveConnections = h.conns.ActiveConnections()
	}
	if ops, ok := h.store.(OperationStats); ok {
		status.Operations = ops.GetMetrics()
	}
	return status
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.Status())
}
