package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsdeck/tenantd/internal/store"
	"go.uber.org/zap"
)

// Pinger is anything whose connectivity can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check endpoints
type HealthChecker struct {
	metadataStore store.MetadataStore
	eventStore    store.EventStore
	scopeCache    Pinger
	logger        *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker. scopeCache may be nil
// when the deployment runs without Redis.
func NewHealthChecker(
	metadataStore store.MetadataStore,
	eventStore store.EventStore,
	scopeCache Pinger,
	logger *zap.Logger,
) *HealthChecker {
	return &HealthChecker{
		metadataStore: metadataStore,
		eventStore:    eventStore,
		scopeCache:    scopeCache,
		logger:        logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.check(ctx, h.metadataStore); err != nil {
		h.logger.Error("Metadata store health check failed", zap.Error(err))
		checks["metadata_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["metadata_store"] = "healthy"
	}

	if err := h.check(ctx, h.eventStore); err != nil {
		h.logger.Error("Event store health check failed", zap.Error(err))
		checks["event_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["event_store"] = "healthy"
	}

	if h.scopeCache != nil {
		if err := h.scopeCache.Ping(ctx); err != nil {
			h.logger.Error("Scope cache health check failed", zap.Error(err))
			checks["scope_cache"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["scope_cache"] = "healthy"
		}
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) check(ctx context.Context, p Pinger) error {
	if p == nil {
		return nil
	}
	return p.Ping(ctx)
}

// StartHealthServer starts the health check HTTP server
func StartHealthServer(hc *HealthChecker, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", hc.LivenessHandler)
	mux.HandleFunc("/health/ready", hc.ReadinessHandler)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting health check server", zap.String("address", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
