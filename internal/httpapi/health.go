package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vhfbalise/runner/internal/store"
)

// HealthSource is the subset of internal/store.Store the health handler
// needs; store.Store satisfies it directly.
type HealthSource interface {
	HealthCheck(ctx context.Context) error
	GetSettings(ctx context.Context) (*store.SystemSettings, error)
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	MasterEnabled bool              `json:"master_enabled"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	store     HealthSource
	version   string
	startTime time.Time
}

func NewHealthHandler(store HealthSource, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{store: store, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "ok"

	if err := h.store.HealthCheck(r.Context()); err != nil {
		checks["store"] = err.Error()
		status = "degraded"
	} else {
		checks["store"] = "ok"
	}

	masterEnabled := false
	if settings, err := h.store.GetSettings(r.Context()); err != nil {
		checks["settings"] = err.Error()
		status = "degraded"
	} else {
		checks["settings"] = "ok"
		masterEnabled = settings.MasterEnabled
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		MasterEnabled: masterEnabled,
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
