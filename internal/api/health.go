package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/call-engine/internal/queue"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Queue         *queue.Stats      `json:"queue,omitempty"`
}

// HealthHandler reports process and dependency health. The store check
// is fatal; a lost broker connection only degrades.
type HealthHandler struct {
	dbCheck       func(ctx context.Context) error
	mqttConnected func() bool
	queueStats    func() queue.Stats
	version       string
	startTime     time.Time
}

func NewHealthHandler(dbCheck func(ctx context.Context) error, mqttConnected func() bool, queueStats func() queue.Stats, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		dbCheck:       dbCheck,
		mqttConnected: mqttConnected,
		queueStats:    queueStats,
		version:       version,
		startTime:     startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.dbCheck != nil {
		if err := h.dbCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "in_memory"
	}

	if h.mqttConnected != nil {
		if h.mqttConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.queueStats != nil {
		stats := h.queueStats()
		resp.Queue = &stats
	}

	WriteJSON(w, httpStatus, resp)
}
