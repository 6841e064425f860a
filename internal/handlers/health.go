package handlers

import (
	"net/http"
	"runtime"
	"time"

	"gallery-server/internal/backfill"
	"gallery-server/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string          `json:"status"`
	Ready    bool            `json:"ready"`
	Version  string          `json:"version"`
	Uptime   string          `json:"uptime"`
	Backfill backfill.Status `json:"backfill"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Library summary
	TotalImages     int   `json:"totalImages"`
	TotalVideos     int   `json:"totalVideos"`
	TotalAudio      int   `json:"totalAudio"`
	TotalRecordings int   `json:"totalRecordings"`
	TotalBytes      int64 `json:"totalBytes"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.db.GetStats()

	response := HealthResponse{
		Status:          statusHealthy,
		Ready:           true,
		Version:         startup.Version,
		Uptime:          time.Since(h.startTime).String(),
		Backfill:        h.backfill.GetStatus(),
		GoVersion:       runtime.Version(),
		NumCPU:          runtime.NumCPU(),
		NumGoroutine:    runtime.NumGoroutine(),
		TotalImages:     stats.TotalImages,
		TotalVideos:     stats.TotalVideos,
		TotalAudio:      stats.TotalAudio,
		TotalRecordings: stats.TotalRecordings,
		TotalBytes:      stats.TotalBytes,
	}

	statusCode := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		// The database is load-bearing; an unreachable one is degraded.
		response.Status = statusDegraded
		response.Ready = false
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.db.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}
