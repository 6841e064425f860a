package handlers

import (
	"net/http"
)

// TriggerBackfill queues a backfill sweep and returns immediately. A sweep
// already in flight absorbs the request. With ?overwrite=true the sweep
// rebuilds derivatives even where they already exist.
func (h *Handlers) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	overwrite := r.URL.Query().Get("overwrite") == "true"
	h.backfill.Trigger(overwrite)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]interface{}{
		"status":    "triggered",
		"overwrite": overwrite,
	})
}

// GetBackfillStatus reports the last and current sweep.
func (h *Handlers) GetBackfillStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.backfill.GetStatus())
}
