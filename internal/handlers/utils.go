package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gallery-server/internal/logging"
	"gallery-server/internal/pipeline"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// writePipelineError maps the pipeline error taxonomy onto HTTP statuses.
// Validation problems are the client's to fix; a missing token or id is a
// 404; an interrupted job means the server is going away.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case pipeline.IsValidation(err):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pipeline.ErrNotFound):
		writeJSONError(w, "not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrInterrupted):
		writeJSONError(w, "server shutting down", http.StatusServiceUnavailable)
	case pipeline.IsFatalProcessing(err):
		logging.Error("Processing failed: %v", err)
		writeJSONError(w, "file could not be processed", http.StatusUnprocessableEntity)
	default:
		logging.Error("Request failed: %v", err)
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
