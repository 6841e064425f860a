package handlers

import (
	"net/http"
)

// SaveRecording stores an ancillary audio capture for an album. The body
// is the raw recording; its MIME type comes from the Content-Type header.
func (h *Handlers) SaveRecording(w http.ResponseWriter, r *http.Request) {
	albumID, ok := pathID(w, r, "albumId")
	if !ok {
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		writeJSONError(w, "Content-Type header required", http.StatusBadRequest)
		return
	}

	rec, err := h.pipe.SaveRecording(r.Context(), albumID, mimeType, r.Body)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, rec)
}

// ListRecordings returns an album's recordings, newest first.
func (h *Handlers) ListRecordings(w http.ResponseWriter, r *http.Request) {
	albumID, ok := pathID(w, r, "albumId")
	if !ok {
		return
	}

	recs, err := h.pipe.ListAlbumRecordings(r.Context(), albumID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"recordings": recs,
		"count":      len(recs),
	})
}

// DeleteRecording removes a recording and its file.
func (h *Handlers) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.pipe.DeleteRecording(r.Context(), id); err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSONStatus(w, "deleted")
}
