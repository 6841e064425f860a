package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gallery-server/internal/pipeline"
)

// maxMultipartMemory bounds how much of a multipart body is held in memory
// before spilling to temp files.
const maxMultipartMemory = 32 << 20 // 32MB

// UploadFile accepts a multipart upload and runs it through the ingestion
// pipeline. Duplicate content returns the existing asset with 200 instead
// of 201.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeJSONError(w, "invalid multipart request", http.StatusBadRequest)
		return
	}

	albumID, err := strconv.ParseInt(r.FormValue("albumId"), 10, 64)
	if err != nil || albumID < 1 {
		writeJSONError(w, "albumId must be a positive integer", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := h.pipe.Ingest(r.Context(), &pipeline.IngestRequest{
		AlbumID:   albumID,
		Filename:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		ContentID: r.FormValue("contentId"),
		Content:   file,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if res.Duplicate {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	writeJSON(w, map[string]interface{}{
		"file":      res.Asset,
		"duplicate": res.Duplicate,
	})
}

// GetFileInfo returns asset metadata by id.
func (h *Handlers) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	asset, err := h.pipe.GetAsset(r.Context(), id)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, asset)
}

// DeleteFile removes an asset, its derivatives and its original.
func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.pipe.Delete(r.Context(), id); err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSONStatus(w, "deleted")
}

// RotateFileLeft rotates an image asset 90 degrees counter-clockwise and
// returns the updated asset, including its new public token.
func (h *Handlers) RotateFileLeft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	asset, err := h.pipe.RotateLeft(r.Context(), id)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, asset)
}

// ListAlbumFiles returns an album's assets in display order.
func (h *Handlers) ListAlbumFiles(w http.ResponseWriter, r *http.Request) {
	albumID, ok := pathID(w, r, "albumId")
	if !ok {
		return
	}

	assets, err := h.pipe.ListAlbumAssets(r.Context(), albumID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"files": assets,
		"count": len(assets),
	})
}

// pathID extracts a positive integer path variable, writing a 400 on
// failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id < 1 {
		writeJSONError(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
