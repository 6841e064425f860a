package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"gallery-server/internal/httprange"
)

// ServePublicFile serves an asset by public token, range-aware. The size
// query parameter selects a derivative; an unready derivative falls back
// to the original rather than failing.
func (h *Handlers) ServePublicFile(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	sf, err := h.pipe.ResolveAsset(r.Context(), token, r.URL.Query().Get("size"))
	if err != nil {
		writePipelineError(w, err)
		return
	}

	httprange.ServeFile(w, r, sf.AbsPath, sf.MimeType, sf.Filename)
}

// ServePublicRecording serves a recording by public token, range-aware.
func (h *Handlers) ServePublicRecording(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	sf, err := h.pipe.ResolveRecording(r.Context(), token)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	httprange.ServeFile(w, r, sf.AbsPath, sf.MimeType, sf.Filename)
}
