package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router builds the application router. The /public subtree is addressed
// by signed tokens and carries no other access control.
func Router(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/files", h.UploadFile).Methods(http.MethodPost)
	api.HandleFunc("/files/backfill", h.TriggerBackfill).Methods(http.MethodPost)
	api.HandleFunc("/files/backfill", h.GetBackfillStatus).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.GetFileInfo).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.DeleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/files/{id}/rotate-left", h.RotateFileLeft).Methods(http.MethodPost)
	api.HandleFunc("/albums/{albumId}/files", h.ListAlbumFiles).Methods(http.MethodGet)
	api.HandleFunc("/albums/{albumId}/recordings", h.SaveRecording).Methods(http.MethodPost)
	api.HandleFunc("/albums/{albumId}/recordings", h.ListRecordings).Methods(http.MethodGet)
	api.HandleFunc("/recordings/{id}", h.DeleteRecording).Methods(http.MethodDelete)

	// Token-addressed media serving
	public := r.PathPrefix("/public").Subrouter()
	public.HandleFunc("/file/{token}", h.ServePublicFile).Methods(http.MethodGet, http.MethodHead)
	public.HandleFunc("/recording/{token}", h.ServePublicRecording).Methods(http.MethodGet, http.MethodHead)

	return r
}
