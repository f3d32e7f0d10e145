package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/zipper"
)

// DownloadsHandler exposes shareable album zip downloads: link creation,
// status polling and the actual archive fetch.
type DownloadsHandler struct {
	zipper *zipper.Zipper
}

// NewDownloadsHandler creates a new downloads handler.
func NewDownloadsHandler(z *zipper.Zipper) *DownloadsHandler {
	return &DownloadsHandler{zipper: z}
}

// Create starts a background zip-assembly job for one album and returns
// the shareable link immediately.
func (h *DownloadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	albumID, ok := urlParamInt64(w, r, "albumId")
	if !ok {
		return
	}

	link, err := h.zipper.CreateLink(r.Context(), albumID)
	if err != nil {
		if errors.Is(err, zipper.ErrNoRemotePhotos) {
			respondError(w, http.StatusUnprocessableEntity, "album has no downloadable photos")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not create download link")
		return
	}
	respondJSON(w, http.StatusAccepted, link)
}

// Status returns the state of a download link by its public token.
func (h *DownloadsHandler) Status(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	link, err := h.zipper.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "download not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load download")
		return
	}
	respondJSON(w, http.StatusOK, link)
}

// File streams the assembled archive. Only COMPLETED links have one.
func (h *DownloadsHandler) File(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	body, err := h.zipper.Open(r.Context(), token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "download not found")
			return
		}
		if errors.Is(err, zipper.ErrNotReady) {
			respondError(w, http.StatusConflict, "download not ready")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not open download")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="photos.zip"`)
	_, _ = io.Copy(w, body)
}

// Cleanup removes expired links and their archives.
func (h *DownloadsHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.zipper.CleanupExpired(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed_links": n})
}
