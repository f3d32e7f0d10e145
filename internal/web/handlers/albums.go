package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/syncer"
)

// AlbumsHandler exposes the album catalog, the three-way comparison and
// the guarded local-file deletion.
type AlbumsHandler struct {
	albums     database.AlbumRepository
	media      database.MediaRepository
	comparator *syncer.Comparator
	scanner    *library.Scanner
}

// NewAlbumsHandler creates a new albums handler.
func NewAlbumsHandler(albums database.AlbumRepository, media database.MediaRepository, comparator *syncer.Comparator, scanner *library.Scanner) *AlbumsHandler {
	return &AlbumsHandler{
		albums:     albums,
		media:      media,
		comparator: comparator,
		scanner:    scanner,
	}
}

// List returns all albums ordered by path.
func (h *AlbumsHandler) List(w http.ResponseWriter, r *http.Request) {
	albums, err := h.albums.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list albums")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"albums": albums})
}

// getAlbum loads the album from the URL parameter "albumId". On failure
// it writes an error response and returns nil.
func (h *AlbumsHandler) getAlbum(w http.ResponseWriter, r *http.Request) *database.Album {
	id, ok := urlParamInt64(w, r, "albumId")
	if !ok {
		return nil
	}
	album, err := h.albums.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "album not found")
			return nil
		}
		respondError(w, http.StatusInternalServerError, "could not load album")
		return nil
	}
	return album
}

// Get returns one album.
func (h *AlbumsHandler) Get(w http.ResponseWriter, r *http.Request) {
	album := h.getAlbum(w, r)
	if album == nil {
		return
	}
	respondJSON(w, http.StatusOK, album)
}

// Media returns the album's media items, optionally filtered with
// ?kind=photo or ?kind=video.
func (h *AlbumsHandler) Media(w http.ResponseWriter, r *http.Request) {
	album := h.getAlbum(w, r)
	if album == nil {
		return
	}

	kind := database.MediaKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", database.MediaPhoto, database.MediaVideo:
	default:
		respondError(w, http.StatusBadRequest, "unknown media kind")
		return
	}

	items, err := h.media.ListByAlbum(r.Context(), album.ID, kind)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list media")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"media": items})
}

// Compare runs the three-way comparison for one album and returns the
// report. A consistent album gets its safe-delete flag granted as a
// side effect.
func (h *AlbumsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	album := h.getAlbum(w, r)
	if album == nil {
		return
	}

	report, err := h.comparator.Compare(r.Context(), album.Path)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "album not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "comparison failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// DeleteLocalFiles removes the album's files from the local library.
// Refused unless the album's safe-delete flag is set, which requires a
// comparison run with zero inconsistencies.
func (h *AlbumsHandler) DeleteLocalFiles(w http.ResponseWriter, r *http.Request) {
	album := h.getAlbum(w, r)
	if album == nil {
		return
	}

	if !album.LocalFilesSafeDelete {
		respondError(w, http.StatusPreconditionFailed, "album is not verified safe to delete locally")
		return
	}

	removed, err := h.scanner.DeleteAlbumFiles(album.Path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not delete local files")
		return
	}

	// The local copy is gone, so the certification no longer holds.
	if err := h.albums.SetSafeDelete(r.Context(), album.ID, false); err != nil {
		log.Printf("could not reset safe-delete flag for album %q: %v", sanitizeForLog(album.Path), err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"album":         album.Path,
		"files_removed": removed,
	})
}
