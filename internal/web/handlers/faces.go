package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/faces"
)

// defaultSimilarK is how many neighbors a similar-faces lookup returns
// when the request does not say.
const defaultSimilarK = 10

// IndexRebuilder repopulates the similarity index backing FindSimilar.
// The Postgres face repository implements it; backends without a
// rebuildable index pass nil.
type IndexRebuilder interface {
	EnableHNSW(ctx context.Context, indexPath string) error
	HNSWCount() int
	SaveHNSWIndex() error
}

// FacesHandler exposes face detection, grouping and curation endpoints.
type FacesHandler struct {
	faces     database.FaceRepository
	people    database.PersonRepository
	processor *faces.Processor
	grouping  *faces.GroupingEngine
	rebuilder IndexRebuilder
	indexPath string
}

// NewFacesHandler creates a new faces handler. rebuilder may be nil
// when no rebuildable similarity index exists.
func NewFacesHandler(faceRepo database.FaceRepository, people database.PersonRepository, processor *faces.Processor, grouping *faces.GroupingEngine, rebuilder IndexRebuilder, indexPath string) *FacesHandler {
	return &FacesHandler{
		faces:     faceRepo,
		people:    people,
		processor: processor,
		grouping:  grouping,
		rebuilder: rebuilder,
		indexPath: indexPath,
	}
}

// Detect runs face detection over one album's remote-backed photos and
// returns the per-album result. Detection failures on individual photos
// become issues, not errors.
func (h *FacesHandler) Detect(w http.ResponseWriter, r *http.Request) {
	albumID, ok := urlParamInt64(w, r, "albumId")
	if !ok {
		return
	}

	result, err := h.processor.ProcessAlbum(r.Context(), albumID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "face detection failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GroupRequest carries the tunables of a grouping run. Out-of-range
// values are clamped, not rejected.
type GroupRequest struct {
	Limit          int     `json:"limit"`
	Randomize      bool    `json:"randomize"`
	Threshold      float64 `json:"threshold"`
	MaxComparisons int     `json:"max_comparisons"`
	Mode           string  `json:"mode"`
	PreCluster     bool    `json:"pre_cluster"`
}

// Group runs one bounded face-grouping batch and returns its result.
func (h *FacesHandler) Group(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.grouping.Run(r.Context(), faces.GroupingOptions{
		Limit:          req.Limit,
		Randomize:      req.Randomize,
		Threshold:      req.Threshold,
		MaxComparisons: req.MaxComparisons,
		Mode:           faces.Mode(req.Mode),
		PreCluster:     req.PreCluster,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "grouping failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Unassigned returns unassigned faces, honoring ?limit= and ?randomize=.
func (h *FacesHandler) Unassigned(w http.ResponseWriter, r *http.Request) {
	limit := defaultSimilarK * 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	randomize := r.URL.Query().Get("randomize") == "true"

	list, err := h.faces.ListUnassigned(r.Context(), limit, randomize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list faces")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"faces": list})
}

// IgnoreRequest flips the ignored flag of a face.
type IgnoreRequest struct {
	Ignored bool `json:"ignored"`
}

// Ignore marks a face as ignored (or un-ignores it). Ignored faces are
// excluded from grouping and from unassigned listings.
func (h *FacesHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	faceID, ok := urlParamInt64(w, r, "faceId")
	if !ok {
		return
	}

	req := IgnoreRequest{Ignored: true}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	if err := h.faces.SetIgnored(r.Context(), faceID, req.Ignored); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not update face")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"face_id": faceID, "ignored": req.Ignored})
}

// AssignRequest assigns faces to an existing person.
type AssignRequest struct {
	PersonID string  `json:"person_id"`
	FaceIDs  []int64 `json:"face_ids"`
}

// Assign attaches the given faces to a person in one transaction.
func (h *FacesHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PersonID == "" || len(req.FaceIDs) == 0 {
		respondError(w, http.StatusBadRequest, "person_id and face_ids are required")
		return
	}

	if _, err := h.people.Get(r.Context(), req.PersonID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "person not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load person")
		return
	}

	if err := h.faces.AssignPerson(r.Context(), req.PersonID, req.FaceIDs); err != nil {
		respondError(w, http.StatusInternalServerError, "could not assign faces")
		return
	}
	log.Printf("assigned %d faces to person %s", len(req.FaceIDs), sanitizeForLog(req.PersonID))
	respondJSON(w, http.StatusOK, map[string]any{
		"person_id":      req.PersonID,
		"faces_assigned": len(req.FaceIDs),
	})
}

// similarFace is one neighbor in a similar-faces response.
type similarFace struct {
	Face     database.Face `json:"face"`
	Distance float64       `json:"distance"`
}

// Similar returns the nearest faces to the given face by embedding
// distance.
func (h *FacesHandler) Similar(w http.ResponseWriter, r *http.Request) {
	faceID, ok := urlParamInt64(w, r, "faceId")
	if !ok {
		return
	}

	k := defaultSimilarK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid k")
			return
		}
		k = n
	}

	face, err := h.faces.Get(r.Context(), faceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load face")
		return
	}
	if len(face.Embedding) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "face has no embedding")
		return
	}

	// Ask for one extra neighbor since the query face matches itself.
	neighbors, distances, err := h.faces.FindSimilar(r.Context(), face.Embedding, k+1)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}

	results := make([]similarFace, 0, k)
	for i, n := range neighbors {
		if n.ID == face.ID {
			continue
		}
		results = append(results, similarFace{Face: n, Distance: distances[i]})
		if len(results) == k {
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"similar": results})
}

// RebuildIndex repopulates the similarity index from the catalog.
func (h *FacesHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if h.rebuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "similarity index not available")
		return
	}

	if err := h.rebuilder.EnableHNSW(r.Context(), h.indexPath); err != nil {
		respondError(w, http.StatusInternalServerError, "could not rebuild index")
		return
	}
	if err := h.rebuilder.SaveHNSWIndex(); err != nil {
		log.Printf("could not persist face index: %v", err)
	}
	respondJSON(w, http.StatusOK, map[string]int{"indexed_faces": h.rebuilder.HNSWCount()})
}
