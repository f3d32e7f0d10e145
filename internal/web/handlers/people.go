package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/faces"
)

// PeopleHandler exposes person curation: creation from faces, renames,
// confirmation, merges and deletion.
type PeopleHandler struct {
	people database.PersonRepository
	faces  database.FaceRepository
}

// NewPeopleHandler creates a new people handler.
func NewPeopleHandler(people database.PersonRepository, faceRepo database.FaceRepository) *PeopleHandler {
	return &PeopleHandler{
		people: people,
		faces:  faceRepo,
	}
}

// List returns people, optionally only confirmed ones (?confirmed=true).
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	confirmedOnly := r.URL.Query().Get("confirmed") == "true"
	people, err := h.people.List(r.Context(), confirmedOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list people")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": people})
}

// getPerson loads the person from the URL parameter "personId". On
// failure it writes an error response and returns nil.
func (h *PeopleHandler) getPerson(w http.ResponseWriter, r *http.Request) *database.Person {
	id := chi.URLParam(r, "personId")
	person, err := h.people.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "person not found")
			return nil
		}
		respondError(w, http.StatusInternalServerError, "could not load person")
		return nil
	}
	return person
}

// Get returns one person.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	person := h.getPerson(w, r)
	if person == nil {
		return
	}
	respondJSON(w, http.StatusOK, person)
}

// Faces returns all faces assigned to a person.
func (h *PeopleHandler) Faces(w http.ResponseWriter, r *http.Request) {
	person := h.getPerson(w, r)
	if person == nil {
		return
	}
	list, err := h.faces.ListByPerson(r.Context(), person.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list faces")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"faces": list})
}

// CreateRequest creates a person from a set of faces.
type CreateRequest struct {
	Name    string  `json:"name"`
	FaceIDs []int64 `json:"face_ids"`
}

// Create makes a new confirmed person and assigns the given faces to it
// in one transaction.
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.FaceIDs) == 0 {
		respondError(w, http.StatusBadRequest, "face_ids is required")
		return
	}

	person := &database.Person{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Confirmed: true,
	}
	if err := h.people.CreateWithFaces(r.Context(), person, req.FaceIDs); err != nil {
		respondError(w, http.StatusInternalServerError, "could not create person")
		return
	}
	log.Printf("created person %s with %d faces", person.ID, len(req.FaceIDs))

	if dup := h.findSimilarName(r.Context(), person.ID, req.Name); dup != nil {
		respondJSON(w, http.StatusCreated, map[string]any{
			"person":  person,
			"warning": "a person with a similar name already exists",
			"similar": dup,
		})
		return
	}
	respondJSON(w, http.StatusCreated, person)
}

// findSimilarName looks for another person whose name matches after
// diacritics removal and case folding, so "Tomáš" and "tomas" collide.
func (h *PeopleHandler) findSimilarName(ctx context.Context, selfID, name string) *database.Person {
	people, err := h.people.List(ctx, false)
	if err != nil {
		return nil
	}
	want := canonicalName(name)
	for i := range people {
		if people[i].ID != selfID && canonicalName(people[i].Name) == want {
			return &people[i]
		}
	}
	return nil
}

func canonicalName(name string) string {
	return faces.NormalizePersonName(faces.RemoveDiacritics(name))
}

// UpdateRequest renames and/or confirms a person. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Name      *string `json:"name"`
	Confirmed *bool   `json:"confirmed"`
}

// Update renames and/or flips the confirmed flag of a person.
func (h *PeopleHandler) Update(w http.ResponseWriter, r *http.Request) {
	person := h.getPerson(w, r)
	if person == nil {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Name != nil {
		name := *req.Name
		if name == "" {
			respondError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		if err := h.people.Rename(r.Context(), person.ID, name); err != nil {
			respondError(w, http.StatusInternalServerError, "could not rename person")
			return
		}
		person.Name = name
	}
	if req.Confirmed != nil {
		if err := h.people.SetConfirmed(r.Context(), person.ID, *req.Confirmed); err != nil {
			respondError(w, http.StatusInternalServerError, "could not update person")
			return
		}
		person.Confirmed = *req.Confirmed
	}
	respondJSON(w, http.StatusOK, person)
}

// MergeRequest merges another person into this one.
type MergeRequest struct {
	SourceID string `json:"source_id"`
}

// Merge reassigns all faces of source_id to the person in the URL and
// deletes the source person.
func (h *PeopleHandler) Merge(w http.ResponseWriter, r *http.Request) {
	target := h.getPerson(w, r)
	if target == nil {
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SourceID == "" {
		respondError(w, http.StatusBadRequest, "source_id is required")
		return
	}
	if req.SourceID == target.ID {
		respondError(w, http.StatusBadRequest, "cannot merge a person into itself")
		return
	}
	if _, err := h.people.Get(r.Context(), req.SourceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "source person not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load person")
		return
	}

	if err := h.people.Merge(r.Context(), req.SourceID, target.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "merge failed")
		return
	}
	log.Printf("merged person %s into %s", sanitizeForLog(req.SourceID), target.ID)
	respondJSON(w, http.StatusOK, target)
}

// Delete removes a person. Its faces become unassigned again.
func (h *PeopleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	person := h.getPerson(w, r)
	if person == nil {
		return
	}
	if err := h.people.Delete(r.Context(), person.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "could not delete person")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": person.ID})
}
