package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/syncer"
)

// defaultJobListLimit caps the jobs list endpoint.
const defaultJobListLimit = 50

// SyncHandler exposes the sync engine: starting runs, polling and
// cancelling jobs, and streaming progress over SSE.
type SyncHandler struct {
	orchestrator *syncer.Orchestrator
	jobs         database.JobRepository
	hub          *EventHub
	staleJobAge  time.Duration
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(orchestrator *syncer.Orchestrator, jobs database.JobRepository, hub *EventHub, staleJobAge time.Duration) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		jobs:         jobs,
		hub:          hub,
		staleJobAge:  staleJobAge,
	}
}

// StartRequest represents a sync start request. An empty album list
// means a full run over the whole library.
type StartRequest struct {
	Type   string   `json:"type"`
	Albums []string `json:"albums"`
}

// Start creates a sync job and runs it in the background.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	jobType := database.JobType(req.Type)
	switch jobType {
	case "":
		jobType = database.JobFilesystem
	case database.JobFilesystem, database.JobRemoteRebuild:
	default:
		respondError(w, http.StatusBadRequest, "unknown job type")
		return
	}

	job, err := h.orchestrator.CreateJob(r.Context(), jobType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	// The request context dies when the handler returns; the run gets
	// its own.
	go func() {
		if err := h.orchestrator.Run(context.Background(), job, req.Albums); err != nil {
			log.Printf("sync job %s failed: %v", job.ID, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"type":   string(jobType),
		"status": string(database.JobPending),
	})
}

// List returns recent jobs, newest first.
func (h *SyncHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context(), defaultJobListLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Status returns the full job record.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Events streams job progress via SSE until the job reaches a terminal
// state or the client disconnects.
func (h *SyncHandler) Events(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	flusher, ok := setupSSE(w)
	if !ok {
		return
	}

	// Subscribe before the snapshot so no event falls between them.
	eventCh := h.hub.AddListener(jobID)
	defer h.hub.RemoveListener(jobID, eventCh)

	sendSSEEvent(w, flusher, "status", job)
	if job.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}
}

// Cancel requests cooperative cancellation of a running job. The
// orchestrator notices between albums; already-terminal jobs are left
// untouched.
func (h *SyncHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	status, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	if status.Terminal() {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}

	if err := h.jobs.SetStatus(r.Context(), jobID, database.JobCancelled); err != nil {
		respondError(w, http.StatusInternalServerError, "could not cancel job")
		return
	}
	log.Printf("sync job %s cancelled via API", sanitizeForLog(jobID))
	respondJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": string(database.JobCancelled),
	})
}

// CleanupStuck force-fails RUNNING jobs older than the configured
// staleness threshold, for recovery after a crashed process.
func (h *SyncHandler) CleanupStuck(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobs.FailStale(r.Context(), h.staleJobAge)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not clean up jobs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"failed_jobs": n})
}
