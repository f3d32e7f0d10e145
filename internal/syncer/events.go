// Package syncer implements the three-way synchronization engine
// between the local photo library, the remote object store and the
// catalog: comparison, reconciliation of orphaned albums, chunked
// concurrent uploads and the job orchestrator tying them together.
package syncer

import "github.com/jcalado/lumina-sub001/internal/database"

// Event is a progress notification emitted by the orchestrator while a
// job runs. The web layer bridges events to SSE; the CLI renders a
// progress bar from them.
type Event struct {
	JobID    string             `json:"jobId"`
	Type     string             `json:"type"`
	Status   database.JobStatus `json:"status,omitempty"`
	Progress int                `json:"progress"`
	Album    string             `json:"album,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// Event types emitted during a sync run.
const (
	EventJobStarted     = "job_started"
	EventAlbumStarted   = "album_started"
	EventAlbumCompleted = "album_completed"
	EventAlbumError     = "album_error"
	EventJobCompleted   = "job_completed"
	EventJobFailed      = "job_failed"
	EventJobCancelled   = "job_cancelled"
)

// EventSink receives orchestrator events. Publish must not block; slow
// consumers drop events rather than stalling the sync run.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
