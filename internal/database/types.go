// Package database defines the catalog entities and repository interfaces
// shared by the sync engine, the face grouping engine, and the web layer.
// Concrete implementations live in the postgres subpackage; in-memory
// versions for tests live in the mock subpackage.
package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested catalog row does not exist.
var ErrNotFound = errors.New("not found")

// FaceEmbeddingDim is the fixed dimension for face embeddings (512 for
// insightface buffalo_l).
const FaceEmbeddingDim = 512

// Album is a hierarchical, path-addressed collection of media items,
// mirrored across the local filesystem, the remote object store, and this
// catalog.
type Album struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"` // slash-delimited, unique
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// SyncedToRemote records that a sync run has uploaded this album.
	// LocalFilesSafeDelete may only be true when every media item has a
	// verified remote copy and the last run reported zero issues.
	SyncedToRemote       bool       `json:"synced_to_remote"`
	LocalFilesSafeDelete bool       `json:"local_files_safe_delete"`
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MediaKind distinguishes photos from videos within an album.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaItem is a photo or video belonging to an album. Filename is unique
// within the album. RemoteKey points at the uploaded object, or is empty
// while an upload is pending.
type MediaItem struct {
	ID           int64          `json:"id"`
	AlbumID      int64          `json:"album_id"`
	Kind         MediaKind      `json:"kind"`
	Filename     string         `json:"filename"`
	OriginalPath string         `json:"original_path"`
	RemoteKey    string         `json:"remote_key,omitempty"`
	FileSize     int64          `json:"file_size"`
	TakenAt      *time.Time     `json:"taken_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Person groups faces judged to belong to the same human. Deleting a
// person nullifies PersonID on its faces; faces outlive people.
type Person struct {
	ID        string    `json:"id"` // UUID
	Name      string    `json:"name"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
}

// Face is a detected face rectangle with its embedding. PersonID is nil
// while the face is unassigned. Ignored faces are excluded from all
// unassigned-face queries and from clustering.
type Face struct {
	ID         int64     `json:"id"`
	MediaID    int64     `json:"media_id"`
	PersonID   *string   `json:"person_id,omitempty"`
	BBox       []float64 `json:"bbox"` // x, y, w, h in source pixels
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"-"`
	Ignored    bool      `json:"ignored"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobType selects the flavor of a sync run.
type JobType string

const (
	JobFilesystem    JobType = "FILESYSTEM"
	JobRemoteRebuild JobType = "REMOTE_REBUILD"
)

// JobStatus is the lifecycle state of a background job. A CANCELLED or
// FAILED job never transitions to COMPLETED.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status is one of the three end states.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// LogLevel tags entries in a job's persisted log.
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// JobLogEntry is one line of a job's append-only, ordered log. The log is
// the primary operator debugging surface.
type JobLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// AlbumProgressStatus discriminates the per-album progress variants.
type AlbumProgressStatus string

const (
	ProgressProcessing  AlbumProgressStatus = "processing"
	ProgressCompleted   AlbumProgressStatus = "completed"
	ProgressError       AlbumProgressStatus = "error"
	ProgressReconciled  AlbumProgressStatus = "reconciled"
	ProgressNeedsReview AlbumProgressStatus = "needs_review"
)

// AlbumProgressEntry is the tagged per-album progress record stored in a
// SyncJob, keyed by album path. Only the fields relevant to the status
// are populated.
type AlbumProgressEntry struct {
	Status AlbumProgressStatus `json:"status"`

	// completed
	FilesProcessed int      `json:"files_processed,omitempty"`
	FilesUploaded  int      `json:"files_uploaded,omitempty"`
	Issues         []string `json:"issues,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// reconciled
	Action string `json:"action,omitempty"` // marked_missing or cleaned_up

	// needs_review
	Reason string `json:"reason,omitempty"`
}

// SyncJob is the persisted record of one synchronization run. It is the
// single shared mutable resource of a run; every mutation is a full-row
// update performed by the one orchestrator driving the job.
type SyncJob struct {
	ID              string                        `json:"id"` // UUID
	Type            JobType                       `json:"type"`
	Status          JobStatus                     `json:"status"`
	Progress        int                           `json:"progress"` // 0-100, monotonically non-decreasing
	TotalAlbums     int                           `json:"total_albums"`
	CompletedAlbums int                           `json:"completed_albums"`
	FilesProcessed  int                           `json:"files_processed"`
	FilesUploaded   int                           `json:"files_uploaded"`
	AlbumProgress   map[string]AlbumProgressEntry `json:"album_progress"`
	Logs            []JobLogEntry                 `json:"logs"`
	Errors          string                        `json:"errors,omitempty"`
	StartedAt       time.Time                     `json:"started_at"`
	CompletedAt     *time.Time                    `json:"completed_at,omitempty"`
}

// AddLog appends a leveled entry to the job's log.
func (j *SyncJob) AddLog(level LogLevel, message, details string) {
	j.Logs = append(j.Logs, JobLogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Details:   details,
	})
}

// DownloadLink is a shareable, expiring multi-photo zip download. The zip
// is assembled by a background job; Token addresses it publicly.
type DownloadLink struct {
	ID        string     `json:"id"` // UUID
	Token     string     `json:"token"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	FileCount int        `json:"file_count"`
	ZipKey    string     `json:"zip_key,omitempty"`
	Error     string     `json:"error,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}
