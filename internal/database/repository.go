package database

import (
	"context"
	"time"
)

// AlbumRepository provides catalog access to albums.
type AlbumRepository interface {
	// Get returns the album by id, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Album, error)
	// GetByPath returns the album at the given path, or ErrNotFound.
	GetByPath(ctx context.Context, path string) (*Album, error)
	// List returns all albums ordered by path.
	List(ctx context.Context) ([]Album, error)
	// Upsert inserts or updates the album keyed by path and fills in ID.
	Upsert(ctx context.Context, album *Album) error
	// SetFlags updates the two sync flags and last_sync_at in one write.
	SetFlags(ctx context.Context, id int64, syncedToRemote, safeDelete bool, lastSyncAt *time.Time) error
	// SetSafeDelete updates only local_files_safe_delete.
	SetSafeDelete(ctx context.Context, id int64, safeDelete bool) error
	// SetDescription annotates the album (used by reconciliation).
	SetDescription(ctx context.Context, id int64, description string) error
	// Delete removes the album row. Media rows must be removed first.
	Delete(ctx context.Context, id int64) error
}

// MediaRepository provides catalog access to photos and videos.
type MediaRepository interface {
	// ListByAlbum returns the album's media, optionally filtered by kind
	// (empty kind means both).
	ListByAlbum(ctx context.Context, albumID int64, kind MediaKind) ([]MediaItem, error)
	// Filenames returns the album's media filenames across both kinds.
	Filenames(ctx context.Context, albumID int64) ([]string, error)
	// CountRemoteBacked counts the album's media with a non-empty remote key.
	CountRemoteBacked(ctx context.Context, albumID int64) (int, error)
	// Create inserts a media row and fills in ID.
	Create(ctx context.Context, item *MediaItem) error
	// UpdateScanInfo refreshes size and taken-at after a rescan.
	UpdateScanInfo(ctx context.Context, id int64, fileSize int64, takenAt *time.Time) error
	// Delete removes one media row.
	Delete(ctx context.Context, id int64) error
	// DeleteByAlbum removes all media rows of an album and returns their
	// remote keys so callers can delete the remote objects best-effort.
	DeleteByAlbum(ctx context.Context, albumID int64) ([]string, error)
}

// FaceRepository provides catalog access to detected faces.
type FaceRepository interface {
	// SaveFaces replaces all faces of a media item in one transaction.
	SaveFaces(ctx context.Context, mediaID int64, faces []Face) error
	// ListUnassigned returns up to limit non-ignored faces with no person,
	// in stable id order, or shuffled when randomize is set.
	ListUnassigned(ctx context.Context, limit int, randomize bool) ([]Face, error)
	// ListEmbedded returns all non-ignored faces carrying an embedding,
	// used to build the in-memory similarity index.
	ListEmbedded(ctx context.Context) ([]Face, error)
	// ListByPerson returns all faces assigned to a person.
	ListByPerson(ctx context.Context, personID string) ([]Face, error)
	// AssignPerson sets person_id on the given faces in one transaction.
	AssignPerson(ctx context.Context, personID string, faceIDs []int64) error
	// SetIgnored flips the ignored flag of a single face.
	SetIgnored(ctx context.Context, faceID int64, ignored bool) error
	// Get returns a face by id, or ErrNotFound.
	Get(ctx context.Context, faceID int64) (*Face, error)
	// FindSimilar returns up to limit faces nearest to the query
	// embedding, with their cosine distances, nearest first.
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]Face, []float64, error)
}

// PersonRepository provides catalog access to people.
type PersonRepository interface {
	// List returns people, optionally restricted to confirmed ones.
	List(ctx context.Context, confirmedOnly bool) ([]Person, error)
	// Get returns a person by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Person, error)
	// CreateWithFaces inserts the person and assigns the given faces in
	// one transaction, so a failure never leaves a half-assigned cluster.
	CreateWithFaces(ctx context.Context, person *Person, faceIDs []int64) error
	// Rename changes the person's display name.
	Rename(ctx context.Context, id, name string) error
	// SetConfirmed flips the confirmed flag.
	SetConfirmed(ctx context.Context, id string, confirmed bool) error
	// Delete removes the person; person_id on its faces becomes NULL.
	Delete(ctx context.Context, id string) error
	// Merge reassigns all of source's faces to target and deletes source,
	// transactionally.
	Merge(ctx context.Context, sourceID, targetID string) error
	// RepresentativeFaces returns one face per person (the earliest
	// assigned face with an embedding), used by assign_existing grouping.
	RepresentativeFaces(ctx context.Context, confirmedOnly bool) (map[string]Face, error)
}

// JobRepository persists sync job records.
type JobRepository interface {
	// Create inserts a new job row.
	Create(ctx context.Context, job *SyncJob) error
	// Update writes the full job row (progress, counters, logs, status).
	Update(ctx context.Context, job *SyncJob) error
	// Get returns a job snapshot, or ErrNotFound.
	Get(ctx context.Context, id string) (*SyncJob, error)
	// GetStatus returns only the job status, for cheap cancellation polls.
	GetStatus(ctx context.Context, id string) (JobStatus, error)
	// SetStatus updates only the status column (used for cancellation).
	SetStatus(ctx context.Context, id string, status JobStatus) error
	// List returns recent jobs, newest first.
	List(ctx context.Context, limit int) ([]SyncJob, error)
	// FailStale force-fails RUNNING jobs started more than age ago and
	// returns how many rows were touched.
	FailStale(ctx context.Context, age time.Duration) (int, error)
}

// DownloadRepository persists shareable zip download links.
type DownloadRepository interface {
	Create(ctx context.Context, link *DownloadLink) error
	Update(ctx context.Context, link *DownloadLink) error
	// GetByToken returns the link for a public token, or ErrNotFound.
	GetByToken(ctx context.Context, token string) (*DownloadLink, error)
	// DeleteExpired removes links past their expiry and returns the zip
	// keys of the removed rows for best-effort remote cleanup.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}
