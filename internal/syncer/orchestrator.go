package syncer

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// Scanner is the filesystem side of a sync run.
type Scanner interface {
	ListAlbumPaths() ([]string, error)
	ScanDirectory(albumPath string) ([]library.MediaFile, error)
	Filenames(albumPath string) ([]string, error)
}

// Orchestrator drives a full sync run as a single background task: one
// reconciliation pass, then strictly sequential per-album scanning and
// uploading. Exactly one orchestrator instance runs a given job id.
type Orchestrator struct {
	albums database.AlbumRepository
	media  database.MediaRepository
	jobs   database.JobRepository

	scanner  Scanner
	store    storage.ObjectStore
	uploader *Uploader
	events   EventSink
}

// NewOrchestrator wires the sync engine together. A nil sink discards
// events.
func NewOrchestrator(
	albums database.AlbumRepository,
	media database.MediaRepository,
	jobs database.JobRepository,
	scanner Scanner,
	store storage.ObjectStore,
	assets AssetGenerator,
	concurrency int,
	events EventSink,
) *Orchestrator {
	if events == nil {
		events = NopSink{}
	}
	return &Orchestrator{
		albums:   albums,
		media:    media,
		jobs:     jobs,
		scanner:  scanner,
		store:    store,
		uploader: NewUploader(media, store, assets, concurrency),
		events:   events,
	}
}

// CreateJob persists a new PENDING job row and returns it, so callers
// have a job id before the run starts.
func (o *Orchestrator) CreateJob(ctx context.Context, jobType database.JobType) (*database.SyncJob, error) {
	job := &database.SyncJob{
		ID:            uuid.NewString(),
		Type:          jobType,
		Status:        database.JobPending,
		AlbumProgress: make(map[string]database.AlbumProgressEntry),
		StartedAt:     time.Now().UTC(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("could not create job: %w", err)
	}
	return job, nil
}

// Run executes the job to a terminal state. selected, when non-empty,
// restricts the run to those album paths. Per-album failures are
// logged and isolated; only a failure to enumerate albums at all fails
// the job.
func (o *Orchestrator) Run(ctx context.Context, job *database.SyncJob, selected []string) error {
	job.Status = database.JobRunning
	job.AddLog(database.LogInfo, "sync started", "")
	o.checkpoint(ctx, job)
	o.events.Publish(Event{JobID: job.ID, Type: EventJobStarted, Status: job.Status})

	allPaths, err := o.scanner.ListAlbumPaths()
	if err != nil {
		return o.fail(ctx, job, fmt.Errorf("could not enumerate albums: %w", err))
	}
	// Reconciliation always sees the full filesystem view; a selective
	// run must not make unselected albums look orphaned.
	fsPaths := allPaths
	if len(selected) > 0 {
		fsPaths = filterPaths(allPaths, selected)
	}

	reconciler := NewReconciler(o.albums, o.media, o.store)
	recResult, err := reconciler.Run(ctx, allPaths)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	reconciledTotal := len(recResult.Reconciled) + len(recResult.NeedsReview)
	job.TotalAlbums = len(fsPaths) + reconciledTotal
	job.AddLog(database.LogInfo,
		fmt.Sprintf("found %d filesystem albums, %d orphaned catalog albums", len(fsPaths), reconciledTotal), "")

	cancelled := false
	for _, albumPath := range fsPaths {
		if o.isCancelled(ctx, job.ID) {
			cancelled = true
			break
		}
		o.events.Publish(Event{JobID: job.ID, Type: EventAlbumStarted, Progress: job.Progress, Album: albumPath})
		o.processAlbum(ctx, job, albumPath)
		o.advance(job)
		o.checkpoint(ctx, job)
	}

	if !cancelled {
		for _, action := range recResult.Reconciled {
			job.AlbumProgress[action.AlbumPath] = database.AlbumProgressEntry{
				Status: database.ProgressReconciled,
				Action: action.Action,
				Reason: action.Reason,
			}
			job.AddLog(database.LogInfo, fmt.Sprintf("reconciled %s: %s", action.AlbumPath, action.Action), action.Reason)
			o.advance(job)
			o.checkpoint(ctx, job)
		}
		for _, action := range recResult.NeedsReview {
			job.AlbumProgress[action.AlbumPath] = database.AlbumProgressEntry{
				Status: database.ProgressNeedsReview,
				Reason: action.Reason,
			}
			job.AddLog(database.LogWarn, fmt.Sprintf("album %s needs review", action.AlbumPath), action.Reason)
			o.advance(job)
			o.checkpoint(ctx, job)
		}
	}

	if cancelled || o.isCancelled(ctx, job.ID) {
		job.Status = database.JobCancelled
		job.AddLog(database.LogWarn, "sync cancelled", "")
		o.checkpoint(ctx, job)
		o.events.Publish(Event{JobID: job.ID, Type: EventJobCancelled, Status: job.Status, Progress: job.Progress})
		return nil
	}

	job.Status = database.JobCompleted
	job.Progress = 100
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.AddLog(database.LogInfo,
		fmt.Sprintf("sync completed: %d albums, %d files processed, %d uploaded",
			job.CompletedAlbums, job.FilesProcessed, job.FilesUploaded), "")
	o.checkpoint(ctx, job)
	o.events.Publish(Event{JobID: job.ID, Type: EventJobCompleted, Status: job.Status, Progress: 100})
	return nil
}

// processAlbum syncs one album. Any failure is contained here: the
// album's progress entry becomes an error record and the run moves on.
func (o *Orchestrator) processAlbum(ctx context.Context, job *database.SyncJob, albumPath string) {
	job.AlbumProgress[albumPath] = database.AlbumProgressEntry{Status: database.ProgressProcessing}

	files, err := o.scanner.ScanDirectory(albumPath)
	if err != nil {
		o.albumError(job, albumPath, fmt.Errorf("scan directory: %w", err))
		return
	}

	album := &database.Album{
		Path: albumPath,
		Name: path.Base(albumPath),
		// Conservative reset; promoted back only after a verified full
		// upload.
		SyncedToRemote:       false,
		LocalFilesSafeDelete: false,
	}
	if err := o.albums.Upsert(ctx, album); err != nil {
		o.albumError(job, albumPath, fmt.Errorf("upsert album: %w", err))
		return
	}

	var photos, videos []library.MediaFile
	for _, f := range files {
		if f.Kind == database.MediaVideo {
			videos = append(videos, f)
		} else {
			photos = append(photos, f)
		}
	}

	photoStats, err := o.uploader.Run(ctx, album, database.MediaPhoto, photos, nil)
	if err != nil {
		o.albumError(job, albumPath, fmt.Errorf("upload photos: %w", err))
		return
	}
	videoStats, err := o.uploader.Run(ctx, album, database.MediaVideo, videos, nil)
	if err != nil {
		o.albumError(job, albumPath, fmt.Errorf("upload videos: %w", err))
		return
	}

	processed := photoStats.FilesProcessed + videoStats.FilesProcessed
	uploaded := photoStats.FilesUploaded + videoStats.FilesUploaded
	issues := append(append([]string{}, photoStats.Issues...), videoStats.Issues...)

	allUploaded := uploaded == len(photos)+len(videos)
	now := time.Now().UTC()
	if err := o.albums.SetFlags(ctx, album.ID, true, allUploaded && len(issues) == 0, &now); err != nil {
		o.albumError(job, albumPath, fmt.Errorf("update album flags: %w", err))
		return
	}

	job.FilesProcessed += processed
	job.FilesUploaded += uploaded
	job.AlbumProgress[albumPath] = database.AlbumProgressEntry{
		Status:         database.ProgressCompleted,
		FilesProcessed: processed,
		FilesUploaded:  uploaded,
		Issues:         issues,
	}
	job.AddLog(database.LogInfo,
		fmt.Sprintf("album %s: %d files processed, %d uploaded, %d issues", albumPath, processed, uploaded, len(issues)), "")
	o.events.Publish(Event{
		JobID: job.ID, Type: EventAlbumCompleted, Progress: job.Progress, Album: albumPath,
		Message: fmt.Sprintf("%d/%d uploaded", uploaded, processed),
	})
}

func (o *Orchestrator) albumError(job *database.SyncJob, albumPath string, err error) {
	job.AlbumProgress[albumPath] = database.AlbumProgressEntry{
		Status:  database.ProgressError,
		Message: err.Error(),
	}
	job.AddLog(database.LogError, fmt.Sprintf("album %s failed", albumPath), err.Error())
	o.events.Publish(Event{JobID: job.ID, Type: EventAlbumError, Progress: job.Progress, Album: albumPath, Message: err.Error()})
}

// advance bumps completedAlbums and recomputes progress, which never
// moves backwards within a job.
func (o *Orchestrator) advance(job *database.SyncJob) {
	job.CompletedAlbums++
	if job.TotalAlbums > 0 {
		progress := job.CompletedAlbums * 100 / job.TotalAlbums
		if progress > job.Progress {
			job.Progress = progress
		}
	}
}

// checkpoint persists the full job row. This is the durability
// boundary: a crash loses at most one album's progress.
func (o *Orchestrator) checkpoint(ctx context.Context, job *database.SyncJob) {
	if err := o.jobs.Update(ctx, job); err != nil {
		job.AddLog(database.LogWarn, "could not persist job progress", err.Error())
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *database.SyncJob, err error) error {
	job.Status = database.JobFailed
	job.Errors = err.Error()
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.AddLog(database.LogError, "sync failed", err.Error())
	o.checkpoint(ctx, job)
	o.events.Publish(Event{JobID: job.ID, Type: EventJobFailed, Status: job.Status, Message: err.Error()})
	return err
}

// isCancelled re-reads the persisted status; cancellation is an
// external mutation of the job row.
func (o *Orchestrator) isCancelled(ctx context.Context, jobID string) bool {
	status, err := o.jobs.GetStatus(ctx, jobID)
	return err == nil && status == database.JobCancelled
}

func filterPaths(paths, selected []string) []string {
	want := make(map[string]bool, len(selected))
	for _, p := range selected {
		want[p] = true
	}
	var filtered []string
	for _, p := range paths {
		if want[p] {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
