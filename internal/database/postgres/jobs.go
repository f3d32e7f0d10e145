package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
)

// JobRepository provides PostgreSQL-backed sync job storage. The job row
// is rewritten in full after every album, so a crash mid-run loses at
// most one album's progress.
type JobRepository struct {
	pool *Pool
}

// NewJobRepository creates a new PostgreSQL job repository.
func NewJobRepository(pool *Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func encodeJobBlobs(job *database.SyncJob) (progress, logs []byte, err error) {
	albumProgress := job.AlbumProgress
	if albumProgress == nil {
		albumProgress = map[string]database.AlbumProgressEntry{}
	}
	progress, err = json.Marshal(albumProgress)
	if err != nil {
		return nil, nil, fmt.Errorf("encode album progress: %w", err)
	}

	jobLogs := job.Logs
	if jobLogs == nil {
		jobLogs = []database.JobLogEntry{}
	}
	logs, err = json.Marshal(jobLogs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode job logs: %w", err)
	}
	return progress, logs, nil
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, job *database.SyncJob) error {
	progress, logs, err := encodeJobBlobs(job)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sync_jobs (id, type, status, progress, total_albums, completed_albums,
		                       files_processed, files_uploaded, album_progress, logs, errors, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, job.ID, job.Type, job.Status, job.Progress, job.TotalAlbums, job.CompletedAlbums,
		job.FilesProcessed, job.FilesUploaded, progress, logs, job.Errors, job.StartedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update writes the full job row. An externally set CANCELLED status is
// preserved: the orchestrator's checkpoint must never resurrect a
// cancelled job, and a cancelled job never becomes COMPLETED.
func (r *JobRepository) Update(ctx context.Context, job *database.SyncJob) error {
	progress, logs, err := encodeJobBlobs(job)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE sync_jobs
		SET status = CASE WHEN status = $12 THEN status ELSE $2 END,
		    progress = $3, total_albums = $4, completed_albums = $5,
		    files_processed = $6, files_uploaded = $7, album_progress = $8,
		    logs = $9, errors = $10, completed_at = $11
		WHERE id = $1
	`, job.ID, job.Status, job.Progress, job.TotalAlbums, job.CompletedAlbums,
		job.FilesProcessed, job.FilesUploaded, progress, logs, job.Errors, job.CompletedAt,
		database.JobCancelled)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// Get returns a job snapshot.
func (r *JobRepository) Get(ctx context.Context, id string) (*database.SyncJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, type, status, progress, total_albums, completed_albums,
		       files_processed, files_uploaded, album_progress, logs, errors, started_at, completed_at
		FROM sync_jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

func scanJob(row interface{ Scan(...any) error }) (*database.SyncJob, error) {
	var job database.SyncJob
	var progress, logs []byte
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Type, &job.Status, &job.Progress,
		&job.TotalAlbums, &job.CompletedAlbums, &job.FilesProcessed, &job.FilesUploaded,
		&progress, &logs, &job.Errors, &job.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if err := json.Unmarshal(progress, &job.AlbumProgress); err != nil {
		return nil, fmt.Errorf("decode album progress: %w", err)
	}
	if err := json.Unmarshal(logs, &job.Logs); err != nil {
		return nil, fmt.Errorf("decode job logs: %w", err)
	}
	return &job, nil
}

// GetStatus returns only the job status, for cheap cancellation polls.
func (r *JobRepository) GetStatus(ctx context.Context, id string) (database.JobStatus, error) {
	var status database.JobStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM sync_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", database.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query job status: %w", err)
	}
	return status, nil
}

// SetStatus updates only the status column. Terminal states also stamp
// completed_at so cancellation is visible in listings immediately.
func (r *JobRepository) SetStatus(ctx context.Context, id string, status database.JobStatus) error {
	var err error
	if status.Terminal() {
		_, err = r.pool.Exec(ctx,
			`UPDATE sync_jobs SET status = $2, completed_at = NOW() WHERE id = $1`, id, status)
	} else {
		_, err = r.pool.Exec(ctx,
			`UPDATE sync_jobs SET status = $2 WHERE id = $1`, id, status)
	}
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// List returns recent jobs, newest first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]database.SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, status, progress, total_albums, completed_albums,
		       files_processed, files_uploaded, album_progress, logs, errors, started_at, completed_at
		FROM sync_jobs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []database.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// FailStale force-fails RUNNING jobs started more than age ago. This is
// the operator escape hatch for jobs orphaned by a crashed process.
func (r *JobRepository) FailStale(ctx context.Context, age time.Duration) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $1, errors = 'job terminated: stuck in RUNNING past staleness threshold', completed_at = NOW()
		WHERE status = $2 AND started_at < $3
	`, database.JobFailed, database.JobRunning, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale jobs rows affected: %w", err)
	}
	return int(n), nil
}
