package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
)

// DownloadRepository provides PostgreSQL-backed download link storage.
type DownloadRepository struct {
	pool *Pool
}

// NewDownloadRepository creates a new PostgreSQL download repository.
func NewDownloadRepository(pool *Pool) *DownloadRepository {
	return &DownloadRepository{pool: pool}
}

// Create inserts a new download link row.
func (r *DownloadRepository) Create(ctx context.Context, link *database.DownloadLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO download_links (id, token, status, progress, file_count, zip_key, error, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, link.ID, link.Token, link.Status, link.Progress, link.FileCount,
		link.ZipKey, link.Error, link.ExpiresAt, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert download link: %w", err)
	}
	return nil
}

// Update writes the mutable columns of a download link.
func (r *DownloadRepository) Update(ctx context.Context, link *database.DownloadLink) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE download_links
		SET status = $2, progress = $3, file_count = $4, zip_key = $5, error = $6, done_at = $7
		WHERE id = $1
	`, link.ID, link.Status, link.Progress, link.FileCount, link.ZipKey, link.Error, link.DoneAt)
	if err != nil {
		return fmt.Errorf("update download link: %w", err)
	}
	return nil
}

// GetByToken returns the link for a public token.
func (r *DownloadRepository) GetByToken(ctx context.Context, token string) (*database.DownloadLink, error) {
	var link database.DownloadLink
	var doneAt sql.NullTime
	err := r.pool.QueryRow(ctx, `
		SELECT id, token, status, progress, file_count, zip_key, error, expires_at, created_at, done_at
		FROM download_links WHERE token = $1
	`, token).Scan(&link.ID, &link.Token, &link.Status, &link.Progress, &link.FileCount,
		&link.ZipKey, &link.Error, &link.ExpiresAt, &link.CreatedAt, &doneAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query download link: %w", err)
	}
	if doneAt.Valid {
		t := doneAt.Time
		link.DoneAt = &t
	}
	return &link, nil
}

// DeleteExpired removes links past their expiry and returns the zip keys
// of the removed rows for best-effort remote cleanup.
func (r *DownloadRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM download_links WHERE expires_at < $1 RETURNING zip_key
	`, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired download links: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan zip key: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zip keys: %w", err)
	}
	return keys, nil
}
