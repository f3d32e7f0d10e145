package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
)

// MediaRepository provides PostgreSQL-backed photo/video storage.
type MediaRepository struct {
	pool *Pool
}

// NewMediaRepository creates a new PostgreSQL media repository.
func NewMediaRepository(pool *Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

const mediaColumns = `id, album_id, kind, filename, original_path, remote_key, file_size, taken_at, metadata, created_at`

func scanMedia(row interface{ Scan(...any) error }) (*database.MediaItem, error) {
	var m database.MediaItem
	var takenAt sql.NullTime
	var metadata []byte
	err := row.Scan(&m.ID, &m.AlbumID, &m.Kind, &m.Filename, &m.OriginalPath,
		&m.RemoteKey, &m.FileSize, &takenAt, &metadata, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if takenAt.Valid {
		t := takenAt.Time
		m.TakenAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode media metadata: %w", err)
		}
	}
	return &m, nil
}

// ListByAlbum returns the album's media, optionally filtered by kind.
func (r *MediaRepository) ListByAlbum(ctx context.Context, albumID int64, kind database.MediaKind) ([]database.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE album_id = $1`
	args := []any{albumID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY filename`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var items []database.MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return items, nil
}

// Filenames returns the album's media filenames across both kinds.
func (r *MediaRepository) Filenames(ctx context.Context, albumID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT filename FROM media WHERE album_id = $1 ORDER BY filename`, albumID)
	if err != nil {
		return nil, fmt.Errorf("query media filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan filename: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filenames: %w", err)
	}
	return names, nil
}

// CountRemoteBacked counts the album's media with a non-empty remote key.
func (r *MediaRepository) CountRemoteBacked(ctx context.Context, albumID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM media WHERE album_id = $1 AND remote_key <> ''`, albumID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count remote-backed media: %w", err)
	}
	return count, nil
}

// Create inserts a media row and fills in ID.
func (r *MediaRepository) Create(ctx context.Context, item *database.MediaItem) error {
	var metadata []byte
	if item.Metadata != nil {
		var err error
		metadata, err = json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("encode media metadata: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO media (album_id, kind, filename, original_path, remote_key, file_size, taken_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, item.AlbumID, item.Kind, item.Filename, item.OriginalPath,
		item.RemoteKey, item.FileSize, item.TakenAt, metadata)

	if err := row.Scan(&item.ID, &item.CreatedAt); err != nil {
		return fmt.Errorf("insert media %s: %w", item.Filename, err)
	}
	return nil
}

// UpdateScanInfo refreshes size and taken-at after a rescan.
func (r *MediaRepository) UpdateScanInfo(ctx context.Context, id int64, fileSize int64, takenAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE media SET file_size = $2, taken_at = $3 WHERE id = $1`,
		id, fileSize, takenAt)
	if err != nil {
		return fmt.Errorf("update media scan info: %w", err)
	}
	return nil
}

// Delete removes one media row.
func (r *MediaRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// DeleteByAlbum removes all media rows of an album and returns their
// remote keys for best-effort remote cleanup.
func (r *MediaRepository) DeleteByAlbum(ctx context.Context, albumID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM media WHERE album_id = $1 RETURNING remote_key
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("delete album media: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan remote key: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remote keys: %w", err)
	}
	return keys, nil
}
