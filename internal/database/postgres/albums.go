package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
)

// AlbumRepository provides PostgreSQL-backed album storage.
type AlbumRepository struct {
	pool *Pool
}

// NewAlbumRepository creates a new PostgreSQL album repository.
func NewAlbumRepository(pool *Pool) *AlbumRepository {
	return &AlbumRepository{pool: pool}
}

const albumColumns = `id, path, name, description, synced_to_remote, local_files_safe_delete, last_sync_at, created_at, updated_at`

func scanAlbum(row interface{ Scan(...any) error }) (*database.Album, error) {
	var a database.Album
	var lastSync sql.NullTime
	err := row.Scan(&a.ID, &a.Path, &a.Name, &a.Description,
		&a.SyncedToRemote, &a.LocalFilesSafeDelete, &lastSync, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		t := lastSync.Time
		a.LastSyncAt = &t
	}
	return &a, nil
}

// Get returns the album by id.
func (r *AlbumRepository) Get(ctx context.Context, id int64) (*database.Album, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+albumColumns+` FROM albums WHERE id = $1`, id)
	album, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query album: %w", err)
	}
	return album, nil
}

// GetByPath returns the album at the given path.
func (r *AlbumRepository) GetByPath(ctx context.Context, path string) (*database.Album, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+albumColumns+` FROM albums WHERE path = $1`, path)
	album, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query album by path: %w", err)
	}
	return album, nil
}

// List returns all albums ordered by path.
func (r *AlbumRepository) List(ctx context.Context) ([]database.Album, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+albumColumns+` FROM albums ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query albums: %w", err)
	}
	defer rows.Close()

	var albums []database.Album
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		albums = append(albums, *album)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate albums: %w", err)
	}
	return albums, nil
}

// Upsert inserts or updates an album keyed by path and fills in ID.
func (r *AlbumRepository) Upsert(ctx context.Context, album *database.Album) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO albums (path, name, description, synced_to_remote, local_files_safe_delete, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			synced_to_remote = EXCLUDED.synced_to_remote,
			local_files_safe_delete = EXCLUDED.local_files_safe_delete,
			last_sync_at = EXCLUDED.last_sync_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, album.Path, album.Name, album.Description,
		album.SyncedToRemote, album.LocalFilesSafeDelete, album.LastSyncAt)

	if err := row.Scan(&album.ID, &album.CreatedAt, &album.UpdatedAt); err != nil {
		return fmt.Errorf("upsert album %s: %w", album.Path, err)
	}
	return nil
}

// SetFlags updates the sync flags and last_sync_at in one write.
func (r *AlbumRepository) SetFlags(ctx context.Context, id int64, syncedToRemote, safeDelete bool, lastSyncAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE albums
		SET synced_to_remote = $2, local_files_safe_delete = $3, last_sync_at = $4, updated_at = NOW()
		WHERE id = $1
	`, id, syncedToRemote, safeDelete, lastSyncAt)
	if err != nil {
		return fmt.Errorf("update album flags: %w", err)
	}
	return nil
}

// SetSafeDelete updates only local_files_safe_delete.
func (r *AlbumRepository) SetSafeDelete(ctx context.Context, id int64, safeDelete bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE albums SET local_files_safe_delete = $2, updated_at = NOW() WHERE id = $1
	`, id, safeDelete)
	if err != nil {
		return fmt.Errorf("update album safe delete: %w", err)
	}
	return nil
}

// SetDescription annotates the album.
func (r *AlbumRepository) SetDescription(ctx context.Context, id int64, description string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE albums SET description = $2, updated_at = NOW() WHERE id = $1
	`, id, description)
	if err != nil {
		return fmt.Errorf("update album description: %w", err)
	}
	return nil
}

// Delete removes the album row.
func (r *AlbumRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM albums WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete album: %w", err)
	}
	return nil
}
