package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// FaceRepository provides PostgreSQL-backed face storage with an optional
// in-memory HNSW index for similar-face lookups. The index serves only
// the read path; grouping always works from the rows themselves.
type FaceRepository struct {
	pool      *Pool
	hnswIndex *database.FaceIndex
	hnswMu    sync.RWMutex
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const faceColumns = `id, media_id, person_id, bbox, confidence, embedding, ignored, created_at`

func scanFace(row interface{ Scan(...any) error }) (*database.Face, error) {
	var f database.Face
	var personID sql.NullString
	var bbox pq.Float64Array
	var embedding pgvector.Vector
	err := row.Scan(&f.ID, &f.MediaID, &personID, &bbox, &f.Confidence, &embedding, &f.Ignored, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	if personID.Valid {
		id := personID.String
		f.PersonID = &id
	}
	f.BBox = bbox
	f.Embedding = embedding.Slice()
	return &f, nil
}

func scanFaceRows(rows *sql.Rows) ([]database.Face, error) {
	var faces []database.Face
	for rows.Next() {
		face, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, *face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// SaveFaces replaces all faces of a media item in one transaction.
func (r *FaceRepository) SaveFaces(ctx context.Context, mediaID int64, faces []database.Face) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM faces WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("delete existing faces: %w", err)
	}

	for i := range faces {
		face := &faces[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO faces (media_id, person_id, bbox, confidence, embedding, ignored)
			VALUES ($1, $2, $3, $4, $5::vector, $6)
			RETURNING id, created_at
		`, mediaID, face.PersonID, pq.Array(face.BBox), face.Confidence,
			pgvector.NewVector(face.Embedding), face.Ignored,
		).Scan(&face.ID, &face.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert face %d/%d: %w", mediaID, i, err)
		}
		face.MediaID = mediaID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListUnassigned returns up to limit non-ignored faces with no person.
// Stable id order by default; ORDER BY random() when randomize is set so
// a capped run does not always chew on the same prefix.
func (r *FaceRepository) ListUnassigned(ctx context.Context, limit int, randomize bool) ([]database.Face, error) {
	order := "id"
	if randomize {
		order = "random()"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+faceColumns+` FROM faces
		WHERE person_id IS NULL AND NOT ignored
		ORDER BY `+order+` LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unassigned faces: %w", err)
	}
	defer rows.Close()

	return scanFaceRows(rows)
}

// ListEmbedded returns all non-ignored faces that carry an embedding,
// used to build the in-memory similarity index.
func (r *FaceRepository) ListEmbedded(ctx context.Context) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+faceColumns+` FROM faces
		WHERE embedding IS NOT NULL AND NOT ignored
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query embedded faces: %w", err)
	}
	defer rows.Close()

	return scanFaceRows(rows)
}

// ListByPerson returns all faces assigned to a person.
func (r *FaceRepository) ListByPerson(ctx context.Context, personID string) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+faceColumns+` FROM faces WHERE person_id = $1 ORDER BY id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query faces by person: %w", err)
	}
	defer rows.Close()

	return scanFaceRows(rows)
}

// AssignPerson sets person_id on the given faces in one transaction.
func (r *FaceRepository) AssignPerson(ctx context.Context, personID string, faceIDs []int64) error {
	if len(faceIDs) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE faces SET person_id = $1 WHERE id = ANY($2)`,
		personID, pq.Array(faceIDs)); err != nil {
		return fmt.Errorf("assign faces to person: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SetIgnored flips the ignored flag of a single face.
func (r *FaceRepository) SetIgnored(ctx context.Context, faceID int64, ignored bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE faces SET ignored = $2 WHERE id = $1`, faceID, ignored)
	if err != nil {
		return fmt.Errorf("update face ignored flag: %w", err)
	}
	return nil
}

// Get returns a face by id.
func (r *FaceRepository) Get(ctx context.Context, faceID int64) (*database.Face, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+faceColumns+` FROM faces WHERE id = $1`, faceID)
	face, err := scanFace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	return face, nil
}

// EnableHNSW builds the in-memory similar-face index from all embedded
// faces, optionally persisting it to indexPath.
func (r *FaceRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	faces, err := r.ListEmbedded(ctx)
	if err != nil {
		return err
	}

	index := database.NewFaceIndex(indexPath)
	if err := index.Build(faces); err != nil {
		return fmt.Errorf("build face index: %w", err)
	}

	r.hnswMu.Lock()
	r.hnswIndex = index
	r.hnswMu.Unlock()
	return nil
}

// HNSWCount returns the number of faces in the index, or 0 if disabled.
func (r *FaceRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// SaveHNSWIndex persists the index to its configured path, if any.
func (r *FaceRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return nil
	}
	return r.hnswIndex.Save()
}

// FindSimilar returns up to limit faces most similar to the query
// embedding, with their cosine distances. Uses the HNSW index when
// enabled, falling back to a pgvector query.
func (r *FaceRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.Face, []float64, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	r.hnswMu.RUnlock()

	if index != nil {
		return index.Search(embedding, limit)
	}
	return r.findSimilarPostgres(ctx, embedding, limit)
}

func (r *FaceRepository) findSimilarPostgres(ctx context.Context, embedding []float32, limit int) ([]database.Face, []float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+faceColumns+`, embedding <=> $1::vector AS distance
		FROM faces
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var faces []database.Face
	var distances []float64
	for rows.Next() {
		var f database.Face
		var personID sql.NullString
		var bbox pq.Float64Array
		var emb pgvector.Vector
		var distance float64
		err := rows.Scan(&f.ID, &f.MediaID, &personID, &bbox, &f.Confidence, &emb, &f.Ignored, &f.CreatedAt, &distance)
		if err != nil {
			return nil, nil, fmt.Errorf("scan similar face: %w", err)
		}
		if personID.Valid {
			id := personID.String
			f.PersonID = &id
		}
		f.BBox = bbox
		f.Embedding = emb.Slice()
		faces = append(faces, f)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar faces: %w", err)
	}
	return faces, distances, nil
}
