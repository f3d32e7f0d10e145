package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PersonRepository provides PostgreSQL-backed person storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

// List returns people, optionally restricted to confirmed ones.
func (r *PersonRepository) List(ctx context.Context, confirmedOnly bool) ([]database.Person, error) {
	query := `SELECT id, name, confirmed, created_at FROM people`
	if confirmedOnly {
		query += ` WHERE confirmed`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var people []database.Person
	for rows.Next() {
		var p database.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Confirmed, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// Get returns a person by id.
func (r *PersonRepository) Get(ctx context.Context, id string) (*database.Person, error) {
	var p database.Person
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, confirmed, created_at FROM people WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Confirmed, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return &p, nil
}

// CreateWithFaces inserts the person and assigns the given faces in one
// transaction, so a failure never leaves a half-assigned cluster.
func (r *PersonRepository) CreateWithFaces(ctx context.Context, person *database.Person, faceIDs []int64) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO people (id, name, confirmed) VALUES ($1, $2, $3)
		RETURNING created_at
	`, person.ID, person.Name, person.Confirmed).Scan(&person.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}

	if len(faceIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE faces SET person_id = $1 WHERE id = ANY($2)`,
			person.ID, pq.Array(faceIDs)); err != nil {
			return fmt.Errorf("assign faces to new person: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rename changes the person's display name.
func (r *PersonRepository) Rename(ctx context.Context, id, name string) error {
	_, err := r.pool.Exec(ctx, `UPDATE people SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return nil
}

// SetConfirmed flips the confirmed flag.
func (r *PersonRepository) SetConfirmed(ctx context.Context, id string, confirmed bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE people SET confirmed = $2 WHERE id = $1`, id, confirmed)
	if err != nil {
		return fmt.Errorf("update person confirmed flag: %w", err)
	}
	return nil
}

// Delete removes the person. The faces FK is ON DELETE SET NULL, so the
// person's faces survive with person_id cleared.
func (r *PersonRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}

// Merge reassigns all of source's faces to target and deletes source,
// transactionally.
func (r *PersonRepository) Merge(ctx context.Context, sourceID, targetID string) error {
	if sourceID == targetID {
		return errors.New("cannot merge a person into itself")
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE faces SET person_id = $1 WHERE person_id = $2`, targetID, sourceID); err != nil {
		return fmt.Errorf("reassign faces: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete merged person: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RepresentativeFaces returns one face per person: the earliest assigned
// face, which stays stable as new faces are added.
func (r *PersonRepository) RepresentativeFaces(ctx context.Context, confirmedOnly bool) (map[string]database.Face, error) {
	query := `
		SELECT DISTINCT ON (f.person_id)
		       f.id, f.media_id, f.person_id, f.bbox, f.confidence, f.embedding, f.ignored, f.created_at
		FROM faces f
		JOIN people p ON p.id = f.person_id
		WHERE f.person_id IS NOT NULL`
	if confirmedOnly {
		query += ` AND p.confirmed`
	}
	query += ` ORDER BY f.person_id, f.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query representative faces: %w", err)
	}
	defer rows.Close()

	reps := make(map[string]database.Face)
	for rows.Next() {
		var f database.Face
		var personID sql.NullString
		var bbox pq.Float64Array
		var embedding pgvector.Vector
		err := rows.Scan(&f.ID, &f.MediaID, &personID, &bbox, &f.Confidence, &embedding, &f.Ignored, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan representative face: %w", err)
		}
		if !personID.Valid {
			continue
		}
		id := personID.String
		f.PersonID = &id
		f.BBox = bbox
		f.Embedding = embedding.Slice()
		reps[id] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate representative faces: %w", err)
	}
	return reps, nil
}
