package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcalado/lumina-sub001/internal/config"
	"github.com/jcalado/lumina-sub001/internal/database/postgres"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// app bundles the backends every command needs: the catalog, the remote
// object store and the local library scanner.
type app struct {
	cfg       *config.Config
	pool      *postgres.Pool
	albums    *postgres.AlbumRepository
	media     *postgres.MediaRepository
	jobs      *postgres.JobRepository
	faces     *postgres.FaceRepository
	people    *postgres.PersonRepository
	downloads *postgres.DownloadRepository
	store     storage.ObjectStore
	scanner   *library.Scanner
}

// openApp connects to PostgreSQL, runs pending migrations and builds the
// S3 client and library scanner from the environment.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Library.PhotosDir == "" {
		return nil, errors.New("PHOTOS_DIR environment variable is required")
	}
	if cfg.Storage.Bucket == "" {
		return nil, errors.New("S3_BUCKET environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := storage.NewS3Store(ctx, &cfg.Storage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
	}

	return &app{
		cfg:       cfg,
		pool:      pool,
		albums:    postgres.NewAlbumRepository(pool),
		media:     postgres.NewMediaRepository(pool),
		jobs:      postgres.NewJobRepository(pool),
		faces:     postgres.NewFaceRepository(pool),
		people:    postgres.NewPersonRepository(pool),
		downloads: postgres.NewDownloadRepository(pool),
		store:     store,
		scanner:   library.NewScanner(cfg.Library.PhotosDir),
	}, nil
}

// Close releases the database pool.
func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		fmt.Printf("Warning: closing database pool: %v\n", err)
	}
}
