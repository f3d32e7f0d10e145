//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jcalado/lumina-sub001/internal/config"
	"github.com/jcalado/lumina-sub001/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

// seedAlbum inserts an album and returns it with its id populated.
func seedAlbum(t *testing.T, ctx context.Context, repo *AlbumRepository, path string) *database.Album {
	t.Helper()
	album := &database.Album{Path: path, Name: path}
	if err := repo.Upsert(ctx, album); err != nil {
		t.Fatalf("Failed to upsert album: %v", err)
	}
	got, err := repo.GetByPath(ctx, path)
	if err != nil {
		t.Fatalf("Failed to load album back: %v", err)
	}
	return got
}

func seedMedia(t *testing.T, ctx context.Context, repo *MediaRepository, albumID int64, filename string) *database.MediaItem {
	t.Helper()
	item := &database.MediaItem{
		AlbumID:      albumID,
		Kind:         database.MediaPhoto,
		Filename:     filename,
		OriginalPath: "2024/" + filename,
		RemoteKey:    "photos/2024/" + filename,
		FileSize:     1024,
	}
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("Failed to create media item: %v", err)
	}
	return item
}

// testEmbedding returns a unit embedding along one axis, so similarity
// ordering between seeded faces is unambiguous.
func testEmbedding(axis int) []float32 {
	e := make([]float32, database.FaceEmbeddingDim)
	e[axis] = 1
	return e
}

func TestAlbumRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAlbumRepository(pool)

	t.Run("UpsertAndGet", func(t *testing.T) {
		album := seedAlbum(t, ctx, repo, "2024/summer")
		if album.ID == 0 {
			t.Fatal("Expected a generated id")
		}

		got, err := repo.Get(ctx, album.ID)
		if err != nil {
			t.Fatalf("Failed to get album by id: %v", err)
		}
		if got.Path != "2024/summer" {
			t.Errorf("Expected path '2024/summer', got '%s'", got.Path)
		}
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		first := seedAlbum(t, ctx, repo, "2024/autumn")
		second := seedAlbum(t, ctx, repo, "2024/autumn")
		if first.ID != second.ID {
			t.Errorf("Expected upsert to reuse id %d, got %d", first.ID, second.ID)
		}
	})

	t.Run("SetFlags", func(t *testing.T) {
		album := seedAlbum(t, ctx, repo, "2024/winter")
		now := time.Now().UTC()
		if err := repo.SetFlags(ctx, album.ID, true, true, &now); err != nil {
			t.Fatalf("Failed to set flags: %v", err)
		}

		got, err := repo.Get(ctx, album.ID)
		if err != nil {
			t.Fatalf("Failed to reload album: %v", err)
		}
		if !got.SyncedToRemote || !got.LocalFilesSafeDelete {
			t.Errorf("Expected both flags set, got synced=%v safeDelete=%v",
				got.SyncedToRemote, got.LocalFilesSafeDelete)
		}
		if got.LastSyncAt == nil {
			t.Error("Expected LastSyncAt to be recorded")
		}

		if err := repo.SetSafeDelete(ctx, album.ID, false); err != nil {
			t.Fatalf("Failed to clear safe delete: %v", err)
		}
		got, _ = repo.Get(ctx, album.ID)
		if got.LocalFilesSafeDelete {
			t.Error("Expected safe delete flag cleared")
		}
	})

	t.Run("GetMissingReturnsErrNotFound", func(t *testing.T) {
		_, err := repo.Get(ctx, 999999)
		if err != database.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestMediaRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	albums := NewAlbumRepository(pool)
	repo := NewMediaRepository(pool)

	album := seedAlbum(t, ctx, albums, "2024/trip")
	seedMedia(t, ctx, repo, album.ID, "a.jpg")
	seedMedia(t, ctx, repo, album.ID, "b.jpg")

	t.Run("ListByAlbum", func(t *testing.T) {
		items, err := repo.ListByAlbum(ctx, album.ID, "")
		if err != nil {
			t.Fatalf("Failed to list media: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("Expected 2 items, got %d", len(items))
		}
	})

	t.Run("Filenames", func(t *testing.T) {
		names, err := repo.Filenames(ctx, album.ID)
		if err != nil {
			t.Fatalf("Failed to list filenames: %v", err)
		}
		if len(names) != 2 {
			t.Errorf("Expected 2 filenames, got %d", len(names))
		}
	})

	t.Run("CountRemoteBacked", func(t *testing.T) {
		n, err := repo.CountRemoteBacked(ctx, album.ID)
		if err != nil {
			t.Fatalf("Failed to count remote-backed media: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 remote-backed items, got %d", n)
		}
	})

	t.Run("DeleteByAlbum", func(t *testing.T) {
		scratch := seedAlbum(t, ctx, albums, "2024/scratch")
		seedMedia(t, ctx, repo, scratch.ID, "x.jpg")

		keys, err := repo.DeleteByAlbum(ctx, scratch.ID)
		if err != nil {
			t.Fatalf("Failed to delete album media: %v", err)
		}
		if len(keys) != 1 {
			t.Errorf("Expected 1 remote key back, got %d", len(keys))
		}
		items, _ := repo.ListByAlbum(ctx, scratch.ID, "")
		if len(items) != 0 {
			t.Errorf("Expected no items left, got %d", len(items))
		}
	})
}

func TestFaceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	albums := NewAlbumRepository(pool)
	media := NewMediaRepository(pool)
	repo := NewFaceRepository(pool)
	people := NewPersonRepository(pool)

	album := seedAlbum(t, ctx, albums, "2024/faces")
	item := seedMedia(t, ctx, media, album.ID, "group.jpg")

	faces := []database.Face{
		{MediaID: item.ID, BBox: []float64{0, 0, 10, 10}, Confidence: 0.99, Embedding: testEmbedding(0)},
		{MediaID: item.ID, BBox: []float64{20, 0, 10, 10}, Confidence: 0.98, Embedding: testEmbedding(1)},
		{MediaID: item.ID, BBox: []float64{40, 0, 10, 10}, Confidence: 0.97, Embedding: testEmbedding(2)},
	}
	if err := repo.SaveFaces(ctx, item.ID, faces); err != nil {
		t.Fatalf("Failed to save faces: %v", err)
	}

	t.Run("ListUnassigned", func(t *testing.T) {
		got, err := repo.ListUnassigned(ctx, 10, false)
		if err != nil {
			t.Fatalf("Failed to list unassigned faces: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 unassigned faces, got %d", len(got))
		}
		if len(got[0].Embedding) != database.FaceEmbeddingDim {
			t.Errorf("Expected %d-dim embedding, got %d", database.FaceEmbeddingDim, len(got[0].Embedding))
		}
	})

	t.Run("FindSimilar", func(t *testing.T) {
		// Query close to the first axis: matches face 1 before the others.
		query := testEmbedding(0)
		query[1] = 0.1

		got, distances, err := repo.FindSimilar(ctx, query, 2)
		if err != nil {
			t.Fatalf("Failed to find similar faces: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 neighbors, got %d", len(got))
		}
		if len(got[0].Embedding) == 0 || got[0].Embedding[0] != 1 {
			t.Error("Expected the nearest neighbor to be the first seeded face")
		}
		if len(distances) == 2 && distances[0] > distances[1] {
			t.Error("Expected distances in ascending order")
		}
	})

	t.Run("AssignAndIgnore", func(t *testing.T) {
		unassigned, _ := repo.ListUnassigned(ctx, 10, false)

		person := &database.Person{ID: uuid.NewString(), Name: "Anna", Confirmed: true}
		if err := people.CreateWithFaces(ctx, person, []int64{unassigned[0].ID}); err != nil {
			t.Fatalf("Failed to create person with face: %v", err)
		}
		if err := repo.SetIgnored(ctx, unassigned[1].ID, true); err != nil {
			t.Fatalf("Failed to ignore face: %v", err)
		}

		left, err := repo.ListUnassigned(ctx, 10, false)
		if err != nil {
			t.Fatalf("Failed to list unassigned faces: %v", err)
		}
		if len(left) != 1 {
			t.Errorf("Expected 1 face left unassigned, got %d", len(left))
		}

		assigned, err := repo.ListByPerson(ctx, person.ID)
		if err != nil {
			t.Fatalf("Failed to list person faces: %v", err)
		}
		if len(assigned) != 1 {
			t.Errorf("Expected 1 assigned face, got %d", len(assigned))
		}
	})

	t.Run("HNSW", func(t *testing.T) {
		if err := repo.EnableHNSW(ctx, ""); err != nil {
			t.Fatalf("Failed to build similarity index: %v", err)
		}
		// The ignored face is excluded from the index.
		if n := repo.HNSWCount(); n != 2 {
			t.Errorf("Expected 2 indexed faces, got %d", n)
		}
	})
}

func TestPersonRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	albums := NewAlbumRepository(pool)
	media := NewMediaRepository(pool)
	faceRepo := NewFaceRepository(pool)
	repo := NewPersonRepository(pool)

	album := seedAlbum(t, ctx, albums, "2024/people")
	item := seedMedia(t, ctx, media, album.ID, "two.jpg")

	seed := []database.Face{
		{MediaID: item.ID, BBox: []float64{0, 0, 5, 5}, Confidence: 0.9, Embedding: testEmbedding(3)},
		{MediaID: item.ID, BBox: []float64{10, 0, 5, 5}, Confidence: 0.9, Embedding: testEmbedding(4)},
	}
	if err := faceRepo.SaveFaces(ctx, item.ID, seed); err != nil {
		t.Fatalf("Failed to save faces: %v", err)
	}
	unassigned, _ := faceRepo.ListUnassigned(ctx, 10, false)

	source := &database.Person{ID: uuid.NewString(), Name: "Bob", Confirmed: false}
	target := &database.Person{ID: uuid.NewString(), Name: "Robert", Confirmed: true}
	if err := repo.CreateWithFaces(ctx, source, []int64{unassigned[0].ID}); err != nil {
		t.Fatalf("Failed to create source person: %v", err)
	}
	if err := repo.CreateWithFaces(ctx, target, []int64{unassigned[1].ID}); err != nil {
		t.Fatalf("Failed to create target person: %v", err)
	}

	t.Run("ListConfirmedOnly", func(t *testing.T) {
		confirmed, err := repo.List(ctx, true)
		if err != nil {
			t.Fatalf("Failed to list people: %v", err)
		}
		if len(confirmed) != 1 || confirmed[0].ID != target.ID {
			t.Errorf("Expected only the confirmed person, got %d people", len(confirmed))
		}
	})

	t.Run("Merge", func(t *testing.T) {
		if err := repo.Merge(ctx, source.ID, target.ID); err != nil {
			t.Fatalf("Failed to merge people: %v", err)
		}

		if _, err := repo.Get(ctx, source.ID); err != database.ErrNotFound {
			t.Errorf("Expected source person gone, got %v", err)
		}
		faces, err := faceRepo.ListByPerson(ctx, target.ID)
		if err != nil {
			t.Fatalf("Failed to list target faces: %v", err)
		}
		if len(faces) != 2 {
			t.Errorf("Expected 2 faces on target after merge, got %d", len(faces))
		}
	})

	t.Run("DeleteLeavesFacesUnassigned", func(t *testing.T) {
		if err := repo.Delete(ctx, target.ID); err != nil {
			t.Fatalf("Failed to delete person: %v", err)
		}
		left, err := faceRepo.ListUnassigned(ctx, 10, false)
		if err != nil {
			t.Fatalf("Failed to list unassigned faces: %v", err)
		}
		if len(left) != 2 {
			t.Errorf("Expected both faces unassigned again, got %d", len(left))
		}
	})
}

func TestJobRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewJobRepository(pool)

	t.Run("CreateUpdateGet", func(t *testing.T) {
		job := &database.SyncJob{
			ID:            uuid.NewString(),
			Type:          database.JobFilesystem,
			Status:        database.JobPending,
			AlbumProgress: map[string]database.AlbumProgressEntry{},
			StartedAt:     time.Now().UTC(),
		}
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}

		job.Status = database.JobRunning
		job.Progress = 40
		job.AlbumProgress["2024/trip"] = database.AlbumProgressEntry{
			Status:         database.ProgressCompleted,
			FilesProcessed: 12,
			FilesUploaded:  3,
		}
		job.AddLog(database.LogInfo, "album synced", "2024/trip")
		if err := repo.Update(ctx, job); err != nil {
			t.Fatalf("Failed to update job: %v", err)
		}

		got, err := repo.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != database.JobRunning || got.Progress != 40 {
			t.Errorf("Expected RUNNING at 40%%, got %s at %d%%", got.Status, got.Progress)
		}
		if got.AlbumProgress["2024/trip"].FilesProcessed != 12 {
			t.Error("Expected album progress to round-trip")
		}
		if len(got.Logs) != 1 {
			t.Errorf("Expected 1 log entry, got %d", len(got.Logs))
		}
	})

	t.Run("FailStale", func(t *testing.T) {
		stale := &database.SyncJob{
			ID:            uuid.NewString(),
			Type:          database.JobFilesystem,
			Status:        database.JobRunning,
			AlbumProgress: map[string]database.AlbumProgressEntry{},
			StartedAt:     time.Now().UTC().Add(-3 * time.Hour),
		}
		if err := repo.Create(ctx, stale); err != nil {
			t.Fatalf("Failed to create stale job: %v", err)
		}

		n, err := repo.FailStale(ctx, 2*time.Hour)
		if err != nil {
			t.Fatalf("Failed to fail stale jobs: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 stale job failed, got %d", n)
		}

		status, err := repo.GetStatus(ctx, stale.ID)
		if err != nil {
			t.Fatalf("Failed to get job status: %v", err)
		}
		if status != database.JobFailed {
			t.Errorf("Expected FAILED, got %s", status)
		}
	})
}

func TestDownloadRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewDownloadRepository(pool)

	t.Run("CreateAndGetByToken", func(t *testing.T) {
		link := &database.DownloadLink{
			ID:        uuid.NewString(),
			Token:     uuid.NewString(),
			Status:    database.JobPending,
			FileCount: 4,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.Create(ctx, link); err != nil {
			t.Fatalf("Failed to create link: %v", err)
		}

		got, err := repo.GetByToken(ctx, link.Token)
		if err != nil {
			t.Fatalf("Failed to get link by token: %v", err)
		}
		if got.FileCount != 4 {
			t.Errorf("Expected 4 files, got %d", got.FileCount)
		}
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		expired := &database.DownloadLink{
			ID:        uuid.NewString(),
			Token:     uuid.NewString(),
			Status:    database.JobCompleted,
			ZipKey:    "downloads/old.zip",
			ExpiresAt: time.Now().UTC().Add(-time.Hour),
			CreatedAt: time.Now().UTC().Add(-25 * time.Hour),
		}
		if err := repo.Create(ctx, expired); err != nil {
			t.Fatalf("Failed to create expired link: %v", err)
		}

		keys, err := repo.DeleteExpired(ctx, time.Now().UTC())
		if err != nil {
			t.Fatalf("Failed to delete expired links: %v", err)
		}
		if len(keys) != 1 || keys[0] != "downloads/old.zip" {
			t.Errorf("Expected the expired zip key back, got %v", keys)
		}

		if _, err := repo.GetByToken(ctx, expired.Token); err != database.ErrNotFound {
			t.Errorf("Expected expired link gone, got %v", err)
		}
	})
}
