package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/database/mock"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

func writeMediaFiles(t *testing.T, dir string, names ...string) []library.MediaFile {
	t.Helper()
	files := make([]library.MediaFile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("data-"+name), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		files = append(files, library.MediaFile{
			Filename: name,
			Path:     path,
			Kind:     database.MediaPhoto,
			Size:     int64(5 + len(name)),
		})
	}
	return files
}

func TestUploader_UploadsNewFiles(t *testing.T) {
	dir := t.TempDir()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()
	album := &database.Album{ID: 1, Path: "/a"}
	files := writeMediaFiles(t, dir, "one.jpg", "two.jpg", "three.jpg")

	uploader := NewUploader(media, store, nil, 2)
	var callbacks int
	stats, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, func(p, u int) { callbacks++ })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.FilesProcessed != 3 || stats.FilesUploaded != 3 {
		t.Errorf("expected 3/3, got %d/%d", stats.FilesProcessed, stats.FilesUploaded)
	}
	if len(stats.Issues) != 0 {
		t.Errorf("unexpected issues: %v", stats.Issues)
	}
	// Chunks of 2: two callback fires for three files.
	if callbacks != 2 {
		t.Errorf("expected 2 chunk callbacks, got %d", callbacks)
	}

	if keys := store.Keys(); len(keys) != 3 {
		t.Errorf("expected 3 stored objects, got %v", keys)
	}
	rows, _ := media.ListByAlbum(context.Background(), 1, database.MediaPhoto)
	if len(rows) != 3 {
		t.Errorf("expected 3 catalog rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.RemoteKey == "" {
			t.Errorf("row %s missing remote key", row.Filename)
		}
	}
}

func TestUploader_PartialFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()
	album := &database.Album{ID: 1, Path: "/a"}

	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("%02d.jpg", i+1)
	}
	files := writeMediaFiles(t, dir, names...)

	// File 5 fails at the remote store.
	store.FailKeys = map[string]error{
		storage.GenerateKey("/a", "05.jpg"): errors.New("connection reset"),
	}

	uploader := NewUploader(media, store, nil, 4)
	stats, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.FilesUploaded != 9 {
		t.Errorf("expected 9 uploaded, got %d", stats.FilesUploaded)
	}
	if len(stats.Issues) != 1 {
		t.Errorf("expected 1 issue, got %v", stats.Issues)
	}
	if stats.FilesProcessed != 10 {
		t.Errorf("expected all 10 processed, got %d", stats.FilesProcessed)
	}

	// The failed file must not get a catalog row.
	rows, _ := media.ListByAlbum(context.Background(), 1, database.MediaPhoto)
	for _, row := range rows {
		if row.Filename == "05.jpg" {
			t.Error("failed upload must not create a catalog row")
		}
	}
	if len(rows) != 9 {
		t.Errorf("expected 9 catalog rows, got %d", len(rows))
	}
}

func TestUploader_SecondRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()
	album := &database.Album{ID: 1, Path: "/a"}
	files := writeMediaFiles(t, dir, "one.jpg", "two.jpg")

	uploader := NewUploader(media, store, nil, 2)
	if _, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Any further Put is a non-idempotent re-upload.
	store.PutError = errors.New("unexpected upload")

	stats, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(stats.Issues) != 0 {
		t.Errorf("second run should not re-upload: %v", stats.Issues)
	}
	if stats.FilesUploaded != 2 {
		t.Errorf("verified files still count as uploaded, got %d", stats.FilesUploaded)
	}
	rows, _ := media.ListByAlbum(context.Background(), 1, database.MediaPhoto)
	if len(rows) != 2 {
		t.Errorf("expected 2 catalog rows after second run, got %d", len(rows))
	}
}

func TestUploader_DeletesVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()
	album := &database.Album{ID: 1, Path: "/a"}

	// Catalog knows two files; only one survives on disk.
	key := storage.GenerateKey("/a", "old.jpg")
	store.Seed(key, []byte("old"))
	media.Add(database.MediaItem{AlbumID: 1, Kind: database.MediaPhoto, Filename: "old.jpg", RemoteKey: key})

	keepKey := storage.GenerateKey("/a", "keep.jpg")
	store.Seed(keepKey, []byte("keep"))
	media.Add(database.MediaItem{AlbumID: 1, Kind: database.MediaPhoto, Filename: "keep.jpg", RemoteKey: keepKey})

	files := writeMediaFiles(t, dir, "keep.jpg")

	uploader := NewUploader(media, store, nil, 2)
	if _, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rows, _ := media.ListByAlbum(context.Background(), 1, database.MediaPhoto)
	if len(rows) != 1 || rows[0].Filename != "keep.jpg" {
		t.Errorf("expected only keep.jpg to remain, got %+v", rows)
	}
	if exists, _ := store.Exists(context.Background(), key); exists {
		t.Error("vanished file's remote object should be deleted")
	}
	if exists, _ := store.Exists(context.Background(), keepKey); !exists {
		t.Error("surviving file's remote object must stay")
	}
}

func TestUploader_ReuploadsWhenRemoteMissing(t *testing.T) {
	dir := t.TempDir()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()
	album := &database.Album{ID: 1, Path: "/a"}

	// Catalog row exists but the remote object vanished.
	key := storage.GenerateKey("/a", "one.jpg")
	media.Add(database.MediaItem{AlbumID: 1, Kind: database.MediaPhoto, Filename: "one.jpg", RemoteKey: key})
	files := writeMediaFiles(t, dir, "one.jpg")

	uploader := NewUploader(media, store, nil, 2)
	stats, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.FilesUploaded != 1 {
		t.Errorf("expected re-upload, got %d uploaded", stats.FilesUploaded)
	}
	if exists, _ := store.Exists(context.Background(), key); !exists {
		t.Error("object should be re-uploaded")
	}
	// Full new-entry treatment: exactly one fresh row.
	rows, _ := media.ListByAlbum(context.Background(), 1, database.MediaPhoto)
	if len(rows) != 1 {
		t.Fatalf("expected 1 catalog row, got %d", len(rows))
	}
}

type countingAssets struct {
	ids []int64
}

func (c *countingAssets) Enqueue(mediaID int64, remoteKey string, data []byte) {
	c.ids = append(c.ids, mediaID)
}

func TestUploader_EnqueuesDerivedAssets(t *testing.T) {
	dir := t.TempDir()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()
	album := &database.Album{ID: 1, Path: "/a"}
	files := writeMediaFiles(t, dir, "one.jpg")
	assets := &countingAssets{}

	uploader := NewUploader(media, store, assets, 1)
	if _, err := uploader.Run(context.Background(), album, database.MediaPhoto, files, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(assets.ids) != 1 {
		t.Errorf("expected 1 asset request, got %d", len(assets.ids))
	}
}
