package syncer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// AssetGenerator receives uploaded photos for derived-asset generation.
// Enqueue must not block and must never fail the upload.
type AssetGenerator interface {
	Enqueue(mediaID int64, remoteKey string, data []byte)
}

// NopAssetGenerator discards asset requests.
type NopAssetGenerator struct{}

func (NopAssetGenerator) Enqueue(int64, string, []byte) {}

// UploadStats is a batch result. FilesUploaded counts new uploads plus
// existing files whose remote copy and metadata were re-verified.
type UploadStats struct {
	FilesProcessed int      `json:"filesProcessed"`
	FilesUploaded  int      `json:"filesUploaded"`
	Issues         []string `json:"issues,omitempty"`
}

// ProgressFunc fires once per completed chunk with cumulative counts.
type ProgressFunc func(processed, uploaded int)

// Uploader pushes one album's media files to the object store and
// records them in the catalog. Uploads run in chunks of size
// concurrency; a chunk completes fully before the next starts.
type Uploader struct {
	media       database.MediaRepository
	store       storage.ObjectStore
	assets      AssetGenerator
	concurrency int
}

// NewUploader creates an uploader with the given chunk size. Values
// below 1 are raised to 1.
func NewUploader(media database.MediaRepository, store storage.ObjectStore, assets AssetGenerator, concurrency int) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	if assets == nil {
		assets = NopAssetGenerator{}
	}
	return &Uploader{media: media, store: store, assets: assets, concurrency: concurrency}
}

// Run synchronizes the given scanned files of one kind against the
// album's catalog rows and the object store. Any single file's failure
// becomes an issue string; the batch always runs to completion.
func (u *Uploader) Run(ctx context.Context, album *database.Album, kind database.MediaKind, files []library.MediaFile, progress ProgressFunc) (*UploadStats, error) {
	if progress == nil {
		progress = func(int, int) {}
	}
	stats := &UploadStats{}

	existing, err := u.media.ListByAlbum(ctx, album.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("could not list catalog rows: %w", err)
	}
	existingByName := make(map[string]database.MediaItem, len(existing))
	for _, item := range existing {
		existingByName[item.Filename] = item
	}
	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[f.Filename] = true
	}

	// Phase 1: rows whose file vanished locally. The remote object goes
	// first, then the row; a failed remote delete leaves the row so the
	// next run retries.
	for name, item := range existingByName {
		if scanned[name] {
			continue
		}
		if item.RemoteKey != "" {
			if err := u.store.Delete(ctx, item.RemoteKey); err != nil {
				stats.Issues = append(stats.Issues, fmt.Sprintf("delete remote %s: %v", name, err))
				continue
			}
		}
		if err := u.media.Delete(ctx, item.ID); err != nil {
			stats.Issues = append(stats.Issues, fmt.Sprintf("delete catalog row %s: %v", name, err))
		}
	}

	// Phase 2: split scanned files into new uploads and metadata-only
	// updates. An existing row whose remote object disappeared is
	// reclassified as a new upload and gets full new-entry treatment.
	var uploads []library.MediaFile
	type metadataUpdate struct {
		file library.MediaFile
		item database.MediaItem
	}
	var updates []metadataUpdate

	for _, f := range files {
		item, known := existingByName[f.Filename]
		if !known {
			uploads = append(uploads, f)
			continue
		}
		exists, err := u.store.Exists(ctx, item.RemoteKey)
		if err != nil {
			stats.Issues = append(stats.Issues, fmt.Sprintf("probe remote %s: %v", f.Filename, err))
			stats.FilesProcessed++
			continue
		}
		if !exists {
			if err := u.media.Delete(ctx, item.ID); err != nil {
				stats.Issues = append(stats.Issues, fmt.Sprintf("reset stale row %s: %v", f.Filename, err))
				stats.FilesProcessed++
				continue
			}
			uploads = append(uploads, f)
			continue
		}
		updates = append(updates, metadataUpdate{file: f, item: item})
	}

	// Phase 3: new uploads in concurrent chunks of size N.
	for start := 0; start < len(uploads); start += u.concurrency {
		end := start + u.concurrency
		if end > len(uploads) {
			end = len(uploads)
		}
		u.uploadChunk(ctx, album, kind, uploads[start:end], stats)
		progress(stats.FilesProcessed, stats.FilesUploaded)
	}

	// Phase 4: metadata updates in smaller chunks; database-only work
	// gains nothing from wide fan-out.
	chunk := u.concurrency * 2
	if chunk > 10 {
		chunk = 10
	}
	for start := 0; start < len(updates); start += chunk {
		end := start + chunk
		if end > len(updates) {
			end = len(updates)
		}
		for _, upd := range updates[start:end] {
			stats.FilesProcessed++
			if err := u.media.UpdateScanInfo(ctx, upd.item.ID, upd.file.Size, upd.file.TakenAt); err != nil {
				stats.Issues = append(stats.Issues, fmt.Sprintf("update metadata %s: %v", upd.file.Filename, err))
				continue
			}
			stats.FilesUploaded++
		}
		progress(stats.FilesProcessed, stats.FilesUploaded)
	}

	return stats, nil
}

// uploadChunk runs one chunk of uploads concurrently and waits for all
// of them before returning.
func (u *Uploader) uploadChunk(ctx context.Context, album *database.Album, kind database.MediaKind, chunk []library.MediaFile, stats *UploadStats) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, file := range chunk {
		wg.Add(1)
		go func(f library.MediaFile) {
			defer wg.Done()
			mediaID, key, data, err := u.uploadOne(ctx, album, kind, f)

			mu.Lock()
			defer mu.Unlock()
			stats.FilesProcessed++
			if err != nil {
				stats.Issues = append(stats.Issues, fmt.Sprintf("upload %s: %v", f.Filename, err))
				return
			}
			stats.FilesUploaded++
			if kind == database.MediaPhoto {
				u.assets.Enqueue(mediaID, key, data)
			}
		}(file)
	}
	wg.Wait()
}

// uploadOne reads a file, stores it remotely unless the object already
// exists under its deterministic key, and creates the catalog row.
func (u *Uploader) uploadOne(ctx context.Context, album *database.Album, kind database.MediaKind, f library.MediaFile) (int64, string, []byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, "", nil, fmt.Errorf("read file: %w", err)
	}

	key := storage.GenerateKey(album.Path, f.Filename)
	exists, err := u.store.Exists(ctx, key)
	if err != nil {
		return 0, "", nil, fmt.Errorf("probe remote: %w", err)
	}
	if !exists {
		contentType := mime.TypeByExtension(filepath.Ext(f.Filename))
		if err := u.store.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return 0, "", nil, fmt.Errorf("store object: %w", err)
		}
	}

	item := &database.MediaItem{
		AlbumID:      album.ID,
		Kind:         kind,
		Filename:     f.Filename,
		OriginalPath: f.Path,
		RemoteKey:    key,
		FileSize:     f.Size,
		TakenAt:      f.TakenAt,
	}
	if err := u.media.Create(ctx, item); err != nil {
		return 0, "", nil, fmt.Errorf("create catalog row: %w", err)
	}
	return item.ID, key, data, nil
}
