// Package zipper assembles shareable zip archives of photos in the
// background. A download link carries a public token and an expiry;
// expired links and their archives are garbage collected.
package zipper

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// ErrNoRemotePhotos is returned when an album has nothing downloadable.
var ErrNoRemotePhotos = errors.New("album has no remote-backed photos")

// ErrNotReady is returned when an archive is requested before assembly
// finished.
var ErrNotReady = errors.New("archive not ready")

// Zipper creates and serves download links.
type Zipper struct {
	downloads database.DownloadRepository
	media     database.MediaRepository
	store     storage.ObjectStore
	linkTTL   time.Duration
}

// New creates a zipper. linkTTL bounds how long a finished archive
// stays downloadable.
func New(downloads database.DownloadRepository, media database.MediaRepository, store storage.ObjectStore, linkTTL time.Duration) *Zipper {
	if linkTTL <= 0 {
		linkTTL = 24 * time.Hour
	}
	return &Zipper{downloads: downloads, media: media, store: store, linkTTL: linkTTL}
}

// CreateLink registers a PENDING download link for an album and starts
// assembling the archive in the background.
func (z *Zipper) CreateLink(ctx context.Context, albumID int64) (*database.DownloadLink, error) {
	items, err := z.media.ListByAlbum(ctx, albumID, database.MediaPhoto)
	if err != nil {
		return nil, fmt.Errorf("could not list album photos: %w", err)
	}
	var keys []remoteFile
	for _, item := range items {
		if item.RemoteKey != "" {
			keys = append(keys, remoteFile{name: item.Filename, key: item.RemoteKey})
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoRemotePhotos
	}

	link := &database.DownloadLink{
		ID:        uuid.NewString(),
		Token:     newToken(),
		Status:    database.JobPending,
		FileCount: len(keys),
		ExpiresAt: time.Now().UTC().Add(z.linkTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := z.downloads.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("could not create download link: %w", err)
	}

	go z.assemble(context.WithoutCancel(ctx), *link, keys)
	return link, nil
}

// GetByToken returns a link snapshot. Expired links report ErrNotFound.
func (z *Zipper) GetByToken(ctx context.Context, token string) (*database.DownloadLink, error) {
	link, err := z.downloads.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if time.Now().After(link.ExpiresAt) {
		return nil, database.ErrNotFound
	}
	return link, nil
}

// Open streams a finished archive.
func (z *Zipper) Open(ctx context.Context, token string) (io.ReadCloser, error) {
	link, err := z.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.Status != database.JobCompleted {
		return nil, fmt.Errorf("%w (status %s)", ErrNotReady, link.Status)
	}
	return z.store.Get(ctx, link.ZipKey)
}

// CleanupExpired removes expired link rows and their archives.
func (z *Zipper) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := z.downloads.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("could not delete expired links: %w", err)
	}
	for _, key := range keys {
		if err := z.store.Delete(ctx, key); err != nil {
			log.Printf("zipper: could not delete archive %s: %v", key, err)
		}
	}
	return len(keys), nil
}

type remoteFile struct {
	name string
	key  string
}

// assemble builds the archive in memory and stores it. Any failure
// marks the link FAILED with the error; a missing single photo is
// skipped, not fatal.
func (z *Zipper) assemble(ctx context.Context, link database.DownloadLink, files []remoteFile) {
	link.Status = database.JobRunning
	z.persist(ctx, &link)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	added := 0
	for i, f := range files {
		if err := z.addFile(ctx, w, f); err != nil {
			log.Printf("zipper: skipping %s: %v", f.name, err)
		} else {
			added++
		}
		link.Progress = (i + 1) * 100 / len(files)
		z.persist(ctx, &link)
	}
	if err := w.Close(); err != nil {
		z.failLink(ctx, &link, fmt.Errorf("finalize archive: %w", err))
		return
	}
	if added == 0 {
		z.failLink(ctx, &link, fmt.Errorf("no photos could be archived"))
		return
	}

	key := storage.ZipKey(link.Token)
	if err := z.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), "application/zip"); err != nil {
		z.failLink(ctx, &link, fmt.Errorf("store archive: %w", err))
		return
	}

	now := time.Now().UTC()
	link.Status = database.JobCompleted
	link.Progress = 100
	link.ZipKey = key
	link.FileCount = added
	link.DoneAt = &now
	z.persist(ctx, &link)
}

func (z *Zipper) addFile(ctx context.Context, w *zip.Writer, f remoteFile) error {
	rc, err := z.store.Get(ctx, f.key)
	if err != nil {
		return err
	}
	defer rc.Close()

	entry, err := w.Create(f.name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, rc)
	return err
}

func (z *Zipper) failLink(ctx context.Context, link *database.DownloadLink, err error) {
	link.Status = database.JobFailed
	link.Error = err.Error()
	z.persist(ctx, link)
}

func (z *Zipper) persist(ctx context.Context, link *database.DownloadLink) {
	if err := z.downloads.Update(ctx, link); err != nil {
		log.Printf("zipper: could not persist link %s: %v", link.Token, err)
	}
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
