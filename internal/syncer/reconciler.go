package syncer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// Reconciler actions.
const (
	ActionMarkedMissing = "marked_missing"
	ActionCleanedUp     = "cleaned_up"
	ActionNeedsReview   = "needs_review"
)

const missingMarker = "[local files missing]"

// ReconcileAction records one disposition decision for an orphaned
// album.
type ReconcileAction struct {
	AlbumPath string `json:"albumPath"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// ReconcileResult is the outcome of a reconciliation pass.
type ReconcileResult struct {
	Reconciled  []ReconcileAction `json:"reconciled"`
	NeedsReview []ReconcileAction `json:"needsReview"`
}

// Reconciler decides what happens to catalog albums whose directory no
// longer exists locally. It never deletes data that still has a remote
// copy.
type Reconciler struct {
	albums database.AlbumRepository
	media  database.MediaRepository
	store  storage.ObjectStore
}

// NewReconciler creates a reconciler.
func NewReconciler(albums database.AlbumRepository, media database.MediaRepository, store storage.ObjectStore) *Reconciler {
	return &Reconciler{albums: albums, media: media, store: store}
}

// Run inspects every catalog album absent from the given filesystem
// album-path set. Albums with remote-backed media are kept: either
// marked missing (when previously synced) or flagged for review (when
// the sync flag contradicts the remote evidence). Only albums with
// zero remote-backed media are deleted outright.
func (r *Reconciler) Run(ctx context.Context, fsPaths []string) (*ReconcileResult, error) {
	albums, err := r.albums.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list catalog albums: %w", err)
	}

	onDisk := make(map[string]bool, len(fsPaths))
	for _, p := range fsPaths {
		onDisk[p] = true
	}

	result := &ReconcileResult{}
	for _, album := range albums {
		if onDisk[album.Path] {
			continue
		}

		remoteBacked, err := r.media.CountRemoteBacked(ctx, album.ID)
		if err != nil {
			result.NeedsReview = append(result.NeedsReview, ReconcileAction{
				AlbumPath: album.Path,
				Action:    ActionNeedsReview,
				Reason:    fmt.Sprintf("could not count remote-backed media: %v", err),
			})
			continue
		}

		switch {
		case remoteBacked > 0 && album.SyncedToRemote:
			if err := r.markMissing(ctx, album); err != nil {
				result.NeedsReview = append(result.NeedsReview, ReconcileAction{
					AlbumPath: album.Path,
					Action:    ActionNeedsReview,
					Reason:    fmt.Sprintf("could not mark missing: %v", err),
				})
				continue
			}
			result.Reconciled = append(result.Reconciled, ReconcileAction{
				AlbumPath: album.Path,
				Action:    ActionMarkedMissing,
				Reason:    fmt.Sprintf("%d media items remain in remote storage", remoteBacked),
			})

		case remoteBacked == 0:
			if err := r.cleanUp(ctx, album); err != nil {
				result.NeedsReview = append(result.NeedsReview, ReconcileAction{
					AlbumPath: album.Path,
					Action:    ActionNeedsReview,
					Reason:    fmt.Sprintf("could not clean up: %v", err),
				})
				continue
			}
			result.Reconciled = append(result.Reconciled, ReconcileAction{
				AlbumPath: album.Path,
				Action:    ActionCleanedUp,
				Reason:    "no local directory and no remote-backed media",
			})

		default:
			// Remote-backed media but syncedToRemote is false: the flag
			// contradicts the evidence. Left for the operator.
			result.NeedsReview = append(result.NeedsReview, ReconcileAction{
				AlbumPath: album.Path,
				Action:    ActionNeedsReview,
				Reason:    fmt.Sprintf("%d remote-backed media items but album was never marked synced", remoteBacked),
			})
		}
	}

	return result, nil
}

func (r *Reconciler) markMissing(ctx context.Context, album database.Album) error {
	if err := r.albums.SetSafeDelete(ctx, album.ID, false); err != nil {
		return err
	}
	if strings.Contains(album.Description, missingMarker) {
		return nil
	}
	desc := strings.TrimSpace(album.Description + " " + missingMarker + " since " + time.Now().Format("2006-01-02"))
	return r.albums.SetDescription(ctx, album.ID, desc)
}

// cleanUp removes the album's media rows and the album itself. Remote
// deletion of any leftover keys is best-effort.
func (r *Reconciler) cleanUp(ctx context.Context, album database.Album) error {
	keys, err := r.media.DeleteByAlbum(ctx, album.ID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil {
			log.Printf("reconciler: could not delete remote object %s: %v", key, err)
		}
	}
	return r.albums.Delete(ctx, album.ID)
}
