package syncer

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// ComparisonReport is the three-way inventory diff for one album. The
// six missing-sets are pairwise differences; the three only-sets hold
// filenames present in exactly one source. Inconsistencies counts the
// distinct filenames appearing in any missing-set.
type ComparisonReport struct {
	AlbumPath string `json:"albumPath"`

	LocalOnly   []string `json:"localOnly"`
	RemoteOnly  []string `json:"remoteOnly"`
	CatalogOnly []string `json:"catalogOnly"`

	LocalMissingFromRemote   []string `json:"localMissingFromRemote"`
	LocalMissingFromCatalog  []string `json:"localMissingFromCatalog"`
	RemoteMissingFromLocal   []string `json:"remoteMissingFromLocal"`
	RemoteMissingFromCatalog []string `json:"remoteMissingFromCatalog"`
	CatalogMissingFromLocal  []string `json:"catalogMissingFromLocal"`
	CatalogMissingFromRemote []string `json:"catalogMissingFromRemote"`

	Inconsistencies   int      `json:"inconsistencies"`
	SafeDeleteGranted bool     `json:"safeDeleteGranted"`
	Errors            []string `json:"errors,omitempty"`
}

// LocalLister provides the local filename inventory of an album.
type LocalLister interface {
	Filenames(albumPath string) ([]string, error)
}

// Comparator builds ComparisonReports. It mutates nothing except the
// album's safe-delete flag, and only when all three sources agree.
type Comparator struct {
	scanner LocalLister
	store   storage.ObjectStore
	albums  database.AlbumRepository
	media   database.MediaRepository
}

// NewComparator creates a comparator over the three inventory sources.
func NewComparator(scanner LocalLister, store storage.ObjectStore, albums database.AlbumRepository, media database.MediaRepository) *Comparator {
	return &Comparator{scanner: scanner, store: store, albums: albums, media: media}
}

// Compare fetches the three inventories for an album and diffs them. A
// single source's listing failure is recorded in Errors and that source
// is treated as empty; the other two are still compared.
func (c *Comparator) Compare(ctx context.Context, albumPath string) (*ComparisonReport, error) {
	album, err := c.albums.GetByPath(ctx, albumPath)
	if err != nil {
		return nil, fmt.Errorf("could not load album %s: %w", albumPath, err)
	}

	report := &ComparisonReport{AlbumPath: albumPath}

	local := make(map[string]bool)
	if names, err := c.scanner.Filenames(albumPath); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("local listing: %v", err))
	} else {
		for _, n := range names {
			local[n] = true
		}
	}

	remote := make(map[string]bool)
	if objects, err := c.store.List(ctx, storage.AlbumPrefix(albumPath)); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("remote listing: %v", err))
	} else {
		for _, obj := range objects {
			remote[path.Base(obj.Key)] = true
		}
	}

	catalog := make(map[string]bool)
	if names, err := c.media.Filenames(ctx, album.ID); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("catalog listing: %v", err))
	} else {
		for _, n := range names {
			catalog[n] = true
		}
	}

	report.LocalMissingFromRemote = difference(local, remote)
	report.LocalMissingFromCatalog = difference(local, catalog)
	report.RemoteMissingFromLocal = difference(remote, local)
	report.RemoteMissingFromCatalog = difference(remote, catalog)
	report.CatalogMissingFromLocal = difference(catalog, local)
	report.CatalogMissingFromRemote = difference(catalog, remote)

	report.LocalOnly = intersectMissing(local, remote, catalog)
	report.RemoteOnly = intersectMissing(remote, local, catalog)
	report.CatalogOnly = intersectMissing(catalog, local, remote)

	report.Inconsistencies = countDistinct(
		report.LocalMissingFromRemote, report.LocalMissingFromCatalog,
		report.RemoteMissingFromLocal, report.RemoteMissingFromCatalog,
		report.CatalogMissingFromLocal, report.CatalogMissingFromRemote,
	)

	if report.Inconsistencies == 0 && len(report.Errors) == 0 {
		if err := c.albums.SetSafeDelete(ctx, album.ID, true); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("safe-delete flag: %v", err))
		} else {
			report.SafeDeleteGranted = true
		}
	}

	return report, nil
}

// difference returns the sorted members of a that are not in b.
func difference(a, b map[string]bool) []string {
	out := []string{}
	for name := range a {
		if !b[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// intersectMissing returns the sorted members of a present in neither b
// nor c.
func intersectMissing(a, b, c map[string]bool) []string {
	out := []string{}
	for name := range a {
		if !b[name] && !c[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// countDistinct counts unique names across the given sets. A file
// missing from two sources is one inconsistency, not two.
func countDistinct(sets ...[]string) int {
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, name := range set {
			seen[name] = true
		}
	}
	return len(seen)
}
