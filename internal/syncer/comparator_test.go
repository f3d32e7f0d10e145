package syncer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/database/mock"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

type fakeLister struct {
	files map[string][]string
	err   error
}

func (f *fakeLister) Filenames(albumPath string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[albumPath], nil
}

func setupComparator(t *testing.T, local []string, remote []string, catalog []string) (*Comparator, *mock.AlbumRepository, int64) {
	t.Helper()
	albums := mock.NewAlbumRepository()
	media := mock.NewMediaRepository()
	store := storage.NewMemoryStore()

	albumID := albums.Add(database.Album{Path: "/Trip2023", Name: "Trip2023"})
	for _, name := range catalog {
		media.Add(database.MediaItem{AlbumID: albumID, Kind: database.MediaPhoto, Filename: name, RemoteKey: "media/Trip2023/" + name})
	}
	for _, name := range remote {
		store.Seed("media/Trip2023/"+name, []byte("x"))
	}
	scanner := &fakeLister{files: map[string][]string{"/Trip2023": local}}

	return NewComparator(scanner, store, albums, media), albums, albumID
}

func TestComparator_ThreeWayDiff(t *testing.T) {
	// local {a,b}, remote {a}, catalog {a,c}
	comparator, albums, albumID := setupComparator(t,
		[]string{"a.jpg", "b.jpg"}, []string{"a.jpg"}, []string{"a.jpg", "c.jpg"})

	report, err := comparator.Compare(context.Background(), "/Trip2023")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	assertSet := func(name string, got, want []string) {
		t.Helper()
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	assertSet("LocalOnly", report.LocalOnly, []string{"b.jpg"})
	assertSet("RemoteOnly", report.RemoteOnly, []string{})
	assertSet("CatalogOnly", report.CatalogOnly, []string{"c.jpg"})
	assertSet("LocalMissingFromRemote", report.LocalMissingFromRemote, []string{"b.jpg"})
	assertSet("LocalMissingFromCatalog", report.LocalMissingFromCatalog, []string{"b.jpg"})
	assertSet("RemoteMissingFromLocal", report.RemoteMissingFromLocal, []string{})
	assertSet("CatalogMissingFromLocal", report.CatalogMissingFromLocal, []string{"c.jpg"})
	assertSet("CatalogMissingFromRemote", report.CatalogMissingFromRemote, []string{"c.jpg"})

	// b and c are each one inconsistent file regardless of how many
	// sets they land in.
	if report.Inconsistencies != 2 {
		t.Errorf("expected 2 inconsistencies, got %d", report.Inconsistencies)
	}
	if report.SafeDeleteGranted {
		t.Error("safe delete must not be granted with inconsistencies")
	}

	album, _ := albums.GetByPath(context.Background(), "/Trip2023")
	if album.LocalFilesSafeDelete {
		t.Error("album flag must stay false")
	}
	_ = albumID
}

func TestComparator_ConsistentAlbumGrantsSafeDelete(t *testing.T) {
	names := []string{"a.jpg", "b.jpg"}
	comparator, albums, _ := setupComparator(t, names, names, names)

	report, err := comparator.Compare(context.Background(), "/Trip2023")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if report.Inconsistencies != 0 {
		t.Errorf("expected no inconsistencies, got %d", report.Inconsistencies)
	}
	if !report.SafeDeleteGranted {
		t.Error("expected safe delete to be granted")
	}
	album, _ := albums.GetByPath(context.Background(), "/Trip2023")
	if !album.LocalFilesSafeDelete {
		t.Error("album flag should be persisted")
	}
}

func TestComparator_PartialComparisonOnSourceError(t *testing.T) {
	names := []string{"a.jpg"}
	comparator, albums, _ := setupComparator(t, names, names, names)
	comparator.scanner = &fakeLister{err: errors.New("permission denied")}

	report, err := comparator.Compare(context.Background(), "/Trip2023")
	if err != nil {
		t.Fatalf("a failed source must not abort the comparison: %v", err)
	}

	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 source error, got %v", report.Errors)
	}
	// Remote and catalog still diffed against each other.
	if len(report.RemoteMissingFromCatalog) != 0 || len(report.CatalogMissingFromRemote) != 0 {
		t.Error("remote and catalog should agree")
	}
	// A partial comparison never grants safe delete, even when the
	// visible sets happen to be empty of true inconsistencies.
	if report.SafeDeleteGranted {
		t.Error("safe delete must not be granted on a partial comparison")
	}
	album, _ := albums.GetByPath(context.Background(), "/Trip2023")
	if album.LocalFilesSafeDelete {
		t.Error("album flag must stay false on partial comparison")
	}
}

func TestComparator_UnknownAlbum(t *testing.T) {
	comparator, _, _ := setupComparator(t, nil, nil, nil)
	if _, err := comparator.Compare(context.Background(), "/nope"); err == nil {
		t.Error("expected error for unknown album")
	}
}
