package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/database/mock"
	"github.com/jcalado/lumina-sub001/internal/library"
	"github.com/jcalado/lumina-sub001/internal/storage"
	"github.com/jcalado/lumina-sub001/internal/syncer"
)

// testRepos bundles the in-memory state behind a handler under test.
type testRepos struct {
	albums *mock.AlbumRepository
	media  *mock.MediaRepository
	faces  *mock.FaceRepository
	people *mock.PersonRepository
	jobs   *mock.JobRepository
	store  *storage.MemoryStore
}

func newTestRepos() *testRepos {
	faces := mock.NewFaceRepository()
	return &testRepos{
		albums: mock.NewAlbumRepository(),
		media:  mock.NewMediaRepository(),
		faces:  faces,
		people: mock.NewPersonRepository(faces),
		jobs:   mock.NewJobRepository(),
		store:  storage.NewMemoryStore(),
	}
}

// newTestLibrary creates a scanner over a temp directory with one album
// holding the given filenames.
func newTestLibrary(t *testing.T, albumPath string, filenames []string) *library.Scanner {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(albumPath, "/")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range filenames {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("test-bytes-"+name), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	return library.NewScanner(root)
}

// seedSyncedAlbum seeds an album whose files exist locally, remotely and
// in the catalog, and returns the album id.
func seedSyncedAlbum(t *testing.T, repos *testRepos, albumPath string, filenames []string) int64 {
	t.Helper()
	albumID := repos.albums.Add(database.Album{
		Path:           albumPath,
		Name:           strings.TrimPrefix(albumPath, "/"),
		SyncedToRemote: true,
	})
	for _, name := range filenames {
		key := storage.GenerateKey(albumPath, name)
		repos.store.Seed(key, []byte("test-bytes-"+name))
		repos.media.Add(database.MediaItem{
			AlbumID:   albumID,
			Kind:      database.MediaPhoto,
			Filename:  name,
			RemoteKey: key,
		})
	}
	return albumID
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// assertStatusCode checks the recorded status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// parseJSONResponse decodes the recorded body into target.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response body: %v\nBody: %s", err, recorder.Body.String())
	}
}

// sinkFunc adapts a function to syncer.EventSink.
type sinkFunc func(syncer.Event)

func (f sinkFunc) Publish(e syncer.Event) { f(e) }
