// Package mock provides in-memory implementations of the catalog
// repository interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
)

// AlbumRepository is an in-memory database.AlbumRepository.
type AlbumRepository struct {
	mu     sync.RWMutex
	nextID int64
	albums map[string]*database.Album // keyed by path

	// Error injection
	UpsertError error
	ListError   error
}

// NewAlbumRepository creates an empty in-memory album repository.
func NewAlbumRepository() *AlbumRepository {
	return &AlbumRepository{albums: make(map[string]*database.Album)}
}

// Add seeds an album and returns its assigned id.
func (m *AlbumRepository) Add(album database.Album) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	album.ID = m.nextID
	m.albums[album.Path] = &album
	return album.ID
}

func (m *AlbumRepository) Get(ctx context.Context, id int64) (*database.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	album := m.byID(id)
	if album == nil {
		return nil, database.ErrNotFound
	}
	copied := *album
	return &copied, nil
}

func (m *AlbumRepository) GetByPath(ctx context.Context, path string) (*database.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	album, ok := m.albums[path]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *album
	return &copied, nil
}

func (m *AlbumRepository) List(ctx context.Context) ([]database.Album, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	albums := make([]database.Album, 0, len(m.albums))
	for _, a := range m.albums {
		albums = append(albums, *a)
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].Path < albums[j].Path })
	return albums, nil
}

func (m *AlbumRepository) Upsert(ctx context.Context, album *database.Album) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.albums[album.Path]; ok {
		album.ID = existing.ID
		album.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		album.ID = m.nextID
		album.CreatedAt = time.Now()
	}
	album.UpdatedAt = time.Now()
	copied := *album
	m.albums[album.Path] = &copied
	return nil
}

func (m *AlbumRepository) byID(id int64) *database.Album {
	for _, a := range m.albums {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *AlbumRepository) SetFlags(ctx context.Context, id int64, syncedToRemote, safeDelete bool, lastSyncAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID(id)
	if a == nil {
		return database.ErrNotFound
	}
	a.SyncedToRemote = syncedToRemote
	a.LocalFilesSafeDelete = safeDelete
	a.LastSyncAt = lastSyncAt
	return nil
}

func (m *AlbumRepository) SetSafeDelete(ctx context.Context, id int64, safeDelete bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID(id)
	if a == nil {
		return database.ErrNotFound
	}
	a.LocalFilesSafeDelete = safeDelete
	return nil
}

func (m *AlbumRepository) SetDescription(ctx context.Context, id int64, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID(id)
	if a == nil {
		return database.ErrNotFound
	}
	a.Description = description
	return nil
}

func (m *AlbumRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, a := range m.albums {
		if a.ID == id {
			delete(m.albums, path)
			return nil
		}
	}
	return database.ErrNotFound
}

// MediaRepository is an in-memory database.MediaRepository.
type MediaRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*database.MediaItem

	// Error injection
	CreateError error
	ListError   error
}

// NewMediaRepository creates an empty in-memory media repository.
func NewMediaRepository() *MediaRepository {
	return &MediaRepository{items: make(map[int64]*database.MediaItem)}
}

// Add seeds a media item and returns its assigned id.
func (m *MediaRepository) Add(item database.MediaItem) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	m.items[item.ID] = &item
	return item.ID
}

func (m *MediaRepository) ListByAlbum(ctx context.Context, albumID int64, kind database.MediaKind) ([]database.MediaItem, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []database.MediaItem
	for _, item := range m.items {
		if item.AlbumID != albumID {
			continue
		}
		if kind != "" && item.Kind != kind {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Filename < items[j].Filename })
	return items, nil
}

func (m *MediaRepository) Filenames(ctx context.Context, albumID int64) ([]string, error) {
	items, err := m.ListByAlbum(ctx, albumID, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Filename)
	}
	return names, nil
}

func (m *MediaRepository) CountRemoteBacked(ctx context.Context, albumID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, item := range m.items {
		if item.AlbumID == albumID && item.RemoteKey != "" {
			count++
		}
	}
	return count, nil
}

func (m *MediaRepository) Create(ctx context.Context, item *database.MediaItem) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	item.CreatedAt = time.Now()
	copied := *item
	m.items[item.ID] = &copied
	return nil
}

func (m *MediaRepository) UpdateScanInfo(ctx context.Context, id int64, fileSize int64, takenAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return database.ErrNotFound
	}
	item.FileSize = fileSize
	item.TakenAt = takenAt
	return nil
}

func (m *MediaRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MediaRepository) DeleteByAlbum(ctx context.Context, albumID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for id, item := range m.items {
		if item.AlbumID != albumID {
			continue
		}
		if item.RemoteKey != "" {
			keys = append(keys, item.RemoteKey)
		}
		delete(m.items, id)
	}
	sort.Strings(keys)
	return keys, nil
}

// FaceRepository is an in-memory database.FaceRepository.
type FaceRepository struct {
	mu     sync.RWMutex
	nextID int64
	faces  map[int64]*database.Face

	// Error injection
	AssignError error
	ListError   error
}

// NewFaceRepository creates an empty in-memory face repository.
func NewFaceRepository() *FaceRepository {
	return &FaceRepository{faces: make(map[int64]*database.Face)}
}

// Add seeds a face and returns its assigned id.
func (m *FaceRepository) Add(face database.Face) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	face.ID = m.nextID
	m.faces[face.ID] = &face
	return face.ID
}

func (m *FaceRepository) SaveFaces(ctx context.Context, mediaID int64, faces []database.Face) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.faces {
		if f.MediaID == mediaID {
			delete(m.faces, id)
		}
	}
	for i := range faces {
		m.nextID++
		faces[i].ID = m.nextID
		faces[i].MediaID = mediaID
		copied := faces[i]
		m.faces[copied.ID] = &copied
	}
	return nil
}

func (m *FaceRepository) ListUnassigned(ctx context.Context, limit int, randomize bool) ([]database.Face, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var faces []database.Face
	for _, f := range m.faces {
		if f.PersonID == nil && !f.Ignored {
			faces = append(faces, *f)
		}
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].ID < faces[j].ID })
	if limit > 0 && len(faces) > limit {
		faces = faces[:limit]
	}
	return faces, nil
}

// FindSimilar brute-forces cosine distance over all embedded faces,
// nearest first.
func (m *FaceRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.Face, []float64, error) {
	faces, err := m.ListEmbedded(ctx)
	if err != nil {
		return nil, nil, err
	}
	type scored struct {
		face database.Face
		dist float64
	}
	ranked := make([]scored, len(faces))
	for i := range faces {
		ranked[i] = scored{face: faces[i], dist: database.CosineDistance(embedding, faces[i].Embedding)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]database.Face, len(ranked))
	distances := make([]float64, len(ranked))
	for i, s := range ranked {
		out[i] = s.face
		distances[i] = s.dist
	}
	return out, distances, nil
}

func (m *FaceRepository) ListEmbedded(ctx context.Context) ([]database.Face, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var faces []database.Face
	for _, f := range m.faces {
		if len(f.Embedding) > 0 && !f.Ignored {
			faces = append(faces, *f)
		}
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].ID < faces[j].ID })
	return faces, nil
}

func (m *FaceRepository) ListByPerson(ctx context.Context, personID string) ([]database.Face, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var faces []database.Face
	for _, f := range m.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			faces = append(faces, *f)
		}
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].ID < faces[j].ID })
	return faces, nil
}

func (m *FaceRepository) AssignPerson(ctx context.Context, personID string, faceIDs []int64) error {
	if m.AssignError != nil {
		return m.AssignError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range faceIDs {
		if f, ok := m.faces[id]; ok {
			pid := personID
			f.PersonID = &pid
		}
	}
	return nil
}

func (m *FaceRepository) SetIgnored(ctx context.Context, faceID int64, ignored bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[faceID]
	if !ok {
		return database.ErrNotFound
	}
	f.Ignored = ignored
	return nil
}

func (m *FaceRepository) Get(ctx context.Context, faceID int64) (*database.Face, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.faces[faceID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

// PersonRepository is an in-memory database.PersonRepository. It shares
// the face repository so merges and deletes touch the same faces the
// tests seeded.
type PersonRepository struct {
	mu     sync.RWMutex
	people map[string]*database.Person
	faces  *FaceRepository

	// Error injection
	CreateError error
}

// NewPersonRepository creates an in-memory person repository over the
// given face repository.
func NewPersonRepository(faces *FaceRepository) *PersonRepository {
	return &PersonRepository{
		people: make(map[string]*database.Person),
		faces:  faces,
	}
}

// Add seeds a person.
func (m *PersonRepository) Add(person database.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[person.ID] = &person
}

func (m *PersonRepository) List(ctx context.Context, confirmedOnly bool) ([]database.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var people []database.Person
	for _, p := range m.people {
		if confirmedOnly && !p.Confirmed {
			continue
		}
		people = append(people, *p)
	}
	sort.Slice(people, func(i, j int) bool { return people[i].Name < people[j].Name })
	return people, nil
}

func (m *PersonRepository) Get(ctx context.Context, id string) (*database.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *PersonRepository) CreateWithFaces(ctx context.Context, person *database.Person, faceIDs []int64) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	person.CreatedAt = time.Now()
	copied := *person
	m.people[person.ID] = &copied
	m.mu.Unlock()
	return m.faces.AssignPerson(ctx, person.ID, faceIDs)
}

func (m *PersonRepository) Rename(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return database.ErrNotFound
	}
	p.Name = name
	return nil
}

func (m *PersonRepository) SetConfirmed(ctx context.Context, id string, confirmed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return database.ErrNotFound
	}
	p.Confirmed = confirmed
	return nil
}

func (m *PersonRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.people[id]; !ok {
		m.mu.Unlock()
		return database.ErrNotFound
	}
	delete(m.people, id)
	m.mu.Unlock()

	// Faces outlive people: clear person_id instead of deleting.
	m.faces.mu.Lock()
	defer m.faces.mu.Unlock()
	for _, f := range m.faces.faces {
		if f.PersonID != nil && *f.PersonID == id {
			f.PersonID = nil
		}
	}
	return nil
}

func (m *PersonRepository) Merge(ctx context.Context, sourceID, targetID string) error {
	m.mu.Lock()
	if _, ok := m.people[sourceID]; !ok {
		m.mu.Unlock()
		return database.ErrNotFound
	}
	if _, ok := m.people[targetID]; !ok {
		m.mu.Unlock()
		return database.ErrNotFound
	}
	delete(m.people, sourceID)
	m.mu.Unlock()

	m.faces.mu.Lock()
	defer m.faces.mu.Unlock()
	for _, f := range m.faces.faces {
		if f.PersonID != nil && *f.PersonID == sourceID {
			tid := targetID
			f.PersonID = &tid
		}
	}
	return nil
}

func (m *PersonRepository) RepresentativeFaces(ctx context.Context, confirmedOnly bool) (map[string]database.Face, error) {
	people, err := m.List(ctx, confirmedOnly)
	if err != nil {
		return nil, err
	}
	reps := make(map[string]database.Face)
	for _, p := range people {
		faces, err := m.faces.ListByPerson(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range faces {
			if len(f.Embedding) > 0 {
				reps[p.ID] = f
				break
			}
		}
	}
	return reps, nil
}

// JobRepository is an in-memory database.JobRepository.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*database.SyncJob

	// UpdateCount tracks how many full-row updates happened, so tests can
	// assert the per-album durability checkpoint.
	UpdateCount int

	// Error injection
	CreateError error
	UpdateError error
}

// NewJobRepository creates an empty in-memory job repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]*database.SyncJob)}
}

func copyJob(job *database.SyncJob) *database.SyncJob {
	copied := *job
	copied.AlbumProgress = make(map[string]database.AlbumProgressEntry, len(job.AlbumProgress))
	for k, v := range job.AlbumProgress {
		copied.AlbumProgress[k] = v
	}
	copied.Logs = append([]database.JobLogEntry(nil), job.Logs...)
	return &copied
}

func (m *JobRepository) Create(ctx context.Context, job *database.SyncJob) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *JobRepository) Update(ctx context.Context, job *database.SyncJob) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return database.ErrNotFound
	}
	// Preserve an externally requested cancellation: the orchestrator's
	// full-row update must not resurrect a cancelled job, and a
	// cancelled job never becomes COMPLETED.
	if stored.Status == database.JobCancelled && job.Status != database.JobCancelled {
		updated := copyJob(job)
		updated.Status = database.JobCancelled
		m.jobs[job.ID] = updated
	} else {
		m.jobs[job.ID] = copyJob(job)
	}
	m.UpdateCount++
	return nil
}

func (m *JobRepository) Get(ctx context.Context, id string) (*database.SyncJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyJob(job), nil
}

func (m *JobRepository) GetStatus(ctx context.Context, id string) (database.JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return "", database.ErrNotFound
	}
	return job.Status, nil
}

func (m *JobRepository) SetStatus(ctx context.Context, id string, status database.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	job.Status = status
	if status.Terminal() && job.CompletedAt == nil {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

func (m *JobRepository) List(ctx context.Context, limit int) ([]database.SyncJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var jobs []database.SyncJob
	for _, job := range m.jobs {
		jobs = append(jobs, *copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *JobRepository) FailStale(ctx context.Context, age time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-age)
	count := 0
	for _, job := range m.jobs {
		if job.Status == database.JobRunning && job.StartedAt.Before(cutoff) {
			job.Status = database.JobFailed
			job.Errors = "job terminated: stuck in RUNNING past staleness threshold"
			now := time.Now()
			job.CompletedAt = &now
			count++
		}
	}
	return count, nil
}

// DownloadRepository is an in-memory database.DownloadRepository.
type DownloadRepository struct {
	mu    sync.RWMutex
	links map[string]*database.DownloadLink // keyed by token
}

// NewDownloadRepository creates an empty in-memory download repository.
func NewDownloadRepository() *DownloadRepository {
	return &DownloadRepository{links: make(map[string]*database.DownloadLink)}
}

func (m *DownloadRepository) Create(ctx context.Context, link *database.DownloadLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *link
	m.links[link.Token] = &copied
	return nil
}

func (m *DownloadRepository) Update(ctx context.Context, link *database.DownloadLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.Token]; !ok {
		return database.ErrNotFound
	}
	copied := *link
	m.links[link.Token] = &copied
	return nil
}

func (m *DownloadRepository) GetByToken(ctx context.Context, token string) (*database.DownloadLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[token]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *DownloadRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for token, link := range m.links {
		if link.ExpiresAt.Before(now) {
			if link.ZipKey != "" {
				keys = append(keys, link.ZipKey)
			}
			delete(m.links, token)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
