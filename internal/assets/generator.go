package assets

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/jcalado/lumina-sub001/internal/storage"
)

// Generator runs derived-asset generation in the background. Requests
// are queued and processed by a fixed worker pool; a full queue drops
// the request rather than blocking the uploader.
type Generator struct {
	store storage.ObjectStore
	queue chan request
	wg    sync.WaitGroup

	closeOnce sync.Once
}

type request struct {
	mediaID   int64
	remoteKey string
	data      []byte
}

// NewGenerator starts a generator with the given number of workers.
func NewGenerator(store storage.ObjectStore, workers int) *Generator {
	if workers < 1 {
		workers = 1
	}
	g := &Generator{
		store: store,
		queue: make(chan request, 256),
	}
	for i := 0; i < workers; i++ {
		g.wg.Add(1)
		go g.worker()
	}
	return g
}

// Enqueue schedules thumbnail and blurhash generation for an uploaded
// photo. It never blocks; when the queue is full the request is
// dropped and logged.
func (g *Generator) Enqueue(mediaID int64, remoteKey string, data []byte) {
	select {
	case g.queue <- request{mediaID: mediaID, remoteKey: remoteKey, data: data}:
	default:
		log.Printf("asset queue full, skipping derived assets for media %d", mediaID)
	}
}

// Close stops accepting work and waits for in-flight generation.
func (g *Generator) Close() {
	g.closeOnce.Do(func() { close(g.queue) })
	g.wg.Wait()
}

func (g *Generator) worker() {
	defer g.wg.Done()
	for req := range g.queue {
		if err := g.process(context.Background(), req); err != nil {
			log.Printf("asset generation failed for media %d: %v", req.mediaID, err)
		}
	}
}

func (g *Generator) process(ctx context.Context, req request) error {
	thumbs, err := GenerateThumbnails(req.data)
	if err != nil {
		return err
	}
	for _, thumb := range thumbs {
		key := ThumbnailKey(req.remoteKey, thumb.Size.Name)
		if err := g.store.Put(ctx, key, bytes.NewReader(thumb.Data), "image/jpeg"); err != nil {
			return fmt.Errorf("cannot store %s thumbnail: %w", thumb.Size.Name, err)
		}
	}

	hash, err := ComputeBlurhash(req.data)
	if err != nil {
		return err
	}
	key := BlurhashKey(req.remoteKey)
	if err := g.store.Put(ctx, key, strings.NewReader(hash), "text/plain"); err != nil {
		return fmt.Errorf("cannot store blurhash: %w", err)
	}
	return nil
}

// ThumbnailKey derives the object key of a thumbnail variant from the
// original's key.
func ThumbnailKey(remoteKey, sizeName string) string {
	dir, file := path.Split(remoteKey)
	return path.Join("derived", dir, sizeName+"-"+file)
}

// BlurhashKey derives the object key of the blurhash sidecar.
func BlurhashKey(remoteKey string) string {
	return path.Join("derived", remoteKey+".blurhash")
}
