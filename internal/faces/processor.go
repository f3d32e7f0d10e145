package faces

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/detector"
	"github.com/jcalado/lumina-sub001/internal/storage"
)

// DetectionResult summarizes a detection run over an album.
type DetectionResult struct {
	PhotosProcessed int      `json:"photosProcessed"`
	FacesDetected   int      `json:"facesDetected"`
	Issues          []string `json:"issues,omitempty"`
}

// Processor runs face detection over an album's photos and stores the
// detected faces. A single photo's failure is recorded and skipped.
type Processor struct {
	media    database.MediaRepository
	faces    database.FaceRepository
	store    storage.ObjectStore
	detector detector.FaceDetector
}

// NewProcessor creates a detection processor.
func NewProcessor(media database.MediaRepository, faceRepo database.FaceRepository, store storage.ObjectStore, det detector.FaceDetector) *Processor {
	return &Processor{media: media, faces: faceRepo, store: store, detector: det}
}

// ProcessAlbum detects faces in every remote-backed photo of an album.
// Detected faces replace any previously stored faces for the photo.
func (p *Processor) ProcessAlbum(ctx context.Context, albumID int64) (*DetectionResult, error) {
	photos, err := p.media.ListByAlbum(ctx, albumID, database.MediaPhoto)
	if err != nil {
		return nil, fmt.Errorf("could not list album photos: %w", err)
	}

	result := &DetectionResult{}
	for _, photo := range photos {
		if photo.RemoteKey == "" {
			continue
		}
		count, err := p.processPhoto(ctx, photo)
		if err != nil {
			msg := fmt.Sprintf("%s: %v", photo.Filename, err)
			log.Printf("face detection: %s", msg)
			result.Issues = append(result.Issues, msg)
			continue
		}
		result.PhotosProcessed++
		result.FacesDetected += count
	}
	return result, nil
}

func (p *Processor) processPhoto(ctx context.Context, photo database.MediaItem) (int, error) {
	rc, err := p.store.Get(ctx, photo.RemoteKey)
	if err != nil {
		return 0, fmt.Errorf("fetch image: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read image: %w", err)
	}

	resp, err := p.detector.DetectFaces(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("detect: %w", err)
	}

	faces := make([]database.Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		if len(d.Embedding) != database.FaceEmbeddingDim {
			return 0, fmt.Errorf("unexpected embedding dim %d", len(d.Embedding))
		}
		faces = append(faces, database.Face{
			MediaID:    photo.ID,
			BBox:       d.BBox,
			Confidence: d.Confidence,
			Embedding:  d.Embedding,
		})
	}
	if err := p.faces.SaveFaces(ctx, photo.ID, faces); err != nil {
		return 0, fmt.Errorf("save faces: %w", err)
	}
	return len(faces), nil
}
