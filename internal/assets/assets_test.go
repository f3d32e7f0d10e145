package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/jcalado/lumina-sub001/internal/storage"
)

func encodeTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("cannot encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestGenerateThumbnails(t *testing.T) {
	data := encodeTestImage(t, 2000, 1000)

	thumbs, err := GenerateThumbnails(data)
	if err != nil {
		t.Fatalf("GenerateThumbnails failed: %v", err)
	}
	if len(thumbs) != len(Sizes) {
		t.Fatalf("expected %d variants, got %d", len(Sizes), len(thumbs))
	}

	for _, thumb := range thumbs {
		img, _, err := image.Decode(bytes.NewReader(thumb.Data))
		if err != nil {
			t.Fatalf("%s thumbnail does not decode: %v", thumb.Size.Name, err)
		}
		b := img.Bounds()
		if b.Dx() > thumb.Size.MaxEdge || b.Dy() > thumb.Size.MaxEdge {
			t.Errorf("%s thumbnail exceeds max edge: %dx%d", thumb.Size.Name, b.Dx(), b.Dy())
		}
		// Aspect ratio of the 2:1 source must survive scaling.
		if b.Dx() != 2*b.Dy() {
			t.Errorf("%s thumbnail lost aspect ratio: %dx%d", thumb.Size.Name, b.Dx(), b.Dy())
		}
	}
}

func TestGenerateThumbnails_InvalidData(t *testing.T) {
	if _, err := GenerateThumbnails([]byte("not an image")); err == nil {
		t.Error("expected error for invalid image data")
	}
}

func TestComputeBlurhash(t *testing.T) {
	data := encodeTestImage(t, 400, 300)

	hash, err := ComputeBlurhash(data)
	if err != nil {
		t.Fatalf("ComputeBlurhash failed: %v", err)
	}
	if hash == "" {
		t.Error("expected non-empty blurhash")
	}
}

func TestDerivedKeys(t *testing.T) {
	key := "media/vacations/Trip2023/beach-abc.jpg"

	if got := ThumbnailKey(key, "small"); got != "derived/media/vacations/Trip2023/small-beach-abc.jpg" {
		t.Errorf("unexpected thumbnail key: %s", got)
	}
	if got := BlurhashKey(key); got != "derived/media/vacations/Trip2023/beach-abc.jpg.blurhash" {
		t.Errorf("unexpected blurhash key: %s", got)
	}
}

func TestGenerator_CreatesDerivedAssets(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := NewGenerator(store, 2)

	data := encodeTestImage(t, 640, 480)
	gen.Enqueue(1, "media/a/photo-xyz.jpg", data)
	gen.Close()

	keys := store.Keys()
	wantCount := len(Sizes) + 1 // variants plus blurhash sidecar
	if len(keys) != wantCount {
		t.Fatalf("expected %d derived objects, got %d: %v", wantCount, len(keys), keys)
	}
	foundHash := false
	for _, k := range keys {
		if strings.HasSuffix(k, ".blurhash") {
			foundHash = true
		}
	}
	if !foundHash {
		t.Error("blurhash sidecar not stored")
	}
}

func TestGenerator_BadImageDoesNotBlock(t *testing.T) {
	store := storage.NewMemoryStore()
	gen := NewGenerator(store, 1)

	gen.Enqueue(1, "media/a/bad.jpg", []byte("garbage"))
	gen.Close()

	if len(store.Keys()) != 0 {
		t.Errorf("expected no derived objects for bad input, got %v", store.Keys())
	}
}
