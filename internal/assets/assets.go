// Package assets generates derived assets for uploaded photos:
// resized thumbnails and a blurhash placeholder string. Generation is
// fire-and-forget; a failed asset never fails the upload that
// requested it.
package assets

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/buckket/go-blurhash"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ThumbnailSize names a derived-image variant.
type ThumbnailSize struct {
	Name    string
	MaxEdge int
	Quality int
}

// Sizes are the thumbnail variants generated for every photo.
var Sizes = []ThumbnailSize{
	{Name: "small", MaxEdge: 320, Quality: 80},
	{Name: "medium", MaxEdge: 800, Quality: 85},
	{Name: "large", MaxEdge: 1600, Quality: 90},
}

// Thumbnail is one generated variant ready for upload.
type Thumbnail struct {
	Size ThumbnailSize
	Data []byte
}

// GenerateThumbnails decodes an image and produces all configured
// variants as JPEG. Images already smaller than a variant's max edge
// are re-encoded without scaling.
func GenerateThumbnails(imageData []byte) ([]Thumbnail, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}

	thumbs := make([]Thumbnail, 0, len(Sizes))
	for _, size := range Sizes {
		resized := scaleDown(img, size.MaxEdge)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: size.Quality}); err != nil {
			return nil, fmt.Errorf("cannot encode %s thumbnail: %w", size.Name, err)
		}
		thumbs = append(thumbs, Thumbnail{Size: size, Data: buf.Bytes()})
	}
	return thumbs, nil
}

// ComputeBlurhash produces a compact placeholder hash for an image.
// The hash is computed from a small downscale because blurhash cost
// grows with pixel count.
func ComputeBlurhash(imageData []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return "", fmt.Errorf("cannot decode image: %w", err)
	}
	small := scaleDown(img, 64)
	hash, err := blurhash.Encode(4, 3, small)
	if err != nil {
		return "", fmt.Errorf("cannot compute blurhash: %w", err)
	}
	return hash, nil
}

func scaleDown(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}

	var newW, newH int
	if w > h {
		newW = maxEdge
		newH = h * maxEdge / w
	} else {
		newH = maxEdge
		newW = w * maxEdge / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
