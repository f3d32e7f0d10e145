// Package storage abstracts the remote object store backing the photo
// library. The production implementation talks to S3 or any
// S3-compatible endpoint such as MinIO.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when a key does not exist in the store.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore is the remote side of the sync engine. Keys are opaque
// strings; GenerateKey produces them from album path and filename.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// GenerateKey builds the object key for a media file. Keys are
// deterministic so a second upload of the same album file maps to the
// same object and the existence probe can skip it.
func GenerateKey(albumPath, filename string) string {
	albumPath = strings.Trim(albumPath, "/")
	return path.Join("media", albumPath, filename)
}

// AlbumPrefix is the object key prefix holding an album's media.
func AlbumPrefix(albumPath string) string {
	return path.Join("media", strings.Trim(albumPath, "/")) + "/"
}

// ZipKey builds the object key for a generated download archive.
func ZipKey(token string) string {
	return path.Join("downloads", token+".zip")
}
