// Package library scans the local photo directory tree. Every
// directory below the root is treated as an album; its photo and video
// files are the album's media.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jcalado/lumina-sub001/internal/database"
)

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".heic": true,
}

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
	".m4v": true,
}

// MediaFile describes a single media file found on disk.
type MediaFile struct {
	Filename string
	Path     string
	Kind     database.MediaKind
	Size     int64
	TakenAt  *time.Time
}

// Scanner walks a photo library rooted at a single directory.
type Scanner struct {
	root string
}

// NewScanner creates a scanner over the given library root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Root returns the library root directory.
func (s *Scanner) Root() string {
	return s.root
}

// MediaKindFor classifies a filename by extension. It returns an empty
// kind for files that are not media.
func MediaKindFor(filename string) database.MediaKind {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case photoExtensions[ext]:
		return database.MediaPhoto
	case videoExtensions[ext]:
		return database.MediaVideo
	default:
		return ""
	}
}

// ListAlbumPaths walks the library and returns the album paths,
// relative to the root with a leading slash, sorted. Only directories
// containing at least one media file are albums. Hidden directories
// are skipped.
func (s *Scanner) ListAlbumPaths() ([]string, error) {
	albums := make(map[string]bool)

	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if MediaKindFor(d.Name()) == "" {
			return nil
		}
		rel, err := filepath.Rel(s.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		albums[albumPath(rel)] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk library %s: %w", s.root, err)
	}

	paths := make([]string, 0, len(albums))
	for p := range albums {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// ScanDirectory lists the media files directly inside one album
// directory. albumPath uses the leading-slash form produced by
// ListAlbumPaths.
func (s *Scanner) ScanDirectory(albumPath string) ([]MediaFile, error) {
	dir := s.AbsolutePath(albumPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read album directory %s: %w", dir, err)
	}

	var files []MediaFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind := MediaKindFor(entry.Name())
		if kind == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("cannot stat %s: %w", entry.Name(), err)
		}
		mod := info.ModTime()
		files = append(files, MediaFile{
			Filename: entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Kind:     kind,
			Size:     info.Size(),
			TakenAt:  &mod,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

// Filenames returns just the media filenames in an album directory. A
// missing directory yields an empty set, not an error, because the
// comparator treats absent local albums as a normal state.
func (s *Scanner) Filenames(albumPath string) ([]string, error) {
	files, err := s.ScanDirectory(albumPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	return names, nil
}

// DirectoryExists reports whether the album directory exists on disk.
func (s *Scanner) DirectoryExists(albumPath string) bool {
	info, err := os.Stat(s.AbsolutePath(albumPath))
	return err == nil && info.IsDir()
}

// AbsolutePath resolves an album path against the library root.
func (s *Scanner) AbsolutePath(albumPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(albumPath, "/")))
}

// DeleteAlbumFiles removes all media files in an album directory, then
// the directory itself if it ended up empty. Non-media files are left
// alone.
func (s *Scanner) DeleteAlbumFiles(albumPath string) (int, error) {
	files, err := s.ScanDirectory(albumPath)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil {
			return deleted, fmt.Errorf("cannot delete %s: %w", f.Path, err)
		}
		deleted++
	}
	dir := s.AbsolutePath(albumPath)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
	return deleted, nil
}

func albumPath(rel string) string {
	return "/" + filepath.ToSlash(rel)
}
