package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the gallery services.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Library   LibraryConfig   `yaml:"library"`
	Detector  DetectorConfig  `yaml:"detector"`
	Sync      SyncConfig      `yaml:"sync"`
	Faces     FacesConfig     `yaml:"faces"`
	Downloads DownloadsConfig `yaml:"downloads"`
}

type DatabaseConfig struct {
	URL           string `yaml:"url"`             // PostgreSQL connection URL
	MaxOpenConns  int    `yaml:"max_open_conns"`  // Maximum open connections (default 25)
	MaxIdleConns  int    `yaml:"max_idle_conns"`  // Maximum idle connections (default 5)
	FaceIndexPath string `yaml:"face_index_path"` // Path to persist the face HNSW index (optional)
}

// StorageConfig configures the S3-compatible remote object store.
// Endpoint may point at MinIO or any S3 API; path-style addressing is
// required for MinIO.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	PathStyle bool   `yaml:"path_style"`
}

type LibraryConfig struct {
	PhotosDir string `yaml:"photos_dir"` // Root directory of the local photo library
}

type DetectorConfig struct {
	URL string `yaml:"url"` // Face detection sidecar URL (defaults to http://localhost:8000)
}

// SyncConfig controls the synchronization engine.
type SyncConfig struct {
	UploadConcurrency int           `yaml:"upload_concurrency"` // Concurrent uploads per chunk (default 4, min 1)
	StaleJobAge       time.Duration `yaml:"stale_job_age"`      // Age after which a RUNNING job may be force-failed
}

// FacesConfig controls face grouping. Bounds are enforced by Normalize,
// not at call sites.
type FacesConfig struct {
	Threshold      float64 `yaml:"threshold"`       // Similarity threshold for grouping (default 0.7)
	Limit          int     `yaml:"limit"`           // Unassigned faces per run (default 500, 50-2000)
	MaxComparisons int     `yaml:"max_comparisons"` // Comparison budget per run (default 50000, 1000-500000)
}

type DownloadsConfig struct {
	LinkTTL time.Duration `yaml:"link_ttl"` // Lifetime of a shareable zip link (default 24h)
}

// Grouping bounds, shared between config normalization and request
// validation in the web layer.
const (
	DefaultGroupingThreshold = 0.7
	DefaultGroupingLimit     = 500
	MinGroupingLimit         = 50
	MaxGroupingLimit         = 2000
	DefaultMaxComparisons    = 50000
	MinMaxComparisons        = 1000
	MaxMaxComparisons        = 500000
	DefaultUploadConcurrency = 4
	DefaultStaleJobAge       = 2 * time.Hour
	DefaultLinkTTL           = 24 * time.Hour
)

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("true"/"1").
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	return s == "true" || s == "1"
}

// envDuration reads an environment variable as a time.Duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Load builds a Config from environment variables, then overlays the
// optional YAML file named by LUMINA_CONFIG. The result is normalized so
// every numeric setting is inside its documented bounds.
func Load() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			FaceIndexPath: os.Getenv("FACE_INDEX_PATH"),
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    os.Getenv("S3_REGION"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			PathStyle: envBool("S3_PATH_STYLE", true),
		},
		Library: LibraryConfig{
			PhotosDir: os.Getenv("PHOTOS_DIR"),
		},
		Detector: DetectorConfig{
			URL: os.Getenv("DETECTOR_URL"),
		},
		Sync: SyncConfig{
			UploadConcurrency: envInt("SYNC_UPLOAD_CONCURRENCY", DefaultUploadConcurrency),
			StaleJobAge:       envDuration("SYNC_STALE_JOB_AGE", DefaultStaleJobAge),
		},
		Faces: FacesConfig{
			Threshold:      envFloat("FACES_THRESHOLD", DefaultGroupingThreshold),
			Limit:          envInt("FACES_LIMIT", DefaultGroupingLimit),
			MaxComparisons: envInt("FACES_MAX_COMPARISONS", DefaultMaxComparisons),
		},
		Downloads: DownloadsConfig{
			LinkTTL: envDuration("DOWNLOAD_LINK_TTL", DefaultLinkTTL),
		},
	}

	if path := os.Getenv("LUMINA_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			// A broken overlay file should be loud, not silently ignored.
			fmt.Fprintf(os.Stderr, "Warning: could not apply config file %s: %v\n", path, err)
		}
	}

	cfg.Normalize()
	return cfg
}

// overlayFile merges settings from a YAML file over the env-derived config.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// clampInt forces v into [lo, hi], substituting def when v is unset (<= 0).
func clampInt(v, def, lo, hi int) int {
	if v <= 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize enforces documented bounds on every tunable. Out-of-range
// values are clamped rather than rejected so a bad env var can never
// prevent startup.
func (c *Config) Normalize() {
	if c.Sync.UploadConcurrency < 1 {
		c.Sync.UploadConcurrency = DefaultUploadConcurrency
	}
	if c.Sync.StaleJobAge <= 0 {
		c.Sync.StaleJobAge = DefaultStaleJobAge
	}
	if c.Faces.Threshold <= 0 || c.Faces.Threshold > 1 {
		c.Faces.Threshold = DefaultGroupingThreshold
	}
	c.Faces.Limit = clampInt(c.Faces.Limit, DefaultGroupingLimit, MinGroupingLimit, MaxGroupingLimit)
	c.Faces.MaxComparisons = clampInt(c.Faces.MaxComparisons, DefaultMaxComparisons, MinMaxComparisons, MaxMaxComparisons)
	if c.Downloads.LinkTTL <= 0 {
		c.Downloads.LinkTTL = DefaultLinkTTL
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
}
