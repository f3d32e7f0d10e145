package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "SYNC_UPLOAD_CONCURRENCY", "FACES_THRESHOLD",
		"FACES_LIMIT", "FACES_MAX_COMPARISONS", "DOWNLOAD_LINK_TTL", "LUMINA_CONFIG",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Sync.UploadConcurrency != DefaultUploadConcurrency {
		t.Errorf("expected upload concurrency %d, got %d", DefaultUploadConcurrency, cfg.Sync.UploadConcurrency)
	}
	if cfg.Faces.Threshold != DefaultGroupingThreshold {
		t.Errorf("expected threshold %f, got %f", DefaultGroupingThreshold, cfg.Faces.Threshold)
	}
	if cfg.Faces.Limit != DefaultGroupingLimit {
		t.Errorf("expected limit %d, got %d", DefaultGroupingLimit, cfg.Faces.Limit)
	}
	if cfg.Faces.MaxComparisons != DefaultMaxComparisons {
		t.Errorf("expected max comparisons %d, got %d", DefaultMaxComparisons, cfg.Faces.MaxComparisons)
	}
	if cfg.Downloads.LinkTTL != DefaultLinkTTL {
		t.Errorf("expected link TTL %v, got %v", DefaultLinkTTL, cfg.Downloads.LinkTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LUMINA_CONFIG", "")
	t.Setenv("SYNC_UPLOAD_CONCURRENCY", "8")
	t.Setenv("FACES_THRESHOLD", "0.45")
	t.Setenv("FACES_LIMIT", "1000")
	t.Setenv("SYNC_STALE_JOB_AGE", "30m")

	cfg := Load()

	if cfg.Sync.UploadConcurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Sync.UploadConcurrency)
	}
	if cfg.Faces.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %f", cfg.Faces.Threshold)
	}
	if cfg.Faces.Limit != 1000 {
		t.Errorf("expected limit 1000, got %d", cfg.Faces.Limit)
	}
	if cfg.Sync.StaleJobAge != 30*time.Minute {
		t.Errorf("expected stale job age 30m, got %v", cfg.Sync.StaleJobAge)
	}
}

func TestNormalize_ClampsBounds(t *testing.T) {
	tests := []struct {
		name           string
		limit          int
		maxComparisons int
		wantLimit      int
		wantMaxComp    int
	}{
		{"below minimum", 10, 50, MinGroupingLimit, MinMaxComparisons},
		{"above maximum", 99999, 9999999, MaxGroupingLimit, MaxMaxComparisons},
		{"unset", 0, 0, DefaultGroupingLimit, DefaultMaxComparisons},
		{"in range", 750, 100000, 750, 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Faces: FacesConfig{Limit: tt.limit, MaxComparisons: tt.maxComparisons},
			}
			cfg.Normalize()
			if cfg.Faces.Limit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, cfg.Faces.Limit)
			}
			if cfg.Faces.MaxComparisons != tt.wantMaxComp {
				t.Errorf("expected max comparisons %d, got %d", tt.wantMaxComp, cfg.Faces.MaxComparisons)
			}
		})
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumina.yaml")
	content := []byte("sync:\n  upload_concurrency: 6\nfaces:\n  threshold: 0.55\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write overlay file: %v", err)
	}

	t.Setenv("SYNC_UPLOAD_CONCURRENCY", "")
	t.Setenv("FACES_THRESHOLD", "")
	t.Setenv("LUMINA_CONFIG", path)

	cfg := Load()

	if cfg.Sync.UploadConcurrency != 6 {
		t.Errorf("expected concurrency 6 from overlay, got %d", cfg.Sync.UploadConcurrency)
	}
	if cfg.Faces.Threshold != 0.55 {
		t.Errorf("expected threshold 0.55 from overlay, got %f", cfg.Faces.Threshold)
	}
}
