package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"EMBEDDING_BACKEND", "EMBEDDING_URL", "EMBEDDING_DIM", "DATABASE_DRIVER",
		"MATCH_THRESHOLD", "MATCH_MODE", "MATCH_WORKERS", "FRAMES_FPS", "SERVER_PORT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Embedding.Backend != BackendHTTP {
		t.Errorf("expected default backend %q, got %q", BackendHTTP, cfg.Embedding.Backend)
	}
	if cfg.Embedding.URL != "http://localhost:8000" {
		t.Errorf("expected default embedding URL, got '%s'", cfg.Embedding.URL)
	}
	if cfg.Embedding.Dim != 1000 {
		t.Errorf("expected default embedding dim 1000, got %d", cfg.Embedding.Dim)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("expected default driver %q, got %q", DriverPostgres, cfg.Database.Driver)
	}
	if cfg.Matcher.Threshold != 90.0 {
		t.Errorf("expected default threshold 90, got %f", cfg.Matcher.Threshold)
	}
	if cfg.Matcher.Mode != "embedding" {
		t.Errorf("expected default mode 'embedding', got '%s'", cfg.Matcher.Mode)
	}
	if cfg.Frames.FPS != 5 {
		t.Errorf("expected default fps 5, got %d", cfg.Frames.FPS)
	}
	if cfg.Server.Port != 8085 {
		t.Errorf("expected default port 8085, got %d", cfg.Server.Port)
	}
}

func TestLoad_CustomEmbeddingDim(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "2048")

	cfg := Load()

	if cfg.Embedding.Dim != 2048 {
		t.Errorf("expected embedding dim 2048, got %d", cfg.Embedding.Dim)
	}
}

func TestLoad_InvalidEmbeddingDim(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "invalid"},
		{"negative", "-100"},
		{"zero", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("EMBEDDING_DIM", tc.value)

			cfg := Load()

			if cfg.Embedding.Dim != 1000 {
				t.Errorf("expected default embedding dim 1000 for %q, got %d", tc.value, cfg.Embedding.Dim)
			}
		})
	}
}

func TestLoad_MatchThreshold(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected float64
	}{
		{"custom", "85.5", 85.5},
		{"upper bound", "100", 100},
		{"above range", "150", 90},
		{"zero", "0", 90},
		{"garbage", "ninety", 90},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("MATCH_THRESHOLD", tc.value)

			cfg := Load()

			if cfg.Matcher.Threshold != tc.expected {
				t.Errorf("MATCH_THRESHOLD=%q: expected %f, got %f", tc.value, tc.expected, cfg.Matcher.Threshold)
			}
		})
	}
}

func TestLoad_DatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mariadb")
	t.Setenv("DATABASE_URL", "dedup:dedup@tcp(localhost:3306)/dedup")
	t.Setenv("FEATURES_DIR", "/var/lib/dedup/features")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")

	cfg := Load()

	if cfg.Database.Driver != DriverMariaDB {
		t.Errorf("expected driver %q, got %q", DriverMariaDB, cfg.Database.Driver)
	}
	if cfg.Database.URL != "dedup:dedup@tcp(localhost:3306)/dedup" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
	if cfg.Database.FeaturesDir != "/var/lib/dedup/features" {
		t.Errorf("unexpected features dir '%s'", cfg.Database.FeaturesDir)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected 10 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected default 5 max idle conns, got %d", cfg.Database.MaxIdleConns)
	}
}

func TestVectorDim(t *testing.T) {
	tests := []struct {
		name     string
		cfg      EmbeddingConfig
		expected int
	}{
		{"http uses configured dim", EmbeddingConfig{Backend: BackendHTTP, Dim: 2048, PixelSize: 32}, 2048},
		{"pixels derive dim from size", EmbeddingConfig{Backend: BackendPixels, Dim: 2048, PixelSize: 32}, 3072},
		{"small pixel grid", EmbeddingConfig{Backend: BackendPixels, PixelSize: 8}, 192},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.VectorDim(); got != tc.expected {
				t.Errorf("VectorDim() = %d; want %d", got, tc.expected)
			}
		})
	}
}

func TestLoad_EmptyEnvVars(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("HNSW_INDEX_PATH")

	cfg := Load()

	if cfg.Database.URL != "" {
		t.Errorf("expected empty database URL, got '%s'", cfg.Database.URL)
	}
	if cfg.Database.HNSWIndexPath != "" {
		t.Errorf("expected empty HNSW index path, got '%s'", cfg.Database.HNSWIndexPath)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	if len(cfg.Server.AllowedOrigins) != 2 ||
		cfg.Server.AllowedOrigins[0] != "https://a.example" ||
		cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected allowed origins: %q", cfg.Server.AllowedOrigins)
	}
}
