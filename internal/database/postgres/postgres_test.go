//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/media-dedup/internal/config"
	"github.com/kozaktomas/media-dedup/internal/database"
	"github.com/kozaktomas/media-dedup/internal/fingerprint"
)

func setupTestContainer(t *testing.T) (*Pool, string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, "", func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, dbURL, cleanup
}

func TestCorpusRepository(t *testing.T) {
	pool, _, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewCorpusRepository(pool)

	hashes := map[string]fingerprint.HashSet{
		"frame_0000": {
			Structural: fingerprint.NewHash(0xff00ff00ff00ff00),
			Gradient:   fingerprint.NewHash(0x0f0f0f0f0f0f0f0f),
			Histogram:  fingerprint.NewHash(0x1),
		},
	}

	t.Run("append assigns increasing ids", func(t *testing.T) {
		for i, name := range []string{"a.jpg", "b.jpg"} {
			entry, err := database.NewCorpusEntry(name, fmt.Sprintf("media-%d", i), hashes, fmt.Sprintf("media-%d", i))
			if err != nil {
				t.Fatalf("NewCorpusEntry failed: %v", err)
			}
			stored, err := repo.Append(ctx, entry)
			if err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if stored.ID != int64(i+1) {
				t.Errorf("expected id %d, got %d", i+1, stored.ID)
			}
			if stored.CreatedAt.IsZero() {
				t.Error("expected created_at to be set")
			}
		}
	})

	t.Run("list preserves insertion order and hashes", func(t *testing.T) {
		entries, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(entries) != 2 || entries[0].Name != "a.jpg" || entries[1].Name != "b.jpg" {
			t.Fatalf("unexpected entries: %+v", entries)
		}
		decoded, err := entries[0].DecodeHashes()
		if err != nil {
			t.Fatalf("DecodeHashes failed: %v", err)
		}
		if decoded["frame_0000"] != hashes["frame_0000"] {
			t.Errorf("hashes did not round trip: %+v", decoded)
		}
	})

	t.Run("count", func(t *testing.T) {
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 entries, got %d", count)
		}
	})
}

func TestFeatureRepository(t *testing.T) {
	pool, _, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewFeatureRepository(pool)

	features := map[string][]float32{
		"frame_0000": {0.1, 0.2, 0.3},
		"frame_0001": {0.3, 0.2, 0.1},
	}
	ref, err := repo.Save(ctx, "media-1", features)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := repo.Load(ctx, ref)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	for name, want := range features {
		for i := range want {
			if got[name][i] != want[i] {
				t.Errorf("frame %s[%d]: expected %v, got %v", name, i, want[i], got[name][i])
			}
		}
	}

	if _, err := repo.Load(ctx, "missing"); !errors.Is(err, database.ErrFeaturesNotFound) {
		t.Errorf("expected ErrFeaturesNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Load(ctx, ref); !errors.Is(err, database.ErrFeaturesNotFound) {
		t.Errorf("expected ErrFeaturesNotFound after delete, got %v", err)
	}
}

func TestOpenRegisteredBackend(t *testing.T) {
	pool, dbURL, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	backend, err := database.Open(context.Background(), &config.DatabaseConfig{
		Driver:       config.DriverPostgres,
		URL:          dbURL,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer backend.Close()

	applied, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("MigrationsApplied failed: %v", err)
	}
	if len(applied) != 1 || applied[0] != "001_corpus.sql" {
		t.Errorf("unexpected migrations: %v", applied)
	}
}
