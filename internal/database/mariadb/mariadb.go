// Package mariadb stores the corpus in MariaDB. Per-frame embeddings live in
// gob files next to the database, referenced by path.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/media-dedup/internal/config"
	"github.com/kozaktomas/media-dedup/internal/constants"
	"github.com/kozaktomas/media-dedup/internal/database"
)

func init() {
	database.RegisterBackend(config.DriverMariaDB, Open)
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. parseTime is forced so
// DATETIME columns scan into time.Time.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := withParseTime(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// EnsureSchema creates the corpus table if it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS corpus_entries (
			id           BIGINT AUTO_INCREMENT PRIMARY KEY,
			name         VARCHAR(1024) NOT NULL,
			media_id     VARCHAR(64)   NOT NULL UNIQUE,
			hashes       JSON          NOT NULL,
			features_ref VARCHAR(2048) NOT NULL,
			created_at   DATETIME(6)   NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		) CHARACTER SET utf8mb4
	`)
	if err != nil {
		return fmt.Errorf("create corpus table: %w", err)
	}
	return nil
}

// Open connects, ensures the schema and pairs the corpus table with a cached
// file feature store under cfg.FeaturesDir.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*database.Backend, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	files, err := database.NewFileFeatureStore(cfg.FeaturesDir)
	if err != nil {
		pool.Close()
		return nil, err
	}
	features, err := database.NewCachedFeatureStore(files, constants.FeatureCacheSize)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return database.NewBackend(NewCorpusRepository(pool), features, pool.Close), nil
}
