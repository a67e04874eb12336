package mariadb

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/media-dedup/internal/database"
)

// withParseTime returns dsn with parseTime enabled.
func withParseTime(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// CorpusRepository provides MariaDB-backed corpus storage.
type CorpusRepository struct {
	pool *Pool
}

// NewCorpusRepository creates a new MariaDB corpus repository.
func NewCorpusRepository(pool *Pool) *CorpusRepository {
	return &CorpusRepository{pool: pool}
}

// List returns every entry in insertion order.
func (r *CorpusRepository) List(ctx context.Context) ([]database.CorpusEntry, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, name, media_id, hashes, features_ref, created_at
		FROM corpus_entries
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var entries []database.CorpusEntry
	for rows.Next() {
		var e database.CorpusEntry
		var hashes []byte
		if err := rows.Scan(&e.ID, &e.Name, &e.MediaID, &hashes, &e.FeaturesRef, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan corpus entry: %w", err)
		}
		e.Hashes = hashes
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus: %w", err)
	}
	return entries, nil
}

// Count returns the number of corpus entries.
func (r *CorpusRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM corpus_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count corpus entries: %w", err)
	}
	return count, nil
}

// Append inserts the entry and reads back its ID and timestamp.
func (r *CorpusRepository) Append(ctx context.Context, entry database.CorpusEntry) (database.CorpusEntry, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return database.CorpusEntry{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO corpus_entries (name, media_id, hashes, features_ref)
		VALUES (?, ?, ?, ?)
	`, entry.Name, entry.MediaID, []byte(entry.Hashes), entry.FeaturesRef)
	if err != nil {
		return database.CorpusEntry{}, fmt.Errorf("insert corpus entry: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return database.CorpusEntry{}, fmt.Errorf("read inserted id: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT created_at FROM corpus_entries WHERE id = ?", entry.ID).Scan(&entry.CreatedAt); err != nil {
		return database.CorpusEntry{}, fmt.Errorf("read inserted entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return database.CorpusEntry{}, fmt.Errorf("commit corpus entry: %w", err)
	}
	return entry, nil
}
