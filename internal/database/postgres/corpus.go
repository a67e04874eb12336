package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/media-dedup/internal/database"
)

// CorpusRepository provides PostgreSQL-backed corpus storage.
type CorpusRepository struct {
	pool *Pool
}

// NewCorpusRepository creates a new PostgreSQL corpus repository.
func NewCorpusRepository(pool *Pool) *CorpusRepository {
	return &CorpusRepository{pool: pool}
}

// List returns every entry in insertion order. Hashes are returned raw so a
// malformed row surfaces only when the matcher decodes it.
func (r *CorpusRepository) List(ctx context.Context) ([]database.CorpusEntry, error) {
	rows, err := r.pool.Query(ctx, `
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
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM corpus_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count corpus entries: %w", err)
	}
	return count, nil
}

// Append inserts the entry and returns it with the assigned ID and timestamp.
func (r *CorpusRepository) Append(ctx context.Context, entry database.CorpusEntry) (database.CorpusEntry, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO corpus_entries (name, media_id, hashes, features_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, entry.Name, entry.MediaID, []byte(entry.Hashes), entry.FeaturesRef).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return database.CorpusEntry{}, fmt.Errorf("insert corpus entry: %w", err)
	}
	return entry, nil
}
