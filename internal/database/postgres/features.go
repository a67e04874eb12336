package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/media-dedup/internal/database"
)

// FeatureRepository stores per-frame embeddings as pgvector rows keyed by
// features reference and frame name.
type FeatureRepository struct {
	pool *Pool
}

// NewFeatureRepository creates a new PostgreSQL feature repository.
func NewFeatureRepository(pool *Pool) *FeatureRepository {
	return &FeatureRepository{pool: pool}
}

// Save writes all frames of one item in a single transaction. The media ID is
// used as the reference.
func (r *FeatureRepository) Save(ctx context.Context, mediaID string, features map[string][]float32) (string, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for name, vec := range features {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO frame_embeddings (features_ref, frame_name, embedding)
			VALUES ($1, $2, $3)
			ON CONFLICT (features_ref, frame_name) DO UPDATE SET embedding = EXCLUDED.embedding
		`, mediaID, name, pgvector.NewVector(vec))
		if err != nil {
			return "", fmt.Errorf("insert embedding for frame %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit embeddings: %w", err)
	}
	return mediaID, nil
}

// Delete removes every frame embedding stored under ref.
func (r *FeatureRepository) Delete(ctx context.Context, ref string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM frame_embeddings WHERE features_ref = $1", ref); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// Load returns the per-frame embeddings for ref.
func (r *FeatureRepository) Load(ctx context.Context, ref string) (map[string][]float32, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT frame_name, embedding
		FROM frame_embeddings
		WHERE features_ref = $1
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	features := make(map[string][]float32)
	for rows.Next() {
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, fmt.Errorf("%w: scan embedding for %s: %v", database.ErrCorruptEntry, ref, err)
		}
		features[name] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %s", database.ErrFeaturesNotFound, ref)
	}
	return features, nil
}
