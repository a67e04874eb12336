package database

import (
	"context"
)

// CorpusReader provides read-only access to the corpus
type CorpusReader interface {
	// List returns every committed entry in insertion order
	List(ctx context.Context) ([]CorpusEntry, error)
	// Count returns the number of committed entries
	Count(ctx context.Context) (int, error)
}

// CorpusWriter appends to the corpus. There is no update or delete.
type CorpusWriter interface {
	CorpusReader

	// Append stores the entry atomically and returns it with ID and CreatedAt set
	Append(ctx context.Context, entry CorpusEntry) (CorpusEntry, error)
}

// FeatureReader loads per-frame embedding sequences
type FeatureReader interface {
	// Load returns frame name -> embedding for the given reference
	Load(ctx context.Context, ref string) (map[string][]float32, error)
}

// FeatureWriter persists per-frame embedding sequences
type FeatureWriter interface {
	FeatureReader

	// Save stores the embeddings and returns the reference to put in the corpus entry
	Save(ctx context.Context, mediaID string, features map[string][]float32) (string, error)
	// Delete removes features that never made it into the corpus. Unknown
	// references are not an error.
	Delete(ctx context.Context, ref string) error
}
