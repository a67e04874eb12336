package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/media-dedup/internal/fingerprint"
)

var (
	// ErrCorruptEntry marks a stored entry whose hashes or embeddings cannot be used.
	ErrCorruptEntry = errors.New("corrupt corpus entry")
	// ErrFeaturesNotFound is returned when a features reference points at nothing.
	ErrFeaturesNotFound = errors.New("features not found")
)

// CorpusEntry is one previously ingested media item. Entries are never
// updated or deleted; ID is the insertion index.
type CorpusEntry struct {
	ID          int64
	Name        string
	MediaID     string
	Hashes      json.RawMessage // frame name -> HashSet, decoded lazily
	FeaturesRef string          // opaque reference to the per-frame embeddings
	CreatedAt   time.Time
}

// NewCorpusEntry encodes per-frame hashes into an entry ready for Append.
func NewCorpusEntry(name, mediaID string, hashes map[string]fingerprint.HashSet, featuresRef string) (CorpusEntry, error) {
	raw, err := json.Marshal(hashes)
	if err != nil {
		return CorpusEntry{}, fmt.Errorf("encode frame hashes: %w", err)
	}
	return CorpusEntry{
		Name:        name,
		MediaID:     mediaID,
		Hashes:      raw,
		FeaturesRef: featuresRef,
	}, nil
}

// DecodeHashes parses the stored per-frame hashes.
func (e *CorpusEntry) DecodeHashes() (map[string]fingerprint.HashSet, error) {
	if len(e.Hashes) == 0 {
		return nil, fmt.Errorf("%w: entry %d has no hashes", ErrCorruptEntry, e.ID)
	}
	var hashes map[string]fingerprint.HashSet
	if err := json.Unmarshal(e.Hashes, &hashes); err != nil {
		return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptEntry, e.ID, err)
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("%w: entry %d has no frames", ErrCorruptEntry, e.ID)
	}
	return hashes, nil
}
