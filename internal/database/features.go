package database

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

var safeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileFeatureStore keeps each item's per-frame embeddings in one gob file.
// The reference is the file path.
type FileFeatureStore struct {
	dir string
}

// NewFileFeatureStore creates the directory if needed.
func NewFileFeatureStore(dir string) (*FileFeatureStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create features directory: %w", err)
	}
	return &FileFeatureStore{dir: dir}, nil
}

// Save writes the embeddings to <dir>/<mediaID>.gob.
func (s *FileFeatureStore) Save(_ context.Context, mediaID string, features map[string][]float32) (string, error) {
	path := filepath.Join(s.dir, safeName.ReplaceAllString(mediaID, "_")+".gob")

	tmp, err := os.CreateTemp(s.dir, ".features-*")
	if err != nil {
		return "", fmt.Errorf("create features file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(features); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode features: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close features file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move features file: %w", err)
	}
	return path, nil
}

// Load reads the embeddings referenced by path.
func (s *FileFeatureStore) Load(_ context.Context, ref string) (map[string][]float32, error) {
	f, err := os.Open(ref)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFeaturesNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("open features file: %w", err)
	}
	defer f.Close()

	var features map[string][]float32
	if err := gob.NewDecoder(f).Decode(&features); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptEntry, ref, err)
	}
	return features, nil
}

// Delete removes the features file for ref.
func (s *FileFeatureStore) Delete(_ context.Context, ref string) error {
	if err := os.Remove(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove features file: %w", err)
	}
	return nil
}

// CachedFeatureStore keeps recently loaded embedding sets in memory.
// Stored features are immutable, so entries never need invalidation.
type CachedFeatureStore struct {
	next  FeatureWriter
	cache *lru.Cache[string, map[string][]float32]
}

// NewCachedFeatureStore wraps next with an LRU of the given size.
func NewCachedFeatureStore(next FeatureWriter, size int) (*CachedFeatureStore, error) {
	cache, err := lru.New[string, map[string][]float32](size)
	if err != nil {
		return nil, fmt.Errorf("create feature cache: %w", err)
	}
	return &CachedFeatureStore{next: next, cache: cache}, nil
}

// Save writes through and primes the cache.
func (c *CachedFeatureStore) Save(ctx context.Context, mediaID string, features map[string][]float32) (string, error) {
	ref, err := c.next.Save(ctx, mediaID, features)
	if err != nil {
		return "", err
	}
	c.cache.Add(ref, features)
	return ref, nil
}

// Load serves from the cache when possible.
func (c *CachedFeatureStore) Load(ctx context.Context, ref string) (map[string][]float32, error) {
	if features, ok := c.cache.Get(ref); ok {
		return features, nil
	}
	features, err := c.next.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.cache.Add(ref, features)
	return features, nil
}

// Delete evicts ref and deletes it from the underlying store.
func (c *CachedFeatureStore) Delete(ctx context.Context, ref string) error {
	c.cache.Remove(ref)
	return c.next.Delete(ctx, ref)
}

// Len returns the number of cached embedding sets.
func (c *CachedFeatureStore) Len() int {
	return c.cache.Len()
}
