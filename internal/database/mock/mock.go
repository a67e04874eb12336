// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/media-dedup/internal/database"
)

// MockCorpus is an in-memory database.CorpusWriter.
// Appends are serialized and readers only ever see committed entries.
type MockCorpus struct {
	mu      sync.RWMutex
	entries []database.CorpusEntry

	// Error injection
	ListError   error
	CountError  error
	AppendError error
}

// NewMockCorpus creates an empty corpus.
func NewMockCorpus() *MockCorpus {
	return &MockCorpus{}
}

// List returns a snapshot of all entries in insertion order.
func (m *MockCorpus) List(ctx context.Context) ([]database.CorpusEntry, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries), nil
}

// Count returns the number of entries.
func (m *MockCorpus) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Append assigns the next insertion ID and stores the entry.
func (m *MockCorpus) Append(ctx context.Context, entry database.CorpusEntry) (database.CorpusEntry, error) {
	if m.AppendError != nil {
		return database.CorpusEntry{}, m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Hashes = slices.Clone(entry.Hashes)
	m.entries = append(m.entries, entry)
	return entry, nil
}

// MockFeatureStore is an in-memory database.FeatureWriter.
type MockFeatureStore struct {
	mu       sync.RWMutex
	features map[string]map[string][]float32
	loads    int

	// Error injection
	SaveError   error
	LoadError   error
	DeleteError error
}

// NewMockFeatureStore creates an empty feature store.
func NewMockFeatureStore() *MockFeatureStore {
	return &MockFeatureStore{features: make(map[string]map[string][]float32)}
}

// Save stores a copy of the features under "mem:<mediaID>".
func (m *MockFeatureStore) Save(ctx context.Context, mediaID string, features map[string][]float32) (string, error) {
	if m.SaveError != nil {
		return "", m.SaveError
	}
	ref := "mem:" + mediaID
	m.Put(ref, features)
	return ref, nil
}

// Put stores features under an explicit reference.
func (m *MockFeatureStore) Put(ref string, features map[string][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[ref] = maps.Clone(features)
}

// Load returns the features for ref.
func (m *MockFeatureStore) Load(ctx context.Context, ref string) (map[string][]float32, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	features, ok := m.features[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrFeaturesNotFound, ref)
	}
	return features, nil
}

// Delete removes the features stored under ref.
func (m *MockFeatureStore) Delete(ctx context.Context, ref string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.features, ref)
	return nil
}

// Len returns the number of stored feature sets.
func (m *MockFeatureStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.features)
}

// Loads returns how many times Load was called.
func (m *MockFeatureStore) Loads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loads
}
