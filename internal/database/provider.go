package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/media-dedup/internal/config"
)

// Backend bundles the corpus and feature stores opened for one driver.
type Backend struct {
	Corpus   CorpusWriter
	Features FeatureWriter
	close    func() error
}

// NewBackend wraps stores and their cleanup function.
func NewBackend(corpus CorpusWriter, features FeatureWriter, closeFn func() error) *Backend {
	return &Backend{Corpus: corpus, Features: features, close: closeFn}
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Opener connects a backend from configuration.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (*Backend, error)

var (
	openers   = make(map[string]Opener)
	openersMu sync.RWMutex
)

// RegisterBackend registers a driver constructor.
// This is called by the driver packages to avoid import cycles.
func RegisterBackend(driver string, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = open
}

// Drivers returns the registered driver names.
func Drivers() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the %s driver", cfg.Driver)
	}

	openersMu.RLock()
	open, ok := openers[cfg.Driver]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown database driver %q (registered: %v)", cfg.Driver, Drivers())
	}

	b, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Driver, err)
	}
	return b, nil
}
