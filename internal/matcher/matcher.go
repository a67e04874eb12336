// Package matcher decides whether a candidate item duplicates anything in the
// corpus.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/media-dedup/internal/config"
	"github.com/kozaktomas/media-dedup/internal/database"
	"github.com/kozaktomas/media-dedup/internal/fingerprint"
	"github.com/kozaktomas/media-dedup/internal/media"
	"github.com/kozaktomas/media-dedup/internal/similarity"
)

// Decision modes.
const (
	// ModeEmbedding decides on the averaged embedding similarity alone.
	ModeEmbedding = "embedding"
	// ModeBlended decides on the mean of the hash mean and the embedding score.
	ModeBlended = "blended"
)

// DefaultThreshold is the inclusive duplicate threshold in percent.
const DefaultThreshold = 90.0

// ErrUnknownMode is returned for a decision mode other than ModeEmbedding or ModeBlended.
var ErrUnknownMode = errors.New("unknown decision mode")

// Match is the best-scoring corpus entry for a candidate.
type Match struct {
	EntryID   int64
	Name      string
	MediaID   string
	Pairs     int
	Hashes    similarity.HashScores
	Embedding float64
	Score     float64 // decisive score under the configured mode
}

// Result is the outcome of matching one candidate against a corpus snapshot.
// Best is nil only when no entry could be compared.
type Result struct {
	Best      *Match
	Duplicate bool
	Compared  int
	Skipped   int
}

// Matcher compares candidates against stored corpus entries.
type Matcher struct {
	features  database.FeatureReader
	threshold float64
	mode      string
	workers   int
	logger    *slog.Logger
}

// New creates a matcher from configuration.
func New(features database.FeatureReader, cfg config.MatcherConfig, logger *slog.Logger) (*Matcher, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeEmbedding
	}
	if cfg.Mode != ModeEmbedding && cfg.Mode != ModeBlended {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Matcher{
		features:  features,
		threshold: cfg.Threshold,
		mode:      cfg.Mode,
		workers:   cfg.Workers,
		logger:    logger,
	}, nil
}

// Threshold returns the inclusive duplicate threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Mode returns the decision mode.
func (m *Matcher) Mode() string { return m.mode }

// Match scores candidate against every entry of corpus. Entries are compared
// concurrently but reduced in corpus order, so the earliest entry wins ties.
func (m *Matcher) Match(ctx context.Context, candidate media.Item, corpus []database.CorpusEntry) (*Result, error) {
	if len(corpus) == 0 {
		return &Result{}, nil
	}

	dim := 0
	if len(candidate.Frames) > 0 {
		dim = len(candidate.Frames[0].Embedding)
	}

	matches := make([]*Match, len(corpus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range corpus {
		g.Go(func() error {
			match, err := m.compare(gctx, candidate.Frames, &corpus[i], dim)
			if errors.Is(err, database.ErrCorruptEntry) || errors.Is(err, database.ErrFeaturesNotFound) {
				m.logger.Warn("skipping corpus entry", "entry", corpus[i].ID, "name", corpus[i].Name, "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("compare with entry %d: %w", corpus[i].ID, err)
			}
			matches[i] = match
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, match := range matches {
		if match == nil {
			result.Skipped++
			continue
		}
		result.Compared++
		if result.Best == nil || match.Score > result.Best.Score {
			result.Best = match
		}
	}
	result.Duplicate = result.Best != nil && result.Best.Score >= m.threshold
	return result, nil
}

func (m *Matcher) compare(ctx context.Context, frames []media.Frame, entry *database.CorpusEntry, dim int) (*Match, error) {
	hashes, err := entry.DecodeHashes()
	if err != nil {
		return nil, err
	}
	embeddings, err := m.features.Load(ctx, entry.FeaturesRef)
	if err != nil {
		return nil, err
	}
	stored := 0
	for name := range hashes {
		vec, ok := embeddings[name]
		if !ok || len(vec) == 0 {
			return nil, fmt.Errorf("%w: entry %d has no embedding for frame %s", database.ErrCorruptEntry, entry.ID, name)
		}
		if stored != 0 && len(vec) != stored {
			return nil, fmt.Errorf("%w: entry %d mixes embedding dimensions %d and %d", database.ErrCorruptEntry, entry.ID, stored, len(vec))
		}
		stored = len(vec)
	}
	// A readable entry with another dimension means the embedder no longer
	// matches the corpus. Storing the candidate would mix dimensions.
	if stored != 0 && stored != dim {
		return nil, fmt.Errorf("%w: candidate dimension %d does not match corpus dimension %d (entry %d)", fingerprint.ErrEmbedding, dim, stored, entry.ID)
	}

	cmp := similarity.Compare(frames, media.FromStored(hashes, embeddings))
	return &Match{
		EntryID:   entry.ID,
		Name:      entry.Name,
		MediaID:   entry.MediaID,
		Pairs:     cmp.Pairs,
		Hashes:    cmp.Hashes,
		Embedding: cmp.Embedding,
		Score:     m.decisive(cmp),
	}, nil
}

func (m *Matcher) decisive(cmp similarity.Comparison) float64 {
	if m.mode == ModeBlended {
		return (cmp.Hashes.Mean() + cmp.Embedding) / 2
	}
	return cmp.Embedding
}
