// Package ingest runs media items through fingerprinting, matching and
// persistence.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/media-dedup/internal/database"
	"github.com/kozaktomas/media-dedup/internal/fingerprint"
	"github.com/kozaktomas/media-dedup/internal/frames"
	"github.com/kozaktomas/media-dedup/internal/matcher"
	"github.com/kozaktomas/media-dedup/internal/media"
)

// Pipeline is the single writer of the corpus. Every ingested item is
// appended, duplicate or not, so later items can match against it.
type Pipeline struct {
	extractor *frames.Extractor
	embedder  fingerprint.Embedder
	corpus    database.CorpusWriter
	features  database.FeatureWriter
	matcher   *matcher.Matcher
	logger    *slog.Logger

	// mu serializes snapshot, match and append.
	mu sync.Mutex
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(extractor *frames.Extractor, embedder fingerprint.Embedder, backend *database.Backend, m *matcher.Matcher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		corpus:    backend.Corpus,
		features:  backend.Features,
		matcher:   m,
		logger:    logger,
	}
}

// Ingest extracts frames from path and ingests them under name.
func (p *Pipeline) Ingest(ctx context.Context, name, path string) (*Summary, error) {
	fr, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	return p.IngestFrames(ctx, name, fr)
}

// IngestUpload ingests uploaded file content.
func (p *Pipeline) IngestUpload(ctx context.Context, name string, data []byte) (*Summary, error) {
	fr, err := p.extractor.ExtractBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	return p.IngestFrames(ctx, name, fr)
}

// IngestFrames fingerprints the frames, matches them against the corpus and
// appends the item. A frame that fails to decode or embed aborts the item
// before anything is persisted.
func (p *Pipeline) IngestFrames(ctx context.Context, name string, fr []frames.Frame) (*Summary, error) {
	item, err := p.analyze(ctx, name, fr)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.match(ctx, item)
	if err != nil {
		return nil, err
	}

	ref, err := p.features.Save(ctx, item.ID, item.FrameEmbeddings())
	if err != nil {
		return nil, fmt.Errorf("save features: %w", err)
	}
	entry, err := database.NewCorpusEntry(item.Name, item.ID, item.FrameHashes(), ref)
	if err != nil {
		p.discardFeatures(ref)
		return nil, err
	}
	stored, err := p.corpus.Append(ctx, entry)
	if err != nil {
		p.discardFeatures(ref)
		return nil, fmt.Errorf("append corpus entry: %w", err)
	}

	summary := newSummary(item, res, p.matcher)
	summary.EntryID = stored.ID
	summary.FeaturesRef = ref
	p.logDecision("ingested", summary)
	return summary, nil
}

// Check matches uploaded content without touching the corpus.
func (p *Pipeline) Check(ctx context.Context, name string, data []byte) (*Summary, error) {
	fr, err := p.extractor.ExtractBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	return p.CheckFrames(ctx, name, fr)
}

// CheckFile matches a file or directory without touching the corpus.
func (p *Pipeline) CheckFile(ctx context.Context, name, path string) (*Summary, error) {
	fr, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	return p.CheckFrames(ctx, name, fr)
}

// CheckFrames is the dry-run form of IngestFrames.
func (p *Pipeline) CheckFrames(ctx context.Context, name string, fr []frames.Frame) (*Summary, error) {
	item, err := p.analyze(ctx, name, fr)
	if err != nil {
		return nil, err
	}
	res, err := p.match(ctx, item)
	if err != nil {
		return nil, err
	}
	summary := newSummary(item, res, p.matcher)
	p.logDecision("checked", summary)
	return summary, nil
}

func (p *Pipeline) analyze(ctx context.Context, name string, fr []frames.Frame) (*media.Item, error) {
	item := &media.Item{ID: uuid.NewString(), Name: name, Frames: make([]media.Frame, 0, len(fr))}
	for _, f := range fr {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hashes, err := fingerprint.ComputeHashes(f.Data)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", f.Name, err)
		}
		vec, err := p.embedder.ComputeEmbedding(ctx, f.Data)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", f.Name, err)
		}
		item.Frames = append(item.Frames, media.Frame{Name: f.Name, Hashes: hashes, Embedding: vec})
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("invalid media item %s: %w", name, err)
	}
	return item, nil
}

func (p *Pipeline) match(ctx context.Context, item *media.Item) (*matcher.Result, error) {
	snapshot, err := p.corpus.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	res, err := p.matcher.Match(ctx, *item, snapshot)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	return res, nil
}

// discardFeatures removes features saved for an item that was not appended.
// It runs on a fresh context so a cancelled request still cleans up.
func (p *Pipeline) discardFeatures(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.features.Delete(ctx, ref); err != nil {
		p.logger.Warn("orphaned features left behind", "ref", ref, "error", err)
	}
}

func (p *Pipeline) logDecision(action string, s *Summary) {
	attrs := []any{"name", s.Filename, "media_id", s.MediaID, "frames", s.Frames, "duplicate", s.Duplicate}
	if s.BestMatch != nil {
		attrs = append(attrs, "matched", s.BestMatch.MatchedVideo, "score", s.BestMatch.Score)
	}
	if s.Skipped > 0 {
		attrs = append(attrs, "skipped", s.Skipped)
	}
	p.logger.Info(action, attrs...)
}
