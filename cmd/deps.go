package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/media-dedup/internal/config"
	"github.com/kozaktomas/media-dedup/internal/database"
	_ "github.com/kozaktomas/media-dedup/internal/database/mariadb"
	_ "github.com/kozaktomas/media-dedup/internal/database/postgres"
	"github.com/kozaktomas/media-dedup/internal/fingerprint"
	"github.com/kozaktomas/media-dedup/internal/frames"
	"github.com/kozaktomas/media-dedup/internal/ingest"
	"github.com/kozaktomas/media-dedup/internal/matcher"
)

// app holds everything a command needs to ingest or query.
type app struct {
	cfg       *config.Config
	backend   *database.Backend
	extractor *frames.Extractor
	embedder  fingerprint.Embedder
	pipeline  *ingest.Pipeline
}

// addMatchFlags registers flags that override matcher configuration.
func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("threshold", 0, "Duplicate threshold in percent (default from MATCH_THRESHOLD or 90)")
	cmd.Flags().String("mode", "", "Decision mode: embedding or blended (default from MATCH_MODE)")
}

// applyMatchFlags copies explicitly set flags into cfg.
func applyMatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("threshold") {
		t := mustGetFloat64(cmd, "threshold")
		if t <= 0 || t > 100 {
			return fmt.Errorf("--threshold must be in (0, 100], got %v", t)
		}
		cfg.Matcher.Threshold = t
	}
	if cmd.Flags().Changed("mode") {
		cfg.Matcher.Mode = mustGetString(cmd, "mode")
	}
	return nil
}

func buildEmbedder(cfg *config.EmbeddingConfig) (fingerprint.Embedder, error) {
	var inner fingerprint.Embedder
	switch cfg.Backend {
	case config.BackendHTTP:
		inner = fingerprint.NewEmbeddingClient(cfg.URL)
	case config.BackendPixels:
		inner = fingerprint.PixelEmbedder{Size: cfg.PixelSize}
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
	return fingerprint.DimensionChecker{Embedder: inner, Dim: cfg.VectorDim()}, nil
}

// openApp loads configuration and connects the storage backend. Callers must
// Close the returned app.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg := config.Load()
	if cmd.Flags().Lookup("threshold") != nil {
		if err := applyMatchFlags(cmd, cfg); err != nil {
			return nil, err
		}
	}

	embedder, err := buildEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening corpus", "driver", cfg.Database.Driver)
	backend, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	m, err := matcher.New(backend.Features, cfg.Matcher, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	extractor := frames.NewExtractor(cfg.Frames, logger)
	return &app{
		cfg:       cfg,
		backend:   backend,
		extractor: extractor,
		embedder:  embedder,
		pipeline:  ingest.NewPipeline(extractor, embedder, backend, m, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		logger.Warn("closing corpus backend", "error", err)
	}
}
