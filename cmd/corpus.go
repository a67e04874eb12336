package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/media-dedup/internal/constants"
	"github.com/kozaktomas/media-dedup/internal/database"
	"github.com/kozaktomas/media-dedup/internal/frames"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect the stored corpus",
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List corpus entries in insertion order",
	Args:  cobra.NoArgs,
	RunE:  runCorpusList,
}

var corpusSimilarCmd = &cobra.Command{
	Use:   "similar <path>",
	Short: "Find corpus entries that look like a file",
	Long: `Find the corpus entries whose mean frame embedding is closest to the
given image or video.

The search uses an approximate HNSW index over the whole corpus. When
HNSW_INDEX_PATH is set the index is loaded from disk, rebuilt if the corpus
has grown and saved back. This is an exploration aid; duplicate decisions
always compare against every entry.

Examples:
  media-dedup corpus similar photo.jpg
  media-dedup corpus similar clip.mp4 --limit 5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCorpusSimilar,
}

func init() {
	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusListCmd)
	corpusCmd.AddCommand(corpusSimilarCmd)

	corpusListCmd.Flags().Bool("json", false, "Output as JSON")
	corpusListCmd.Flags().Int("limit", 0, "Show only the last N entries (0 = all)")

	corpusSimilarCmd.Flags().Bool("json", false, "Output as JSON")
	corpusSimilarCmd.Flags().Int("limit", constants.DefaultSimilarLimit, "Maximum number of results")
}

// CorpusListItem is one row of corpus list output.
type CorpusListItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	MediaID   string `json:"media_id"`
	Frames    int    `json:"frames"`
	Corrupt   bool   `json:"corrupt,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runCorpusList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")

	a, err := openApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.backend.Corpus.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing corpus: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	items := make([]CorpusListItem, 0, len(entries))
	for _, e := range entries {
		item := CorpusListItem{ID: e.ID, Name: e.Name, MediaID: e.MediaID, CreatedAt: e.CreatedAt.Format("2006-01-02 15:04:05")}
		if hashes, err := e.DecodeHashes(); err != nil {
			item.Corrupt = true
		} else {
			item.Frames = len(hashes)
		}
		items = append(items, item)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFRAMES\tCREATED\tMEDIA ID")
	for _, it := range items {
		frameCol := fmt.Sprint(it.Frames)
		if it.Corrupt {
			frameCol = "corrupt"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", it.ID, it.Name, frameCol, it.CreatedAt, it.MediaID)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries\n", len(items))
	return nil
}

// SimilarEntry is one result of corpus similar.
type SimilarEntry struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"` // (1 - distance) * 100
}

func runCorpusSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")
	if limit < 1 {
		return errors.New("--limit must be positive")
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fr, err := a.extractor.Extract(ctx, args[0])
	if err != nil {
		return fmt.Errorf("extracting frames: %w", err)
	}
	query, err := meanQuery(cmd, a, fr)
	if err != nil {
		return err
	}

	idx, err := loadEntryIndex(cmd, a)
	if err != nil {
		return err
	}
	neighbors, err := idx.Search(query, limit)
	if err != nil {
		return fmt.Errorf("searching index: %w", err)
	}

	results := make([]SimilarEntry, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, SimilarEntry{
			ID:         n.Entry.ID,
			Name:       n.Entry.Name,
			Distance:   n.Distance,
			Similarity: (1 - n.Distance) * 100,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIMILARITY\tDISTANCE")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%.2f%%\t%.4f\n", r.ID, r.Name, r.Similarity, r.Distance)
	}
	w.Flush()
	return nil
}

// meanQuery embeds every frame and averages the vectors.
func meanQuery(cmd *cobra.Command, a *app, fr []frames.Frame) ([]float32, error) {
	features := make(map[string][]float32, len(fr))
	for _, f := range fr {
		vec, err := a.embedder.ComputeEmbedding(cmd.Context(), f.Data)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", f.Name, err)
		}
		features[f.Name] = vec
	}
	return database.MeanEmbedding(features), nil
}

// loadEntryIndex loads the persisted index when it is current and rebuilds it otherwise.
func loadEntryIndex(cmd *cobra.Command, a *app) (*database.HNSWEntryIndex, error) {
	ctx := cmd.Context()
	path := a.cfg.Database.HNSWIndexPath
	idx := database.NewHNSWEntryIndex()

	if path != "" {
		if err := idx.Load(path); err != nil {
			logger.Debug("no usable HNSW index on disk", "path", path, "error", err)
		} else if stale, err := idx.IsStale(ctx, a.backend.Corpus); err == nil && !stale {
			logger.Debug("loaded HNSW index", "path", path, "entries", idx.Count())
			return idx, nil
		}
	}

	logger.Info("building HNSW index")
	skipped, err := idx.Build(ctx, a.backend.Corpus, a.backend.Features, logger)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	logger.Info("HNSW index built", "entries", idx.Count(), "skipped", skipped)

	if path != "" {
		if err := idx.Save(path); err != nil {
			logger.Warn("failed to save HNSW index", "path", path, "error", err)
		}
	}
	return idx, nil
}
