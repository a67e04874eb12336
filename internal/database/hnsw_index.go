package database

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSW index parameters for corpus entry embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EntryCount int       `json:"entry_count"`
	CorpusSize int       `json:"corpus_size"` // entries listed at build time, including skipped ones
	MaxEntryID int64     `json:"max_entry_id"`
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"`
}

const hnswMetadataVersion = 1

// IndexedEntry is the per-entry payload kept next to the graph.
type IndexedEntry struct {
	ID   int64
	Name string
	Mean []float32 // mean of the entry's frame embeddings
}

// Neighbor is one search hit.
type Neighbor struct {
	Entry    IndexedEntry
	Distance float64 // cosine distance, 0 = identical
}

// HNSWEntryIndex is an approximate nearest-neighbour index over the mean
// embedding of every corpus entry. It serves exploratory "what looks like
// this" queries; duplicate decisions always scan the full corpus.
type HNSWEntryIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	entries    map[int64]*IndexedEntry
	maxID      int64
	corpusSize int
	mu         sync.RWMutex
}

// NewHNSWEntryIndex creates a new empty index.
func NewHNSWEntryIndex() *HNSWEntryIndex {
	return &HNSWEntryIndex{entries: make(map[int64]*IndexedEntry)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// MeanEmbedding averages per-frame embeddings in frame name order. Frames
// with a different length than the first are ignored.
func MeanEmbedding(features map[string][]float32) []float32 {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	var mean []float32
	n := 0
	for _, name := range names {
		vec := features[name]
		if len(vec) == 0 {
			continue
		}
		if mean == nil {
			mean = make([]float32, len(vec))
		}
		if len(vec) != len(mean) {
			continue
		}
		for i, v := range vec {
			mean[i] += v
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range mean {
		mean[i] /= float32(n)
	}
	return mean
}

// Build rebuilds the index from the corpus. Entries whose features cannot be
// loaded are skipped and counted.
func (h *HNSWEntryIndex) Build(ctx context.Context, corpus CorpusReader, features FeatureReader, logger *slog.Logger) (skipped int, err error) {
	entries, err := corpus.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list corpus: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.savedGraph = nil
	h.entries = make(map[int64]*IndexedEntry, len(entries))
	h.maxID = 0
	h.corpusSize = len(entries)

	var dim int
	for _, e := range entries {
		h.maxID = max(h.maxID, e.ID)

		feats, err := features.Load(ctx, e.FeaturesRef)
		if err != nil {
			logger.Warn("skipping entry in index build", "entry", e.ID, "name", e.Name, "error", err)
			skipped++
			continue
		}
		mean := MeanEmbedding(feats)
		if len(mean) == 0 || (dim != 0 && len(mean) != dim) {
			logger.Warn("skipping entry with unusable embeddings", "entry", e.ID, "name", e.Name, "dim", len(mean))
			skipped++
			continue
		}
		dim = len(mean)

		if h.graph == nil {
			h.graph = newGraph()
		}
		h.graph.Add(hnsw.MakeNode(e.ID, mean))
		h.entries[e.ID] = &IndexedEntry{ID: e.ID, Name: e.Name, Mean: mean}
	}

	return skipped, nil
}

// Search finds the k entries closest to query.
func (h *HNSWEntryIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, errors.New("index not initialized")
	}

	var nodes []hnsw.Node[int64]
	if h.savedGraph != nil {
		nodes = h.savedGraph.Search(query, k)
	} else {
		nodes = h.graph.Search(query, k)
	}

	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		entry, ok := h.entries[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			Entry:    *entry,
			Distance: float64(hnsw.CosineDistance(query, n.Value)),
		})
	}
	return out, nil
}

// Count returns the number of indexed entries.
func (h *HNSWEntryIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Metadata describes the indexed corpus snapshot.
func (h *HNSWEntryIndex) Metadata() HNSWIndexMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HNSWIndexMetadata{EntryCount: len(h.entries), CorpusSize: h.corpusSize, MaxEntryID: h.maxID}
}

// Save persists the graph, a .meta file and a .entries file under path.
func (h *HNSWEntryIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".entries")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	metadata := HNSWIndexMetadata{
		EntryCount: len(h.entries),
		CorpusSize: h.corpusSize,
		MaxEntryID: h.maxID,
		BuildTime:  time.Now(),
		Version:    hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	ef, err := os.Create(path + ".entries") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create entries file: %w", err)
	}
	defer ef.Close()

	entries := make([]IndexedEntry, 0, len(h.entries))
	for _, e := range h.entries {
		entries = append(entries, *e)
	}
	if err := gob.NewEncoder(ef).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load reads a previously saved index.
func (h *HNSWEntryIndex) Load(path string) error {
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if meta.Version != hnswMetadataVersion {
		return fmt.Errorf("unsupported HNSW index version %d", meta.Version)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	ef, err := os.Open(path + ".entries") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open entries file: %w", err)
	}
	defer ef.Close()

	var entries []IndexedEntry
	if err := gob.NewDecoder(ef).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode entries: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.savedGraph = saved
	h.entries = make(map[int64]*IndexedEntry, len(entries))
	h.maxID = meta.MaxEntryID
	h.corpusSize = meta.CorpusSize
	for i := range entries {
		h.entries[entries[i].ID] = &entries[i]
	}
	return nil
}

// IsStale reports whether the corpus grew since the index was built.
func (h *HNSWEntryIndex) IsStale(ctx context.Context, corpus CorpusReader) (bool, error) {
	count, err := corpus.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count corpus: %w", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	empty := h.graph == nil && h.savedGraph == nil
	return empty || count != h.corpusSize, nil
}
