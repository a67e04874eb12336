package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/media-dedup/internal/constants"
	"github.com/kozaktomas/media-dedup/internal/database"
)

// CorpusHandler exposes the stored corpus read-only.
type CorpusHandler struct {
	corpus database.CorpusReader
	logger *slog.Logger
}

// NewCorpusHandler creates a new corpus handler.
func NewCorpusHandler(corpus database.CorpusReader, logger *slog.Logger) *CorpusHandler {
	return &CorpusHandler{corpus: corpus, logger: logger}
}

// CorpusEntryResponse is one listed corpus entry.
type CorpusEntryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	MediaID   string    `json:"media_id"`
	Frames    int       `json:"frames"`
	Corrupt   bool      `json:"corrupt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CorpusListResponse is a page of corpus entries.
type CorpusListResponse struct {
	Total   int                   `json:"total"`
	Offset  int                   `json:"offset"`
	Limit   int                   `json:"limit"`
	Entries []CorpusEntryResponse `json:"entries"`
}

// List returns corpus entries in insertion order, paginated by offset and limit.
func (h *CorpusHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", constants.DefaultPageSize)
	if err != nil || limit < 1 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, constants.MaxPageSize)

	entries, err := h.corpus.List(r.Context())
	if err != nil {
		h.logger.Error("list corpus failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list corpus")
		return
	}

	resp := CorpusListResponse{Total: len(entries), Offset: offset, Limit: limit, Entries: []CorpusEntryResponse{}}
	if offset < len(entries) {
		for _, e := range entries[offset:min(offset+limit, len(entries))] {
			item := CorpusEntryResponse{ID: e.ID, Name: e.Name, MediaID: e.MediaID, CreatedAt: e.CreatedAt}
			if hashes, err := e.DecodeHashes(); err != nil {
				item.Corrupt = true
			} else {
				item.Frames = len(hashes)
			}
			resp.Entries = append(resp.Entries, item)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, defaultVal int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}
