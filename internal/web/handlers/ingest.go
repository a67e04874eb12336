package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/kozaktomas/media-dedup/internal/constants"
	"github.com/kozaktomas/media-dedup/internal/ingest"
)

// Ingester is the part of the ingestion pipeline the HTTP API drives.
type Ingester interface {
	IngestUpload(ctx context.Context, name string, data []byte) (*ingest.Summary, error)
	Check(ctx context.Context, name string, data []byte) (*ingest.Summary, error)
}

// IngestHandler handles media upload endpoints.
type IngestHandler struct {
	pipeline Ingester
	logger   *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(pipeline Ingester, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, logger: logger}
}

// Ingest fingerprints the uploaded file, matches it and appends it to the corpus.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "ingest", h.pipeline.IngestUpload)
}

// Check reports the best match for the uploaded file without storing it.
func (h *IngestHandler) Check(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "check", h.pipeline.Check)
}

func (h *IngestHandler) handle(w http.ResponseWriter, r *http.Request, action string,
	run func(ctx context.Context, name string, data []byte) (*ingest.Summary, error)) {
	name, data, err := readUpload(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := run(r.Context(), name, data)
	if err != nil {
		status := statusForError(err)
		h.logger.Warn(action+" failed", "name", sanitizeForLog(name), "status", status, "error", err)
		if status == http.StatusInternalServerError {
			respondError(w, status, action+" failed")
			return
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// readUpload reads the multipart "file" field. The optional "name" field
// overrides the uploaded file name.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		return "", nil, errors.New("failed to parse multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, errors.New("failed to read upload")
	}
	if len(data) == 0 {
		return "", nil, errors.New("file is empty")
	}

	name := r.FormValue("name")
	if name == "" {
		name = filepath.Base(header.Filename)
	}
	return name, data, nil
}
