package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/media-dedup/internal/config"
	"github.com/kozaktomas/media-dedup/internal/database"
	"github.com/kozaktomas/media-dedup/internal/database/mock"
	"github.com/kozaktomas/media-dedup/internal/fingerprint"
	"github.com/kozaktomas/media-dedup/internal/frames"
	"github.com/kozaktomas/media-dedup/internal/ingest"
	"github.com/kozaktomas/media-dedup/internal/matcher"
	"github.com/kozaktomas/media-dedup/internal/web/handlers"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	corpus := mock.NewMockCorpus()
	features := mock.NewMockFeatureStore()

	m, err := matcher.New(features, config.MatcherConfig{Threshold: 90, Workers: 2}, logger)
	if err != nil {
		t.Fatalf("matcher.New failed: %v", err)
	}
	pipeline := ingest.NewPipeline(
		frames.NewExtractor(config.FramesConfig{TempDir: t.TempDir()}, logger),
		fingerprint.PixelEmbedder{Size: 8},
		database.NewBackend(corpus, features, nil),
		m, logger,
	)
	return NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, pipeline, corpus, logger)
}

func gradientPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, router http.Handler, path, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestServerIngestFlow(t *testing.T) {
	router := newTestServer(t).Router()
	img := gradientPNG(t)

	first := upload(t, router, "/api/v1/ingest", "a.png", img)
	if first.Code != http.StatusOK {
		t.Fatalf("first ingest: expected 200, got %d: %s", first.Code, first.Body.String())
	}
	var s1 ingest.Summary
	json.NewDecoder(first.Body).Decode(&s1)
	if s1.Duplicate || s1.BestMatch != nil {
		t.Errorf("first ingest must be unique, got %+v", s1)
	}

	check := upload(t, router, "/api/v1/check", "probe.png", img)
	var sc ingest.Summary
	json.NewDecoder(check.Body).Decode(&sc)
	if !sc.Duplicate || sc.BestMatch == nil || sc.BestMatch.MatchedVideo != "a.png" {
		t.Errorf("check should report a duplicate of a.png, got %+v", sc)
	}

	second := upload(t, router, "/api/v1/ingest", "b.png", img)
	var s2 ingest.Summary
	json.NewDecoder(second.Body).Decode(&s2)
	if !s2.Duplicate || s2.EntryID != 2 {
		t.Errorf("second ingest should be duplicate entry 2, got %+v", s2)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/corpus", nil))
	var list handlers.CorpusListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode corpus list: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("check must not persist: expected 2 entries, got %d", list.Total)
	}
}

func TestServerRejectsUnsupportedUpload(t *testing.T) {
	router := newTestServer(t).Router()

	rec := upload(t, router, "/api/v1/ingest", "notes.txt", []byte("just some text"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServerRoutes(t *testing.T) {
	router := newTestServer(t).Router()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/corpus", http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/ingest", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
		})
	}
}
