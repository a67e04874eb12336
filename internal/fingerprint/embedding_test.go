package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbeddingClientComputeEmbedding(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/image" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()
		gotContentType = header.Header.Get("Content-Type")

		json.NewEncoder(w).Encode(embeddingResponse{
			Dim:       3,
			Embedding: []float32{0.1, 0.2, 0.3},
			Model:     "resnet50",
		})
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL + "/")
	vec, err := client.ComputeEmbedding(context.Background(), encodePNG(createGradientImage(20, 20)))
	if err != nil {
		t.Fatalf("ComputeEmbedding failed: %v", err)
	}

	if len(vec) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(vec))
	}
	if gotContentType != "image/png" {
		t.Errorf("expected image/png part, got %q", gotContentType)
	}
}

func TestEmbeddingClientErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		isEmbedding bool
	}{
		{"server error", http.StatusInternalServerError, "boom", false},
		{"empty embedding", http.StatusOK, `{"dim":0,"embedding":[]}`, true},
		{"dim mismatch", http.StatusOK, `{"dim":4,"embedding":[1,2,3]}`, true},
		{"invalid json", http.StatusOK, `{`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewEmbeddingClient(srv.URL).ComputeEmbedding(context.Background(), encodePNG(createGradientImage(8, 8)))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrEmbedding) != tc.isEmbedding {
				t.Errorf("errors.Is(err, ErrEmbedding) = %v; want %v (err: %v)", !tc.isEmbedding, tc.isEmbedding, err)
			}
		})
	}
}

func TestPixelEmbedder(t *testing.T) {
	embedder := PixelEmbedder{Size: 8}
	data := encodePNG(createGradientImage(64, 64))

	vec1, err := embedder.ComputeEmbedding(context.Background(), data)
	if err != nil {
		t.Fatalf("ComputeEmbedding failed: %v", err)
	}
	vec2, err := embedder.ComputeEmbedding(context.Background(), data)
	if err != nil {
		t.Fatalf("ComputeEmbedding failed: %v", err)
	}

	if len(vec1) != embedder.Dim() {
		t.Fatalf("expected %d values, got %d", embedder.Dim(), len(vec1))
	}
	for i := range vec1 {
		if vec1[i] != vec2[i] {
			t.Fatalf("embedding not deterministic at %d: %f vs %f", i, vec1[i], vec2[i])
		}
		if vec1[i] < 0 || vec1[i] > 1 {
			t.Fatalf("value %f at %d outside [0,1]", vec1[i], i)
		}
	}

	if _, err := embedder.ComputeEmbedding(context.Background(), []byte("nope")); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for invalid image, got %v", err)
	}
}

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) ComputeEmbedding(context.Context, []byte) ([]float32, error) {
	return f.vec, f.err
}

func TestDimensionChecker(t *testing.T) {
	upstream := errors.New("model offline")

	tests := []struct {
		name    string
		inner   fixedEmbedder
		dim     int
		wantErr error
	}{
		{"matching dimension", fixedEmbedder{vec: []float32{1, 2, 3}}, 3, nil},
		{"unchecked dimension", fixedEmbedder{vec: []float32{1, 2, 3}}, 0, nil},
		{"wrong dimension", fixedEmbedder{vec: []float32{1, 2}}, 3, ErrEmbedding},
		{"empty output", fixedEmbedder{vec: nil}, 3, ErrEmbedding},
		{"upstream failure", fixedEmbedder{err: upstream}, 3, upstream},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := DimensionChecker{Embedder: tc.inner, Dim: tc.dim}
			_, err := checker.ComputeEmbedding(context.Background(), nil)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
