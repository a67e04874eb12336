package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"

	// embeddingMaxSize bounds the longest image side sent to the embedding server.
	embeddingMaxSize = 1024
)

// ErrEmbedding is returned when the model output is empty or has the wrong shape.
var ErrEmbedding = errors.New("invalid embedding")

// Embedder turns one image into a fixed-length feature vector.
type Embedder interface {
	ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// EmbeddingClient computes image embeddings using the embedding server
type EmbeddingClient struct {
	baseURL string
	client  *http.Client
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(baseURL string) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// postMultipartImage posts the image as a multipart form to the given endpoint.
func (c *EmbeddingClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ComputeEmbedding computes the embedding for an image using the embedding server
func (c *EmbeddingClient) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	resized, err := ResizeImage(imageData, embeddingMaxSize)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/image", resized)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrEmbedding, err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrEmbedding)
	}
	if embResp.Dim != 0 && embResp.Dim != len(embResp.Embedding) {
		return nil, fmt.Errorf("%w: server reported dim %d but sent %d values", ErrEmbedding, embResp.Dim, len(embResp.Embedding))
	}

	return embResp.Embedding, nil
}

// PixelEmbedder is an offline Embedder: the image is scaled to Size x Size
// and its RGB values, normalised to [0,1], form the vector.
type PixelEmbedder struct {
	Size int
}

// Dim returns the length of the vectors produced.
func (p PixelEmbedder) Dim() int {
	return 3 * p.Size * p.Size
}

// ComputeEmbedding implements Embedder.
func (p PixelEmbedder) ComputeEmbedding(_ context.Context, imageData []byte) ([]float32, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("%w: pixel grid size %d", ErrEmbedding, p.Size)
	}
	img, err := decode(imageData)
	if err != nil {
		return nil, err
	}

	small := resizeImage(img, p.Size, p.Size)
	vec := make([]float32, 0, p.Dim())
	for y := range p.Size {
		for x := range p.Size {
			c := small.RGBAAt(x, y)
			vec = append(vec, float32(c.R)/255, float32(c.G)/255, float32(c.B)/255)
		}
	}
	return vec, nil
}

// DimensionChecker enforces the corpus-wide embedding dimension on another Embedder.
type DimensionChecker struct {
	Embedder Embedder
	Dim      int
}

// ComputeEmbedding implements Embedder.
func (d DimensionChecker) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	vec, err := d.Embedder.ComputeEmbedding(ctx, imageData)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrEmbedding)
	}
	if d.Dim > 0 && len(vec) != d.Dim {
		return nil, fmt.Errorf("%w: got %d dimensions, corpus uses %d", ErrEmbedding, len(vec), d.Dim)
	}
	return vec, nil
}
