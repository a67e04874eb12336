// Package media holds the in-memory model of an ingested media item.
package media

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/media-dedup/internal/fingerprint"
)

var (
	ErrNoFrames          = errors.New("media item has no frames")
	ErrDuplicateFrame    = errors.New("duplicate frame name")
	ErrIncompleteHashes  = errors.New("frame hash set is incomplete")
	ErrInconsistentShape = errors.New("embedding dimensions differ between frames")
)

// Frame is one still image of a media item. Name is the alignment key.
type Frame struct {
	Name      string
	Hashes    fingerprint.HashSet
	Embedding []float32
}

// Item is a still image (one frame) or a sampled video (N frames).
type Item struct {
	ID     string
	Name   string
	Frames []Frame
}

// Validate rejects items that must never reach the corpus.
func (it *Item) Validate() error {
	if len(it.Frames) == 0 {
		return ErrNoFrames
	}

	seen := make(map[string]struct{}, len(it.Frames))
	dim := len(it.Frames[0].Embedding)
	for _, f := range it.Frames {
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateFrame, f.Name)
		}
		seen[f.Name] = struct{}{}

		if !f.Hashes.Complete() {
			return fmt.Errorf("%w: frame %q", ErrIncompleteHashes, f.Name)
		}
		if len(f.Embedding) != dim {
			return fmt.Errorf("%w: frame %q has %d, expected %d", ErrInconsistentShape, f.Name, len(f.Embedding), dim)
		}
	}
	return nil
}

// FrameHashes returns the per-frame hash sets keyed by frame name.
func (it *Item) FrameHashes() map[string]fingerprint.HashSet {
	out := make(map[string]fingerprint.HashSet, len(it.Frames))
	for _, f := range it.Frames {
		out[f.Name] = f.Hashes
	}
	return out
}

// FrameEmbeddings returns the per-frame embeddings keyed by frame name.
func (it *Item) FrameEmbeddings() map[string][]float32 {
	out := make(map[string][]float32, len(it.Frames))
	for _, f := range it.Frames {
		out[f.Name] = f.Embedding
	}
	return out
}

// FromStored rebuilds frames from persisted hashes and embeddings.
// Frames whose embedding is missing keep a nil vector and score 0.
func FromStored(hashes map[string]fingerprint.HashSet, embeddings map[string][]float32) []Frame {
	frames := make([]Frame, 0, len(hashes))
	for name, set := range hashes {
		frames = append(frames, Frame{Name: name, Hashes: set, Embedding: embeddings[name]})
	}
	return frames
}
