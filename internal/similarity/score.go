// Package similarity scores pairs of frames and aligned frame sequences.
// Every score is a percentage in [0,100].
package similarity

import (
	"math"

	"github.com/kozaktomas/media-dedup/internal/fingerprint"
)

// HashScores holds one percentage per hash type.
type HashScores struct {
	Structural float64 `json:"phash_percent"`
	Gradient   float64 `json:"dhash_percent"`
	Histogram  float64 `json:"hist_percent"`
}

// Mean returns the average of the three hash scores.
func (s HashScores) Mean() float64 {
	return (s.Structural + s.Gradient + s.Histogram) / 3
}

func (s HashScores) add(o HashScores) HashScores {
	return HashScores{
		Structural: s.Structural + o.Structural,
		Gradient:   s.Gradient + o.Gradient,
		Histogram:  s.Histogram + o.Histogram,
	}
}

func (s HashScores) div(n float64) HashScores {
	return HashScores{
		Structural: s.Structural / n,
		Gradient:   s.Gradient / n,
		Histogram:  s.Histogram / n,
	}
}

// HashSimilarity scores each hash type of two frames independently.
func HashSimilarity(a, b fingerprint.HashSet) HashScores {
	return HashScores{
		Structural: hashPercent(a.Structural, b.Structural),
		Gradient:   hashPercent(a.Gradient, b.Gradient),
		Histogram:  hashPercent(a.Histogram, b.Histogram),
	}
}

// hashPercent is 100 - hamming/bits*100, or 0 when either side is missing
// or the widths differ.
func hashPercent(a, b fingerprint.Hash) float64 {
	if a.IsZero() || b.IsZero() || a.Bits != b.Bits {
		return 0
	}
	dist := fingerprint.HammingDistance(a.Value, b.Value)
	return 100 - float64(dist)/float64(a.Bits)*100
}

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	// One square root keeps CosineSimilarity(v, v) exactly 1.
	return dotProduct / math.Sqrt(normA*normB)
}

// EmbeddingSimilarity is the cosine similarity scaled to a percentage.
// Anti-correlated vectors score 0, not a negative percentage.
func EmbeddingSimilarity(a, b []float32) float64 {
	return clampPercent(CosineSimilarity(a, b) * 100)
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
