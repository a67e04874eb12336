package similarity

import "github.com/kozaktomas/media-dedup/internal/media"

// Comparison is the sequence-level similarity of two media items.
// Pairs == 0 means nothing aligned and every score is 0; callers must
// check it before trusting the scores.
type Comparison struct {
	Pairs     int
	Hashes    HashScores
	Embedding float64
}

// Compare aligns two frame sequences and averages the per-frame scores.
func Compare(a, b []media.Frame) Comparison {
	pairs := Align(frameNames(a), frameNames(b))
	if len(pairs) == 0 {
		return Comparison{}
	}

	var hashes HashScores
	var embedding float64
	for _, p := range pairs {
		fa, fb := a[p.A], b[p.B]
		hashes = hashes.add(HashSimilarity(fa.Hashes, fb.Hashes))
		embedding += EmbeddingSimilarity(fa.Embedding, fb.Embedding)
	}

	n := float64(len(pairs))
	return Comparison{
		Pairs:     len(pairs),
		Hashes:    hashes.div(n),
		Embedding: embedding / n,
	}
}
