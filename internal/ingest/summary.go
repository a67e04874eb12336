package ingest

import (
	"github.com/kozaktomas/media-dedup/internal/matcher"
	"github.com/kozaktomas/media-dedup/internal/media"
)

// BestMatch is the JSON form of the best-scoring corpus entry.
type BestMatch struct {
	MatchedVideo   string  `json:"matched_video"`
	EntryID        int64   `json:"entry_id"`
	MediaID        string  `json:"media_id"`
	PHashPercent   float64 `json:"phash_percent"`
	DHashPercent   float64 `json:"dhash_percent"`
	HistPercent    float64 `json:"hist_percent"`
	AIMatchPercent float64 `json:"ai_match_percent"`
	Score          float64 `json:"score"`
	AlignedFrames  int     `json:"aligned_frames"`
}

// Summary is the per-item report returned by ingest and check.
type Summary struct {
	Filename    string     `json:"filename"`
	MediaID     string     `json:"media_id"`
	EntryID     int64      `json:"entry_id,omitempty"` // zero for dry runs
	Frames      int        `json:"frames"`
	PHashList   []string   `json:"phash_list"`
	DHashList   []string   `json:"dhash_list"`
	HistList    []string   `json:"hist_list"`
	FeaturesRef string     `json:"features_ref,omitempty"`
	Duplicate   bool       `json:"duplicate"`
	Mode        string     `json:"mode"`
	Threshold   float64    `json:"threshold"`
	Compared    int        `json:"compared"`
	Skipped     int        `json:"skipped"`
	BestMatch   *BestMatch `json:"best_match"`
}

func newSummary(item *media.Item, res *matcher.Result, m *matcher.Matcher) *Summary {
	s := &Summary{
		Filename:  item.Name,
		MediaID:   item.ID,
		Frames:    len(item.Frames),
		PHashList: make([]string, 0, len(item.Frames)),
		DHashList: make([]string, 0, len(item.Frames)),
		HistList:  make([]string, 0, len(item.Frames)),
		Duplicate: res.Duplicate,
		Mode:      m.Mode(),
		Threshold: m.Threshold(),
		Compared:  res.Compared,
		Skipped:   res.Skipped,
	}
	for _, f := range item.Frames {
		s.PHashList = append(s.PHashList, f.Hashes.Structural.String())
		s.DHashList = append(s.DHashList, f.Hashes.Gradient.String())
		s.HistList = append(s.HistList, f.Hashes.Histogram.String())
	}
	if b := res.Best; b != nil {
		s.BestMatch = &BestMatch{
			MatchedVideo:   b.Name,
			EntryID:        b.EntryID,
			MediaID:        b.MediaID,
			PHashPercent:   b.Hashes.Structural,
			DHashPercent:   b.Hashes.Gradient,
			HistPercent:    b.Hashes.Histogram,
			AIMatchPercent: b.Embedding,
			Score:          b.Score,
			AlignedFrames:  b.Pairs,
		}
	}
	return s
}
