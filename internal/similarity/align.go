package similarity

import (
	"slices"

	"github.com/kozaktomas/media-dedup/internal/media"
)

// Pair links the frame at index A of one sequence to index B of the other.
type Pair struct {
	Name string
	A    int
	B    int
}

// Align inner-joins two frame name lists. The result is ordered by frame
// name; names present on one side only are dropped.
func Align(a, b []string) []Pair {
	index := make(map[string]int, len(b))
	for i, name := range b {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}

	var pairs []Pair
	seen := make(map[string]struct{}, len(a))
	for i, name := range a {
		j, ok := index[name]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		pairs = append(pairs, Pair{Name: name, A: i, B: j})
	}

	slices.SortFunc(pairs, func(x, y Pair) int {
		switch {
		case x.Name < y.Name:
			return -1
		case x.Name > y.Name:
			return 1
		}
		return 0
	})
	return pairs
}

func frameNames(frames []media.Frame) []string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Name
	}
	return names
}
