package fingerprint

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

// HashBits is the width of every perceptual hash code.
const HashBits = 64

// hexLen is the length of a hash in its text form.
const hexLen = HashBits / 4

// ErrMalformedHash is returned when stored hash text cannot be parsed.
var ErrMalformedHash = errors.New("malformed hash")

// Hash is a fixed-width perceptual hash code. The zero value means "missing".
type Hash struct {
	Value uint64
	Bits  int
}

// NewHash wraps a 64-bit code.
func NewHash(v uint64) Hash {
	return Hash{Value: v, Bits: HashBits}
}

// IsZero reports whether the hash is missing.
func (h Hash) IsZero() bool {
	return h.Bits == 0
}

// String returns the hash as a zero-padded hex string, or "" when missing.
func (h Hash) String() string {
	if h.IsZero() {
		return ""
	}
	return fmt.Sprintf("%016x", h.Value)
}

// ParseHash parses the hex text form. An empty string yields a missing hash.
func ParseHash(s string) (Hash, error) {
	if s == "" {
		return Hash{}, nil
	}
	if len(s) != hexLen {
		return Hash{}, fmt.Errorf("%w: %q has %d hex chars, want %d", ErrMalformedHash, s, len(s), hexLen)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %q: %v", ErrMalformedHash, s, err)
	}
	return NewHash(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// HashSet holds the three independent perceptual hashes of one frame.
// JSON keys name the hash algorithms.
type HashSet struct {
	Structural Hash `json:"phash"` // DCT perceptual hash on luminance
	Gradient   Hash `json:"dhash"` // difference hash on luminance
	Histogram  Hash `json:"hist"`  // average-intensity hash on the colour image
}

// Complete reports whether all three hashes are present.
func (s HashSet) Complete() bool {
	return !s.Structural.IsZero() && !s.Gradient.IsZero() && !s.Histogram.IsZero()
}
