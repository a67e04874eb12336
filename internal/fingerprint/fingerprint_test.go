package fingerprint

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"four bits different", 0xF, 0x0, 4},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(tc.hash1, tc.hash2)
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d",
					tc.hash1, tc.hash2, result, tc.expected)
			}
		})
	}
}

func TestParseHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Hash
		wantErr bool
	}{
		{"empty is missing", "", Hash{}, false},
		{"zero code", "0000000000000000", NewHash(0), false},
		{"full code", "ffffffffffffffff", NewHash(0xFFFFFFFFFFFFFFFF), false},
		{"mixed case", "00000000DEADBEEF", NewHash(0xDEADBEEF), false},
		{"too short", "abc", Hash{}, true},
		{"too long", "00000000000000000", Hash{}, true},
		{"not hex", "zzzzzzzzzzzzzzzz", Hash{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseHash(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedHash) {
					t.Fatalf("ParseHash(%q) error = %v; want ErrMalformedHash", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHash(%q) unexpected error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParseHash(%q) = %+v; want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestHashSetJSON(t *testing.T) {
	set := HashSet{
		Structural: NewHash(0x1),
		Gradient:   NewHash(0xFF00),
		Histogram:  NewHash(0xFFFFFFFFFFFFFFFF),
	}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"phash":"0000000000000001","dhash":"000000000000ff00","hist":"ffffffffffffffff"}`
	if string(data) != expected {
		t.Errorf("Marshal = %s; want %s", data, expected)
	}

	var corrupt HashSet
	err = json.Unmarshal([]byte(`{"phash":"nothex","dhash":"","hist":""}`), &corrupt)
	if !errors.Is(err, ErrMalformedHash) {
		t.Errorf("expected ErrMalformedHash for corrupt stored hash, got %v", err)
	}

	// The gradient hash is keyed "dhash"; a "dct" key is not read.
	var legacy HashSet
	if err := json.Unmarshal([]byte(`{"phash":"0000000000000001","dct":"000000000000ff00"}`), &legacy); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !legacy.Gradient.IsZero() {
		t.Errorf("expected no gradient hash from a dct key, got %+v", legacy.Gradient)
	}
}

func TestComputeHashes(t *testing.T) {
	img := createGradientImage(100, 100)
	imgData := encodeJPEG(img)

	result, err := ComputeHashes(imgData)
	if err != nil {
		t.Fatalf("ComputeHashes failed: %v", err)
	}

	if !result.Complete() {
		t.Fatalf("expected all three hashes, got %+v", result)
	}

	for name, h := range map[string]Hash{
		"structural": result.Structural,
		"gradient":   result.Gradient,
		"histogram":  result.Histogram,
	} {
		if h.Bits != HashBits {
			t.Errorf("%s hash should be %d bits, got %d", name, HashBits, h.Bits)
		}
		if len(h.String()) != 16 {
			t.Errorf("%s hash should be 16 hex characters, got %q", name, h.String())
		}
	}
}

func TestComputeHashesConsistency(t *testing.T) {
	imgData := encodePNG(createGradientImage(120, 80))

	result1, err := ComputeHashes(imgData)
	if err != nil {
		t.Fatalf("First ComputeHashes failed: %v", err)
	}

	result2, err := ComputeHashes(imgData)
	if err != nil {
		t.Fatalf("Second ComputeHashes failed: %v", err)
	}

	if result1 != result2 {
		t.Errorf("hashes should be consistent: %+v vs %+v", result1, result2)
	}
}

func TestComputeHashesDifferentImages(t *testing.T) {
	left := encodePNG(createSplitImage(100, 100, false))
	right := encodePNG(createSplitImage(100, 100, true))

	leftResult, err := ComputeHashes(left)
	if err != nil {
		t.Fatalf("ComputeHashes for left image failed: %v", err)
	}
	rightResult, err := ComputeHashes(right)
	if err != nil {
		t.Fatalf("ComputeHashes for right image failed: %v", err)
	}

	if leftResult.Histogram == rightResult.Histogram {
		t.Errorf("mirrored images should have different histogram hashes, both %s", leftResult.Histogram)
	}
}

func TestComputeHashesInvalidImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not an image")},
		{"empty", nil},
		{"truncated png", encodePNG(createGradientImage(10, 10))[:20]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeHashes(tc.data)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("ComputeHashes should fail with ErrDecode, got %v", err)
			}
		})
	}
}

func TestResizeImage(t *testing.T) {
	img := createTestImage(100, 100, color.White)

	resized := resizeImage(img, 32, 32)

	bounds := resized.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 32 {
		t.Errorf("Resized image should be 32x32, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestResizeImageKeepsAspectRatio(t *testing.T) {
	data := encodePNG(createTestImage(400, 100, color.White))

	out, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("resized output should decode: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 50 {
		t.Errorf("expected 200x50, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	small := encodePNG(createTestImage(50, 50, color.White))
	out, err = ResizeImage(small, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}
	if !bytes.Equal(out, small) {
		t.Error("images within bounds should be returned unchanged")
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

// createSplitImage paints one half white and the other black.
func createSplitImage(width, height int, mirrored bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		white := x < width/2
		if mirrored {
			white = !white
		}
		for y := 0; y < height; y++ {
			if white {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
