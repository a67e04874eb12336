package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when frame bytes are not a readable image.
var ErrDecode = errors.New("image decode failed")

// ComputeHashes decodes an image and computes its HashSet.
// It never returns a partial set: any failure yields an error.
func ComputeHashes(imageData []byte) (HashSet, error) {
	img, err := decode(imageData)
	if err != nil {
		return HashSet{}, err
	}
	return HashImage(img)
}

// HashImage computes the HashSet of an already decoded image.
func HashImage(img image.Image) (HashSet, error) {
	structural, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return HashSet{}, fmt.Errorf("perception hash: %w", err)
	}
	gradient, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return HashSet{}, fmt.Errorf("difference hash: %w", err)
	}
	histogram, err := goimagehash.AverageHash(img)
	if err != nil {
		return HashSet{}, fmt.Errorf("average hash: %w", err)
	}

	return HashSet{
		Structural: NewHash(structural.GetHash()),
		Gradient:   NewHash(gradient.GetHash()),
		Histogram:  NewHash(histogram.GetHash()),
	}, nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ResizeImage resizes an image to fit within maxSize while keeping aspect ratio.
// Returns JPEG-encoded bytes, or the input unchanged when it already fits.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return data, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	resized := resizeImage(img, newWidth, newHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
