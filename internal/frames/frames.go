// Package frames turns an input file into the ordered still frames that get
// fingerprinted. Images yield one frame; videos are sampled with ffmpeg.
package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kozaktomas/media-dedup/internal/config"
)

// ErrUnsupportedMedia is returned for input that is neither an image nor a video.
var ErrUnsupportedMedia = errors.New("unsupported media")

// Kind is the detected media kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Frame is one encoded still image. Names sort in temporal order.
type Frame struct {
	Name string
	Data []byte
}

// Name returns the canonical name of the i-th frame.
func Name(i int) string {
	return fmt.Sprintf("frame_%04d", i)
}

// DetectKind sniffs the content type of data.
func DetectKind(data []byte) Kind {
	return kindOf(mimetype.Detect(data))
}

func kindOf(m *mimetype.MIME) Kind {
	for ; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return KindImage
		case strings.HasPrefix(m.String(), "video/"):
			return KindVideo
		}
	}
	return KindUnknown
}

// Extractor produces frames from files on disk or uploaded bytes.
type Extractor struct {
	ffmpegPath string
	fps        int
	tempDir    string
	logger     *slog.Logger
}

// NewExtractor creates an extractor from configuration.
func NewExtractor(cfg config.FramesConfig, logger *slog.Logger) *Extractor {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	fps := cfg.FPS
	if fps < 1 {
		fps = 5
	}
	return &Extractor{ffmpegPath: ffmpeg, fps: fps, tempDir: cfg.TempDir, logger: logger}
}

// Extract reads path, which may be an image, a video or a directory of images.
func (e *Extractor) Extract(ctx context.Context, path string) ([]Frame, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return e.extractDir(path)
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect media type of %s: %w", path, err)
	}
	switch kindOf(m) {
	case KindImage:
		data, err := os.ReadFile(path) //nolint:gosec // caller-supplied path
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return []Frame{{Name: Name(0), Data: data}}, nil
	case KindVideo:
		return e.sampleVideo(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedMedia, path, m.String())
	}
}

// ExtractBytes is Extract for uploaded content. Videos are spooled to a
// temporary file for ffmpeg.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte) ([]Frame, error) {
	m := mimetype.Detect(data)
	switch kindOf(m) {
	case KindImage:
		return []Frame{{Name: Name(0), Data: data}}, nil
	case KindVideo:
		tmp, err := os.CreateTemp(e.tempDir, "upload-*"+m.Extension())
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return nil, fmt.Errorf("close temp file: %w", err)
		}
		return e.sampleVideo(ctx, tmp.Name())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, m.String())
	}
}

// extractDir returns the directory's images in file name order, renamed to
// canonical frame names. Non-image files are ignored.
func (e *Extractor) extractDir(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var frames []Frame
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // caller-supplied directory
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if DetectKind(data) != KindImage {
			e.logger.Debug("ignoring non-image file", "file", name)
			continue
		}
		frames = append(frames, Frame{Name: Name(len(frames)), Data: data})
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s contains no images", ErrUnsupportedMedia, dir)
	}
	return frames, nil
}

// sampleVideo runs ffmpeg at a fixed frame rate into PNG files numbered from 0.
func (e *Extractor) sampleVideo(ctx context.Context, path string) ([]Frame, error) {
	outDir, err := os.MkdirTemp(e.tempDir, "frames-*")
	if err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, //nolint:gosec // binary comes from config
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vf", "fps="+strconv.Itoa(e.fps),
		"-start_number", "0",
		filepath.Join(outDir, "frame_%04d.png"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	files, err := filepath.Glob(filepath.Join(outDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	sort.Strings(files)

	frames := make([]Frame, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file) //nolint:gosec // file was written by ffmpeg into our temp dir
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		frames = append(frames, Frame{Name: strings.TrimSuffix(filepath.Base(file), ".png"), Data: data})
	}
	e.logger.Debug("sampled video", "path", path, "fps", e.fps, "frames", len(frames))

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no frames for %s", ErrUnsupportedMedia, path)
	}
	return frames, nil
}
