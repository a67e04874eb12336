package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Frames    FramesConfig    `yaml:"frames"`
	Server    ServerConfig    `yaml:"server"`
}

type EmbeddingConfig struct {
	Backend   string `yaml:"backend"`    // "http" (embedding server) or "pixels" (offline pixel vectors)
	URL       string `yaml:"url"`        // defaults to http://localhost:8000
	Dim       int    `yaml:"dim"`        // corpus-wide vector length for the http backend
	PixelSize int    `yaml:"pixel_size"` // side length used by the pixels backend
}

// VectorDim returns the corpus-wide embedding dimension for the configured backend.
func (c *EmbeddingConfig) VectorDim() int {
	if c.Backend == BackendPixels {
		return 3 * c.PixelSize * c.PixelSize
	}
	return c.Dim
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // "postgres" or "mariadb"
	URL           string `yaml:"url"`    // DSN for the selected driver
	MaxOpenConns  int    `yaml:"max_open_conns"`
	MaxIdleConns  int    `yaml:"max_idle_conns"`
	FeaturesDir   string `yaml:"features_dir"`    // where per-item embedding files live (mariadb driver)
	HNSWIndexPath string `yaml:"hnsw_index_path"` // optional, index is rebuilt when empty
}

type MatcherConfig struct {
	Threshold float64 `yaml:"threshold"` // inclusive duplicate threshold in percent
	Mode      string  `yaml:"mode"`      // "embedding" or "blended"
	Workers   int     `yaml:"workers"`   // concurrent corpus entry comparisons
}

type FramesConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	FPS        int    `yaml:"fps"`
	TempDir    string `yaml:"temp_dir"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

const (
	BackendHTTP   = "http"
	BackendPixels = "pixels"

	DriverPostgres = "postgres"
	DriverMariaDB  = "mariadb"
)

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for percentages; values outside (0, 100] are rejected.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 100 {
		return f
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	cfg.Embedding.Backend = envString("EMBEDDING_BACKEND", cfg.Embedding.Backend)
	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Dim = envInt("EMBEDDING_DIM", cfg.Embedding.Dim)
	cfg.Embedding.PixelSize = envInt("EMBEDDING_PIXEL_SIZE", cfg.Embedding.PixelSize)

	cfg.Database.Driver = envString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.FeaturesDir = envString("FEATURES_DIR", cfg.Database.FeaturesDir)
	cfg.Database.HNSWIndexPath = os.Getenv("HNSW_INDEX_PATH")

	cfg.Matcher.Threshold = envFloat("MATCH_THRESHOLD", cfg.Matcher.Threshold)
	cfg.Matcher.Mode = envString("MATCH_MODE", cfg.Matcher.Mode)
	cfg.Matcher.Workers = envInt("MATCH_WORKERS", cfg.Matcher.Workers)

	cfg.Frames.FFmpegPath = envString("FFMPEG_PATH", cfg.Frames.FFmpegPath)
	cfg.Frames.FPS = envInt("FRAMES_FPS", cfg.Frames.FPS)
	cfg.Frames.TempDir = os.Getenv("FRAMES_TEMP_DIR")

	cfg.Server.Host = envString("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	return &cfg
}
