// Package constants provides shared constants used across the codebase.
package constants

// Upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (512MB)
	MaxUploadSize = 512 << 20

	// MaxMultipartMemory is the part of an upload kept in memory before spilling to disk
	MaxMultipartMemory = 32 << 20
)

// Corpus listing constants
const (
	// DefaultPageSize is the default number of corpus entries per listing page
	DefaultPageSize = 100

	// MaxPageSize caps the page size a client can request
	MaxPageSize = 1000

	// DefaultSimilarLimit is the default number of neighbours for corpus similarity queries
	DefaultSimilarLimit = 10
)

// Storage constants
const (
	// FeatureCacheSize is the number of per-item embedding sets kept in memory
	FeatureCacheSize = 1024
)
