// Package pipeline implements the email importance pipeline: sanitize,
// classify, merge, extract, summarize, cluster, and group into a digest.
package pipeline

// Config holds every tunable of the pipeline. Keywords and thresholds live
// here, not inside prompts, so stages are testable without the inference
// backend.
type Config struct {
	// Classification
	BatchSize  int
	AdKeywords []string

	// Sanitization
	SubjectLimit     int
	SenderLimit      int
	SnippetLimit     int
	BatchByteCeiling int

	// Body extraction
	BodyTruncationLimit int

	// Clustering
	ClusteringEnabled   bool
	SimilarityThreshold float64
	ClusterTopK         int

	// Bounded parallelism for independent batches/items
	Workers int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize: 10,
		AdKeywords: []string{
			"sale", "offer", "discount", "promotion", "newsletter", "digest",
		},
		SubjectLimit:        100,
		SenderLimit:         100,
		SnippetLimit:        200,
		BatchByteCeiling:    8192,
		BodyTruncationLimit: 500,
		ClusteringEnabled:   true,
		SimilarityThreshold: 0.75,
		ClusterTopK:         20,
		Workers:             5,
	}
}

// normalized fills zero values with defaults so a partially built Config
// cannot divide by zero or spin an unbounded number of workers.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.SubjectLimit <= 0 {
		c.SubjectLimit = def.SubjectLimit
	}
	if c.SenderLimit <= 0 {
		c.SenderLimit = def.SenderLimit
	}
	if c.SnippetLimit <= 0 {
		c.SnippetLimit = def.SnippetLimit
	}
	if c.BatchByteCeiling <= 0 {
		c.BatchByteCeiling = def.BatchByteCeiling
	}
	if c.BodyTruncationLimit <= 0 {
		c.BodyTruncationLimit = def.BodyTruncationLimit
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
	if c.ClusterTopK <= 0 {
		c.ClusterTopK = def.ClusterTopK
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	return c
}

// truncationMarker is appended whenever a field or body is cut.
const truncationMarker = "..."

// truncateText truncates text to maxLen bytes, appending the marker when cut.
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + truncationMarker
}
