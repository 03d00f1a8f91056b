package model

import "time"

// Config holds the complete tool configuration.
//
// Hierarchy (highest to lowest priority): CLI flags, NSGX_* environment
// variables, ~/.nsgx/config.yaml, defaults.
type Config struct {
	Service     ServiceConfig     `yaml:"service" json:"service"`
	Segment     SegmentConfig     `yaml:"segment" json:"segment"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Propose     ProposeConfig     `yaml:"propose" json:"propose"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// ServiceConfig configures the extraction service endpoint.
type ServiceConfig struct {
	// BaseURL of the OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is read from NSGX_API_KEY or DEEPSEEK_API_KEY if empty.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// ChatModel is the cheap model used first in adaptive mode.
	ChatModel string `yaml:"chat_model" json:"chat_model"`

	// ReasonerModel is the expensive model used on escalation.
	ReasonerModel string `yaml:"reasoner_model" json:"reasoner_model"`

	// Timeout per chat request; ReasonerTimeout applies to the
	// expensive model, which is slower.
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	ReasonerTimeout time.Duration `yaml:"reasoner_timeout" json:"reasoner_timeout"`

	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float32 `yaml:"temperature" json:"temperature"`
}

// SegmentConfig controls text segmentation.
type SegmentConfig struct {
	MaxUnitChars int `yaml:"max_unit_chars" json:"max_unit_chars"`
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path of the sqlite cache database.
	Path string `yaml:"path" json:"path"`

	// MemoryTTL bounds the in-process layer only; the sqlite layer
	// never expires.
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl"`
}

// ConcurrencyConfig controls parallelism and client-side rate limiting.
type ConcurrencyConfig struct {
	Workers           int     `yaml:"workers" json:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// ProposeConfig controls candidate aggregation.
type ProposeConfig struct {
	// MinDocCount is the number of distinct documents a candidate
	// cluster needs before it is proposed.
	MinDocCount int `yaml:"min_doc_count" json:"min_doc_count"`

	// SimilarityThreshold (0-100) for fuzzy catalog matches and for
	// clustering candidate keys.
	SimilarityThreshold int `yaml:"similarity_threshold" json:"similarity_threshold"`
}

// OutputConfig controls reporting behavior.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:         "https://api.deepseek.com/v1",
			ChatModel:       "deepseek-chat",
			ReasonerModel:   "deepseek-reasoner",
			Timeout:         60 * time.Second,
			ReasonerTimeout: 90 * time.Second,
			MaxTokens:       2000,
			Temperature:     0.1,
		},
		Segment: SegmentConfig{
			MaxUnitChars: 4000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Path:      "out/cache.sqlite",
			MemoryTTL: 30 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			Workers:           4,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Propose: ProposeConfig{
			MinDocCount:         5,
			SimilarityThreshold: 80,
		},
		Output: OutputConfig{},
	}
}
