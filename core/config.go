package core

import (
	"fmt"
	"time"
)

// KeywordConfig controls exact and fuzzy phrase matching
type KeywordConfig struct {
	// EnableFuzzy turns on approximate matching for triggers without an exact hit
	EnableFuzzy bool `yaml:"enable_fuzzy"`

	// FuzzyThreshold is the minimum normalized similarity in [0,1] for a fuzzy match
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// MinFuzzyLength is the minimum trigger length, in runes, eligible for fuzzy matching
	MinFuzzyLength int `yaml:"min_fuzzy_length"`
}

// SemanticConfig controls the embedding layer
type SemanticConfig struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the minimum cosine similarity for a semantic match
	Threshold float64 `yaml:"threshold"`

	// SkipAbove excludes spans that already hold a keyword match at least this confident
	SkipAbove float64 `yaml:"skip_above"`

	// MinSpanLength is the shortest span, in runes, sent for embedding
	MinSpanLength int `yaml:"min_span_length"`

	Timeout time.Duration `yaml:"timeout"`
}

// IntentConfig controls the zero-shot intent layer
type IntentConfig struct {
	Enabled bool `yaml:"enabled"`

	// BandLow and BandHigh bound the aggregate confidence that escalates a span
	BandLow  float64 `yaml:"band_low"`
	BandHigh float64 `yaml:"band_high"`

	// Floor is the score the top adverse label must exceed to become a match
	Floor float64 `yaml:"floor"`

	// MinSpanLength is the shortest span, in runes, sent for classification
	MinSpanLength int `yaml:"min_span_length"`

	// MaxSpans caps classifier calls per scan; zero means no cap
	MaxSpans int `yaml:"max_spans"`

	Timeout time.Duration `yaml:"timeout"`
}

// ScoringPolicy maps severities to score penalties
type ScoringPolicy struct {
	Penalties     map[Severity]int `yaml:"penalties"`
	PassThreshold int              `yaml:"pass_threshold"`
}

// Penalty returns the deduction for a severity; unknown tiers deduct nothing
func (p ScoringPolicy) Penalty(s Severity) int {
	return p.Penalties[s]
}

// CacheConfig controls the report cache
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// LimitsConfig bounds request size and concurrency
type LimitsConfig struct {
	// MaxTextLength is the largest accepted text, in bytes
	MaxTextLength int `yaml:"max_text_length"`

	// MaxBatchSize is the largest accepted batch
	MaxBatchSize int `yaml:"max_batch_size"`

	// BatchConcurrency bounds concurrently scanned batch items
	BatchConcurrency int `yaml:"batch_concurrency"`
}

// EngineConfig gathers every tunable of the engine
type EngineConfig struct {
	Keyword  KeywordConfig  `yaml:"keyword"`
	Semantic SemanticConfig `yaml:"semantic"`
	Intent   IntentConfig   `yaml:"intent"`
	Scoring  ScoringPolicy  `yaml:"scoring"`
	Cache    CacheConfig    `yaml:"cache"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// DefaultScoringPolicy returns the standard penalty table
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		Penalties: map[Severity]int{
			SeverityCritical: 25,
			SeverityWarning:  10,
			SeverityInfo:     5,
		},
		PassThreshold: 70,
	}
}

// DefaultEngineConfig returns the defaults used when no configuration file is given
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Keyword: KeywordConfig{
			EnableFuzzy:    true,
			FuzzyThreshold: 0.85,
			MinFuzzyLength: 4,
		},
		Semantic: SemanticConfig{
			Enabled:       true,
			Threshold:     0.75,
			SkipAbove:     0.95,
			MinSpanLength: 10,
			Timeout:       5 * time.Second,
		},
		Intent: IntentConfig{
			Enabled:       true,
			BandLow:       0.4,
			BandHigh:      0.6,
			Floor:         0.85,
			MinSpanLength: 15,
			MaxSpans:      8,
			Timeout:       10 * time.Second,
		},
		Scoring: DefaultScoringPolicy(),
		Cache: CacheConfig{
			Enabled: true,
			Size:    1000,
		},
		Limits: LimitsConfig{
			MaxTextLength:    50000,
			MaxBatchSize:     100,
			BatchConcurrency: 8,
		},
	}
}

// Validate checks the configuration for values the engine cannot work with
func (c EngineConfig) Validate() error {
	if c.Keyword.FuzzyThreshold < 0 || c.Keyword.FuzzyThreshold > 1 {
		return fmt.Errorf("keyword.fuzzy_threshold must be within [0,1], got %v", c.Keyword.FuzzyThreshold)
	}

	if c.Semantic.Threshold < 0 || c.Semantic.Threshold > 1 {
		return fmt.Errorf("semantic.threshold must be within [0,1], got %v", c.Semantic.Threshold)
	}

	if c.Intent.BandLow > c.Intent.BandHigh {
		return fmt.Errorf("intent.band_low %v exceeds intent.band_high %v", c.Intent.BandLow, c.Intent.BandHigh)
	}

	for sev, penalty := range c.Scoring.Penalties {
		if !sev.Valid() {
			return fmt.Errorf("scoring.penalties has unknown severity %q", sev)
		}
		if penalty < 0 {
			return fmt.Errorf("scoring.penalties[%s] must not be negative", sev)
		}
	}

	if c.Scoring.PassThreshold < 0 || c.Scoring.PassThreshold > 100 {
		return fmt.Errorf("scoring.pass_threshold must be within [0,100], got %d", c.Scoring.PassThreshold)
	}

	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive when the cache is enabled")
	}

	if c.Limits.MaxTextLength <= 0 {
		return fmt.Errorf("limits.max_text_length must be positive")
	}

	return nil
}
