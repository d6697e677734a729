package core

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fairprop/fairprop-go/utils"
)

// Embedder turns text into vectors. Implementations live in the llm package.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the backend in report metadata
	Name() string
}

// SpanScore is the strongest semantic evidence found for one span
type SpanScore struct {
	Span       utils.Span
	Similarity float64
	RuleID     string
}

// SemanticResult is the contribution of the semantic layer to one scan
type SemanticResult struct {
	Matches []utils.Match

	// Best similarity per evaluated span keyed by span start, including spans below threshold
	Spans map[int]SpanScore
}

// SemanticMatcher is the optional embedding layer
type SemanticMatcher interface {
	Match(ctx context.Context, text string, rs *RuleSet, prior []utils.Match) (SemanticResult, error)
	Reset()
	Name() string
	Enabled() bool
}

// NullSemantic is the semantic layer used when no embedding backend is configured
type NullSemantic struct{}

func (NullSemantic) Match(context.Context, string, *RuleSet, []utils.Match) (SemanticResult, error) {
	return SemanticResult{}, nil
}

func (NullSemantic) Reset()        {}
func (NullSemantic) Name() string  { return "none" }
func (NullSemantic) Enabled() bool { return false }

// triggerVectors holds the embedded trigger phrases of one rule snapshot
type triggerVectors struct {
	version uint64
	vectors map[string][]float32
}

// SemanticLayer compares sentence spans with rule triggers in embedding space
type SemanticLayer struct {
	embedder Embedder
	config   SemanticConfig
	logger   *zap.Logger

	mu      sync.RWMutex
	cached  *triggerVectors
	flights singleflight.Group
}

// NewSemanticLayer wraps an embedder; a nil embedder yields NullSemantic
func NewSemanticLayer(embedder Embedder, config SemanticConfig, logger *zap.Logger) SemanticMatcher {
	if embedder == nil || !config.Enabled {
		return NullSemantic{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticLayer{embedder: embedder, config: config, logger: logger}
}

func (l *SemanticLayer) Name() string  { return l.embedder.Name() }
func (l *SemanticLayer) Enabled() bool { return true }

// Reset drops the cached trigger vectors
func (l *SemanticLayer) Reset() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}

// triggers returns trigger vectors for the snapshot behind rs, embedding them at most once
// per snapshot no matter how many scans ask concurrently.
func (l *SemanticLayer) triggers(ctx context.Context, rs *RuleSet) (map[string][]float32, error) {
	l.mu.RLock()
	cached := l.cached
	l.mu.RUnlock()
	if cached != nil && cached.version == rs.Version {
		return cached.vectors, nil
	}

	key := strconv.FormatUint(rs.Version, 10)
	ch := l.flights.DoChan(key, func() (interface{}, error) {
		snap := rs.snap
		var phrases []string
		seen := map[string]bool{}
		for _, rule := range snap.rules {
			for _, trigger := range rule.TriggerWords {
				p := normalizePhrase(trigger)
				if !seen[p] {
					seen[p] = true
					phrases = append(phrases, p)
				}
			}
		}

		// detached so one caller giving up does not fail the others
		vectors, err := l.embedder.EmbedBatch(context.WithoutCancel(ctx), phrases)
		if err != nil {
			return nil, fmt.Errorf("failed to embed trigger phrases: %w", err)
		}
		if len(vectors) != len(phrases) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d phrases", len(vectors), len(phrases))
		}

		tv := &triggerVectors{version: snap.version, vectors: make(map[string][]float32, len(phrases))}
		for i, p := range phrases {
			tv.vectors[p] = vectors[i]
		}

		l.mu.Lock()
		if l.cached == nil || l.cached.version <= tv.version {
			l.cached = tv
		}
		l.mu.Unlock()

		l.logger.Debug("trigger phrases embedded",
			zap.Uint64("version", tv.version),
			zap.Int("phrases", len(phrases)))
		return tv.vectors, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string][]float32), nil
	}
}

// Match embeds every span not already settled by a confident keyword match and emits the
// best trigger per rule whose similarity clears the threshold.
func (l *SemanticLayer) Match(ctx context.Context, text string, rs *RuleSet, prior []utils.Match) (SemanticResult, error) {
	result := SemanticResult{Spans: map[int]SpanScore{}}
	if rs == nil || rs.snap == nil || rs.Len() == 0 {
		return result, nil
	}

	var spans []utils.Span
	for _, span := range splitSpans(text, l.config.MinSpanLength) {
		if spanConfidence(span, prior) >= l.config.SkipAbove {
			continue
		}
		spans = append(spans, span)
	}
	if len(spans) == 0 {
		return result, nil
	}

	triggers, err := l.triggers(ctx, rs)
	if err != nil {
		return result, err
	}

	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}
	vectors, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("failed to embed spans: %w", err)
	}
	if len(vectors) != len(spans) {
		return result, fmt.Errorf("embedder returned %d vectors for %d spans", len(vectors), len(spans))
	}

	for i, span := range spans {
		score := SpanScore{Span: span}
		for _, rule := range rs.Rules() {
			bestSim := -1.0
			bestTrigger := ""
			for _, trigger := range rule.TriggerWords {
				vec, ok := triggers[normalizePhrase(trigger)]
				if !ok {
					continue
				}
				if sim := CosineSimilarity(vectors[i], vec); sim > bestSim {
					bestSim = sim
					bestTrigger = trigger
				}
			}

			if bestSim > score.Similarity {
				score.Similarity = bestSim
				score.RuleID = rule.ID
			}
			if bestSim >= l.config.Threshold {
				result.Matches = append(result.Matches, utils.Match{
					RuleID:     rule.ID,
					Trigger:    bestTrigger,
					Start:      span.Start,
					End:        span.End,
					Found:      span.Text,
					Layer:      utils.LayerSemantic,
					Confidence: clamp01(bestSim),
				})
			}
		}
		result.Spans[span.Start] = score
	}

	return result, nil
}

// CosineSimilarity returns the cosine of the angle between a and b; mismatched or zero
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
