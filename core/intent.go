package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fairprop/fairprop-go/utils"
)

// ZeroShotRuleID identifies matches raised by the classifier without a backing rule
const ZeroShotRuleID = "NEURAL-ZERO-SHOT"

// IntentLabels are the candidate labels sent to zero-shot classifiers
var IntentLabels = []string{"discriminatory", "exclusionary", "restrictive", "welcoming", "inclusive"}

var adverseLabels = map[string]bool{
	"discriminatory": true,
	"exclusionary":   true,
	"restrictive":    true,
}

// IsAdverseLabel reports whether label signals potentially unlawful intent
func IsAdverseLabel(label string) bool {
	return adverseLabels[strings.ToLower(label)]
}

// Classifier scores a span against IntentLabels. Implementations live in the llm package.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) (map[string]float64, error)
	Name() string
}

// EscalationPolicy decides which spans are worth a classifier call
type EscalationPolicy struct {
	BandLow  float64
	BandHigh float64
	Floor    float64
	MaxSpans int
}

// Escalate reports whether a span with the given aggregate confidence is ambiguous
func (p EscalationPolicy) Escalate(confidence float64) bool {
	return confidence >= p.BandLow && confidence <= p.BandHigh
}

// Accept reports whether a classifier verdict is strong enough to become a match
func (p EscalationPolicy) Accept(label string, score float64) bool {
	return IsAdverseLabel(label) && score > p.Floor
}

// IntentResult is the contribution of the intent layer to one scan
type IntentResult struct {
	Matches []utils.Match

	// Rules that only exist for this scan, such as the zero-shot rule
	Synthetic []Rule

	// Spans sent to the classifier
	Classified int
}

// IntentClassifier is the optional zero-shot layer
type IntentClassifier interface {
	Classify(ctx context.Context, text string, rs *RuleSet, prior []utils.Match, sem SemanticResult) (IntentResult, error)
	Name() string
	Enabled() bool
}

// NullIntent is the intent layer used when no classifier backend is configured
type NullIntent struct{}

func (NullIntent) Classify(context.Context, string, *RuleSet, []utils.Match, SemanticResult) (IntentResult, error) {
	return IntentResult{}, nil
}

func (NullIntent) Name() string  { return "none" }
func (NullIntent) Enabled() bool { return false }

// IntentLayer escalates ambiguous spans to a zero-shot classifier
type IntentLayer struct {
	classifier    Classifier
	policy        EscalationPolicy
	minSpanLength int
	logger        *zap.Logger
}

// NewIntentLayer wraps a classifier; a nil classifier yields NullIntent
func NewIntentLayer(classifier Classifier, config IntentConfig, logger *zap.Logger) IntentClassifier {
	if classifier == nil || !config.Enabled {
		return NullIntent{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentLayer{
		classifier: classifier,
		policy: EscalationPolicy{
			BandLow:  config.BandLow,
			BandHigh: config.BandHigh,
			Floor:    config.Floor,
			MaxSpans: config.MaxSpans,
		},
		minSpanLength: config.MinSpanLength,
		logger:        logger,
	}
}

func (l *IntentLayer) Name() string  { return l.classifier.Name() }
func (l *IntentLayer) Enabled() bool { return true }

// candidate is an ambiguous span and the rule its best evidence points at
type candidate struct {
	span       utils.Span
	confidence float64
	ruleID     string
}

func (l *IntentLayer) candidates(text string, prior []utils.Match, sem SemanticResult) []candidate {
	var out []candidate
	for _, span := range splitSpans(text, l.minSpanLength) {
		c := candidate{span: span}
		for _, m := range prior {
			if span.Contains(m.Start, m.End) && m.Confidence > c.confidence {
				c.confidence = m.Confidence
				c.ruleID = m.RuleID
			}
		}
		if score, ok := sem.Spans[span.Start]; ok && score.Span.End == span.End && score.Similarity > c.confidence {
			c.confidence = score.Similarity
			c.ruleID = score.RuleID
		}

		if l.policy.Escalate(c.confidence) {
			out = append(out, c)
		}
	}
	return out
}

// Classify sends each ambiguous span to the classifier and keeps adverse verdicts above
// the floor. Verdicts are attributed to the span's candidate rule when it has one.
func (l *IntentLayer) Classify(ctx context.Context, text string, rs *RuleSet, prior []utils.Match, sem SemanticResult) (IntentResult, error) {
	var result IntentResult
	candidates := l.candidates(text, prior, sem)
	if l.policy.MaxSpans > 0 && len(candidates) > l.policy.MaxSpans {
		candidates = candidates[:l.policy.MaxSpans]
	}

	var synthetic *Rule
	bestSynthetic := 0.0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		scores, err := l.classifier.Classify(ctx, c.span.Text, IntentLabels)
		result.Classified++
		if err != nil {
			return result, fmt.Errorf("intent classification failed: %w", err)
		}

		label, score := topLabel(scores)
		l.logger.Debug("span classified",
			zap.Int("start", c.span.Start),
			zap.String("label", label),
			zap.Float64("score", score))
		if !l.policy.Accept(label, score) {
			continue
		}

		ruleID := c.ruleID
		if ruleID != "" {
			if _, ok := rs.Rule(ruleID); !ok {
				ruleID = ""
			}
		}
		if ruleID == "" {
			ruleID = ZeroShotRuleID
			if synthetic == nil || score > bestSynthetic {
				r := zeroShotRule(label)
				synthetic = &r
				bestSynthetic = score
			}
		}

		result.Matches = append(result.Matches, utils.Match{
			RuleID:     ruleID,
			Trigger:    label,
			Start:      c.span.Start,
			End:        c.span.End,
			Found:      c.span.Text,
			Layer:      utils.LayerIntent,
			Confidence: clamp01(score),
		})
	}

	if synthetic != nil {
		result.Synthetic = []Rule{*synthetic}
	}
	return result, nil
}

// topLabel picks the highest scoring label; ties go to the alphabetically first label
func topLabel(scores map[string]float64) (string, float64) {
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best, bestScore := "", -1.0
	for _, label := range labels {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return strings.ToLower(best), bestScore
}

func zeroShotRule(label string) Rule {
	return Rule{
		ID:           ZeroShotRuleID,
		Category:     fmt.Sprintf("Potential %s language", strings.ToLower(label)),
		TriggerWords: []string{label},
		Severity:     SeverityCritical,
		LegalBasis:   "Flagged by intent classification; requires human review",
		Suggestion:   "Review this sentence for implied preferences or exclusions and rephrase it around the property itself.",
		Jurisdiction: "neural",
	}
}
