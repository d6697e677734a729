package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairprop/fairprop-go/utils"
)

var (
	firstSpan  = utils.Span{Start: 0, End: 35, Text: "Little ones are not a good fit here"}
	secondSpan = utils.Span{Start: 37, End: 68, Text: "Best suited to a calm lifestyle"}
)

func ambiguousSecondSpan(ruleID string) SemanticResult {
	return SemanticResult{Spans: map[int]SpanScore{
		0:  {Span: firstSpan, Similarity: 0.8, RuleID: "FHA-FAM-001"},
		37: {Span: secondSpan, Similarity: 0.5, RuleID: ruleID},
	}}
}

func TestIntentLayerAttributesToCandidateRule(t *testing.T) {
	rs := resolve(t, newTestStore(t))
	clf := &fakeClassifier{scores: map[string]map[string]float64{
		secondSpan.Text: {"exclusionary": 0.92, "welcoming": 0.05},
	}}
	layer := NewIntentLayer(clf, DefaultEngineConfig().Intent, nil)

	res, err := layer.Classify(context.Background(), twoSentences, rs, nil, ambiguousSecondSpan("FHA-AGE-001"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Classified)
	assert.Equal(t, []string{secondSpan.Text}, clf.texts)
	assert.Empty(t, res.Synthetic)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, utils.Match{
		RuleID:     "FHA-AGE-001",
		Trigger:    "exclusionary",
		Start:      37,
		End:        68,
		Found:      secondSpan.Text,
		Layer:      utils.LayerIntent,
		Confidence: 0.92,
	}, res.Matches[0])
}

func TestIntentLayerZeroShotFallback(t *testing.T) {
	rs := resolve(t, newTestStore(t))
	clf := &fakeClassifier{scores: map[string]map[string]float64{
		secondSpan.Text: {"discriminatory": 0.88, "restrictive": 0.97},
	}}
	layer := NewIntentLayer(clf, DefaultEngineConfig().Intent, nil)

	// the candidate rule is not part of the requested rule set
	prior := []utils.Match{{RuleID: "NYC-SOI-001", Start: 37, End: 45, Confidence: 0.5}}
	res, err := layer.Classify(context.Background(), twoSentences, rs, prior, SemanticResult{})
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, ZeroShotRuleID, res.Matches[0].RuleID)
	assert.Equal(t, "restrictive", res.Matches[0].Trigger)
	require.Len(t, res.Synthetic, 1)
	assert.Equal(t, ZeroShotRuleID, res.Synthetic[0].ID)
	assert.Equal(t, SeverityCritical, res.Synthetic[0].Severity)
	assert.Equal(t, "Potential restrictive language", res.Synthetic[0].Category)
}

func TestIntentLayerRejectsWeakOrBenignVerdicts(t *testing.T) {
	rs := resolve(t, newTestStore(t))

	tests := []struct {
		name   string
		scores map[string]float64
	}{
		{"at the floor", map[string]float64{"exclusionary": 0.85}},
		{"benign label", map[string]float64{"welcoming": 0.99, "exclusionary": 0.01}},
		{"inclusive label", map[string]float64{"inclusive": 0.95}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clf := &fakeClassifier{scores: map[string]map[string]float64{secondSpan.Text: tt.scores}}
			layer := NewIntentLayer(clf, DefaultEngineConfig().Intent, nil)

			res, err := layer.Classify(context.Background(), twoSentences, rs, nil, ambiguousSecondSpan("FHA-AGE-001"))
			require.NoError(t, err)
			assert.Equal(t, 1, res.Classified)
			assert.Empty(t, res.Matches)
		})
	}
}

func TestIntentLayerOnlyEscalatesAmbiguousSpans(t *testing.T) {
	rs := resolve(t, newTestStore(t))
	clf := &fakeClassifier{}
	layer := NewIntentLayer(clf, DefaultEngineConfig().Intent, nil)

	// confident and absent evidence both stay out of the classifier
	prior := []utils.Match{{RuleID: "FHA-FAM-001", Start: 0, End: 6, Confidence: 1.0}}
	res, err := layer.Classify(context.Background(), twoSentences, rs, prior, SemanticResult{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Classified)
	assert.Empty(t, clf.texts)
}

func TestIntentLayerMaxSpans(t *testing.T) {
	rs := resolve(t, newTestStore(t))
	clf := &fakeClassifier{}
	cfg := DefaultEngineConfig().Intent
	cfg.MaxSpans = 1
	layer := NewIntentLayer(clf, cfg, nil)

	sem := SemanticResult{Spans: map[int]SpanScore{
		0:  {Span: firstSpan, Similarity: 0.45, RuleID: "FHA-FAM-001"},
		37: {Span: secondSpan, Similarity: 0.55, RuleID: "FHA-AGE-001"},
	}}
	res, err := layer.Classify(context.Background(), twoSentences, rs, nil, sem)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Classified)
	assert.Equal(t, []string{firstSpan.Text}, clf.texts)
}

func TestIntentLayerErrors(t *testing.T) {
	rs := resolve(t, newTestStore(t))

	boom := errors.New("classifier down")
	layer := NewIntentLayer(&fakeClassifier{err: boom}, DefaultEngineConfig().Intent, nil)
	_, err := layer.Classify(context.Background(), twoSentences, rs, nil, ambiguousSecondSpan("FHA-AGE-001"))
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clf := &fakeClassifier{}
	layer = NewIntentLayer(clf, DefaultEngineConfig().Intent, nil)
	_, err = layer.Classify(ctx, twoSentences, rs, nil, ambiguousSecondSpan("FHA-AGE-001"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, clf.texts)
}

func TestNewIntentLayerDisabled(t *testing.T) {
	cfg := DefaultEngineConfig().Intent
	assert.IsType(t, NullIntent{}, NewIntentLayer(nil, cfg, nil))

	cfg.Enabled = false
	assert.IsType(t, NullIntent{}, NewIntentLayer(&fakeClassifier{}, cfg, nil))
}

func TestTopLabel(t *testing.T) {
	label, score := topLabel(map[string]float64{"restrictive": 0.9, "exclusionary": 0.9, "welcoming": 0.1})
	assert.Equal(t, "exclusionary", label)
	assert.Equal(t, 0.9, score)

	label, _ = topLabel(map[string]float64{"Discriminatory": 0.7})
	assert.Equal(t, "discriminatory", label)
	assert.True(t, IsAdverseLabel("Discriminatory"))
	assert.False(t, IsAdverseLabel("welcoming"))
}

func TestEscalationPolicy(t *testing.T) {
	p := EscalationPolicy{BandLow: 0.4, BandHigh: 0.6, Floor: 0.85}
	assert.True(t, p.Escalate(0.4))
	assert.True(t, p.Escalate(0.6))
	assert.False(t, p.Escalate(0.39))
	assert.False(t, p.Escalate(0.61))

	assert.True(t, p.Accept("exclusionary", 0.86))
	assert.False(t, p.Accept("exclusionary", 0.85))
	assert.False(t, p.Accept("welcoming", 0.99))
}
