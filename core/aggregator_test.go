package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairprop/fairprop-go/utils"
)

func TestAggregate(t *testing.T) {
	rs := resolve(t, newTestStore(t), "california")
	agg := NewAggregator(DefaultScoringPolicy())

	matches := []utils.Match{
		{RuleID: "FHA-STEER-001", Trigger: "safe neighborhood", Start: 40, End: 57, Layer: utils.LayerKeyword, Confidence: 1.0},
		{RuleID: "FHA-FAM-001", Trigger: "no children", Start: 20, End: 30, Found: "no childen", Layer: utils.LayerFuzzy, Confidence: 0.9},
		{RuleID: "FHA-FAM-001", Trigger: "no kids", Start: 5, End: 12, Found: "no kids", Layer: utils.LayerKeyword, Confidence: 1.0},
		{RuleID: "FHA-AGE-001", Trigger: "young professionals", Start: 60, End: 80, Layer: utils.LayerSemantic, Confidence: 0.8},
		{RuleID: "NOT-A-RULE", Trigger: "x", Layer: utils.LayerKeyword, Confidence: 1.0},
	}
	meta := ReportMetadata{Jurisdictions: []string{"california"}, ScannedAt: time.Unix(0, 0)}

	report := agg.Aggregate(matches, rs, meta)

	assert.Equal(t, 60, report.Score)
	assert.False(t, report.IsSafe)
	assert.True(t, report.HasCritical())
	assert.Equal(t, []string{"FHA-FAM-001", "FHA-AGE-001", "FHA-STEER-001"}, ruleIDs(report))

	fam := report.FlaggedItems[0]
	assert.Equal(t, FlaggedItem{
		ID:         "FHA-FAM-001",
		Category:   "Familial Status",
		Severity:   SeverityCritical,
		FoundWord:  "no kids",
		Suggestion: "Describe the property, not the household",
		Trigger:    "no kids",
		Layer:      utils.LayerKeyword,
		Confidence: 1.0,
		Start:      5,
		End:        12,
	}, fam)
	assert.Equal(t, meta, report.Metadata)
}

func TestAggregateSafety(t *testing.T) {
	rs := resolve(t, newTestStore(t))

	tests := []struct {
		name      string
		policy    ScoringPolicy
		matches   []utils.Match
		wantScore int
		wantSafe  bool
	}{
		{
			name:      "clean text",
			policy:    DefaultScoringPolicy(),
			wantScore: 100,
			wantSafe:  true,
		},
		{
			name:      "single warning passes",
			policy:    DefaultScoringPolicy(),
			matches:   []utils.Match{{RuleID: "FHA-AGE-001", Confidence: 1}},
			wantScore: 90,
			wantSafe:  true,
		},
		{
			name:      "critical always fails",
			policy:    DefaultScoringPolicy(),
			matches:   []utils.Match{{RuleID: "FHA-AGE-002", Confidence: 1}},
			wantScore: 75,
			wantSafe:  false,
		},
		{
			name: "warnings alone can fail the threshold",
			policy: ScoringPolicy{
				Penalties:     map[Severity]int{SeverityWarning: 40, SeverityInfo: 5},
				PassThreshold: 70,
			},
			matches:   []utils.Match{{RuleID: "FHA-AGE-001", Confidence: 1}},
			wantScore: 60,
			wantSafe:  false,
		},
		{
			name: "score never drops below zero",
			policy: ScoringPolicy{
				Penalties:     map[Severity]int{SeverityCritical: 80},
				PassThreshold: 70,
			},
			matches:   []utils.Match{{RuleID: "FHA-AGE-002", Confidence: 1}, {RuleID: "FHA-FAM-001", Confidence: 1}},
			wantScore: 0,
			wantSafe:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewAggregator(tt.policy).Aggregate(tt.matches, rs, ReportMetadata{})
			assert.Equal(t, tt.wantScore, report.Score)
			assert.Equal(t, tt.wantSafe, report.IsSafe)
			assert.NotNil(t, report.FlaggedItems)
		})
	}
}

func TestAggregatePrefersStrongerLayerOnTies(t *testing.T) {
	rs := resolve(t, newTestStore(t))
	report := NewAggregator(DefaultScoringPolicy()).Aggregate([]utils.Match{
		{RuleID: "FHA-AGE-001", Trigger: "young professionals", Start: 30, Layer: utils.LayerSemantic, Confidence: 1.0},
		{RuleID: "FHA-AGE-001", Trigger: "recent grads", Start: 50, Layer: utils.LayerKeyword, Confidence: 1.0},
	}, rs, ReportMetadata{})

	require.Len(t, report.FlaggedItems, 1)
	assert.Equal(t, utils.LayerKeyword, report.FlaggedItems[0].Layer)
	assert.Equal(t, "recent grads", report.FlaggedItems[0].Trigger)
}

func TestAggregateSyntheticRule(t *testing.T) {
	rs := resolve(t, newTestStore(t)).WithExtra(zeroShotRule("exclusionary"))
	report := NewAggregator(DefaultScoringPolicy()).Aggregate([]utils.Match{
		{RuleID: ZeroShotRuleID, Trigger: "exclusionary", Layer: utils.LayerIntent, Confidence: 0.93},
	}, rs, ReportMetadata{})

	require.Len(t, report.FlaggedItems, 1)
	item := report.FlaggedItems[0]
	assert.Equal(t, ZeroShotRuleID, item.ID)
	assert.Equal(t, SeverityCritical, item.Severity)
	assert.Equal(t, "Potential exclusionary language", item.Category)
	assert.Equal(t, 75, report.Score)
}

func TestAuditReportClone(t *testing.T) {
	orig := &AuditReport{
		Score:        90,
		IsSafe:       true,
		FlaggedItems: []FlaggedItem{{ID: "FHA-AGE-001", Severity: SeverityWarning}},
		Metadata: ReportMetadata{
			Jurisdictions: []string{"california"},
			Layers:        []utils.Layer{utils.LayerKeyword},
		},
	}
	c := orig.Clone()
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	c.FlaggedItems[0].ID = "changed"
	c.Metadata.Jurisdictions[0] = "changed"
	assert.Equal(t, "FHA-AGE-001", orig.FlaggedItems[0].ID)
	assert.Equal(t, "california", orig.Metadata.Jurisdictions[0])

	var nilReport *AuditReport
	assert.Nil(t, nilReport.Clone())
}
