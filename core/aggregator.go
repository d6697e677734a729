package core

import (
	"sort"
	"time"

	"github.com/fairprop/fairprop-go/utils"
)

// FlaggedItem is one rule that fired, represented by its strongest match
type FlaggedItem struct {
	ID         string      `json:"id"`
	Category   string      `json:"category"`
	Severity   Severity    `json:"severity"`
	FoundWord  string      `json:"found_word"`
	Suggestion string      `json:"suggestion"`
	LegalBasis string      `json:"legal_basis,omitempty"`
	Trigger    string      `json:"trigger"`
	Layer      utils.Layer `json:"layer"`
	Confidence float64     `json:"confidence"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
}

// DegradedLayer records a layer that could not contribute to a scan
type DegradedLayer struct {
	Layer  utils.Layer `json:"layer"`
	Reason string      `json:"reason"`
}

// ReportMetadata describes how a report was produced
type ReportMetadata struct {
	Jurisdictions        []string        `json:"jurisdictions"`
	UnknownJurisdictions []string        `json:"unknown_jurisdictions,omitempty"`
	Language             string          `json:"language"`
	RuleVersion          uint64          `json:"rule_version"`
	RulesEvaluated       int             `json:"rules_evaluated"`
	Layers               []utils.Layer   `json:"layers"`
	Degraded             []DegradedLayer `json:"degraded,omitempty"`
	ScannedAt            time.Time       `json:"scanned_at"`
}

// AuditReport is the outcome of scanning one text
type AuditReport struct {
	Score        int            `json:"score"`
	IsSafe       bool           `json:"is_safe"`
	FlaggedItems []FlaggedItem  `json:"flagged_items"`
	Metadata     ReportMetadata `json:"metadata"`
}

// HasCritical reports whether any flagged item is Critical
func (r *AuditReport) HasCritical() bool {
	for _, item := range r.FlaggedItems {
		if item.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so cached reports are never shared mutably
func (r *AuditReport) Clone() *AuditReport {
	if r == nil {
		return nil
	}
	c := *r
	c.FlaggedItems = append([]FlaggedItem{}, r.FlaggedItems...)
	c.Metadata.Jurisdictions = append([]string{}, r.Metadata.Jurisdictions...)
	if r.Metadata.UnknownJurisdictions != nil {
		c.Metadata.UnknownJurisdictions = append([]string{}, r.Metadata.UnknownJurisdictions...)
	}
	c.Metadata.Layers = append([]utils.Layer{}, r.Metadata.Layers...)
	if r.Metadata.Degraded != nil {
		c.Metadata.Degraded = append([]DegradedLayer{}, r.Metadata.Degraded...)
	}
	return &c
}

// Aggregator merges layer matches into a scored report
type Aggregator struct {
	policy ScoringPolicy
}

// NewAggregator creates an aggregator using the given penalty table
func NewAggregator(policy ScoringPolicy) *Aggregator {
	return &Aggregator{policy: policy}
}

// Aggregate keeps the best match per rule, scores the result and orders the items.
// Matches for rules unknown to rs are dropped.
func (a *Aggregator) Aggregate(matches []utils.Match, rs *RuleSet, meta ReportMetadata) *AuditReport {
	best := map[string]utils.Match{}
	for _, m := range matches {
		if _, ok := rs.Rule(m.RuleID); !ok {
			continue
		}
		if cur, ok := best[m.RuleID]; !ok || m.Better(cur) {
			best[m.RuleID] = m
		}
	}

	items := make([]FlaggedItem, 0, len(best))
	for id, m := range best {
		rule, _ := rs.Rule(id)
		items = append(items, FlaggedItem{
			ID:         rule.ID,
			Category:   rule.Category,
			Severity:   rule.Severity,
			FoundWord:  m.Found,
			Suggestion: rule.Suggestion,
			LegalBasis: rule.LegalBasis,
			Trigger:    m.Trigger,
			Layer:      m.Layer,
			Confidence: m.Confidence,
			Start:      m.Start,
			End:        m.End,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Severity.Rank() != items[j].Severity.Rank() {
			return items[i].Severity.Rank() > items[j].Severity.Rank()
		}
		if items[i].Confidence != items[j].Confidence {
			return items[i].Confidence > items[j].Confidence
		}
		return items[i].ID < items[j].ID
	})

	score := 100
	critical := false
	for _, item := range items {
		score -= a.policy.Penalty(item.Severity)
		if item.Severity == SeverityCritical {
			critical = true
		}
	}
	if score < 0 {
		score = 0
	}

	return &AuditReport{
		Score:        score,
		IsSafe:       !critical && score >= a.policy.PassThreshold,
		FlaggedItems: items,
		Metadata:     meta,
	}
}
