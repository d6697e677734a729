package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the tier a rule is assigned in its source file
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
	SeverityInfo     Severity = "Info"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the known tiers
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rule represents one fair-housing rule loaded from a jurisdiction file
type Rule struct {
	// Unique identifier for the rule, e.g. "FHA-AGE-001"
	ID string `json:"id"`

	// Protected class this rule guards
	Category string `json:"category"`

	// Phrases that trigger the rule, in file order
	TriggerWords []string `json:"trigger_words"`

	Severity   Severity `json:"severity"`
	LegalBasis string   `json:"legal_basis,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`

	// Optional ISO 639-1 code; empty means the rule applies to every language
	Language string `json:"language,omitempty"`

	// Jurisdiction the rule was loaded for; set by the store, never read from the file
	Jurisdiction string `json:"-"`
}

// validateRule checks a single record; the store rejects the record, not the file, on error
func validateRule(rule Rule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("rule has no id")
	}

	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("rule %s has no category", rule.ID)
	}

	if !rule.Severity.Valid() {
		return fmt.Errorf("rule %s has unknown severity %q", rule.ID, rule.Severity)
	}

	for _, trigger := range rule.TriggerWords {
		if strings.TrimSpace(trigger) != "" {
			return nil
		}
	}

	return fmt.Errorf("rule %s has no trigger words", rule.ID)
}

// cleanTriggers drops blank trigger phrases while keeping file order
func cleanTriggers(triggers []string) []string {
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

// decodeRuleFile parses a JSON array of rule records. Each record is decoded on its own
// so that one malformed record does not hide the rest of the file.
func decodeRuleFile(data []byte) ([]Rule, []error, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	rules := make([]Rule, 0, len(raw))
	var problems []error
	for i, msg := range raw {
		var rule Rule
		if err := json.Unmarshal(msg, &rule); err != nil {
			problems = append(problems, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		rules = append(rules, rule)
	}

	return rules, problems, nil
}
