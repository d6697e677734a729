package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RuleBuilder provides a fluent interface for assembling a jurisdiction rule file
type RuleBuilder struct {
	jurisdiction string
	legalBasis   string
	rules        []Rule
}

// NewRuleBuilder creates a builder for the given jurisdiction
func NewRuleBuilder(jurisdiction string) *RuleBuilder {
	return &RuleBuilder{
		jurisdiction: CanonicalJurisdiction(jurisdiction),
		rules:        []Rule{},
	}
}

// WithLegalBasis sets the legal basis applied to rules that do not set their own
func (b *RuleBuilder) WithLegalBasis(basis string) *RuleBuilder {
	b.legalBasis = basis
	return b
}

// AddRule adds a rule with its triggers
func (b *RuleBuilder) AddRule(id, category string, severity Severity, triggers ...string) *RuleBuilder {
	b.rules = append(b.rules, Rule{
		ID:           id,
		Category:     category,
		TriggerWords: triggers,
		Severity:     severity,
		LegalBasis:   b.legalBasis,
		Jurisdiction: b.jurisdiction,
	})
	return b
}

// ConfigureLastRule configures additional properties for the last added rule
func (b *RuleBuilder) ConfigureLastRule() *RuleConfigurator {
	if len(b.rules) == 0 {
		b.rules = append(b.rules, Rule{Jurisdiction: b.jurisdiction})
	}

	return &RuleConfigurator{
		builder: b,
		rule:    &b.rules[len(b.rules)-1],
	}
}

// Build validates and returns the rules
func (b *RuleBuilder) Build() ([]Rule, error) {
	seen := map[string]bool{}
	for _, rule := range b.rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("duplicate rule id %s", rule.ID)
		}
		seen[rule.ID] = true
	}
	return append([]Rule{}, b.rules...), nil
}

// RuleConfigurator provides methods to configure a rule
type RuleConfigurator struct {
	builder *RuleBuilder
	rule    *Rule
}

// WithSuggestion sets the compliant rewording advice
func (c *RuleConfigurator) WithSuggestion(suggestion string) *RuleConfigurator {
	c.rule.Suggestion = suggestion
	return c
}

// WithLegalBasis sets the statute the rule is based on
func (c *RuleConfigurator) WithLegalBasis(basis string) *RuleConfigurator {
	c.rule.LegalBasis = basis
	return c
}

// WithLanguage restricts the rule to one language
func (c *RuleConfigurator) WithLanguage(language string) *RuleConfigurator {
	c.rule.Language = language
	return c
}

// WithTriggers appends trigger phrases
func (c *RuleConfigurator) WithTriggers(triggers ...string) *RuleConfigurator {
	c.rule.TriggerWords = append(c.rule.TriggerWords, triggers...)
	return c
}

// Done returns to the rule builder
func (c *RuleConfigurator) Done() *RuleBuilder {
	return c.builder
}

// WriteRuleFile saves rules as a JSON rule file, creating parent directories
func WriteRuleFile(path string, rules []Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create rule directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule file: %w", err)
	}
	return nil
}
