package core

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

const testManifest = `version: "test-1"
base:
  - federal.json
jurisdictions:
  federal: []
  california:
    - states/california.json
  nyc:
    - states/new_york.json
    - cities/nyc.json
aliases:
  new_york_city: nyc
  ca: california
`

const testFederal = `[
  {"id": "FHA-FAM-001", "category": "Familial Status", "severity": "Critical",
   "trigger_words": ["no children", "no kids", "adults only"],
   "suggestion": "Describe the property, not the household"},
  {"id": "FHA-AGE-001", "category": "Age", "severity": "Warning",
   "trigger_words": ["young professionals", "recent grads"],
   "suggestion": "Describe the unit's features instead"},
  {"id": "FHA-AGE-002", "category": "Age", "severity": "Critical",
   "trigger_words": ["55+", "seniors only"]},
  {"id": "FHA-STEER-001", "category": "Steering", "severity": "Info",
   "trigger_words": ["safe neighborhood"]}
]`

const testCalifornia = `[
  {"id": "CALIFORNIA-SOI-001", "category": "Source of Income (California)", "severity": "Critical",
   "trigger_words": ["no vouchers", "no section 8"], "legal_basis": "Cal. Gov. Code 12955"},
  {"id": "CALIFORNIA-SOI-ES-001", "category": "Source of Income (California)", "severity": "Critical",
   "trigger_words": ["no se aceptan vales"], "language": "es"}
]`

const testNewYork = `[
  {"id": "NEW_YORK-SOI-001", "category": "Source of Income (New York)", "severity": "Critical",
   "trigger_words": ["no section 8"]}
]`

const testNYC = `[
  {"id": "NYC-SOI-001", "category": "Lawful Source of Income (New York City)", "severity": "Critical",
   "trigger_words": ["vouchers not accepted"]}
]`

func testRuleFS() fstest.MapFS {
	return fstest.MapFS{
		"manifest.yaml":          {Data: []byte(testManifest)},
		"federal.json":           {Data: []byte(testFederal)},
		"states/california.json": {Data: []byte(testCalifornia)},
		"states/new_york.json":   {Data: []byte(testNewYork)},
		"cities/nyc.json":        {Data: []byte(testNYC)},
	}
}

func newTestStore(t *testing.T) *RuleStore {
	t.Helper()
	store := NewRuleStore(testRuleFS())
	_, err := store.Load()
	require.NoError(t, err)
	return store
}

func resolve(t *testing.T, store *RuleStore, jurisdictions ...string) *RuleSet {
	t.Helper()
	rs, err := store.Resolve(jurisdictions, "")
	require.NoError(t, err)
	return rs
}

func ruleIDs(report *AuditReport) []string {
	ids := make([]string, 0, len(report.FlaggedItems))
	for _, item := range report.FlaggedItems {
		ids = append(ids, item.ID)
	}
	return ids
}
