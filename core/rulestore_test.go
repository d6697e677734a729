package core

import (
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleStoreLoad(t *testing.T) {
	store := NewRuleStore(testRuleFS())

	// first use loads lazily
	assert.Equal(t, 8, store.Count())

	result, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 8, result.Rules)
	assert.Equal(t, 4, result.Files)
	assert.Empty(t, result.Warnings)
	assert.Len(t, result.Hash, 64)
	assert.Equal(t, uint64(1), store.Version())

	assert.Equal(t, []string{"california", "federal", "nyc"}, store.Jurisdictions())
	assert.Equal(t, map[string]string{"new_york_city": "nyc", "ca": "california"}, store.Aliases())
}

func TestRuleStoreResolve(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name          string
		jurisdictions []string
		language      string
		wantIDs       []string
		wantKnown     []string
		wantUnknown   []string
	}{
		{
			name:      "federal baseline",
			wantIDs:   []string{"FHA-FAM-001", "FHA-AGE-001", "FHA-AGE-002", "FHA-STEER-001"},
			wantKnown: []string{},
		},
		{
			name:          "state overlay",
			jurisdictions: []string{"California"},
			wantIDs:       []string{"FHA-FAM-001", "FHA-AGE-001", "FHA-AGE-002", "FHA-STEER-001", "CALIFORNIA-SOI-001"},
			wantKnown:     []string{"california"},
		},
		{
			name:          "alias with spaces",
			jurisdictions: []string{"New York City"},
			wantIDs:       []string{"FHA-FAM-001", "FHA-AGE-001", "FHA-AGE-002", "FHA-STEER-001", "NEW_YORK-SOI-001", "NYC-SOI-001"},
			wantKnown:     []string{"nyc"},
		},
		{
			name:          "unknown names are reported, not fatal",
			jurisdictions: []string{"ca", "Atlantis", "  "},
			wantIDs:       []string{"FHA-FAM-001", "FHA-AGE-001", "FHA-AGE-002", "FHA-STEER-001", "CALIFORNIA-SOI-001"},
			wantKnown:     []string{"california"},
			wantUnknown:   []string{"atlantis"},
		},
		{
			name:          "language specific rules",
			jurisdictions: []string{"california"},
			language:      "ES",
			wantIDs:       []string{"FHA-FAM-001", "FHA-AGE-001", "FHA-AGE-002", "FHA-STEER-001", "CALIFORNIA-SOI-001", "CALIFORNIA-SOI-ES-001"},
			wantKnown:     []string{"california"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := store.Resolve(tt.jurisdictions, tt.language)
			require.NoError(t, err)

			var ids []string
			for _, r := range rs.Rules() {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("rule ids mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantKnown, rs.Jurisdictions)
			if tt.wantUnknown == nil {
				assert.Empty(t, rs.Unknown)
			} else {
				assert.Equal(t, tt.wantUnknown, rs.Unknown)
			}
		})
	}
}

func TestRuleStoreJurisdictionsAreAdditive(t *testing.T) {
	store := newTestStore(t)

	base := resolve(t, store)
	with := resolve(t, store, "california", "nyc")

	for _, r := range base.Rules() {
		_, ok := with.Rule(r.ID)
		assert.True(t, ok, "rule %s missing after adding jurisdictions", r.ID)
	}
	assert.Greater(t, with.Len(), base.Len())
}

func TestRuleStoreRecordsJurisdiction(t *testing.T) {
	store := newTestStore(t)
	rs := resolve(t, store, "california")

	rule, ok := rs.Rule("CALIFORNIA-SOI-001")
	require.True(t, ok)
	assert.Equal(t, "california", rule.Jurisdiction)
	assert.Equal(t, "Cal. Gov. Code 12955", rule.LegalBasis)

	rule, ok = rs.Rule("FHA-FAM-001")
	require.True(t, ok)
	assert.Equal(t, "federal", rule.Jurisdiction)

	_, ok = rs.Rule("NYC-SOI-001")
	assert.False(t, ok, "rules outside the requested jurisdictions must not resolve")
}

func TestRuleStoreRejectsBadRecords(t *testing.T) {
	fsys := fstest.MapFS{
		"manifest.yaml": {Data: []byte(`base: [federal.json]
jurisdictions:
  testland: [testland.json, missing.json, broken.json]
`)},
		"federal.json": {Data: []byte(testFederal)},
		"testland.json": {Data: []byte(`[
  {"id": "", "category": "X", "severity": "Critical", "trigger_words": ["a"]},
  {"id": "B-1", "category": "X", "severity": "Severe", "trigger_words": ["b"]},
  {"id": "B-2", "category": "X", "severity": "Warning", "trigger_words": ["  "]},
  {"id": "FHA-FAM-001", "category": "X", "severity": "Warning", "trigger_words": ["dup"]},
  {"id": 7},
  {"id": "B-3", "category": "Ok", "severity": "Info", "trigger_words": ["fine phrase", ""]}
]`)},
		"broken.json": {Data: []byte(`{"not": "an array"}`)},
	}

	store := NewRuleStore(fsys)
	result, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, result.Rules)
	assert.Len(t, result.Warnings, 7)

	rs := resolve(t, store, "testland")
	rule, ok := rs.Rule("B-3")
	require.True(t, ok)
	assert.Equal(t, []string{"fine phrase"}, rule.TriggerWords)

	dup, ok := rs.Rule("FHA-FAM-001")
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, dup.Severity, "first definition of a duplicate id wins")
}

func TestRuleStoreUnusableSource(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		store := NewRuleStore(fstest.MapFS{})
		_, err := store.Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))

		_, err = store.Resolve(nil, "")
		assert.Error(t, err)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("empty manifest", func(t *testing.T) {
		store := NewRuleStore(fstest.MapFS{"manifest.yaml": {Data: []byte("version: x\n")}})
		_, err := store.Load()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("custom manifest name", func(t *testing.T) {
		fsys := testRuleFS()
		fsys["rules.yaml"] = fsys["manifest.yaml"]
		delete(fsys, "manifest.yaml")

		store := NewRuleStore(fsys, WithManifestPath("rules.yaml"))
		_, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, 8, store.Count())
	})
}

func TestRuleStoreReload(t *testing.T) {
	fsys := testRuleFS()
	store := NewRuleStore(fsys)
	require.Equal(t, 8, store.Count())

	var hooks []ReloadResult
	store.OnReload(func(r ReloadResult) { hooks = append(hooks, r) })

	fsys["states/california.json"] = &fstest.MapFile{Data: []byte(`[
  {"id": "CALIFORNIA-SOI-001", "category": "Source of Income (California)", "severity": "Critical", "trigger_words": ["no vouchers"]},
  {"id": "CALIFORNIA-SOI-002", "category": "Source of Income (California)", "severity": "Warning", "trigger_words": ["no subsidy"]},
  {"id": "CALIFORNIA-IMM-001", "category": "Immigration Status (California)", "severity": "Critical", "trigger_words": ["documented only"]}
]`)}

	result, err := store.Reload()
	require.NoError(t, err)
	assert.Equal(t, ReloadResult{OldCount: 8, NewCount: 9}, result)
	assert.Equal(t, uint64(2), store.Version())
	assert.Equal(t, []ReloadResult{result}, hooks)

	// a broken source keeps the previous rules serving
	delete(fsys, "manifest.yaml")
	result, err = store.Reload()
	require.Error(t, err)
	assert.Equal(t, ReloadResult{OldCount: 9, NewCount: 9}, result)
	assert.Equal(t, 9, store.Count())
	assert.Equal(t, uint64(2), store.Version())
	assert.Len(t, hooks, 1)

	rs := resolve(t, store, "california")
	_, ok := rs.Rule("CALIFORNIA-IMM-001")
	assert.True(t, ok)
}

func TestRuleStoreConcurrentResolveDuringReload(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rs, err := store.Resolve([]string{"california"}, "")
				if assert.NoError(t, err) {
					assert.Equal(t, 5, rs.Len())
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := store.Reload()
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestCanonicalJurisdiction(t *testing.T) {
	assert.Equal(t, "new_york", CanonicalJurisdiction("  New York "))
	assert.Equal(t, "san_francisco", CanonicalJurisdiction("San-Francisco"))
	assert.Equal(t, "dc", CanonicalJurisdiction("D.C."))
}
