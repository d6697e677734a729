package core

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/fairprop/fairprop-go/utils"
)

// KeywordMatcher finds exact and near-exact trigger phrases in text
type KeywordMatcher struct {
	config KeywordConfig

	mu    sync.Mutex
	index *fuzzyIndex
}

// NewKeywordMatcher creates a matcher with the given configuration
func NewKeywordMatcher(config KeywordConfig) *KeywordMatcher {
	return &KeywordMatcher{config: config}
}

// Match runs exact matching for every rule in rs and fuzzy matching for rules that
// had no exact hit. Results are ordered by rule, trigger, then position.
func (m *KeywordMatcher) Match(text string, rs *RuleSet) []utils.Match {
	if rs == nil || rs.snap == nil || rs.Len() == 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	norm := normalize(text)
	snap := rs.snap

	type keyed struct {
		owner phraseOwner
		match utils.Match
	}
	var found []keyed
	exact := map[int]bool{}

	for _, hit := range snap.automaton.find(norm.text) {
		if !onWordBoundary(norm.text, hit.start, hit.end) {
			continue
		}
		for _, owner := range snap.automaton.owners[hit.phrase] {
			if !rs.contains(owner.rule) {
				continue
			}
			rule := &snap.rules[owner.rule]
			start, end := norm.original(hit.start, hit.end)
			found = append(found, keyed{
				owner: owner,
				match: utils.Match{
					RuleID:     rule.ID,
					Trigger:    rule.TriggerWords[owner.trigger],
					Start:      start,
					End:        end,
					Found:      text[start:end],
					Layer:      utils.LayerKeyword,
					Confidence: 1.0,
				},
			})
			exact[owner.rule] = true
		}
	}

	if m.config.EnableFuzzy {
		idx := m.fuzzyIndexFor(snap)
		tokens := tokenize(norm.text)
		windows := newFuzzyWindows(tokenTexts(tokens))
		skip := func(owner phraseOwner) bool {
			return exact[owner.rule] || !rs.contains(owner.rule)
		}

		for p, starts := range idx.candidates(windows, skip) {
			phrase := idx.phrases[p]
			at, sim, ok := phrase.best(windows, starts, m.config.FuzzyThreshold)
			if !ok {
				continue
			}
			rule := &snap.rules[phrase.owner.rule]
			start, end := norm.original(tokens[at].start, tokens[at+phrase.tokens-1].end)
			found = append(found, keyed{
				owner: phrase.owner,
				match: utils.Match{
					RuleID:     rule.ID,
					Trigger:    rule.TriggerWords[phrase.owner.trigger],
					Start:      start,
					End:        end,
					Found:      text[start:end],
					Layer:      utils.LayerFuzzy,
					Confidence: sim,
				},
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.owner.rule != b.owner.rule {
			return a.owner.rule < b.owner.rule
		}
		if a.owner.trigger != b.owner.trigger {
			return a.owner.trigger < b.owner.trigger
		}
		return a.match.Start < b.match.Start
	})

	matches := make([]utils.Match, len(found))
	for i, k := range found {
		matches[i] = k.match
	}
	return matches
}

// fuzzyIndexFor returns the approximate-match index for snap, rebuilding it after a reload
func (m *KeywordMatcher) fuzzyIndexFor(snap *ruleSnapshot) *fuzzyIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil || m.index.snap != snap {
		m.index = newFuzzyIndex(snap, m.config)
	}
	return m.index
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
