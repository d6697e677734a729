package core

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// fuzzyPhrase is one trigger prepared for approximate matching
type fuzzyPhrase struct {
	owner  phraseOwner
	text   string
	tokens int
	runes  int

	// no segment filter applies; every window is compared
	brute bool
}

// fuzzyIndex narrows approximate matching to windows that share an exact segment with
// a trigger. A trigger within d edits of a window splits into d+1 segments, and at least
// one of them survives intact inside the window, so windows with no segment hit can never
// clear the threshold.
type fuzzyIndex struct {
	snap     *ruleSnapshot
	phrases  []fuzzyPhrase
	byOwner  map[phraseOwner]int
	segments *phraseAutomaton
	brute    []int
}

// maxEdits is the largest distance at which a phrase of n runes can still reach threshold.
// The window may be longer than the phrase, but never by more than the distance itself.
func maxEdits(n int, threshold float64) int {
	return int(float64(n)*(1-threshold)/threshold + 1e-9)
}

func newFuzzyIndex(snap *ruleSnapshot, config KeywordConfig) *fuzzyIndex {
	idx := &fuzzyIndex{
		snap:     snap,
		byOwner:  map[phraseOwner]int{},
		segments: newPhraseAutomaton(),
	}
	seen := map[string]int32{}

	for r := range snap.rules {
		for j, trigger := range snap.rules[r].TriggerWords {
			words := tokenTexts(tokenize(normalizePhrase(trigger)))
			if len(words) == 0 {
				continue
			}
			text := strings.Join(words, " ")
			runes := utf8.RuneCountInString(text)
			if runes < config.MinFuzzyLength {
				continue
			}

			owner := phraseOwner{rule: r, trigger: j}
			p := fuzzyPhrase{owner: owner, text: text, tokens: len(words), runes: runes}

			d := 0
			if config.FuzzyThreshold <= 0 {
				p.brute = true
			} else {
				d = maxEdits(runes, config.FuzzyThreshold)
				p.brute = d+1 > runes
			}

			idx.byOwner[owner] = len(idx.phrases)
			idx.phrases = append(idx.phrases, p)
			if p.brute {
				idx.brute = append(idx.brute, len(idx.phrases)-1)
				continue
			}
			for _, seg := range splitRunes(text, d+1) {
				idx.segments.add(seg, owner, seen)
			}
		}
	}

	idx.segments.build()
	return idx
}

// splitRunes cuts s into n contiguous, non-empty pieces of near-equal rune length
func splitRunes(s string, n int) []string {
	runes := []rune(s)
	pieces := make([]string, 0, n)
	for i := 0; i < n; i++ {
		from := i * len(runes) / n
		to := (i + 1) * len(runes) / n
		pieces = append(pieces, string(runes[from:to]))
	}
	return pieces
}

// fuzzyWindows is the tokenized text joined by single spaces with each token's byte span
type fuzzyWindows struct {
	joined string
	starts []int
	ends   []int
}

func newFuzzyWindows(words []string) fuzzyWindows {
	w := fuzzyWindows{starts: make([]int, len(words)), ends: make([]int, len(words))}
	var b strings.Builder
	for i, word := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		w.starts[i] = b.Len()
		b.WriteString(word)
		w.ends[i] = b.Len()
	}
	w.joined = b.String()
	return w
}

// window returns tokens [i, i+k) joined by single spaces
func (w fuzzyWindows) window(i, k int) string {
	return w.joined[w.starts[i]:w.ends[i+k-1]]
}

// candidates returns the sorted window starts, per phrase, whose windows contain at
// least one segment of that phrase. Phrases rejected by skip are left out.
func (idx *fuzzyIndex) candidates(w fuzzyWindows, skip func(phraseOwner) bool) map[int][]int {
	n := len(w.starts)
	found := map[int]map[int]struct{}{}

	for _, hit := range idx.segments.find(w.joined) {
		// the window must start at or before the hit and end at or after it
		first := sort.Search(n, func(i int) bool { return w.starts[i] > hit.start }) - 1
		last := sort.Search(n, func(i int) bool { return w.ends[i] >= hit.end })
		if first < 0 || last >= n {
			continue
		}

		for _, owner := range idx.segments.owners[hit.phrase] {
			if skip(owner) {
				continue
			}
			p := idx.byOwner[owner]
			k := idx.phrases[p].tokens
			lo := last - k + 1
			if lo < 0 {
				lo = 0
			}
			hi := first
			if hi > n-k {
				hi = n - k
			}
			for i := lo; i <= hi; i++ {
				if found[p] == nil {
					found[p] = map[int]struct{}{}
				}
				found[p][i] = struct{}{}
			}
		}
	}

	out := make(map[int][]int, len(found)+len(idx.brute))
	for p, set := range found {
		starts := make([]int, 0, len(set))
		for i := range set {
			starts = append(starts, i)
		}
		sort.Ints(starts)
		out[p] = starts
	}
	for _, p := range idx.brute {
		if skip(idx.phrases[p].owner) {
			continue
		}
		k := idx.phrases[p].tokens
		var starts []int
		for i := 0; i+k <= n; i++ {
			starts = append(starts, i)
		}
		if len(starts) > 0 {
			out[p] = starts
		}
	}
	return out
}

// best returns the most similar window among starts; ties keep the earliest
func (p fuzzyPhrase) best(w fuzzyWindows, starts []int, threshold float64) (int, float64, bool) {
	best := -1.0
	bestAt := -1
	for _, i := range starts {
		window := w.window(i, p.tokens)
		windowLen := utf8.RuneCountInString(window)

		longest := p.runes
		if windowLen > longest {
			longest = windowLen
		}
		// the length gap alone already bounds the distance from below
		diff := p.runes - windowLen
		if diff < 0 {
			diff = -diff
		}
		if 1-float64(diff)/float64(longest) < threshold {
			continue
		}

		sim := Similarity(p.text, window)
		if sim > best {
			best = sim
			bestAt = i
		}
	}

	if bestAt < 0 || best < threshold {
		return 0, 0, false
	}
	return bestAt, best, true
}
