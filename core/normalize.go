package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalizedText is a lowercased, whitespace-collapsed view of a text that remembers
// where every byte came from in the original.
type normalizedText struct {
	text string

	// origStart[i] and origEnd[i] give the byte range of the original rune that produced
	// byte i of text
	origStart []int
	origEnd   []int
}

func normalize(text string) normalizedText {
	var b strings.Builder
	b.Grow(len(text))
	starts := make([]int, 0, len(text))
	ends := make([]int, 0, len(text))

	inSpace := false
	for i, r := range text {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = 1
		}

		if unicode.IsSpace(r) {
			if inSpace {
				// extend the collapsed space to cover the whole run
				ends[len(ends)-1] = i + size
				continue
			}
			inSpace = true
			b.WriteByte(' ')
			starts = append(starts, i)
			ends = append(ends, i+size)
			continue
		}
		inSpace = false

		lower := unicode.ToLower(r)
		n, _ := b.WriteRune(lower)
		for j := 0; j < n; j++ {
			starts = append(starts, i)
			ends = append(ends, i+size)
		}
	}

	return normalizedText{text: b.String(), origStart: starts, origEnd: ends}
}

// original maps a normalized byte range back to the original text
func (n normalizedText) original(start, end int) (int, int) {
	if start >= end || end > len(n.origStart) {
		return 0, 0
	}
	return n.origStart[start], n.origEnd[end-1]
}

// normalizePhrase brings a trigger phrase into the same shape as normalized text
func normalizePhrase(phrase string) string {
	return strings.TrimSpace(normalize(phrase).text)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// onWordBoundary reports whether text[start:end] is not glued to a neighbouring word.
// Edges of the phrase that are punctuation (e.g. "55+") need no boundary.
func onWordBoundary(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWordRune(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) {
			return false
		}
	}

	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWordRune(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}

	return true
}

// token is a whitespace-delimited word of normalized text with edge punctuation removed
type token struct {
	text  string
	start int
	end   int
}

func isEdgePunct(r rune) bool {
	return (unicode.IsPunct(r) || unicode.IsSymbol(r)) && r != '+'
}

func tokenize(text string) []token {
	var tokens []token
	pos := 0
	for _, field := range strings.Split(text, " ") {
		fieldStart := pos
		pos += len(field) + 1

		trimmedLeft := strings.TrimLeftFunc(field, isEdgePunct)
		trimmed := strings.TrimRightFunc(trimmedLeft, isEdgePunct)
		if trimmed == "" {
			continue
		}
		start := fieldStart + len(field) - len(trimmedLeft)
		tokens = append(tokens, token{text: trimmed, start: start, end: start + len(trimmed)})
	}
	return tokens
}

func tokenTexts(tokens []token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.text
	}
	return out
}
