package core

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fairprop/fairprop-go/utils"
)

func isSpanBreak(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '\n':
		return true
	}
	return false
}

// splitSpans cuts text into trimmed sentence and clause spans of at least minRunes runes
func splitSpans(text string, minRunes int) []utils.Span {
	var spans []utils.Span
	start := 0
	flush := func(end int) {
		segment := text[start:end]
		left := len(segment) - len(strings.TrimLeftFunc(segment, unicode.IsSpace))
		trimmed := strings.TrimSpace(segment)
		if trimmed != "" && utf8.RuneCountInString(trimmed) >= minRunes {
			s := start + left
			spans = append(spans, utils.Span{Start: s, End: s + len(trimmed), Text: trimmed})
		}
	}

	for i, r := range text {
		if isSpanBreak(r) {
			flush(i)
			start = i + utf8.RuneLen(r)
		}
	}
	if start < len(text) {
		flush(len(text))
	}
	return spans
}

// spanConfidence returns the highest confidence of any match inside span
func spanConfidence(span utils.Span, matches []utils.Match) float64 {
	best := 0.0
	for _, m := range matches {
		if span.Contains(m.Start, m.End) && m.Confidence > best {
			best = m.Confidence
		}
	}
	return best
}
