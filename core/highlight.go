package core

import (
	"sort"
	"strings"
)

// Highlight wraps every flagged span of text in markers naming the severity and rule,
// e.g. "[[Critical:FHA-FAM-001 no kids]]". Overlapping spans are merged into the first.
func Highlight(text string, report *AuditReport) string {
	if report == nil || len(report.FlaggedItems) == 0 {
		return text
	}

	items := append([]FlaggedItem{}, report.FlaggedItems...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Start != items[j].Start {
			return items[i].Start < items[j].Start
		}
		return items[i].End > items[j].End
	})

	var builder strings.Builder
	lastIndex := 0

	for _, item := range items {
		if item.Start < lastIndex || item.End > len(text) || item.Start >= item.End {
			continue
		}
		if item.Start > lastIndex {
			builder.WriteString(text[lastIndex:item.Start])
		}

		builder.WriteString("[[" + string(item.Severity) + ":" + item.ID + " ")
		builder.WriteString(text[item.Start:item.End])
		builder.WriteString("]]")

		lastIndex = item.End
	}

	if lastIndex < len(text) {
		builder.WriteString(text[lastIndex:])
	}

	return builder.String()
}
