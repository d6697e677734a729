package utils

// Layer identifies the detection layer that produced a match
type Layer string

const (
	LayerKeyword  Layer = "keyword"
	LayerFuzzy    Layer = "fuzzy"
	LayerSemantic Layer = "semantic"
	LayerIntent   Layer = "intent"
)

// Rank orders layers by how much their evidence is trusted; lower wins ties.
func (l Layer) Rank() int {
	switch l {
	case LayerKeyword:
		return 0
	case LayerFuzzy:
		return 1
	case LayerSemantic:
		return 2
	case LayerIntent:
		return 3
	}
	return 4
}

// Span is a byte range [Start, End) into the scanned text
type Span struct {
	Start int
	End   int
	Text  string
}

// Len returns the number of bytes covered by the span
func (s Span) Len() int {
	return s.End - s.Start
}

// Contains reports whether the span fully covers [start, end)
func (s Span) Contains(start, end int) bool {
	return start >= s.Start && end <= s.End
}

// Match represents one piece of evidence that a rule fired on the text
type Match struct {
	// Which rule fired and why
	RuleID  string
	Trigger string

	// Match location information
	Start int
	End   int
	Found string

	// Classification information
	Layer      Layer
	Confidence float64
}

// Better reports whether m should replace other as the representative match of a rule.
func (m Match) Better(other Match) bool {
	if m.Confidence != other.Confidence {
		return m.Confidence > other.Confidence
	}
	if m.Layer.Rank() != other.Layer.Rank() {
		return m.Layer.Rank() < other.Layer.Rank()
	}
	if m.Start != other.Start {
		return m.Start < other.Start
	}
	return m.Trigger < other.Trigger
}
