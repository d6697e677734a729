package core

// RuleSet is the effective, read-only set of rules for one request
type RuleSet struct {
	snap   *ruleSnapshot
	member []bool
	rules  []*Rule
	extra  map[string]*Rule

	// Canonical jurisdictions that contributed overlays, sorted
	Jurisdictions []string

	// Requested names that matched no jurisdiction, sorted
	Unknown []string

	Language string

	// Generation of the snapshot this set was cut from
	Version uint64
}

// Len returns the number of rules in the set
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the rules in load order. The slice must not be modified.
func (rs *RuleSet) Rules() []*Rule {
	return rs.rules
}

// Rule looks a rule up by id, including rules attached with WithExtra
func (rs *RuleSet) Rule(id string) (*Rule, bool) {
	if r, ok := rs.extra[id]; ok {
		return r, true
	}
	if rs.snap == nil {
		return nil, false
	}
	idx, ok := rs.snap.index[id]
	if !ok || !rs.member[idx] {
		return nil, false
	}
	return &rs.snap.rules[idx], true
}

// contains reports whether the snapshot rule at idx belongs to the set
func (rs *RuleSet) contains(idx int) bool {
	return idx >= 0 && idx < len(rs.member) && rs.member[idx]
}

// WithExtra returns a copy of the set that also resolves the given synthetic rules
func (rs *RuleSet) WithExtra(rules ...Rule) *RuleSet {
	if len(rules) == 0 {
		return rs
	}
	clone := *rs
	clone.extra = make(map[string]*Rule, len(rs.extra)+len(rules))
	for k, v := range rs.extra {
		clone.extra[k] = v
	}
	for i := range rules {
		r := rules[i]
		clone.extra[r.ID] = &r
	}
	return &clone
}
