// Package labels merges fine-grained cluster labels into a small coarse
// vocabulary of biologically named groups.
//
// The merge is an explicit ordered list of (suffix, name) rules evaluated
// longest suffix first, first match wins. Rule sets are validated so that no
// replacement name itself matches a rule, which makes Apply idempotent by
// construction rather than by accident.
package labels

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cytoflow-data/lineage.report/internal/frame"
)

// Rule rewrites any label ending in Suffix to Name.
type Rule struct {
	Suffix string
	Name   string
}

// RuleSet is an ordered, validated list of merge rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates and orders the rules: longer suffixes are checked
// before shorter ones (so "-13" wins over "-1"), ties keep the given order.
// The replacement names must not match any rule suffix; a vocabulary that
// rewrites its own output is rejected.
func NewRuleSet(rules []Rule) (RuleSet, error) {
	if len(rules) == 0 {
		return RuleSet{}, fmt.Errorf("labels: empty rule set")
	}
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Suffix) > len(ordered[j].Suffix)
	})
	for _, r := range ordered {
		if r.Suffix == "" {
			return RuleSet{}, fmt.Errorf("labels: rule for %q has empty suffix", r.Name)
		}
		if r.Name == "" {
			return RuleSet{}, fmt.Errorf("labels: rule %q has empty name", r.Suffix)
		}
	}
	rs := RuleSet{rules: ordered}
	for _, r := range ordered {
		if merged := rs.Apply(r.Name); merged != r.Name {
			return RuleSet{}, fmt.Errorf("labels: replacement %q would itself merge to %q; rule set is not idempotent", r.Name, merged)
		}
	}
	return rs, nil
}

// Apply merges one label. Labels matching no rule pass through unchanged, so
// already-merged labels are fixed points.
func (rs RuleSet) Apply(label string) string {
	for _, r := range rs.rules {
		if strings.HasSuffix(label, r.Suffix) {
			return r.Name
		}
	}
	return label
}

// Len returns the number of rules.
func (rs RuleSet) Len() int { return len(rs.rules) }

// Names returns the distinct coarse names in rule order.
func (rs RuleSet) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs.rules {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r.Name)
		}
	}
	return out
}

// DefaultCD4Rules is the CD4 T-cell vocabulary used by the reference panel:
// fourteen pre-gated source populations collapse into six named groups.
func DefaultCD4Rules() RuleSet {
	rs, err := NewRuleSet([]Rule{
		{Suffix: "-1", Name: "Naive"},
		{Suffix: "-2", Name: "CM"},
		{Suffix: "-3", Name: "CM"},
		{Suffix: "-4", Name: "EM"},
		{Suffix: "-5", Name: "EM"},
		{Suffix: "-6", Name: "CD69+CD103- EM"},
		{Suffix: "-7", Name: "CD69+CD103+ TRM"},
		{Suffix: "-8", Name: "CD69+CD103+ TRM"},
		{Suffix: "-9", Name: "Treg"},
		{Suffix: "-10", Name: "Treg"},
		{Suffix: "-11", Name: "CM"},
		{Suffix: "-12", Name: "EM"},
		{Suffix: "-13", Name: "CD69+CD103- EM"},
		{Suffix: "-14", Name: "CD69+CD103+ TRM"},
	})
	if err != nil {
		// The default vocabulary is validated by tests; reaching this is a bug.
		panic(err)
	}
	return rs
}

// MergeColumn applies the rule set to an existing string column and appends
// the result as a new column.
func MergeColumn(tbl *frame.Table, from, to string, rs RuleSet) error {
	src, err := tbl.StringColumn(from)
	if err != nil {
		return fmt.Errorf("labels: %w", err)
	}
	merged := make([]string, len(src))
	for i, label := range src {
		merged[i] = rs.Apply(label)
	}
	return tbl.AppendStringColumn(to, merged)
}
