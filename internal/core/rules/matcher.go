package rules

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
)

type match struct {
	start, end int
	rule       *Rule
}

// Scan evaluates every rule independently over the flattened text and
// returns one candidate edit per surviving match, plus the audit records
// for matches discarded by overlap deduplication. The scan is pure: the
// same text always yields the same edit set, and IDs aside, running it
// twice is byte-identical.
func (s *Set) Scan(text string) ([]model.Edit, []model.Discarded) {
	var matches []match
	for i := range s.Rules {
		rule := &s.Rules[i]
		for _, span := range rule.Pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, match{start: span[0], end: span[1], rule: rule})
		}
	}

	// Overlap dedupe: higher severity wins, then the earlier-declared rule.
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.rule.Severity.Rank() != b.rule.Severity.Rank() {
			return a.rule.Severity.Rank() > b.rule.Severity.Rank()
		}
		if a.rule.DeclIdx != b.rule.DeclIdx {
			return a.rule.DeclIdx < b.rule.DeclIdx
		}
		return a.start < b.start
	})

	var kept []match
	var discarded []model.Discarded
	for _, m := range matches {
		conflict := -1
		for k, acc := range kept {
			if m.start < acc.end && acc.start < m.end {
				conflict = k
				break
			}
		}
		if conflict >= 0 {
			winner := kept[conflict]
			discarded = append(discarded, model.Discarded{
				Edit:   editFromMatch(m, text),
				Reason: "rule_overlap",
				Detail: fmt.Sprintf("overlaps match of rule '%s' at [%d,%d)", winner.rule.Name, winner.start, winner.end),
			})
			continue
		}
		kept = append(kept, m)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	edits := make([]model.Edit, 0, len(kept))
	for _, m := range kept {
		edits = append(edits, editFromMatch(m, text))
	}
	return edits, discarded
}

func editFromMatch(m match, text string) model.Edit {
	return model.Edit{
		ID:          uuid.New().String(),
		Start:       m.start,
		End:         m.end,
		Original:    text[m.start:m.end],
		Replacement: m.rule.Replacement,
		Kind:        m.rule.Kind,
		Rationale:   m.rule.Description,
		Confidence:  100,
		Source:      model.SourceRule,
		Category:    m.rule.Category,
		Severity:    m.rule.Severity,
		RuleName:    m.rule.Name,
	}
}
