package model

import "fmt"

// Severity of a policy finding. Ordering matters for merge tie-breaks.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityModerate: 2,
	SeverityLow:      1,
}

// Rank returns the severity's merge precedence; unknown severities rank
// below low so malformed input never outranks real findings.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether the severity is one of the four known levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Source identifies which pipeline stage produced an edit.
type Source string

const (
	SourceRule           Source = "rule"
	SourceRecallPass     Source = "recall-pass"
	SourceValidationPass Source = "validation-pass"
)

var sourcePriority = map[Source]int{
	SourceRule:           3,
	SourceValidationPass: 2,
	SourceRecallPass:     1,
}

// Priority returns the source's merge precedence. Rule edits carry fixed,
// auditable confidence and always win over reasoning-service edits.
func (s Source) Priority() int {
	return sourcePriority[s]
}

// EditKind distinguishes how an edit mutates the anchor span.
type EditKind string

const (
	KindReplace EditKind = "replace"
	KindDelete  EditKind = "delete"
	// KindInsertAfter keeps the anchor text and inserts after it.
	KindInsertAfter EditKind = "insert-after"
	// KindInsertInline keeps the anchor text and inserts before it.
	KindInsertInline EditKind = "insert-inline"
)

// Edit is a candidate revision against the flattened text. Offsets are
// half-open [Start, End) byte positions into the flattened text; Original
// must match the slice under whitespace-normalized comparison.
type Edit struct {
	ID          string   `json:"id"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Original    string   `json:"original_text"`
	Replacement string   `json:"replacement_text,omitempty"`
	Kind        EditKind `json:"kind"`
	Rationale   string   `json:"rationale,omitempty"`
	Confidence  int      `json:"confidence"`
	Source      Source   `json:"source"`
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	RuleName    string   `json:"rule_name,omitempty"`
}

// Overlaps reports whether two half-open spans intersect.
func (e Edit) Overlaps(o Edit) bool {
	return e.Start < o.End && o.Start < e.End
}

func (e Edit) String() string {
	return fmt.Sprintf("[%d,%d) %s/%s %s", e.Start, e.End, e.Source, e.Severity, e.Kind)
}

// Less orders edits for the merge stage: severity first, then source
// priority, then earliest start offset.
func (e Edit) Less(o Edit) bool {
	if e.Severity.Rank() != o.Severity.Rank() {
		return e.Severity.Rank() > o.Severity.Rank()
	}
	if e.Source.Priority() != o.Source.Priority() {
		return e.Source.Priority() > o.Source.Priority()
	}
	return e.Start < o.Start
}

// EditSet is the finalized, non-overlapping collection of edits for one
// document, together with the audit trail of what was discarded.
type EditSet struct {
	Edits     []Edit      `json:"edits"`
	Discarded []Discarded `json:"discarded,omitempty"`
}

// Discarded records an edit dropped during merge or validation, with the
// structured reason. Nothing is dropped silently.
type Discarded struct {
	Edit   Edit   `json:"edit"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
