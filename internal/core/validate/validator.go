// Package validate checks candidate edits against the flattened text and
// the set of edits already accepted. It runs twice per document: cheaply on
// each freshly generated candidate, and once more over the final merged set.
package validate

import (
	"fmt"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/common"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
)

// Reason codes for rejections. These end up in pipeline statistics and in
// the review report, so they are stable strings, not free text.
const (
	ReasonOutOfBounds    = "out_of_bounds"
	ReasonEmptySpan      = "empty_span"
	ReasonAnchorMismatch = "anchor_mismatch"
	ReasonBadConfidence  = "bad_confidence"
	ReasonOverlap        = "overlap"
)

// Rejection explains why a candidate was refused.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("candidate rejected (%s): %s", r.Reason, r.Detail)
}

// Edit runs the ordered checks from the validation contract: bounds,
// non-empty span, anchor text match under whitespace normalization,
// confidence range, and overlap against acceptedSoFar. A nil return means
// the candidate is acceptable.
func Edit(e model.Edit, text string, acceptedSoFar []model.Edit) *Rejection {
	if e.Start < 0 || e.End > len(text) {
		return &Rejection{
			Reason: ReasonOutOfBounds,
			Detail: fmt.Sprintf("span [%d,%d) outside text of length %d", e.Start, e.End, len(text)),
		}
	}
	if e.Start >= e.End {
		return &Rejection{
			Reason: ReasonEmptySpan,
			Detail: fmt.Sprintf("span [%d,%d) is empty or inverted", e.Start, e.End),
		}
	}

	slice := common.NormalizeWhitespace(text[e.Start:e.End])
	anchor := common.NormalizeWhitespace(e.Original)
	if slice != anchor {
		return &Rejection{
			Reason: ReasonAnchorMismatch,
			Detail: fmt.Sprintf("anchor %q does not match text %q at [%d,%d)", anchor, slice, e.Start, e.End),
		}
	}

	if e.Confidence < 0 || e.Confidence > 100 {
		return &Rejection{
			Reason: ReasonBadConfidence,
			Detail: fmt.Sprintf("confidence %d outside [0,100]", e.Confidence),
		}
	}

	for _, acc := range acceptedSoFar {
		if e.Overlaps(acc) {
			return &Rejection{
				Reason: ReasonOverlap,
				Detail: fmt.Sprintf("span [%d,%d) overlaps accepted edit %s", e.Start, e.End, acc),
			}
		}
	}
	return nil
}

// Set re-validates a finalized edit set as a defense against merge bugs.
// It returns the first violation found, or nil.
func Set(edits []model.Edit, text string) *Rejection {
	var accepted []model.Edit
	for _, e := range edits {
		if rej := Edit(e, text, accepted); rej != nil {
			return rej
		}
		accepted = append(accepted, e)
	}
	return nil
}
