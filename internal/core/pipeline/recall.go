package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/common"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/validate"
)

// rawCandidate is the wire schema the reasoning service must return. Each
// entry is validated independently: one bad entry becomes a malformed-
// candidate drop, not a whole-response failure.
type rawCandidate struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Original    string `json:"original_text"`
	Replacement string `json:"replacement_text"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Confidence  int    `json:"confidence"`
	Rationale   string `json:"rationale"`
}

type recallResponse struct {
	Candidates []rawCandidate `json:"candidates"`
}

// recallStage submits the flattened text and checklist to the reasoning
// service, returning schema-validated candidates. The similarity cache is
// consulted first; a hit returns previously validated candidates and the
// caller skips the validation stage for them.
func (e *Engine) recallStage(ctx context.Context, text string, ruleEdits []model.Edit, review *Review) ([]model.Edit, bool, error) {
	if e.cache != nil {
		key := common.Fingerprint(text)
		cached, hit, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("similarity cache read failed, falling through to live call", zap.Error(err))
		} else if hit {
			e.logger.Info("similarity cache hit", zap.Int("candidates", len(cached)))
			review.Stats.RecallCandidates = len(cached)
			return cached, true, nil
		}
	}

	prompt := fmt.Sprintf(e.prompts.recall, e.prompts.checklist, text, serializeHandledSpans(ruleEdits))
	response, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, false, err
	}

	parsed, err := common.ParseJSON[recallResponse](response)
	if err != nil {
		// The response as a whole is unparseable; that is a recall failure,
		// not a per-entry drop.
		return nil, false, fmt.Errorf("unparseable recall response: %w", err)
	}

	var edits []model.Edit
	for _, rc := range parsed.Candidates {
		edit, reason := candidateFromRaw(rc, text)
		if reason != "" {
			review.Stats.MalformedDropped++
			review.EditSet.Discarded = append(review.EditSet.Discarded, model.Discarded{
				Edit:   edit,
				Reason: "malformed_candidate",
				Detail: reason,
			})
			e.logger.Info("malformed candidate dropped",
				zap.String("detail", reason),
				zap.Int("start", rc.Start),
				zap.Int("end", rc.End))
			continue
		}
		edits = append(edits, edit)
	}
	review.Stats.RecallCandidates = len(edits)
	return edits, false, nil
}

// candidateFromRaw applies strict schema validation at the boundary and
// converts a conforming entry into a candidate edit. The returned reason is
// non-empty when the entry is malformed.
func candidateFromRaw(rc rawCandidate, text string) (model.Edit, string) {
	kind := model.KindReplace
	if strings.TrimSpace(rc.Replacement) == "" {
		kind = model.KindDelete
		rc.Replacement = ""
	}
	edit := model.Edit{
		ID:          uuid.New().String(),
		Start:       rc.Start,
		End:         rc.End,
		Original:    rc.Original,
		Replacement: rc.Replacement,
		Kind:        kind,
		Rationale:   rc.Rationale,
		Confidence:  rc.Confidence,
		Source:      model.SourceRecallPass,
		Category:    rc.Category,
		Severity:    model.Severity(rc.Severity),
	}

	if !edit.Severity.Valid() {
		return edit, fmt.Sprintf("unknown severity %q", rc.Severity)
	}
	if strings.TrimSpace(edit.Original) == "" {
		return edit, "empty original_text"
	}
	// Cheap per-candidate validation, before any merge bookkeeping exists.
	if rej := validate.Edit(edit, text, nil); rej != nil {
		return edit, fmt.Sprintf("%s: %s", rej.Reason, rej.Detail)
	}
	return edit, ""
}

func serializeHandledSpans(edits []model.Edit) string {
	if len(edits) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, e := range edits {
		fmt.Fprintf(&sb, "- [%d,%d) %q (%s)\n", e.Start, e.End, e.Original, e.RuleName)
	}
	return sb.String()
}
