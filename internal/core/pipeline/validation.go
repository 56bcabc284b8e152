package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/common"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/validate"
)

const adjudicationContextBytes = 600

type adjudication struct {
	Verdict     string `json:"verdict"`
	Original    string `json:"original_text"`
	Replacement string `json:"replacement_text"`
	Confidence  int    `json:"confidence"`
	Rationale   string `json:"rationale"`
}

// validationStage adjudicates recall candidates whose confidence sits at or
// below the threshold, plus a deterministic sample of high-confidence ones
// for quality control. Candidates never submitted pass through at their
// original confidence. Stage failure is recoverable: an affected candidate
// falls back to its unvalidated form and the degradation is counted.
func (e *Engine) validationStage(ctx context.Context, text string, candidates []model.Edit, review *Review) []model.Edit {
	type slot struct {
		edit model.Edit
		keep bool
	}
	results := make([]slot, len(candidates))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ValidationWorkers)

	for i, cand := range candidates {
		if !e.selectForValidation(cand) {
			results[i] = slot{edit: cand, keep: true}
			continue
		}
		review.Stats.ValidationSelected++

		g.Go(func() error {
			verdictEdit, keep, err := e.adjudicate(gctx, text, cand)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Recoverable: fall back to the unvalidated candidate.
				review.Stats.ValidationDegraded++
				results[i] = slot{edit: cand, keep: true}
				e.logger.Warn("validation call failed, keeping unvalidated candidate",
					zap.String("edit", cand.String()),
					zap.Error(err))
				return nil
			}
			review.Stats.ValidationCompleted++
			if !keep {
				review.Stats.RejectedByValidator++
				review.EditSet.Discarded = append(review.EditSet.Discarded, model.Discarded{
					Edit:   cand,
					Reason: "rejected_by_validation",
					Detail: verdictEdit.Rationale,
				})
			}
			if verdictEdit.Start != cand.Start || verdictEdit.Replacement != cand.Replacement {
				review.Stats.Modified++
			}
			results[i] = slot{edit: verdictEdit, keep: keep}
			return nil
		})
	}

	_ = g.Wait()

	var out []model.Edit
	for _, s := range results {
		if s.keep {
			out = append(out, s.edit)
		}
	}
	return out
}

// selectForValidation is the gating policy: everything at or below the
// confidence threshold, plus a fixed sampling fraction above it. Selection
// hashes the candidate's span and anchor so reruns pick the same sample.
func (e *Engine) selectForValidation(cand model.Edit) bool {
	if cand.Confidence <= e.cfg.ValidationThreshold {
		return true
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d:%s", cand.Start, cand.End, cand.Original)
	return float64(h.Sum32())/float64(^uint32(0)) < e.cfg.SampleFraction
}

// adjudicate submits one candidate with surrounding context to a second,
// independent reasoning call. keep=false means the verdict was reject.
func (e *Engine) adjudicate(ctx context.Context, text string, cand model.Edit) (model.Edit, bool, error) {
	ctxStart := cand.Start - adjudicationContextBytes
	if ctxStart < 0 {
		ctxStart = 0
	}
	ctxEnd := cand.End + adjudicationContextBytes
	if ctxEnd > len(text) {
		ctxEnd = len(text)
	}
	// Widen the window edges to rune boundaries so a multi-byte
	// character is never split.
	for ctxStart > 0 && !utf8.RuneStart(text[ctxStart]) {
		ctxStart--
	}
	for ctxEnd < len(text) && !utf8.RuneStart(text[ctxEnd]) {
		ctxEnd++
	}
	window := text[ctxStart:ctxEnd]

	prompt := fmt.Sprintf(e.prompts.adjudicate,
		window, cand.Original, cand.Replacement, cand.Category, cand.Severity, cand.Confidence, cand.Rationale)

	response, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return cand, false, err
	}

	verdict, err := common.ParseJSON[adjudication](response)
	if err != nil {
		return cand, false, fmt.Errorf("unparseable adjudication: %w", err)
	}

	switch verdict.Verdict {
	case "confirm":
		out := cand
		out.Source = model.SourceValidationPass
		if verdict.Confidence > 0 {
			out.Confidence = verdict.Confidence
		}
		if verdict.Rationale != "" {
			out.Rationale = verdict.Rationale
		}
		return out, true, nil

	case "reject":
		out := cand
		out.Rationale = verdict.Rationale
		return out, false, nil

	case "modify":
		out, err := e.applyModification(text, cand, verdict, ctxStart, window)
		if err != nil {
			// A modification we cannot anchor is treated like a failed
			// call: fall back to the unvalidated candidate upstream.
			return cand, false, err
		}
		return out, true, nil

	default:
		return cand, false, fmt.Errorf("unknown verdict %q", verdict.Verdict)
	}
}

// applyModification re-anchors a modified candidate inside the context
// window and re-validates it before accepting the new span.
func (e *Engine) applyModification(text string, cand model.Edit, verdict adjudication, ctxStart int, window string) (model.Edit, error) {
	original := verdict.Original
	if strings.TrimSpace(original) == "" {
		return cand, fmt.Errorf("modify verdict carries no original_text")
	}

	rel := strings.Index(window, original)
	if rel < 0 {
		return cand, fmt.Errorf("modified original_text not found in context window")
	}

	out := cand
	out.Start = ctxStart + rel
	out.End = out.Start + len(original)
	out.Original = original
	out.Replacement = verdict.Replacement
	out.Kind = model.KindReplace
	if strings.TrimSpace(verdict.Replacement) == "" {
		out.Kind = model.KindDelete
		out.Replacement = ""
	}
	out.Source = model.SourceValidationPass
	if verdict.Confidence > 0 {
		out.Confidence = verdict.Confidence
	}
	if verdict.Rationale != "" {
		out.Rationale = verdict.Rationale
	}

	if rej := validate.Edit(out, text, nil); rej != nil {
		return cand, fmt.Errorf("modified candidate failed validation: %s", rej.Detail)
	}
	return out, nil
}
