// Package pipeline orchestrates the four analysis stages: the deterministic
// rule pass, the reasoning-service recall pass, the confidence-gated
// validation pass, and the merge that produces the final edit set.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/config"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/common"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/docindex"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/rules"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/validate"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/llm"
)

// Stats makes degraded runs distinguishable from fully validated runs. A
// successful-but-degraded document reports its validation coverage next to
// its results instead of hiding the fallback.
type Stats struct {
	RuleCandidates      int  `json:"rule_candidates"`
	RecallCandidates    int  `json:"recall_candidates"`
	MalformedDropped    int  `json:"malformed_dropped"`
	ValidationSelected  int  `json:"validation_selected"`
	ValidationCompleted int  `json:"validation_completed"`
	ValidationDegraded  int  `json:"validation_degraded"`
	RejectedByValidator int  `json:"rejected_by_validator"`
	Modified            int  `json:"modified"`
	MergeDiscarded      int  `json:"merge_discarded"`
	CacheHit            bool `json:"cache_hit"`
}

// ValidationCoverage is the fraction of selected candidates whose
// adjudication call actually completed.
func (s Stats) ValidationCoverage() float64 {
	if s.ValidationSelected == 0 {
		return 1.0
	}
	return float64(s.ValidationCompleted) / float64(s.ValidationSelected)
}

// Review is the analysis outcome for one document.
type Review struct {
	EditSet  model.EditSet `json:"edit_set"`
	Stats    Stats         `json:"stats"`
	Degraded bool          `json:"degraded"`
}

// Engine runs the analysis pipeline. It holds no per-document state; one
// engine serves concurrent documents, each with its own context.
type Engine struct {
	llm     llm.LLMClient
	rules   *rules.Set
	cache   RecallCache
	cfg     config.PipelineConfig
	prompts promptSet
	logger  *zap.Logger
}

type promptSet struct {
	checklist  string
	recall     string
	adjudicate string
}

// New wires an engine. cache may be nil; prompts fall back to the built-in
// defaults when the config leaves them empty.
func New(client llm.LLMClient, ruleSet *rules.Set, cache RecallCache, cfg *config.Config, logger *zap.Logger) *Engine {
	p := promptSet{
		checklist:  cfg.Recall.Checklist,
		recall:     cfg.Recall.Instructions,
		adjudicate: cfg.Validation.Adjudicate,
	}
	if p.checklist == "" {
		p.checklist = defaultChecklist
	}
	if p.recall == "" {
		p.recall = defaultRecallPrompt
	}
	if p.adjudicate == "" {
		p.adjudicate = defaultAdjudicatePrompt
	}
	return &Engine{
		llm:     client,
		rules:   ruleSet,
		cache:   cache,
		cfg:     cfg.Pipeline,
		prompts: p,
		logger:  logger,
	}
}

// Analyze runs stages 1-4 for one document and returns the finalized edit
// set. The merge never runs until every in-flight validation call for the
// document has resolved. A cancelled context discards all results.
func (e *Engine) Analyze(ctx context.Context, ix *docindex.Index) (*Review, error) {
	review := &Review{}

	// Stage 1: deterministic rule pass. Always runs, always free.
	ruleEdits, ruleDiscarded := e.rules.Scan(ix.Text)
	review.Stats.RuleCandidates = len(ruleEdits)
	for _, d := range ruleDiscarded {
		e.logger.Info("rule match discarded",
			zap.String("rule", d.Edit.RuleName),
			zap.String("reason", d.Reason),
			zap.String("detail", d.Detail))
	}
	review.EditSet.Discarded = append(review.EditSet.Discarded, ruleDiscarded...)

	// Stage 2: recall pass, possibly short-circuited by the similarity
	// cache. A recall failure is fatal for the document.
	recallEdits, fromCache, err := e.recallStage(ctx, ix.Text, ruleEdits, review)
	if err != nil {
		return nil, &StageError{Stage: StageRecall, Err: &RecallError{Err: err}}
	}
	review.Stats.CacheHit = fromCache

	// Stage 3: confidence-gated validation. Cached candidates were
	// validated when they were first produced and skip the stage.
	if !fromCache {
		recallEdits = e.validationStage(ctx, ix.Text, recallEdits, review)
		if ctx.Err() != nil {
			// Cancelled mid-flight: completed calls are discarded, not merged.
			return nil, &StageError{Stage: StageValidation, Err: ctx.Err()}
		}
		// A cache entry asserts its candidates were validated; a degraded
		// run kept unvalidated candidates and must not seed the cache,
		// or later near-duplicates would inherit them as validated.
		if review.Stats.ValidationDegraded == 0 {
			e.storeCache(ctx, ix.Text, recallEdits)
		}
	}
	review.Degraded = review.Stats.ValidationDegraded > 0

	// Stage 4: merge.
	final, discarded := e.merge(ix.Text, ruleEdits, recallEdits)
	review.Stats.MergeDiscarded = len(discarded)
	review.EditSet.Edits = final
	review.EditSet.Discarded = append(review.EditSet.Discarded, discarded...)

	// Defense against merge bugs: the final set must still validate.
	if rej := validate.Set(final, ix.Text); rej != nil {
		return nil, &StageError{Stage: StageValidation, Err: fmt.Errorf("merged edit set failed re-validation: %w", rej)}
	}

	return review, nil
}

// merge combines rule and recall edits into one non-overlapping set using
// the normative tie-break: severity, then source priority, then earliest
// start offset.
func (e *Engine) merge(text string, ruleEdits, recallEdits []model.Edit) ([]model.Edit, []model.Discarded) {
	candidates := make([]model.Edit, 0, len(ruleEdits)+len(recallEdits))
	candidates = append(candidates, ruleEdits...)
	candidates = append(candidates, recallEdits...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Less(candidates[j])
	})

	var accepted []model.Edit
	var discarded []model.Discarded
	for _, c := range candidates {
		if rej := validate.Edit(c, text, accepted); rej != nil {
			e.logger.Info("candidate discarded at merge",
				zap.String("edit", c.String()),
				zap.String("reason", rej.Reason),
				zap.String("detail", rej.Detail))
			discarded = append(discarded, model.Discarded{Edit: c, Reason: rej.Reason, Detail: rej.Detail})
			continue
		}
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted, discarded
}

func (e *Engine) storeCache(ctx context.Context, text string, edits []model.Edit) {
	if e.cache == nil {
		return
	}
	key := common.Fingerprint(text)
	if err := e.cache.Put(ctx, key, edits); err != nil {
		e.logger.Warn("similarity cache write failed", zap.Error(err))
	}
}
