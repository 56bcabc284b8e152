// Package core wires the redlining engine: document indexing, the analysis
// pipeline, and revision emission.
package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/config"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/docindex"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/emit"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/pipeline"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/rules"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/docx"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/llm"
)

// Result is one document's complete review outcome: the finalized edit set
// with audit trail, the emission report, and the revised document bytes.
type Result struct {
	Review     *pipeline.Review `json:"review"`
	EmitReport *emit.Report     `json:"emit_report"`
	Revised    []byte           `json:"-"`

	// ValidationCoverage distinguishes degraded runs from fully validated
	// ones; it is reported alongside results, never hidden.
	ValidationCoverage float64 `json:"validation_coverage"`
}

// Redliner reviews documents against a policy ruleset. It holds no
// per-document state; each call builds its own index and context.
type Redliner struct {
	engine  *pipeline.Engine
	emitter *emit.Emitter
	logger  *zap.Logger
}

func NewRedliner(client llm.LLMClient, ruleSet *rules.Set, cache pipeline.RecallCache, cfg *config.Config, logger *zap.Logger) *Redliner {
	return &Redliner{
		engine:  pipeline.New(client, ruleSet, cache, cfg, logger),
		emitter: emit.New(cfg.Emit.Author, logger),
		logger:  logger,
	}
}

// ReviewDocument runs the full pass: index, analyze, emit. The source
// bytes are never modified; the revised document is a fresh serialization.
func (r *Redliner) ReviewDocument(ctx context.Context, docBytes []byte) (*Result, error) {
	doc, err := docx.OpenBytes(docBytes)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageStructure, Err: err}
	}

	ix, err := docindex.Build(doc)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageStructure, Err: err}
	}

	review, err := r.engine.Analyze(ctx, ix)
	if err != nil {
		return nil, err
	}

	report, err := r.emitter.Apply(doc, ix, review.EditSet.Edits)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageEmit, Err: err}
	}

	revised, err := doc.Bytes()
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageEmit, Err: fmt.Errorf("failed to serialize revised document: %w", err)}
	}

	r.logger.Info("document reviewed",
		zap.Int("edits", len(review.EditSet.Edits)),
		zap.Int("applied", len(report.Applied)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Bool("degraded", review.Degraded),
		zap.Float64("validation_coverage", review.Stats.ValidationCoverage()))

	return &Result{
		Review:             review,
		EmitReport:         report,
		Revised:            revised,
		ValidationCoverage: review.Stats.ValidationCoverage(),
	}, nil
}

// Export re-emits the document with only the reviewer-accepted subset of
// edits. It re-indexes the pristine source so revision ids and positions
// are computed fresh.
func (r *Redliner) Export(ctx context.Context, docBytes []byte, editSet model.EditSet, acceptedIDs []string) (*Result, error) {
	accepted := make(map[string]bool, len(acceptedIDs))
	for _, id := range acceptedIDs {
		accepted[id] = true
	}
	var subset []model.Edit
	for _, e := range editSet.Edits {
		if accepted[e.ID] {
			subset = append(subset, e)
		}
	}

	doc, err := docx.OpenBytes(docBytes)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageStructure, Err: err}
	}
	ix, err := docindex.Build(doc)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageStructure, Err: err}
	}

	report, err := r.emitter.Apply(doc, ix, subset)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageEmit, Err: err}
	}
	revised, err := doc.Bytes()
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageEmit, Err: err}
	}

	return &Result{
		Review:     &pipeline.Review{EditSet: model.EditSet{Edits: subset}},
		EmitReport: report,
		Revised:    revised,
	}, nil
}
