package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/config"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/docindex"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/rules"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/llm"
)

const docText = "This Agreement shall remain in effect in perpetuity. " +
	"The Receiving Party shall not directly solicit employees of the Disclosing Party."

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			ValidationThreshold: 85,
			SampleFraction:      0, // no quality-control sampling in tests
			ValidationWorkers:   2,
			MaxRetries:          1,
			RetryBaseMillis:     1,
			CallTimeoutSeconds:  5,
		},
	}
}

func testRules(t *testing.T) *rules.Set {
	t.Helper()
	set, err := rules.Compile([]rules.RuleSpec{{
		Name:        "perpetual-term",
		Pattern:     `in\s+perpetuity`,
		Action:      "replace",
		Replacement: "for eighteen (18) months",
		Severity:    "critical",
		Category:    "term",
	}})
	require.NoError(t, err)
	return set
}

func testEngine(t *testing.T, mock *mockLLM, cache RecallCache) *Engine {
	t.Helper()
	return New(mock, testRules(t), cache, testConfig(), zap.NewNop())
}

func testIndex() *docindex.Index {
	return &docindex.Index{Text: docText}
}

func recallJSON(t *testing.T, cands ...rawCandidate) string {
	t.Helper()
	data, err := json.Marshal(recallResponse{Candidates: cands})
	require.NoError(t, err)
	return string(data)
}

func verdictJSON(t *testing.T, v adjudication) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// solicitCandidate is a well-formed recall candidate anchored on the
// non-solicitation phrase in docText.
func solicitCandidate(confidence int) rawCandidate {
	anchor := "directly solicit employees"
	start := strings.Index(docText, anchor)
	return rawCandidate{
		Start:      start,
		End:        start + len(anchor),
		Original:   anchor,
		Category:   "non-solicitation",
		Severity:   "high",
		Confidence: confidence,
		Rationale:  "solicitation restrictions should be mutual",
	}
}

func TestAnalyzeMergesRuleAndRecallEdits(t *testing.T) {
	mock := &mockLLM{Responses: []string{recallJSON(t, solicitCandidate(90))}}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	require.NoError(t, err)

	assert.Equal(t, 1, review.Stats.RuleCandidates)
	assert.Equal(t, 1, review.Stats.RecallCandidates)
	assert.False(t, review.Stats.CacheHit)
	assert.False(t, review.Degraded)
	assert.Equal(t, 1, mock.CallCount())

	require.Len(t, review.EditSet.Edits, 2)
	assert.Equal(t, model.SourceRule, review.EditSet.Edits[0].Source)
	assert.Equal(t, "in perpetuity", review.EditSet.Edits[0].Original)
	assert.Equal(t, model.SourceRecallPass, review.EditSet.Edits[1].Source)
	// Empty replacement means deletion.
	assert.Equal(t, model.KindDelete, review.EditSet.Edits[1].Kind)
	assert.Less(t, review.EditSet.Edits[0].Start, review.EditSet.Edits[1].Start)
}

func TestAnalyzeDropsMalformedCandidates(t *testing.T) {
	good := solicitCandidate(90)
	badSeverity := solicitCandidate(90)
	badSeverity.Severity = "urgent"
	badAnchor := solicitCandidate(90)
	badAnchor.Original = "completely different text"

	mock := &mockLLM{Responses: []string{recallJSON(t, good, badSeverity, badAnchor)}}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	require.NoError(t, err)

	assert.Equal(t, 2, review.Stats.MalformedDropped)
	assert.Equal(t, 1, review.Stats.RecallCandidates)

	var reasons []string
	for _, d := range review.EditSet.Discarded {
		reasons = append(reasons, d.Reason)
	}
	assert.Contains(t, reasons, "malformed_candidate")
}

func TestAnalyzeRecallFailureIsFatal(t *testing.T) {
	mock := &mockLLM{Err: llm.WrapError(llm.FailRateLimited, errors.New("429 too many requests"))}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	assert.Nil(t, review)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRecall, se.Stage)
	var re *RecallError
	assert.ErrorAs(t, err, &re)

	// One initial attempt plus MaxRetries for a transient failure.
	assert.Equal(t, 2, mock.CallCount())
}

func TestAnalyzeNonTransientFailureDoesNotRetry(t *testing.T) {
	mock := &mockLLM{Err: llm.WrapError(llm.FailInvalidCredentials, errors.New("401"))}
	eng := testEngine(t, mock, nil)

	_, err := eng.Analyze(context.Background(), testIndex())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRecall, se.Stage)
	assert.Equal(t, 1, mock.CallCount())
}

func TestAnalyzeUnparseableRecallResponseIsFatal(t *testing.T) {
	mock := &mockLLM{Responses: []string{"I am unable to review this document."}}
	eng := testEngine(t, mock, nil)

	_, err := eng.Analyze(context.Background(), testIndex())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRecall, se.Stage)
}

func TestValidationConfirmPromotesCandidate(t *testing.T) {
	mock := &mockLLM{Responses: []string{
		recallJSON(t, solicitCandidate(50)),
		verdictJSON(t, adjudication{Verdict: "confirm", Confidence: 95, Rationale: "confirmed against checklist"}),
	}}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	require.NoError(t, err)

	assert.Equal(t, 1, review.Stats.ValidationSelected)
	assert.Equal(t, 1, review.Stats.ValidationCompleted)
	assert.Equal(t, 0, review.Stats.ValidationDegraded)
	assert.InDelta(t, 1.0, review.Stats.ValidationCoverage(), 0.001)
	assert.False(t, review.Degraded)

	require.Len(t, review.EditSet.Edits, 2)
	validated := review.EditSet.Edits[1]
	assert.Equal(t, model.SourceValidationPass, validated.Source)
	assert.Equal(t, 95, validated.Confidence)
	assert.Equal(t, "confirmed against checklist", validated.Rationale)
}

func TestValidationRejectDropsCandidate(t *testing.T) {
	mock := &mockLLM{Responses: []string{
		recallJSON(t, solicitCandidate(50)),
		verdictJSON(t, adjudication{Verdict: "reject", Rationale: "not a policy violation"}),
	}}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	require.NoError(t, err)

	assert.Equal(t, 1, review.Stats.RejectedByValidator)
	require.Len(t, review.EditSet.Edits, 1)
	assert.Equal(t, model.SourceRule, review.EditSet.Edits[0].Source)

	found := false
	for _, d := range review.EditSet.Discarded {
		if d.Reason == "rejected_by_validation" {
			found = true
			assert.Equal(t, "not a policy violation", d.Detail)
		}
	}
	assert.True(t, found)
}

func TestValidationModifyReanchorsCandidate(t *testing.T) {
	modified := "solicit employees of the Disclosing Party"
	mock := &mockLLM{Responses: []string{
		recallJSON(t, solicitCandidate(50)),
		verdictJSON(t, adjudication{
			Verdict:     "modify",
			Original:    modified,
			Replacement: "solicit or hire employees of either party",
			Confidence:  90,
			Rationale:   "narrowed to the operative phrase",
		}),
	}}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	require.NoError(t, err)

	assert.Equal(t, 1, review.Stats.Modified)
	require.Len(t, review.EditSet.Edits, 2)

	e := review.EditSet.Edits[1]
	assert.Equal(t, model.SourceValidationPass, e.Source)
	assert.Equal(t, model.KindReplace, e.Kind)
	assert.Equal(t, strings.Index(docText, modified), e.Start)
	assert.Equal(t, modified, e.Original)
	assert.Equal(t, "solicit or hire employees of either party", e.Replacement)
}

// A failed adjudication call keeps the unvalidated candidate and marks the
// run degraded instead of failing the document.
func TestValidationFailureDegrades(t *testing.T) {
	mock := &mockLLM{Responses: []string{recallJSON(t, solicitCandidate(50))}}
	eng := testEngine(t, mock, nil)

	review, err := eng.Analyze(context.Background(), testIndex())
	require.NoError(t, err)

	assert.True(t, review.Degraded)
	assert.Equal(t, 1, review.Stats.ValidationSelected)
	assert.Equal(t, 0, review.Stats.ValidationCompleted)
	assert.Equal(t, 1, review.Stats.ValidationDegraded)
	assert.InDelta(t, 0.0, review.Stats.ValidationCoverage(), 0.001)

	require.Len(t, review.EditSet.Edits, 2)
	kept := review.EditSet.Edits[1]
	assert.Equal(t, model.SourceRecallPass, kept.Source)
	assert.Equal(t, 50, kept.Confidence)
}

func TestAnalyzeCancelledContextDiscardsResults(t *testing.T) {
	mock := &mockLLM{Responses: []string{
		recallJSON(t, solicitCandidate(50)),
		verdictJSON(t, adjudication{Verdict: "confirm"}),
	}}
	eng := testEngine(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	review, err := eng.Analyze(ctx, testIndex())
	assert.Nil(t, review)
	var se *StageError
	require.ErrorAs(t, err, &se)
}

// Cancellation never reaches a call already in flight: the call finishes
// under its own timeout and only the results are discarded.
func TestCancelledContextLetsInFlightCallsComplete(t *testing.T) {
	mock := &ctxAwareLLM{mockLLM{Responses: []string{
		recallJSON(t, solicitCandidate(50)),
		verdictJSON(t, adjudication{Verdict: "confirm"}),
	}}}
	eng := New(mock, testRules(t), nil, testConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	review, err := eng.Analyze(ctx, testIndex())
	assert.Nil(t, review)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageValidation, se.Stage)

	// Both queued calls were served despite the cancelled job context.
	assert.Equal(t, 2, mock.CallCount())
}

// The adjudication context window is widened to rune boundaries so a
// multi-byte character at either edge is never split.
func TestAdjudicationWindowRespectsRuneBoundaries(t *testing.T) {
	anchor := "directly solicit employees"
	text := "€" + strings.Repeat("a", 598) + anchor + strings.Repeat("b", 598) + "€ and further terms."
	start := strings.Index(text, anchor)
	cand := model.Edit{
		Start: start, End: start + len(anchor), Original: anchor,
		Kind: model.KindDelete, Confidence: 50,
		Source: model.SourceRecallPass, Severity: model.SeverityHigh,
	}

	mock := &mockLLM{Responses: []string{verdictJSON(t, adjudication{Verdict: "confirm"})}}
	eng := testEngine(t, mock, nil)

	_, keep, err := eng.adjudicate(context.Background(), text, cand)
	require.NoError(t, err)
	assert.True(t, keep)

	require.Len(t, mock.Prompts, 1)
	assert.True(t, utf8.ValidString(mock.Prompts[0]))
	assert.Contains(t, mock.Prompts[0], "€"+strings.Repeat("a", 598))
	assert.Contains(t, mock.Prompts[0], strings.Repeat("b", 598)+"€")
}

func TestSelectForValidationThresholdAndSampling(t *testing.T) {
	eng := testEngine(t, &mockLLM{}, nil)

	low := model.Edit{Start: 10, End: 20, Original: "x", Confidence: 85}
	high := model.Edit{Start: 10, End: 20, Original: "x", Confidence: 86}

	assert.True(t, eng.selectForValidation(low))
	assert.False(t, eng.selectForValidation(high)) // SampleFraction 0

	eng.cfg.SampleFraction = 1.0
	assert.True(t, eng.selectForValidation(high))

	// Sampling is a deterministic function of the candidate.
	eng.cfg.SampleFraction = 0.5
	first := eng.selectForValidation(high)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, eng.selectForValidation(high))
	}
}

func TestMergeSeverityOutranksPosition(t *testing.T) {
	text := "0123456789abcdefghij0123456789"
	critical := model.Edit{
		Start: 10, End: 20, Original: text[10:20], Kind: model.KindDelete,
		Confidence: 80, Source: model.SourceRecallPass, Severity: model.SeverityCritical,
	}
	moderate := model.Edit{
		Start: 15, End: 25, Original: text[15:25], Kind: model.KindDelete,
		Confidence: 80, Source: model.SourceRecallPass, Severity: model.SeverityModerate,
	}
	eng := testEngine(t, &mockLLM{}, nil)

	// The moderate edit starts earlier; severity still wins.
	accepted, discarded := eng.merge(text, nil, []model.Edit{moderate, critical})
	require.Len(t, accepted, 1)
	assert.Equal(t, model.SeverityCritical, accepted[0].Severity)
	require.Len(t, discarded, 1)
	assert.Equal(t, "overlap", discarded[0].Reason)
}

func TestMergeSourcePriorityBreaksSeverityTies(t *testing.T) {
	text := "0123456789abcdefghij0123456789"
	ruleEdit := model.Edit{
		Start: 15, End: 25, Original: text[15:25], Kind: model.KindDelete,
		Confidence: 100, Source: model.SourceRule, Severity: model.SeverityHigh,
	}
	recallEdit := model.Edit{
		Start: 10, End: 20, Original: text[10:20], Kind: model.KindDelete,
		Confidence: 80, Source: model.SourceRecallPass, Severity: model.SeverityHigh,
	}
	eng := testEngine(t, &mockLLM{}, nil)

	accepted, _ := eng.merge(text, []model.Edit{ruleEdit}, []model.Edit{recallEdit})
	require.Len(t, accepted, 1)
	assert.Equal(t, model.SourceRule, accepted[0].Source)
}

func TestMergeEqualRankEarlierStartWins(t *testing.T) {
	text := "0123456789abcdefghij0123456789"
	early := model.Edit{
		Start: 10, End: 20, Original: text[10:20], Kind: model.KindDelete,
		Confidence: 80, Source: model.SourceRecallPass, Severity: model.SeverityHigh,
	}
	late := model.Edit{
		Start: 15, End: 25, Original: text[15:25], Kind: model.KindDelete,
		Confidence: 80, Source: model.SourceRecallPass, Severity: model.SeverityHigh,
	}
	eng := testEngine(t, &mockLLM{}, nil)

	accepted, _ := eng.merge(text, nil, []model.Edit{late, early})
	require.Len(t, accepted, 1)
	assert.Equal(t, 10, accepted[0].Start)
}

func TestMergeOutputSortedByStart(t *testing.T) {
	text := "0123456789abcdefghij0123456789"
	first := model.Edit{
		Start: 20, End: 25, Original: text[20:25], Kind: model.KindDelete,
		Confidence: 100, Source: model.SourceRule, Severity: model.SeverityCritical,
	}
	second := model.Edit{
		Start: 0, End: 5, Original: text[0:5], Kind: model.KindDelete,
		Confidence: 80, Source: model.SourceRecallPass, Severity: model.SeverityLow,
	}
	eng := testEngine(t, &mockLLM{}, nil)

	accepted, discarded := eng.merge(text, []model.Edit{first}, []model.Edit{second})
	assert.Empty(t, discarded)
	require.Len(t, accepted, 2)
	assert.Equal(t, 0, accepted[0].Start)
	assert.Equal(t, 20, accepted[1].Start)
}
