package pipeline

import "fmt"

// Stage tags identify where a document's run failed. They are part of the
// failure contract with the job layer: a failed document always reports a
// specific stage and cause, never a generic processing error.
type Stage string

const (
	StageStructure  Stage = "structure"
	StageRule       Stage = "rule"
	StageRecall     Stage = "recall"
	StageValidation Stage = "validation"
	StageEmit       Stage = "emit"
)

// StageError is the structured failure returned to the job layer.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage '%s' failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RecallError is fatal for the document. Silently treating a failed recall
// pass as zero findings would report dirty documents as clean, so the
// pipeline aborts and produces no partial edit set.
type RecallError struct {
	Err error
}

func (e *RecallError) Error() string {
	return fmt.Sprintf("recall pass failed: %v", e.Err)
}

func (e *RecallError) Unwrap() error { return e.Err }
