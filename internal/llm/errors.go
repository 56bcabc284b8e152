package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies a reasoning-call failure. Transient kinds are
// eligible for retry with backoff; the rest fail immediately.
type FailureKind int

const (
	FailUnknown FailureKind = iota
	FailRateLimited
	FailTimeout
	FailInvalidCredentials
	FailMalformedResponse
)

func (k FailureKind) String() string {
	switch k {
	case FailRateLimited:
		return "rate_limited"
	case FailTimeout:
		return "timeout"
	case FailInvalidCredentials:
		return "invalid_credentials"
	case FailMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

type CallError struct {
	Kind FailureKind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call failed (%s): %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *CallError) Transient() bool {
	return e.Kind == FailRateLimited || e.Kind == FailTimeout
}

// WrapError attaches a FailureKind to a raw provider error. Providers call
// this so the pipeline's retry logic never has to know SDK error shapes.
func WrapError(kind FailureKind, err error) *CallError {
	return &CallError{Kind: kind, Err: err}
}

// ClassifyTransport maps generic transport failures. Provider clients run
// this last, after their SDK-specific checks found nothing.
func ClassifyTransport(err error) *CallError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Kind: FailTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CallError{Kind: FailTimeout, Err: err}
	}
	return &CallError{Kind: FailUnknown, Err: err}
}

// AsCallError extracts a CallError from an error chain, defaulting to
// FailUnknown so callers always get a classification.
func AsCallError(err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	return &CallError{Kind: FailUnknown, Err: err}
}
