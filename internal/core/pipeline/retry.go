package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/llm"
)

// callWithRetry issues one reasoning call with bounded retry. Transient
// failures (rate limiting, timeouts) back off exponentially; non-transient
// failures (bad credentials, malformed requests) fail immediately.
func (e *Engine) callWithRetry(ctx context.Context, prompt string) (string, error) {
	base := time.Duration(e.cfg.RetryBaseMillis) * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := base << (attempt - 1)
			e.logger.Warn("retrying reasoning call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		// An in-flight call runs to completion under its own timeout even
		// when the job is cancelled; cancellation is honored between
		// attempts, and the caller discards the results.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(e.cfg.CallTimeoutSeconds)*time.Second)
		resp, err := e.llm.Generate(callCtx, prompt)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		ce := llm.AsCallError(err)
		if !ce.Transient() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}
