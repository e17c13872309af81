package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/vaamx/modelmux/types"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	maxBackoffDelay   = 30 * time.Second
)

// backoffDelay computes the sleep before retry attempt n (1-based). A
// provider retry-after hint replaces the exponential term; either way the
// result is jittered by a uniform [0.8, 1.2] factor and capped at 30s.
func backoffDelay(attempt int, base time.Duration, retryAfter time.Duration) time.Duration {
	d := base << (attempt - 1)
	if retryAfter > 0 {
		d = retryAfter
	}
	jittered := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if jittered > maxBackoffDelay {
		return maxBackoffDelay
	}
	return jittered
}

// withRetry runs fn under the retry policy: retryable failures sleep and
// retry until the budget is spent, non-retryable failures surface at once,
// and cancellation aborts the sleep. attempts receives the total number of
// fn invocations for the terminal log line.
func (s *Service) withRetry(ctx context.Context, maxRetries int, base time.Duration, requestID string, fn func() error) (attempts int, err error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		attempts++
		err = fn()
		if err == nil {
			return attempts, nil
		}

		e := types.AsError(err)
		if !e.Retryable || attempt >= maxRetries {
			if e.Retryable {
				return attempts, types.NewError(types.ErrRetriesExhausted,
					"retry budget exhausted").
					WithProvider(e.Provider).
					WithModel(e.Model).
					WithCause(e)
			}
			return attempts, e
		}

		delay := backoffDelay(attempt+1, base, e.RetryAfter)
		s.metrics.RecordRetry(ctx, e.Code)
		s.logger.Warn("retrying after failure",
			zap.String("request_id", requestID),
			zap.String("code", string(e.Code)),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("delay", delay),
			zap.Error(e))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, types.NewError(types.ErrTimeout, "canceled during retry backoff").
				WithRetryable(false).
				WithCause(ctx.Err())
		case <-timer.C:
		}
	}
}
