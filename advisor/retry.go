package advisor

import (
	"context"
	"log/slog"
	"time"
)

// withRetry calls fn until it succeeds, returns a non-retryable error or
// maxRetries retries are spent. The wait starts at baseBackoff and doubles.
func withRetry(ctx context.Context, maxRetries int, baseBackoff time.Duration, logger *slog.Logger, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return lastErr
		}

		if attempt < maxRetries {
			wait := baseBackoff * (1 << uint(attempt))
			logger.WarnContext(ctx, "advisor: retrying call",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}
