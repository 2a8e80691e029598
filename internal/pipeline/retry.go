package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// withRetries runs fn up to maxStageRetries times with exponential backoff
// between attempts. Context cancellation aborts the wait immediately, and
// a malformed collaborator response fails without further attempts.
func withRetries(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	delay := initialRetryDelay
	for attempt := 0; attempt < maxStageRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= retryMultiplier
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, errMalformedResponse) {
			return lastErr
		}

		if ctx.Err() != nil {
			return lastErr
		}
	}

	return fmt.Errorf("after %d attempts: %w", maxStageRetries, lastErr)
}
