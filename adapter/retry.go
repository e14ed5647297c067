package adapter

import (
	"context"
	"fmt"
	"time"
)

// BackoffBase is the delay before the first retry. Each later retry doubles it.
const BackoffBase = 500 * time.Millisecond

// Backoff returns the delay before retry i (1-based).
func Backoff(i int) time.Duration {
	if i < 1 {
		return 0
	}
	return time.Duration(1<<uint(i-1)) * BackoffBase
}

// Retry calls op up to 1+retries times with exponential backoff between
// attempts. permanent, if non-nil, stops retrying for errors it accepts.
// name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, op func(ctx context.Context) error, permanent func(error) bool) error {
	attempts := 1 + retries
	var lastErr error

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
