package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds retries of transient object-store failures.
// Attempt n sleeps BaseDelay*n before the next try (linear backoff).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// FetchWithRetry fetches key, retrying transient failures up to the attempt
// cap. A not-found error bubbles up immediately.
func FetchWithRetry(ctx context.Context, store ObjectStore, key string, policy RetryPolicy, logger *slog.Logger) ([]byte, error) {
	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		data, err := store.Fetch(ctx, key)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
		last = err
		logger.Warn("object store fetch failed, retrying",
			"key", key, "attempt", attempt, "maxAttempts", policy.MaxAttempts, "error", err)

		if attempt < policy.MaxAttempts {
			if err := sleep(ctx, policy.BaseDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("fetch %q failed after %d attempts: %w", key, policy.MaxAttempts, last)
}

// PutWithRetry stores data under key with the same bounded-retry policy
// as FetchWithRetry.
func PutWithRetry(ctx context.Context, store ObjectStore, key string, data []byte, contentType string, policy RetryPolicy, logger *slog.Logger) error {
	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := store.Put(ctx, key, data, contentType)
		if err == nil {
			return nil
		}
		last = err
		logger.Warn("object store put failed, retrying",
			"key", key, "attempt", attempt, "maxAttempts", policy.MaxAttempts, "error", err)

		if attempt < policy.MaxAttempts {
			if err := sleep(ctx, policy.BaseDelay*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("put %q failed after %d attempts: %w", key, policy.MaxAttempts, last)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
