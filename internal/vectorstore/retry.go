package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures backoff for index writes.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns the write retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryingWriter wraps a Writer with bounded exponential backoff. Once
// attempts are exhausted the error wraps ErrUnavailable so the engine can
// classify the failure.
type RetryingWriter struct {
	inner  Writer
	config RetryConfig
	logger *zap.Logger
}

// NewRetryingWriter wraps inner with the given retry policy.
func NewRetryingWriter(inner Writer, config RetryConfig, logger *zap.Logger) *RetryingWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config = DefaultRetryConfig()
	}
	return &RetryingWriter{inner: inner, config: config, logger: logger}
}

func (w *RetryingWriter) Upsert(ctx context.Context, entries []Entry) error {
	return w.retry(ctx, "upsert", func() error {
		return w.inner.Upsert(ctx, entries)
	})
}

func (w *RetryingWriter) Delete(ctx context.Context, chunkIDs []string) error {
	return w.retry(ctx, "delete", func() error {
		return w.inner.Delete(ctx, chunkIDs)
	})
}

func (w *RetryingWriter) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := w.config.BaseDelay

	for attempt := 0; attempt < w.config.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < w.config.MaxAttempts-1 {
			w.logger.Warn("index write failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * w.config.Multiplier)
				if backoff > w.config.MaxDelay {
					backoff = w.config.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnavailable, op, w.config.MaxAttempts, lastErr)
}
