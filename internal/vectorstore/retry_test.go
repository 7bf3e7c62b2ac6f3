package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyWriter fails the first failures calls to each operation.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	upserts  int
	deletes  int
}

func (f *flakyWriter) Upsert(ctx context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upserts <= f.failures {
		return errors.New("disk on fire")
	}
	return nil
}

func (f *flakyWriter) Delete(ctx context.Context, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deletes <= f.failures {
		return errors.New("disk on fire")
	}
	return nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestRetryingWriterRecovers(t *testing.T) {
	inner := &flakyWriter{failures: 2}
	w := NewRetryingWriter(inner, fastRetry(3), nil)

	err := w.Upsert(context.Background(), []Entry{{ChunkID: "c1"}})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.upserts)
}

func TestRetryingWriterExhaustsToErrUnavailable(t *testing.T) {
	inner := &flakyWriter{failures: 100}
	w := NewRetryingWriter(inner, fastRetry(3), nil)

	err := w.Delete(context.Background(), []string{"c1"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, inner.deletes)
}

func TestRetryingWriterHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyWriter{failures: 100}
	w := NewRetryingWriter(inner, fastRetry(5), nil)

	err := w.Upsert(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.upserts)
}
