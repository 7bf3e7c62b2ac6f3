package engine

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when the repository lock cannot be acquired
// within the configured bound.
var ErrLockTimeout = errors.New("timed out waiting for repository lock")

// Lock serializes sync cycles for one repository. It is a capacity-1
// channel, so acquisition can wait with a bound instead of spinning. One
// Lock exists per Engine; separate repositories never contend.
type Lock struct {
	ch chan struct{}
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held, the timeout elapses, or ctx is
// canceled. A zero timeout means try once without waiting.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}

	if timeout <= 0 {
		return ErrLockTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to take the lock without waiting.
func (l *Lock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Calling Release without holding the lock panics;
// that is always a bug in the caller.
func (l *Lock) Release() {
	select {
	case <-l.ch:
	default:
		panic("engine: Release of unheld lock")
	}
}

// Held reports whether the lock is currently taken.
func (l *Lock) Held() bool {
	return len(l.ch) == 1
}
