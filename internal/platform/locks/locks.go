package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/contentlib/internal/platform/errs"
)

// Locker hands out named, TTL-bounded leases. A lease whose holder dies
// expires on its own.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error)
	Held(ctx context.Context, name string) (bool, error)
	release(ctx context.Context, name, token string) error
	refresh(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
}

type Lease struct {
	Name   string
	Token  string
	locker Locker
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.locker == nil {
		return nil
	}
	return l.locker.release(ctx, l.Name, l.Token)
}

// Refresh extends the lease; false means it was already lost.
func (l *Lease) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	if l == nil || l.locker == nil {
		return false, nil
	}
	return l.locker.refresh(ctx, l.Name, l.Token, ttl)
}

func newToken() string { return uuid.NewString() }

// Acquire polls TryAcquire until it succeeds or wait elapses. A zero wait
// makes a single attempt.
func Acquire(ctx context.Context, l Locker, name string, ttl, wait time.Duration) (*Lease, error) {
	deadline := time.Now().Add(wait)
	interval := 50 * time.Millisecond
	for {
		lease, ok, err := l.TryAcquire(ctx, name, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return lease, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("lock %q: %w", name, errs.ErrLockNotAcquired)
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %q: %w", name, ctx.Err())
		case <-timer.C:
		}
		if interval < 500*time.Millisecond {
			interval *= 2
		}
	}
}
