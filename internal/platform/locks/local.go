package locks

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	token   string
	expires time.Time
}

// LocalLocker is an in-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: map[string]localEntry{}, now: time.Now}
}

func (l *LocalLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.entries[name]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	token := newToken()
	l.entries[name] = localEntry{token: token, expires: now.Add(ttl)}
	return &Lease{Name: name, Token: token, locker: l}, true, nil
}

func (l *LocalLocker) Held(ctx context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	return ok && l.now().Before(e.expires), nil
}

func (l *LocalLocker) release(ctx context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[name]; ok && e.token == token {
		delete(l.entries, name)
	}
	return nil
}

func (l *LocalLocker) refresh(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok || e.token != token || !l.now().Before(e.expires) {
		return false, nil
	}
	e.expires = l.now().Add(ttl)
	l.entries[name] = e
	return true, nil
}
