package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and token-checked release, so
// a holder can never free a lease that expired and was taken by someone else.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "contentlib:lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) key(name string) string { return l.prefix + name }

func (l *RedisLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	token := newToken()
	ok, err := l.rdb.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %q: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{Name: name, Token: token, locker: l}, true, nil
}

func (l *RedisLocker) Held(ctx context.Context, name string) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key(name)).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock exists %q: %w", name, err)
	}
	return n > 0, nil
}

func (l *RedisLocker) release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key(name)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis unlock %q: %w", name, err)
	}
	return nil
}

func (l *RedisLocker) refresh(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key(name)}, token, ttl.Milliseconds()).Int64()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis refresh %q: %w", name, err)
	}
	return n == 1, nil
}
