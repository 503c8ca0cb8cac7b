package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/contentlib/internal/platform/envutil"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

const DefaultChannel = "contentlib:analytics"

type RedisPublisher struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

func NewRedisPublisher(log *logger.Logger, rdb goredis.UniversalClient, channel string) (*RedisPublisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		log:     log.With("service", "RedisAnalyticsPublisher"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// NewRedisPublisherFromEnv dials REDIS_ADDR and publishes on
// REDIS_ANALYTICS_CHANNEL.
func NewRedisPublisherFromEnv(log *logger.Logger) (*RedisPublisher, error) {
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisher(log, rdb, envutil.String("REDIS_ANALYTICS_CHANNEL", DefaultChannel))
}

func (p *RedisPublisher) Publish(ctx context.Context, name string, payload map[string]any) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis analytics publisher not initialized")
	}
	raw, err := json.Marshal(Event{Name: name, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Subscribe forwards events from the channel to onEvent until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis analytics publisher not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					p.log.Warn("bad analytics payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
