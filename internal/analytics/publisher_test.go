package analytics

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/contentlib/internal/platform/logger"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, string, map[string]any) error { return f.err }

func TestFanoutPublishesToAllAndJoinsErrors(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("boom")
	pub := Fanout(a, nil, failingPublisher{err: boom}, b)

	err := pub.Publish(context.Background(), EventContentAssigned, map[string]any{"location": "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("fanout error: want=%v got=%v", boom, err)
	}
	for i, r := range []*Recorder{a, b} {
		if got := len(r.Named(EventContentAssigned)); got != 1 {
			t.Fatalf("recorder %d: want=1 got=%d", i, got)
		}
	}
}

func TestRecorderKeepsOrder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	_ = r.Publish(ctx, EventContentRemoved, nil)
	_ = r.Publish(ctx, EventContentAssigned, nil)
	ev := r.Events()
	if len(ev) != 2 || ev[0].Name != EventContentRemoved || ev[1].Name != EventContentAssigned {
		t.Fatalf("order: got=%+v", ev)
	}
	r.Reset()
	if len(r.Events()) != 0 {
		t.Fatalf("reset: want empty")
	}
}

func TestLogPublisherNeverFails(t *testing.T) {
	if err := NewLogPublisher(nil).Publish(context.Background(), EventContentAssigned, map[string]any{"a": 1}); err != nil {
		t.Fatalf("log publisher: %v", err)
	}
}

func TestRedisPublisherRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	pub, err := NewRedisPublisher(logger.Nop(), rdb, "contentlib:analytics:test")
	if err != nil {
		t.Fatalf("NewRedisPublisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan Event, 1)
	if err := pub.Subscribe(ctx, func(e Event) { got <- e }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := pub.Publish(ctx, EventContentRemoved, map[string]any{"reason": "invalid"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case e := <-got:
		if e.Name != EventContentRemoved || e.Payload["reason"] != "invalid" {
			t.Fatalf("event: got=%+v", e)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for event")
	}
}
