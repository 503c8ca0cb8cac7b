// Package analytics carries learner-facing tracking events out of the
// request path. Callers only see Publisher; the transport is chosen at
// startup.
package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/contentlib/internal/platform/logger"
)

const (
	EventContentAssigned = "edx.librarycontentblock.content.assigned"
	EventContentRemoved  = "edx.librarycontentblock.content.removed"
)

type Publisher interface {
	Publish(ctx context.Context, name string, payload map[string]any) error
}

// Event is the envelope written to transports that need one.
type Event struct {
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

type logPublisher struct {
	log *logger.Logger
}

// NewLogPublisher writes every event to the structured log.
func NewLogPublisher(log *logger.Logger) Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &logPublisher{log: log.With("service", "AnalyticsLog")}
}

func (p *logPublisher) Publish(ctx context.Context, name string, payload map[string]any) error {
	p.log.Info("analytics event", "event", name, "payload", payload)
	return nil
}

type fanout []Publisher

// Fanout publishes to every non-nil publisher and joins their errors.
func Fanout(pubs ...Publisher) Publisher {
	out := make(fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f fanout) Publish(ctx context.Context, name string, payload map[string]any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, name string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Timestamp: time.Now(), Payload: payload})
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns recorded events with the given name, in publish order.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
