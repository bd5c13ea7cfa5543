package analytics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/example/dealshop/internal/platform/kafka"
)

// Sink receives product analytics events. Emission is fire-and-forget:
// implementations log failures and must never fail or block the caller
// beyond a bounded publish timeout.
type Sink interface {
	LogEvent(ctx context.Context, name string, props map[string]any)
}

// Event is the wire form published to the analytics topic.
type Event struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

const publishTimeout = 2 * time.Second

// KafkaSink publishes events to the analytics topic keyed by event name.
type KafkaSink struct {
	producer *kafka.Producer
}

func NewKafkaSink(producer *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) LogEvent(ctx context.Context, name string, props map[string]any) {
	event := Event{
		Name:       name,
		Properties: props,
		Timestamp:  time.Now(),
	}

	// Detach from the caller's deadline: a slow broker must not stall the
	// user action that emitted the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.producer.Publish(pubCtx, name, event); err != nil {
		log.Printf("[Analytics] Failed to publish %s event: %v", name, err)
	}
}

// Nop discards all events.
type Nop struct{}

func (Nop) LogEvent(ctx context.Context, name string, props map[string]any) {}

// Capture records events in memory for tests.
type Capture struct {
	mu     sync.Mutex
	Events []Event
}

func (c *Capture) LogEvent(ctx context.Context, name string, props map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, Event{Name: name, Properties: props, Timestamp: time.Now()})
}

// Named returns the captured events with the given name.
func (c *Capture) Named(name string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
