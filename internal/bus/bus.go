// Package bus publishes run events to in-process subscribers or Kafka.
package bus

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ricesearch/rice-letor/internal/pkg/hash"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Publisher sends events to a topic.
type Publisher interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Close flushes and releases resources.
	Close() error
}

// Bus is a Publisher whose events can also be consumed in process.
type Bus interface {
	Publisher

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "letor.result").
	Type string `json:"type"`

	// Source is the run that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix ms).
	Timestamp int64 `json:"timestamp"`

	// Key partitions events; results use the query id.
	Key string `json:"key,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Event types.
const (
	TypeResult     = "letor.result"
	TypeRunSummary = "letor.run.summary"
)

var eventSeq atomic.Uint64

// NewEvent creates an event with a unique id.
func NewEvent(eventType, source, key string, payload any) Event {
	now := time.Now()
	seq := eventSeq.Add(1)
	return Event{
		ID:        hash.SHA256Short([]byte(source+"|"+strconv.FormatInt(now.UnixNano(), 10)+"|"+strconv.FormatUint(seq, 10)), 16),
		Type:      eventType,
		Source:    source,
		Timestamp: now.UnixMilli(),
		Key:       key,
		Payload:   payload,
	}
}
