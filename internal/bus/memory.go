package bus

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

// MemoryBus is an in-memory event bus. Handlers run asynchronously;
// Close waits for the ones in flight.
type MemoryBus struct {
	mu           sync.RWMutex
	handlers     map[string][]Handler
	closed       bool
	drainTimeout time.Duration
	inflightWg   sync.WaitGroup
	log          *logger.Logger
}

// NewMemoryBus creates a new in-memory event bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryBus{
		handlers:     make(map[string][]Handler),
		drainTimeout: 10 * time.Second,
		log:          log,
	}
}

// Publish publishes an event to all subscribers of a topic.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return apperrors.New(apperrors.CodeBackend, "bus is closed")
	}

	for _, handler := range b.handlers[topic] {
		b.inflightWg.Add(1)
		go func(h Handler) {
			defer b.inflightWg.Done()
			if err := h(context.WithoutCancel(ctx), event); err != nil {
				b.log.WithError(err).Warn("Bus handler failed", "topic", topic, "event", event.ID)
			}
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for events on a topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.New(apperrors.CodeBackend, "bus is closed")
	}

	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Close closes the bus, waiting for in-flight handlers to complete.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if !b.DrainTimeout(b.drainTimeout) {
		b.log.Warn("Bus drain timeout reached, some handlers may not have completed")
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}

// DrainTimeout waits for in-flight handlers with a custom timeout.
func (b *MemoryBus) DrainTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.inflightWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
