package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

func waitOrFail(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Timeout waiting for events")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		if event.Type == TypeResult && event.Key == "q1" {
			received.Add(1)
		}
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for range 3 {
		if err := bus.Publish(context.Background(), "test.topic", NewEvent(TypeResult, "run", "q1", nil)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitOrFail(t, &wg, time.Second)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return errors.New("handler errors are logged, not returned")
	})

	wg.Add(2)
	if err := bus.Publish(context.Background(), "test.topic", Event{ID: "test", Type: "test"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitOrFail(t, &wg, time.Second)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("Expected both subscribers to receive 1 event, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	err := bus.Publish(context.Background(), "empty.topic", Event{ID: "test", Type: "test"})
	if err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_CloseDrains(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())

	var handled atomic.Bool
	bus.Subscribe(context.Background(), "slow", func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		handled.Store(true)
		return nil
	})
	if err := bus.Publish(context.Background(), "slow", Event{ID: "e"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !handled.Load() {
		t.Error("Close() returned before in-flight handlers finished")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := bus.Publish(context.Background(), "test", Event{}); err == nil {
		t.Error("Publish() after Close() should error")
	}
	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should error")
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "concurrent", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	numPublishers := 10
	eventsPerPublisher := 100
	wg.Add(numPublishers * eventsPerPublisher)

	for range numPublishers {
		go func() {
			for range eventsPerPublisher {
				bus.Publish(context.Background(), "concurrent", Event{ID: "test", Type: "test"})
			}
		}()
	}
	waitOrFail(t, &wg, 5*time.Second)

	expected := int32(numPublishers * eventsPerPublisher)
	if got := received.Load(); got != expected {
		t.Errorf("Received %d events, want %d", got, expected)
	}
}

func TestNewEvent(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		e := NewEvent(TypeRunSummary, "run-1", "", map[string]int{"queries": 1})
		if e.ID == "" || seen[e.ID] {
			t.Fatalf("NewEvent() id %q is empty or repeated", e.ID)
		}
		seen[e.ID] = true
		if e.Type != TypeRunSummary || e.Source != "run-1" || e.Timestamp == 0 {
			t.Errorf("NewEvent() = %+v", e)
		}
	}
}
