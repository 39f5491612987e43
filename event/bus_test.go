package event

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribePublish(t *testing.T) {
	bus := NewBus()

	var received []Event
	bus.Subscribe("cleanup.started", func(e Event) {
		received = append(received, e)
	})

	bus.Publish(NewPassStartedEvent(3, false))
	bus.Publish(NewResourceCleanedEvent("db", "database", time.Millisecond, 1))

	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	started, ok := received[0].(PassStartedEvent)
	if !ok {
		t.Fatalf("received %T, want PassStartedEvent", received[0])
	}
	if started.Total != 3 {
		t.Errorf("Total = %d, want 3", started.Total)
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	var count int
	bus.SubscribeAll(func(Event) { count++ })

	bus.Publish(NewPassStartedEvent(1, false))
	bus.Publish(NewResourceCleanedEvent("a", "timer", 0, 1))
	bus.Publish(NewPassCompletedEvent(1, 1, 0, 0, 0, time.Millisecond))

	if count != 3 {
		t.Errorf("wildcard handler called %d times, want 3", count)
	}
}

func TestBus_SpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "wildcard") })
	bus.Subscribe("cleanup.started", func(Event) { order = append(order, "specific") })

	bus.Publish(NewPassStartedEvent(0, false))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("dispatch order = %v, want [specific wildcard]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var count int
	id := bus.Subscribe("cleanup.failed", func(Event) { count++ })

	bus.Publish(NewResourceCleanupFailedEvent("db", "database", "TIMEOUT", "never settled", time.Second, 3, true))

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false, want true")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe() = true, want false")
	}

	bus.Publish(NewResourceCleanupFailedEvent("db", "database", "TIMEOUT", "never settled", time.Second, 3, true))

	if count != 1 {
		t.Errorf("handler called %d times, want 1", count)
	}
}

func TestBus_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	var called bool
	bus.Subscribe("resource.registered", func(Event) { panic("boom") })
	bus.Subscribe("resource.registered", func(Event) { called = true })

	bus.Publish(NewResourceRegisteredEvent("db", "database", 5, false, nil))

	if !called {
		t.Error("second handler was not called after first panicked")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewResourceRegisteredEvent("r", "custom", 0, false, nil))
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("handler called %d times, want 1000", count)
	}
}

func TestBus_SubscriptionCount(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("a", func(Event) {})
	bus.Subscribe("b", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if got := bus.SubscriptionCount(); got != 3 {
		t.Errorf("SubscriptionCount() = %d, want 3", got)
	}

	bus.Clear()
	if got := bus.SubscriptionCount(); got != 0 {
		t.Errorf("after Clear, SubscriptionCount() = %d, want 0", got)
	}
}

func TestEventLevels(t *testing.T) {
	tests := []struct {
		name string
		e    Event
		want Level
	}{
		{"registered is debug", NewResourceRegisteredEvent("r", "custom", 0, false, nil), LevelDebug},
		{"rejected is warn", NewRegistrationRejectedEvent("r", "pass in progress"), LevelWarn},
		{"failed is error", NewResourceCleanupFailedEvent("r", "custom", "UNKNOWN", "x", 0, 1, false), LevelError},
		{"clean pass is info", NewPassCompletedEvent(2, 2, 0, 0, 0, 0), LevelInfo},
		{"failing pass is warn", NewPassCompletedEvent(2, 1, 1, 0, 0, 0), LevelWarn},
		{"leaky pass is warn", NewPassCompletedEvent(2, 2, 0, 0, 1, 0), LevelWarn},
		{"leak is warn", NewLeakDetectedEvent("timer", "tracked timer"), LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Level(); got != tt.want {
				t.Errorf("Level() = %s, want %s", got, tt.want)
			}
			if tt.e.Timestamp().IsZero() {
				t.Error("Timestamp() is zero")
			}
			if tt.e.EventType() == "" {
				t.Error("EventType() is empty")
			}
		})
	}
}
