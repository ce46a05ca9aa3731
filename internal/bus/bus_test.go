package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	b := NewBus()
	if b == nil {
		t.Fatal("NewBus returned nil")
	}

	if b.historySize != DefaultHistorySize {
		t.Errorf("Expected history size %d, got %d", DefaultHistorySize, b.historySize)
	}

	b.Close()
}

func TestSubscribeAndPublish(t *testing.T) {
	b := NewBus()
	defer b.Close()

	done := make(chan Event, 1)
	id := b.Subscribe(EventDecisionStart, func(e Event) {
		done <- e
	})
	if id == "" {
		t.Fatal("Subscribe returned empty ID")
	}

	event := NewEvent(EventDecisionStart, "turn-1")
	event.Iteration = 2

	if err := b.Publish(event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-done:
		if got.TurnID != "turn-1" || got.Iteration != 2 {
			t.Errorf("Unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for event")
	}
}

func TestTypedSubscriptionIgnoresOtherTypes(t *testing.T) {
	b := NewBus()
	defer b.Close()

	callCount := atomic.Int32{}
	b.Subscribe(EventCapabilityStart, func(e Event) {
		callCount.Add(1)
	})

	b.Publish(NewEvent(EventDecisionStart, "turn-1"))
	b.Publish(NewEvent(EventCapabilityStart, "turn-1"))
	time.Sleep(100 * time.Millisecond)

	if callCount.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", callCount.Load())
	}
}

func TestWildcardSubscription(t *testing.T) {
	b := NewBus()
	defer b.Close()

	callCount := atomic.Int32{}
	b.Subscribe("", func(e Event) {
		callCount.Add(1)
	})

	b.Publish(NewEvent(EventTurnStart, "turn-1"))
	b.Publish(NewEvent(EventCapabilityComplete, "turn-1"))
	b.Publish(NewEvent(EventTurnComplete, "turn-1"))
	time.Sleep(100 * time.Millisecond)

	if callCount.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	callCount := atomic.Int32{}
	id := b.Subscribe(EventTurnStart, func(e Event) {
		callCount.Add(1)
	})

	b.Publish(NewEvent(EventTurnStart, "turn-1"))
	time.Sleep(100 * time.Millisecond)

	if err := b.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	b.Publish(NewEvent(EventTurnStart, "turn-2"))
	time.Sleep(100 * time.Millisecond)

	if callCount.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", callCount.Load())
	}
}

func TestHistoryForTurn(t *testing.T) {
	b := NewBus()
	defer b.Close()

	b.Publish(NewEvent(EventTurnStart, "turn-1"))
	b.Publish(NewEvent(EventTurnStart, "turn-2"))
	b.Publish(NewEvent(EventTurnComplete, "turn-1"))

	events := b.HistoryForTurn("turn-1")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventTurnStart || events[1].Type != EventTurnComplete {
		t.Errorf("Unexpected event order: %+v", events)
	}
}

func TestHistoryTrimming(t *testing.T) {
	b := NewBusWithConfig(5)
	defer b.Close()

	for i := 0; i < 10; i++ {
		b.Publish(NewEvent(EventCapabilityStart, "turn-1"))
	}

	if got := len(b.History()); got != 5 {
		t.Errorf("Expected history capped at 5, got %d", got)
	}
}

func TestPublishDuringClose(t *testing.T) {
	// A publisher racing a shutdown must never hit a closed channel.
	for i := 0; i < 200; i++ {
		b := NewBus()
		for j := 0; j < 4; j++ {
			b.Subscribe("", func(Event) {})
		}

		start := make(chan struct{})
		done := make(chan struct{})
		go func() {
			<-start
			for k := 0; k < 50; k++ {
				b.Publish(Event{Type: EventDecisionStart, TurnID: "turn-race"})
			}
			close(done)
		}()

		close(start)
		b.Close()
		<-done
	}
}
