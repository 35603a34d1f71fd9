package events

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToTypedSubscriber(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventSignalGenerated, func(ev Event) { got <- ev })

	bus.Publish(EventSignalGenerated, map[string]interface{}{"symbol": "BTCUSDT"})

	ev := waitFor(t, got)
	if ev.Type != EventSignalGenerated {
		t.Errorf("Expected SIGNAL_GENERATED, got %s", ev.Type)
	}
	if ev.Data["symbol"] != "BTCUSDT" {
		t.Errorf("Expected symbol in payload, got %v", ev.Data)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected a timestamp on the event")
	}
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventSignalGenerated, func(ev Event) { got <- ev })

	bus.Publish(EventScanCompleted, nil)

	select {
	case ev := <-got:
		t.Errorf("Expected no delivery, got %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 2)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.Publish(EventBotStarted, nil)
	bus.Publish(EventScanStarted, nil)

	seen := map[EventType]bool{}
	seen[waitFor(t, got).Type] = true
	seen[waitFor(t, got).Type] = true
	if !seen[EventBotStarted] || !seen[EventScanStarted] {
		t.Errorf("Expected both event types, got %v", seen)
	}
}

func TestPublishFansOut(t *testing.T) {
	bus := NewBus()
	got := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		bus.Subscribe(EventDailyReset, func(Event) { got <- i })
	}

	bus.Publish(EventDailyReset, nil)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		select {
		case n := <-got:
			seen[n] = true
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for fan-out")
		}
	}
	if len(seen) != 3 {
		t.Errorf("Expected all three subscribers, got %v", seen)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	bus.Subscribe(EventError, func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		bus.Publish(EventError, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
}
