// Package events is the in-process pub/sub channel between the engine
// and its observers (notifications, persistence, metrics).
package events

import (
	"sync"
	"time"
)

// EventType represents different kinds of events in the system
type EventType string

const (
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventSignalRejected   EventType = "SIGNAL_REJECTED"
	EventSignalSuppressed EventType = "SIGNAL_SUPPRESSED"
	EventDailyReset       EventType = "DAILY_RESET"
	EventScanStarted      EventType = "SCAN_STARTED"
	EventScanCompleted    EventType = "SCAN_COMPLETED"
	EventTradeUpdate      EventType = "TRADE_UPDATE"
	EventBotStarted       EventType = "BOT_STARTED"
	EventBotStopped       EventType = "BOT_STOPPED"
	EventError            EventType = "ERROR"
)

// Event is one published occurrence
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions. Handlers run in
// their own goroutines so a slow subscriber never blocks the engine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers the event to every matching subscriber.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	event := Event{Type: eventType, Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[eventType])+len(b.allSubs))
	subs = append(subs, b.subscribers[eventType]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		go sub(event)
	}
}
