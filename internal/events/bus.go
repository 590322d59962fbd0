// Package events carries notifications from the trading loop to
// listeners such as the dashboard websocket hub.
package events

import (
	"sync"
	"time"
)

// Type tags an event.
type Type string

const (
	TypeSignalGenerated Type = "SIGNAL_GENERATED"
	TypeOrderPlaced     Type = "ORDER_PLACED"
	TypePositionOpened  Type = "POSITION_OPENED"
	TypePositionClosed  Type = "POSITION_CLOSED"
	TypeBreakerTripped  Type = "BREAKER_TRIPPED"
	TypeBalanceUpdate   Type = "BALANCE_UPDATE"
	TypeSessionSummary  Type = "SESSION_SUMMARY"
	TypeError           Type = "ERROR"
)

// Event is one published notification.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles a published event.
type Subscriber func(Event)

// Bus fans events out to subscribers. Delivery is asynchronous so a
// slow listener cannot stall the trading loop.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Type][]Subscriber
	allSubs []Subscriber
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Type][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(t Type, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], sub)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers an event to every matching subscriber.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignal reports the latest signal a strategy produced for a
// symbol, before entry gates are applied.
func (b *Bus) PublishSignal(symbol, strategy string, direction int, price float64, confidence int) {
	b.Publish(Event{
		Type: TypeSignalGenerated,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"strategy":   strategy,
			"direction":  direction,
			"price":      price,
			"confidence": confidence,
		},
	})
}

// PublishOrderPlaced reports a submitted entry order.
func (b *Bus) PublishOrderPlaced(symbol, strategy string, direction int, price, size float64, confidence int) {
	b.Publish(Event{
		Type: TypeOrderPlaced,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"strategy":   strategy,
			"direction":  direction,
			"price":      price,
			"size":       size,
			"confidence": confidence,
		},
	})
}

// PublishPositionOpened reports a durably recorded entry fill.
func (b *Bus) PublishPositionOpened(symbol, strategy string, direction int, entry, size float64, confidence int) {
	b.Publish(Event{
		Type: TypePositionOpened,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"strategy":   strategy,
			"direction":  direction,
			"entry":      entry,
			"size":       size,
			"confidence": confidence,
		},
	})
}

// PublishPositionClosed reports an exit fill.
func (b *Bus) PublishPositionClosed(symbol, reason string, exitPrice, pnl float64) {
	b.Publish(Event{
		Type: TypePositionClosed,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"reason":     reason,
			"exit_price": exitPrice,
			"pnl":        pnl,
		},
	})
}

// PublishBreakerTripped reports a circuit breaker halt.
func (b *Bus) PublishBreakerTripped(reason string) {
	b.Publish(Event{
		Type: TypeBreakerTripped,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishBalance reports the latest account value.
func (b *Bus) PublishBalance(balance float64) {
	b.Publish(Event{
		Type: TypeBalanceUpdate,
		Data: map[string]interface{}{
			"balance": balance,
		},
	})
}

// PublishSessionSummary reports the end-of-session results.
func (b *Bus) PublishSessionSummary(closed, wins, losses int, realizedPnL, finalBalance float64) {
	b.Publish(Event{
		Type: TypeSessionSummary,
		Data: map[string]interface{}{
			"closed_trades": closed,
			"wins":          wins,
			"losses":        losses,
			"realized_pnl":  realizedPnL,
			"final_balance": finalBalance,
		},
	})
}

// PublishError reports a non-fatal operational error.
func (b *Bus) PublishError(source string, err error) {
	b.Publish(Event{
		Type: TypeError,
		Data: map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		},
	})
}
