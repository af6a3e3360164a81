package broker

import (
	"context"
	"sync"

	"shortvol-trader/internal/models"
)

// SimTicker implements the Ticker interface for paper mode and tests.
// Ticks are injected with Push and delivered synchronously to the
// registered handler.
type SimTicker struct {
	connected  bool
	subscribed map[uint32]TickMode

	onTick      func(models.Tick)
	onConnect   func()
	onClose     func()
	onError     func(error)
	onReconnect func(attempt int)

	mu sync.RWMutex
}

// NewSimTicker creates a new simulated ticker.
func NewSimTicker() *SimTicker {
	return &SimTicker{subscribed: make(map[uint32]TickMode)}
}

// Connect marks the ticker connected and fires the connect handler.
func (t *SimTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connected = true
	handler := t.onConnect
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

// Close marks the ticker disconnected and fires the disconnect handler.
func (t *SimTicker) Close() error {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	handler := t.onClose
	t.mu.Unlock()

	if handler != nil && wasConnected {
		handler()
	}
	return nil
}

// Subscribe records the subscription set.
func (t *SimTicker) Subscribe(tokens []uint32, mode TickMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, token := range tokens {
		t.subscribed[token] = mode
	}
	return nil
}

// Unsubscribe removes tokens from the subscription set.
func (t *SimTicker) Unsubscribe(tokens []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, token := range tokens {
		delete(t.subscribed, token)
	}
	return nil
}

// IsConnected reports the simulated connection state.
func (t *SimTicker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Subscribed reports whether a token is currently subscribed.
func (t *SimTicker) Subscribed(token uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.subscribed[token]
	return ok
}

// Push delivers a tick to the handler if the token is subscribed.
func (t *SimTicker) Push(tick models.Tick) {
	t.mu.RLock()
	_, subscribed := t.subscribed[tick.Token]
	handler := t.onTick
	t.mu.RUnlock()

	if subscribed && handler != nil {
		handler(tick)
	}
}

// OnTick sets the tick handler.
func (t *SimTicker) OnTick(handler func(models.Tick)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = handler
}

// OnConnect sets the connect handler.
func (t *SimTicker) OnConnect(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = handler
}

// OnDisconnect sets the disconnect handler.
func (t *SimTicker) OnDisconnect(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = handler
}

// OnError sets the error handler.
func (t *SimTicker) OnError(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = handler
}

// OnReconnect sets the reconnect handler.
func (t *SimTicker) OnReconnect(handler func(attempt int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnect = handler
}

// Ensure SimTicker implements Ticker interface
var _ Ticker = (*SimTicker)(nil)
