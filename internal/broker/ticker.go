// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"shortvol-trader/internal/models"
)

// ErrNotConnected is returned for subscription changes while the stream
// is down. Tracked tokens are kept and replayed once the stream is back.
var ErrNotConnected = errors.New("ticker not connected")

// connectTimeout bounds the initial WebSocket handshake.
const connectTimeout = 30 * time.Second

// maxReconnectDelay caps the backoff between reconnect attempts.
const maxReconnectDelay = 30 * time.Second

// ZerodhaTicker streams ticks over the Kite Connect WebSocket. It owns
// the reconnect loop and replays the subscription set after every
// reconnect, so callers only subscribe once.
type ZerodhaTicker struct {
	apiKey      string
	accessToken string
	maxRetries  int
	baseDelay   time.Duration

	onTick      func(models.Tick)
	onError     func(error)
	onConnect   func()
	onClose     func()
	onReconnect func(attempt int)

	mu           sync.RWMutex
	kt           *kiteticker.Ticker
	connected    bool
	reconnecting bool
	subs         map[uint32]TickMode

	// Serializes Subscribe/SetMode frames on the socket.
	writeMu sync.Mutex
}

// ZerodhaTickerConfig holds configuration for the ticker.
type ZerodhaTickerConfig struct {
	APIKey      string
	AccessToken string
	MaxRetries  int
	BaseDelay   time.Duration
}

// NewZerodhaTicker creates a ticker for the given credentials.
func NewZerodhaTicker(cfg ZerodhaTickerConfig) *ZerodhaTicker {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	return &ZerodhaTicker{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   cfg.BaseDelay,
		subs:        make(map[uint32]TickMode),
	}
}

// Connect opens the WebSocket and blocks until the first connect event,
// the context is done, or the handshake times out.
func (t *ZerodhaTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.kt = kiteticker.New(t.apiKey, t.accessToken)
	kt := t.kt
	t.mu.Unlock()

	ready := make(chan struct{}, 1)
	var once sync.Once

	kt.OnConnect(func() {
		t.mu.Lock()
		t.connected = true
		t.reconnecting = false
		t.mu.Unlock()

		first := false
		once.Do(func() {
			first = true
			ready <- struct{}{}
		})

		if first {
			if t.onConnect != nil {
				go t.onConnect()
			}
			return
		}
		// Reconnect: the caller's subscriptions are replayed here, the
		// external handler only runs on the first connect.
		t.replaySubscriptions()
	})

	kt.OnClose(func(code int, reason string) {
		t.mu.Lock()
		wasUp := t.connected
		t.connected = false
		t.mu.Unlock()

		if wasUp && t.onClose != nil {
			go t.onClose()
		}
		go t.reconnectLoop(ctx)
	})

	kt.OnError(func(err error) {
		if t.onError != nil {
			go t.onError(err)
		}
	})

	kt.OnTick(func(tick kitemodels.Tick) {
		if t.onTick != nil {
			t.onTick(fromKiteTick(tick))
		}
	})

	kt.OnReconnect(func(attempt int, delay time.Duration) {
		t.mu.Lock()
		t.reconnecting = true
		t.mu.Unlock()
		if t.onReconnect != nil {
			go t.onReconnect(attempt)
		}
	})

	go kt.Serve()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		if t.IsConnected() {
			return nil
		}
		return fmt.Errorf("ticker connect: handshake timed out after %s", connectTimeout)
	}
}

// Close tears down the WebSocket.
func (t *ZerodhaTicker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.kt != nil {
		t.kt.Close()
		t.connected = false
	}
	return nil
}

// Subscribe adds tokens to the tracked set and pushes them to the
// stream in the given mode.
func (t *ZerodhaTicker) Subscribe(tokens []uint32, mode TickMode) error {
	if len(tokens) == 0 {
		return nil
	}

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	for _, tok := range tokens {
		t.subs[tok] = mode
	}
	kt := t.kt
	t.mu.Unlock()

	return t.sendSubscribe(kt, tokens, mode)
}

// Unsubscribe drops tokens from the tracked set and from the stream.
func (t *ZerodhaTicker) Unsubscribe(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	for _, tok := range tokens {
		delete(t.subs, tok)
	}
	kt := t.kt
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := kt.Unsubscribe(tokens); err != nil {
		return fmt.Errorf("ticker unsubscribe: %w", err)
	}
	return nil
}

// OnTick sets the tick handler. Ticks are delivered on the stream
// goroutine; handlers must not block.
func (t *ZerodhaTicker) OnTick(handler func(models.Tick)) { t.onTick = handler }

// OnError sets the error handler.
func (t *ZerodhaTicker) OnError(handler func(error)) { t.onError = handler }

// OnConnect sets the first-connect handler.
func (t *ZerodhaTicker) OnConnect(handler func()) { t.onConnect = handler }

// OnDisconnect sets the disconnect handler.
func (t *ZerodhaTicker) OnDisconnect(handler func()) { t.onClose = handler }

// OnReconnect sets the reconnect-attempt handler.
func (t *ZerodhaTicker) OnReconnect(handler func(attempt int)) { t.onReconnect = handler }

// IsConnected reports whether the stream is up.
func (t *ZerodhaTicker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// reconnectLoop re-establishes the connection with exponential backoff.
// At most one loop runs at a time.
func (t *ZerodhaTicker) reconnectLoop(ctx context.Context) {
	t.mu.Lock()
	if t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.reconnecting = true
	t.mu.Unlock()

	delay := t.baseDelay
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		if t.IsConnected() {
			t.mu.Lock()
			t.reconnecting = false
			t.mu.Unlock()
			return
		}
		if err := t.Connect(ctx); err == nil {
			return
		}
	}

	t.mu.Lock()
	t.reconnecting = false
	t.mu.Unlock()
	if t.onError != nil {
		t.onError(fmt.Errorf("ticker reconnect: gave up after %d attempts", t.maxRetries))
	}
}

// replaySubscriptions pushes the tracked token set back to the stream
// after a reconnect, batched per mode.
func (t *ZerodhaTicker) replaySubscriptions() {
	t.mu.RLock()
	byMode := make(map[TickMode][]uint32)
	for tok, mode := range t.subs {
		byMode[mode] = append(byMode[mode], tok)
	}
	kt := t.kt
	t.mu.RUnlock()

	for mode, tokens := range byMode {
		if err := t.sendSubscribe(kt, tokens, mode); err != nil && t.onError != nil {
			t.onError(fmt.Errorf("ticker resubscribe: %w", err))
		}
	}
}

func (t *ZerodhaTicker) sendSubscribe(kt *kiteticker.Ticker, tokens []uint32, mode TickMode) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := kt.Subscribe(tokens); err != nil {
		return fmt.Errorf("ticker subscribe: %w", err)
	}
	if err := kt.SetMode(toKiteMode(mode), tokens); err != nil {
		return fmt.Errorf("ticker set mode: %w", err)
	}
	return nil
}

func toKiteMode(mode TickMode) kiteticker.Mode {
	if mode == TickModeFull {
		return kiteticker.ModeFull
	}
	return kiteticker.ModeQuote
}

func fromKiteTick(tick kitemodels.Tick) models.Tick {
	var bid, ask float64
	if len(tick.Depth.Buy) > 0 {
		bid = tick.Depth.Buy[0].Price
	}
	if len(tick.Depth.Sell) > 0 {
		ask = tick.Depth.Sell[0].Price
	}
	return models.Tick{
		Token:     tick.InstrumentToken,
		LTP:       tick.LastPrice,
		OI:        int64(tick.OI),
		Volume:    int64(tick.VolumeTraded),
		BidPrice:  bid,
		AskPrice:  ask,
		Timestamp: tick.Timestamp.Time,
	}
}

var _ Ticker = (*ZerodhaTicker)(nil)
