// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"

	"shortvol-trader/internal/models"
)

// Broker defines the brokerage trading capability: session token handling,
// live quotes, the instrument master and order management.
type Broker interface {
	// Session
	SetAccessToken(token string)
	IsAuthenticated() bool

	// Market data
	GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)
	LookupToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error)

	// Orders
	PlaceOrder(ctx context.Context, order *models.Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrders(ctx context.Context) ([]models.Order, error)
}

// Ticker defines the streaming feed capability. Subscriptions are keyed by
// instrument token; tick callbacks carry last price, open interest, volume
// and top-of-book depth.
type Ticker interface {
	Connect(ctx context.Context) error
	Close() error
	Subscribe(tokens []uint32, mode TickMode) error
	Unsubscribe(tokens []uint32) error
	IsConnected() bool

	OnTick(handler func(models.Tick))
	OnConnect(handler func())
	OnDisconnect(handler func())
	OnError(handler func(error))
	OnReconnect(handler func(attempt int))
}

// TickMode represents the subscription detail mode for ticks.
type TickMode string

const (
	TickModeQuote TickMode = "quote"
	TickModeFull  TickMode = "full"
)
