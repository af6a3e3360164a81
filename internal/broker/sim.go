// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainerrors "shortvol-trader/internal/errors"
	"shortvol-trader/internal/models"
)

// FillBehavior decides how a simulated order progresses through the order
// book. It is consulted on every status poll with the number of polls seen
// so far and returns the status to report plus the fill price once complete.
type FillBehavior func(order models.Order, polls int) (status string, avgPrice float64)

// FillImmediately fills the order at its limit price (or the quoted LTP for
// market orders) on the first poll.
func FillImmediately() FillBehavior {
	return func(order models.Order, polls int) (string, float64) {
		return models.OrderStatusComplete, order.Price
	}
}

// FillAfter keeps the order open for n polls, then fills it at price.
func FillAfter(n int, price float64) FillBehavior {
	return func(order models.Order, polls int) (string, float64) {
		if polls >= n {
			return models.OrderStatusComplete, price
		}
		return models.OrderStatusOpen, 0
	}
}

// NeverFill leaves the order open until it is cancelled.
func NeverFill() FillBehavior {
	return func(order models.Order, polls int) (string, float64) {
		return models.OrderStatusOpen, 0
	}
}

// Reject reports the order as rejected on the first poll.
func Reject() FillBehavior {
	return func(order models.Order, polls int) (string, float64) {
		return models.OrderStatusRejected, 0
	}
}

type simOrder struct {
	order    models.Order
	behavior FillBehavior
	polls    int
}

// SimBroker implements the Broker interface against in-memory state. It
// backs paper-trading mode and the order-flow tests: quotes and the
// instrument master are seeded directly, and fill behavior per symbol is
// scriptable.
type SimBroker struct {
	quotes      map[string]models.Quote
	instruments map[string]models.Instrument
	orders      map[string]*simOrder
	orderSeq    int
	behaviors   map[string]FillBehavior // symbol -> behavior override
	defaultFill FillBehavior
	placed      []models.Order // submission log, in order
	cancelled   []string
	cancelErr   error
	placeErr    map[string]error // symbol -> forced placement failure
	mu          sync.Mutex
}

// NewSimBroker creates a simulated broker that fills every order
// immediately at its submitted price.
func NewSimBroker() *SimBroker {
	return &SimBroker{
		quotes:      make(map[string]models.Quote),
		instruments: make(map[string]models.Instrument),
		orders:      make(map[string]*simOrder),
		behaviors:   make(map[string]FillBehavior),
		defaultFill: FillImmediately(),
		placeErr:    make(map[string]error),
	}
}

// SetQuote seeds or updates the quote for an exchange-qualified symbol.
func (s *SimBroker) SetQuote(symbol string, q models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Symbol = symbol
	s.quotes[symbol] = q
}

// AddInstrument seeds the instrument master.
func (s *SimBroker) AddInstrument(inst models.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s:%s", inst.Exchange, inst.Symbol)
	s.instruments[key] = inst
}

// SetFillBehavior overrides fill behavior for one trading symbol.
func (s *SimBroker) SetFillBehavior(symbol string, b FillBehavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors[symbol] = b
}

// SetDefaultFill overrides the default fill behavior.
func (s *SimBroker) SetDefaultFill(b FillBehavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultFill = b
}

// FailPlacement makes PlaceOrder return an error for the given symbol.
func (s *SimBroker) FailPlacement(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeErr[symbol] = err
}

// FailCancel makes CancelOrder return the given error.
func (s *SimBroker) FailCancel(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelErr = err
}

// PlacedOrders returns every order submitted so far, in submission order.
func (s *SimBroker) PlacedOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, len(s.placed))
	copy(out, s.placed)
	return out
}

// CancelledOrders returns the ids of cancelled orders.
func (s *SimBroker) CancelledOrders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cancelled))
	copy(out, s.cancelled)
	return out
}

// SetAccessToken is a no-op for the simulated broker.
func (s *SimBroker) SetAccessToken(token string) {}

// IsAuthenticated always reports true for the simulated broker.
func (s *SimBroker) IsAuthenticated() bool { return true }

// GetQuotes returns the seeded quotes for the requested symbols. Unknown
// symbols are omitted, mirroring the live API.
func (s *SimBroker) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]models.Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			result[sym] = q
		}
	}
	return result, nil
}

// GetInstruments returns the seeded instrument master for an exchange.
func (s *SimBroker) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Instrument
	for _, inst := range s.instruments {
		if inst.Exchange == exchange {
			result = append(result, inst)
		}
	}
	return result, nil
}

// LookupToken resolves a symbol to its instrument token.
func (s *SimBroker) LookupToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s:%s", exchange, symbol)
	inst, ok := s.instruments[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domainerrors.ErrSymbolNotFound, symbol)
	}
	return inst.Token, nil
}

// PlaceOrder records the order and assigns it a sequential id. Market
// orders with no price fill at the seeded quote LTP.
func (s *SimBroker) PlaceOrder(ctx context.Context, order *models.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.placeErr[order.Symbol]; err != nil {
		return "", err
	}

	s.orderSeq++
	id := fmt.Sprintf("SIM%06d", s.orderSeq)

	placed := *order
	placed.ID = id
	placed.Status = models.OrderStatusOpen
	placed.PlacedAt = time.Now()

	if placed.Type == models.OrderTypeMarket && placed.Price == 0 {
		key := fmt.Sprintf("%s:%s", placed.Exchange, placed.Symbol)
		if q, ok := s.quotes[key]; ok {
			placed.Price = q.LTP
		}
	}

	behavior := s.behaviors[order.Symbol]
	if behavior == nil {
		behavior = s.defaultFill
	}

	s.orders[id] = &simOrder{order: placed, behavior: behavior}
	s.placed = append(s.placed, placed)

	return id, nil
}

// CancelOrder marks an open order as cancelled.
func (s *SimBroker) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelErr != nil {
		return s.cancelErr
	}

	so, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %s", orderID)
	}
	if so.order.Status == models.OrderStatusOpen {
		so.order.Status = models.OrderStatusCancelled
	}
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

// GetOrders reports the current order book. Each call advances the scripted
// fill behavior of open orders by one poll.
func (s *SimBroker) GetOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.Order, 0, len(s.orders))
	for _, so := range s.orders {
		if so.order.Status == models.OrderStatusOpen {
			so.polls++
			status, price := so.behavior(so.order, so.polls)
			if status != models.OrderStatusOpen {
				so.order.Status = status
				if status == models.OrderStatusComplete {
					so.order.AveragePrice = price
					so.order.FilledQty = so.order.Quantity
				}
			}
		}
		result = append(result, so.order)
	}
	return result, nil
}

// Ensure SimBroker implements Broker interface
var _ Broker = (*SimBroker)(nil)
