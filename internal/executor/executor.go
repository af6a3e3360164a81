// Package executor turns strategy intents into broker orders with a
// limit-then-market escalation and keeps the ledger and journal in step
// with confirmed fills.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	domainerrors "shortvol-trader/internal/errors"
	"shortvol-trader/internal/ledger"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/store"
)

const (
	limitPollSeconds  = 10
	marketPollSeconds = 15
	pollInterval      = time.Second
)

// PlaceRequest describes one leg to open.
type PlaceRequest struct {
	Symbol     string
	Token      uint32
	Side       models.LegSide
	Quantity   int
	LimitPrice float64
	Tag        string
}

// Executor places, escalates and closes orders. A Leg enters the ledger
// only on a confirmed fill; it leaves the ledger when its close order is
// submitted.
type Executor struct {
	cfg     *config.Config
	broker  broker.Broker
	ledger  *ledger.Ledger
	journal store.Journal
	logger  zerolog.Logger

	// sleep is swapped out in tests to avoid real 1 Hz polling waits.
	sleep func(time.Duration)
}

// New creates an order executor.
func New(cfg *config.Config, b broker.Broker, l *ledger.Ledger, j store.Journal, logger zerolog.Logger) *Executor {
	if j == nil {
		j = store.NopJournal{}
	}
	return &Executor{
		cfg:     cfg,
		broker:  b,
		ledger:  l,
		journal: j,
		logger:  logger.With().Str("component", "executor").Logger(),
		sleep:   time.Sleep,
	}
}

// Place submits a limit order and polls it at 1 Hz for up to ten seconds.
// On timeout the limit order is cancelled best-effort and a market order
// is placed, polled for up to fifteen seconds. Only a confirmed fill
// records a Leg; ambiguity reports failure with no position.
func (e *Executor) Place(ctx context.Context, req PlaceRequest) (models.Leg, error) {
	order := &models.Order{
		Symbol:   req.Symbol,
		Exchange: models.NFO,
		Side:     req.Side.OrderSide(),
		Type:     models.OrderTypeLimit,
		Product:  models.ProductMIS,
		Quantity: req.Quantity,
		Price:    req.LimitPrice,
		Validity: "DAY",
		Tag:      req.Tag,
	}

	orderID, err := e.broker.PlaceOrder(ctx, order)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("limit order placement failed")
		return models.Leg{}, domainerrors.NewOrderError("", req.Symbol, "place", "limit placement failed", err)
	}

	avgPrice, err := e.pollFill(ctx, orderID, limitPollSeconds)
	if err == nil {
		return e.recordLeg(ctx, req, orderID, avgPrice)
	}
	if !domainerrors.Is(err, domainerrors.ErrFillTimeout) {
		return models.Leg{}, err
	}

	// Limit window expired. Cancel best-effort and escalate to market;
	// a cancellation failure is swallowed.
	if cancelErr := e.broker.CancelOrder(ctx, orderID); cancelErr != nil {
		e.logger.Warn().Err(cancelErr).Str("order_id", orderID).Msg("limit cancel failed, escalating anyway")
	}

	order.Type = models.OrderTypeMarket
	order.Price = 0

	marketID, err := e.broker.PlaceOrder(ctx, order)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("market escalation placement failed")
		return models.Leg{}, domainerrors.NewOrderError(orderID, req.Symbol, "place", "market escalation failed", err)
	}

	avgPrice, err = e.pollFill(ctx, marketID, marketPollSeconds)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", req.Symbol).Str("order_id", marketID).
			Msg("market escalation did not fill, no position recorded")
		return models.Leg{}, err
	}

	return e.recordLeg(ctx, req, marketID, avgPrice)
}

// pollFill polls the order book at 1 Hz for up to maxPolls iterations.
// The window is an iteration count, not a wall-clock deadline.
func (e *Executor) pollFill(ctx context.Context, orderID string, maxPolls int) (float64, error) {
	for i := 0; i < maxPolls; i++ {
		if i > 0 {
			e.sleep(pollInterval)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		orders, err := e.broker.GetOrders(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("order book fetch failed during fill poll")
			continue
		}

		for _, o := range orders {
			if o.ID != orderID {
				continue
			}
			switch o.Status {
			case models.OrderStatusComplete:
				return o.AveragePrice, nil
			case models.OrderStatusRejected, models.OrderStatusCancelled:
				return 0, domainerrors.NewOrderError(orderID, o.Symbol, "fill",
					fmt.Sprintf("terminal status %s", o.Status), domainerrors.ErrOrderRejected)
			}
		}
	}
	return 0, domainerrors.NewOrderError(orderID, "", "fill", "no terminal status in poll window", domainerrors.ErrFillTimeout)
}

func (e *Executor) recordLeg(ctx context.Context, req PlaceRequest, orderID string, avgPrice float64) (models.Leg, error) {
	leg := models.Leg{
		Symbol:   req.Symbol,
		Token:    req.Token,
		Side:     req.Side,
		Quantity: req.Quantity,
		Entry:    avgPrice,
		LTP:      avgPrice,
		OrderID:  orderID,
		Tag:      req.Tag,
		OpenedAt: time.Now(),
	}
	e.ledger.Append(leg)

	if err := e.journal.RecordFill(ctx, store.FillRecord{
		Timestamp: leg.OpenedAt,
		Symbol:    leg.Symbol,
		Side:      string(req.Side.OrderSide()),
		Action:    "open",
		Quantity:  leg.Quantity,
		Price:     avgPrice,
		OrderID:   orderID,
		Tag:       req.Tag,
	}); err != nil {
		e.logger.Warn().Err(err).Str("symbol", leg.Symbol).Msg("journal write failed")
	}

	e.logger.Info().
		Str("symbol", leg.Symbol).
		Str("side", string(leg.Side)).
		Int("qty", leg.Quantity).
		Float64("price", avgPrice).
		Str("order_id", orderID).
		Msg("leg opened")

	return leg, nil
}

// CloseLeg submits an opposite-side market order for the leg's full
// quantity. The leg leaves the ledger at submission, not at confirmed
// fill, so a failed close order understates exposure until the next
// reconciliation.
func (e *Executor) CloseLeg(ctx context.Context, leg models.Leg) error {
	order := &models.Order{
		Symbol:   leg.Symbol,
		Exchange: models.NFO,
		Side:     leg.Side.OrderSide().Opposite(),
		Type:     models.OrderTypeMarket,
		Product:  models.ProductMIS,
		Quantity: leg.Quantity,
		Validity: "DAY",
		Tag:      leg.Tag,
	}

	orderID, err := e.broker.PlaceOrder(ctx, order)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", leg.Symbol).Msg("close order placement failed")
		return domainerrors.NewOrderError("", leg.Symbol, "close", "close placement failed", err)
	}

	e.ledger.Remove(leg.Symbol)

	if err := e.journal.RecordFill(ctx, store.FillRecord{
		Timestamp: time.Now(),
		Symbol:    leg.Symbol,
		Side:      string(order.Side),
		Action:    "close",
		Quantity:  leg.Quantity,
		Price:     leg.LTP,
		OrderID:   orderID,
		Tag:       leg.Tag,
	}); err != nil {
		e.logger.Warn().Err(err).Str("symbol", leg.Symbol).Msg("journal write failed")
	}

	e.logger.Info().
		Str("symbol", leg.Symbol).
		Str("order_id", orderID).
		Float64("pnl", leg.PnL).
		Msg("leg closed")

	return nil
}

// CloseAll closes every open leg, iterating a snapshot so the ledger can
// shrink underneath without invalidating the loop. The first error is
// returned after all legs have been attempted.
func (e *Executor) CloseAll(ctx context.Context) error {
	var firstErr error
	for _, leg := range e.ledger.Snapshot() {
		if err := e.CloseLeg(ctx, leg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
