// Package stream routes the live price feed into session state: spot and
// VIX updates, in-place chain quote refreshes with a fresh Greeks solve,
// and open-leg P/L marks.
package stream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/pricing"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
	"shortvol-trader/pkg/utils"
)

// Instrument tokens for the reference indices on NSE.
const (
	NiftySpotToken uint32 = 256265
	IndiaVIXToken  uint32 = 264969
)

// Feed is the independent producer writing into shared session state.
// Each tick mutates one contract's quote or one leg as a whole record;
// strategy reads are at most one tick stale.
type Feed struct {
	cfg    *config.Config
	sess   *session.Session
	ticker broker.Ticker
	logger zerolog.Logger

	spotToken uint32
	vixToken  uint32

	mu         sync.Mutex
	subscribed map[uint32]bool
}

// NewFeed creates a feed bound to the given ticker.
func NewFeed(cfg *config.Config, sess *session.Session, ticker broker.Ticker, logger zerolog.Logger) *Feed {
	return &Feed{
		cfg:        cfg,
		sess:       sess,
		ticker:     ticker,
		logger:     logger.With().Str("component", "feed").Logger(),
		spotToken:  NiftySpotToken,
		vixToken:   IndiaVIXToken,
		subscribed: make(map[uint32]bool),
	}
}

// Start registers the tick handlers and connects the ticker. The spot and
// VIX tokens are subscribed on every (re)connect, along with any option
// tokens accumulated so far.
func (f *Feed) Start(ctx context.Context) error {
	f.ticker.OnTick(f.onTick)
	f.ticker.OnConnect(func() {
		f.logger.Info().Msg("ticker connected")
		f.resubscribe()
	})
	f.ticker.OnDisconnect(func() {
		f.logger.Warn().Msg("ticker disconnected")
	})
	f.ticker.OnError(func(err error) {
		f.logger.Error().Err(err).Msg("ticker error")
	})
	f.ticker.OnReconnect(func(attempt int) {
		f.logger.Warn().Int("attempt", attempt).Msg("ticker reconnecting")
	})

	f.Track(f.spotToken, f.vixToken)
	return f.ticker.Connect(ctx)
}

// Stop closes the underlying ticker connection.
func (f *Feed) Stop() error {
	return f.ticker.Close()
}

// Connected reports whether the live feed is up.
func (f *Feed) Connected() bool {
	return f.ticker.IsConnected()
}

// Track adds instrument tokens to the live subscription. Tokens already
// tracked are ignored. Used by the engine as the scanner and executor
// discover new contracts of interest.
func (f *Feed) Track(tokens ...uint32) {
	f.mu.Lock()
	fresh := make([]uint32, 0, len(tokens))
	for _, tok := range tokens {
		if tok == 0 || f.subscribed[tok] {
			continue
		}
		f.subscribed[tok] = true
		fresh = append(fresh, tok)
	}
	f.mu.Unlock()

	if len(fresh) == 0 || !f.ticker.IsConnected() {
		return
	}
	if err := f.ticker.Subscribe(fresh, broker.TickModeFull); err != nil {
		f.logger.Error().Err(err).Ints32("tokens", toInt32(fresh)).Msg("subscribe failed")
	}
}

// TrackChain subscribes every contract in a chain snapshot.
func (f *Feed) TrackChain(chain []*models.ContractQuote) {
	tokens := make([]uint32, 0, len(chain))
	for _, c := range chain {
		tokens = append(tokens, c.Token)
	}
	f.Track(tokens...)
}

func (f *Feed) resubscribe() {
	f.mu.Lock()
	tokens := make([]uint32, 0, len(f.subscribed))
	for tok := range f.subscribed {
		tokens = append(tokens, tok)
	}
	f.mu.Unlock()

	if len(tokens) == 0 {
		return
	}
	if err := f.ticker.Subscribe(tokens, broker.TickModeFull); err != nil {
		f.logger.Error().Err(err).Msg("resubscribe failed")
	}
}

// onTick routes one tick. Index tokens update the session references;
// option tokens refresh the matching chain quote and leg.
func (f *Feed) onTick(t models.Tick) {
	switch t.Token {
	case f.spotToken:
		f.sess.SetSpot(t.LTP)
	case f.vixToken:
		f.sess.SetVIX(t.LTP)
	default:
		f.applyOptionTick(t)
	}
}

// applyOptionTick refreshes the chain quote in place: price fields, a
// fresh IV solve with the full Greeks bundle, and the mismatch retag.
// A non-converged solve yields the zero bundle and is tolerated. The
// matching ledger leg is remarked afterwards.
func (f *Feed) applyOptionTick(t models.Tick) {
	spot := f.sess.Spot()
	vix := f.sess.VIX()
	r := f.cfg.Scanner.RiskFreeRate
	threshold := f.cfg.Strategy.IVMismatchThreshold

	f.sess.UpdateQuote(t.Token, func(q *models.ContractQuote) {
		q.LTP = t.LTP
		if t.OI > 0 {
			q.OI = t.OI
		}
		if t.Volume > 0 {
			q.Volume = t.Volume
		}
		q.Bid = t.BidPrice
		q.Ask = t.AskPrice

		expiry, err := models.ParseExpiry(q.Expiry)
		if err != nil {
			return
		}
		tte := scanner.TimeToExpiry(time.Now().In(utils.IndiaLocation), expiry)
		q.Greeks = pricing.FullGreeks(spot, q.Strike, tte, r, t.LTP, q.Kind)
		q.IVMismatch = round2(q.Greeks.IV - vix)
		q.Overpriced = q.IVMismatch >= threshold
	})

	f.sess.Ledger.ApplyTick(t.Token, t.LTP)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func toInt32(tokens []uint32) []int32 {
	out := make([]int32, len(tokens))
	for i, t := range tokens {
		out[i] = int32(t)
	}
	return out
}
