// Package integration exercises the full component graph end to end:
// simulated ticks drive the feed, the scanner builds a chain from
// simulated quotes, the strategy enters through the executor and every
// fill lands in the sqlite journal.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/pricing"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
	"shortvol-trader/internal/store"
	"shortvol-trader/internal/strategy"
	"shortvol-trader/internal/stream"
	"shortvol-trader/pkg/utils"
)

type system struct {
	cfg     *config.Config
	sim     *broker.SimBroker
	ticker  *broker.SimTicker
	sess    *session.Session
	feed    *stream.Feed
	scanner *scanner.Scanner
	journal *store.SQLiteJournal
	strat   strategy.Strategy
}

func newSystem(t *testing.T) *system {
	t.Helper()

	cfg := config.Default()
	sim := broker.NewSimBroker()
	ticker := broker.NewSimTicker()
	sess := session.New(cfg)

	journal, err := store.NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	feed := stream.NewFeed(cfg, sess, ticker, zerolog.Nop())
	sc := scanner.New(cfg, sim, sess, zerolog.Nop())
	exec := executor.New(cfg, sim, sess.Ledger, journal, zerolog.Nop())

	sys := &system{
		cfg:     cfg,
		sim:     sim,
		ticker:  ticker,
		sess:    sess,
		feed:    feed,
		scanner: sc,
		journal: journal,
	}

	strat, err := strategy.New(strategy.CreditSpreadName, strategy.Deps{
		Cfg:     cfg,
		Sess:    sess,
		Broker:  sim,
		Scanner: sc,
		Exec:    exec,
		Ledger:  sess.Ledger,
		Logger:  zerolog.Nop(),
		Rescan:  sys.rescan,
		Pause:   func(time.Duration) {},
	})
	require.NoError(t, err)
	sys.strat = strat

	require.NoError(t, feed.Start(context.Background()))
	t.Cleanup(func() { feed.Stop() })

	return sys
}

// rescan refreshes the chain synchronously; the engine does the same work
// on its worker pool.
func (s *system) rescan(ctx context.Context) {
	chain, err := s.scanner.Scan(ctx)
	if err != nil {
		return
	}
	s.sess.ReplaceChain(chain)
	s.feed.TrackChain(chain)
}

// seedMarket prices every contract in the strike band at sigma so the
// scanner's IV solve recovers it against the pushed VIX level.
func (s *system) seedMarket(t *testing.T, spot, sigma float64) {
	t.Helper()

	now := time.Now().In(utils.IndiaLocation)
	expiry := scanner.NearestWeeklyExpiry(now, time.Weekday(s.cfg.Scanner.ExpiryWeekday))
	expiryStr := models.FormatExpiry(expiry)
	tte := scanner.TimeToExpiry(now, expiry)

	token := uint32(1000)
	for _, strike := range scanner.StrikeBand(spot, s.cfg.Scanner.StrikeStep, s.cfg.Scanner.StrikesPerSide) {
		for _, kind := range []models.OptionKind{models.Call, models.Put} {
			sym := models.BuildOptionSymbol(s.cfg.Trading.Underlying, expiryStr, strike, kind)
			fair := pricing.Price(spot, strike, tte, s.cfg.Scanner.RiskFreeRate, sigma, kind)
			token++
			s.sim.SetQuote("NFO:"+sym, models.Quote{LTP: fair, OI: 900000, Volume: 100000})
			s.sim.AddInstrument(models.Instrument{Token: token, Symbol: sym, Exchange: models.NFO})
		}
	}
}

func TestCreditSpreadLifecycle(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	// Index ticks arrive over the feed, not by poking the session.
	sys.ticker.Push(models.Tick{Token: stream.NiftySpotToken, LTP: 22000})
	sys.ticker.Push(models.Tick{Token: stream.IndiaVIXToken, LTP: 15})
	require.Equal(t, 22000.0, sys.sess.Spot())
	require.Equal(t, 15.0, sys.sess.VIX())

	// Options trade rich: 19 vol against a VIX of 15.
	sys.seedMarket(t, 22000, 0.19)
	sys.rescan(ctx)

	chain := sys.sess.Chain()
	require.NotEmpty(t, chain)
	assert.True(t, chain[0].Overpriced, "top-ranked contract should be tagged overpriced")

	require.NoError(t, sys.strat.Tick(ctx))
	require.Equal(t, strategy.StateActive, sys.strat.State())
	require.Equal(t, 2, sys.sess.Ledger.Count(), "short plus hedge")

	legs := sys.sess.Ledger.Snapshot()
	var short models.Leg
	for _, leg := range legs {
		if leg.Side == models.LegShort {
			short = leg
		}
	}
	require.NotEmpty(t, short.Symbol)

	// Both opening fills are journaled.
	fills, err := sys.journal.Fills(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	for _, f := range fills {
		assert.Equal(t, "open", f.Action)
	}

	// The short leg bleeds premium over the feed; whichever exit fires
	// first (profit target or premium decay) must flatten the book.
	sys.ticker.Push(models.Tick{Token: short.Token, LTP: short.Entry * 0.4})
	got, ok := sys.sess.Ledger.Find(short.Symbol)
	require.True(t, ok)
	assert.InDelta(t, short.Entry*0.4, got.LTP, 1e-9)
	assert.Greater(t, sys.sess.Ledger.SessionPnL(), 0.0)

	require.NoError(t, sys.strat.Tick(ctx))
	assert.Equal(t, strategy.StateIdle, sys.strat.State())
	assert.Equal(t, 0, sys.sess.Ledger.Count())
	assert.Equal(t, "", sys.sess.ActiveStrategy())
	assert.Equal(t, 0, sys.sess.RollCount())

	fills, err = sys.journal.Fills(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, fills, 4, "two opens and two closes")
	closes := 0
	for _, f := range fills {
		if f.Action == "close" {
			closes++
		}
	}
	assert.Equal(t, 2, closes)
}

func TestFeedUpdatesChainGreeksLive(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	sys.ticker.Push(models.Tick{Token: stream.NiftySpotToken, LTP: 22000})
	sys.ticker.Push(models.Tick{Token: stream.IndiaVIXToken, LTP: 15})
	sys.seedMarket(t, 22000, 0.17)
	sys.rescan(ctx)

	chain := sys.sess.Chain()
	require.NotEmpty(t, chain)
	target := chain[len(chain)-1]
	require.True(t, sys.ticker.Subscribed(target.Token), "chain contracts are tracked on the feed")

	before, ok := sys.sess.FindQuote(target.Symbol)
	require.True(t, ok)

	// A richer print arrives for one contract; its solved IV must rise.
	sys.ticker.Push(models.Tick{Token: target.Token, LTP: before.LTP * 1.3, OI: 950000})

	after, ok := sys.sess.FindQuote(target.Symbol)
	require.True(t, ok)
	assert.InDelta(t, before.LTP*1.3, after.LTP, 1e-9)
	assert.Greater(t, after.Greeks.IV, before.Greeks.IV)
	assert.Greater(t, after.IVMismatch, before.IVMismatch)
}
