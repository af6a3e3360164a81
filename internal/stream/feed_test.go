package stream

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/pricing"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
	"shortvol-trader/pkg/utils"
)

func newTestFeed(t *testing.T) (*Feed, *session.Session, *broker.SimTicker) {
	t.Helper()
	cfg := config.Default()
	sess := session.New(cfg)
	ticker := broker.NewSimTicker()
	f := NewFeed(cfg, sess, ticker, zerolog.Nop())
	require.NoError(t, f.Start(context.Background()))
	t.Cleanup(func() { f.Stop() })
	return f, sess, ticker
}

func TestFeedSubscribesIndicesOnConnect(t *testing.T) {
	_, _, ticker := newTestFeed(t)

	assert.True(t, ticker.Subscribed(NiftySpotToken))
	assert.True(t, ticker.Subscribed(IndiaVIXToken))
}

func TestFeedRoutesIndexTicks(t *testing.T) {
	_, sess, ticker := newTestFeed(t)

	ticker.Push(models.Tick{Token: NiftySpotToken, LTP: 22150.5})
	ticker.Push(models.Tick{Token: IndiaVIXToken, LTP: 22.5})

	assert.Equal(t, 22150.5, sess.Spot())
	assert.Equal(t, 22.5, sess.VIX())
	// VIX 22.5 in the 10-35 band normalizes to rank 50.
	assert.Equal(t, 50.0, sess.IVRank())
}

func TestFeedRefreshesChainQuoteAndLeg(t *testing.T) {
	f, sess, ticker := newTestFeed(t)

	sess.SetSpot(22000)
	sess.SetVIX(15)

	now := time.Now().In(utils.IndiaLocation)
	expiry := scanner.NearestWeeklyExpiry(now, time.Thursday)
	expiryStr := models.FormatExpiry(expiry)
	tte := scanner.TimeToExpiry(now, expiry)

	quote := &models.ContractQuote{
		Symbol: models.BuildOptionSymbol("NIFTY", expiryStr, 22000, models.Call),
		Token:  1001,
		Strike: 22000,
		Kind:   models.Call,
		Expiry: expiryStr,
		LTP:    100,
	}
	sess.ReplaceChain([]*models.ContractQuote{quote})
	sess.Ledger.Append(models.Leg{
		Symbol: quote.Symbol, Token: 1001, Side: models.LegShort,
		Quantity: 50, Entry: 100, LTP: 100,
	})
	f.Track(1001)
	require.True(t, ticker.Subscribed(1001))

	// Price the tick off a known vol so the solve recovers it.
	ltp := pricing.Price(22000, 22000, tte, 0.065, 0.19, models.Call)
	ticker.Push(models.Tick{Token: 1001, LTP: ltp, OI: 700000, Volume: 12000, BidPrice: ltp - 0.5, AskPrice: ltp + 0.5})

	updated, ok := sess.FindQuote(quote.Symbol)
	require.True(t, ok)
	assert.Equal(t, ltp, updated.LTP)
	assert.EqualValues(t, 700000, updated.OI)
	assert.InDelta(t, 19.0, updated.Greeks.IV, 0.05, "greeks resolve at the new price")
	assert.InDelta(t, 4.0, updated.IVMismatch, 0.06)
	assert.True(t, updated.Overpriced)

	// The matching leg is remarked: short from 100 -> ltp.
	leg, ok := sess.Ledger.Find(quote.Symbol)
	require.True(t, ok)
	assert.Equal(t, ltp, leg.LTP)
	assert.InDelta(t, (ltp-100)*50*-1, leg.PnL, 1e-9)
	assert.InDelta(t, leg.PnL, sess.Ledger.SessionPnL(), 1e-9)
}

func TestFeedToleratesNonConvergedSolve(t *testing.T) {
	f, sess, ticker := newTestFeed(t)
	sess.SetSpot(22000)

	quote := &models.ContractQuote{
		Symbol: "NIFTY28NOV2422000CE",
		Token:  1001,
		Strike: 22000,
		Kind:   models.Call,
		Expiry: "28NOV24",
		LTP:    100,
		Greeks: models.Greeks{IV: 19},
	}
	sess.ReplaceChain([]*models.ContractQuote{quote})
	f.Track(1001)

	// A zero price yields the all-zero bundle, not an error.
	ticker.Push(models.Tick{Token: 1001, LTP: 0})

	updated, ok := sess.FindQuote(quote.Symbol)
	require.True(t, ok)
	assert.Zero(t, updated.Greeks.IV)
	assert.Zero(t, updated.Greeks.Delta)
}

func TestFeedTrackIgnoresDuplicatesAndZero(t *testing.T) {
	f, _, ticker := newTestFeed(t)

	f.Track(0)
	assert.False(t, ticker.Subscribed(0))

	f.Track(5001, 5001)
	f.Track(5001)
	assert.True(t, ticker.Subscribed(5001))

	f.TrackChain([]*models.ContractQuote{{Token: 5002}, {Token: 5003}})
	assert.True(t, ticker.Subscribed(5002))
	assert.True(t, ticker.Subscribed(5003))
}
