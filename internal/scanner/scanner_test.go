package scanner

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
	"shortvol-trader/internal/session"
	"shortvol-trader/pkg/utils"
)

func TestNearestWeeklyExpiry(t *testing.T) {
	// Wednesday 27 Nov 2024 -> Thursday 28 Nov 2024
	wed := time.Date(2024, 11, 27, 10, 0, 0, 0, utils.IndiaLocation)
	expiry := NearestWeeklyExpiry(wed, time.Thursday)
	assert.Equal(t, time.Thursday, expiry.Weekday())
	assert.Equal(t, 28, expiry.Day())

	// Expiry day itself rolls a full week forward, never today.
	thu := time.Date(2024, 11, 28, 10, 0, 0, 0, utils.IndiaLocation)
	expiry = NearestWeeklyExpiry(thu, time.Thursday)
	assert.Equal(t, time.Thursday, expiry.Weekday())
	assert.Equal(t, 5, expiry.Day())
	assert.Equal(t, time.December, expiry.Month())
}

func TestStrikeBand(t *testing.T) {
	band := StrikeBand(22012, 50, 8)

	// Inclusive bounds on both sides of the money.
	require.Len(t, band, 17)
	assert.Equal(t, 21600.0, band[0])
	assert.Equal(t, 22000.0, band[8])
	assert.Equal(t, 22400.0, band[16])

	// Rounds to the nearest step, up or down.
	band = StrikeBand(22030, 50, 1)
	assert.Equal(t, 22050.0, band[1])
}

func TestHedgeDistance(t *testing.T) {
	cfg := config.Default()
	sc := New(cfg, broker.NewSimBroker(), session.New(cfg), zerolog.Nop())

	morning := time.Date(2024, 11, 27, 10, 30, 0, 0, utils.IndiaLocation)
	afternoon := time.Date(2024, 11, 27, 13, 30, 0, 0, utils.IndiaLocation)

	assert.Equal(t, cfg.Strategy.PreNoonHedgePts, sc.HedgeDistance(morning))
	assert.Equal(t, cfg.Strategy.PostNoonHedgePts, sc.HedgeDistance(afternoon))
}

// seedChain seeds quotes and instruments for every contract in the band,
// pricing each at the given volatility so the scanner's IV solve recovers it.
func seedChain(t *testing.T, sim *broker.SimBroker, cfg *config.Config, spot, sigma float64) {
	t.Helper()

	now := time.Now().In(utils.IndiaLocation)
	expiry := NearestWeeklyExpiry(now, time.Weekday(cfg.Scanner.ExpiryWeekday))
	expiryStr := models.FormatExpiry(expiry)
	tte := TimeToExpiry(now, expiry)

	token := uint32(1000)
	for _, strike := range StrikeBand(spot, cfg.Scanner.StrikeStep, cfg.Scanner.StrikesPerSide) {
		for _, kind := range []models.OptionKind{models.Call, models.Put} {
			sym := models.BuildOptionSymbol(cfg.Trading.Underlying, expiryStr, strike, kind)
			fair := pricing.Price(spot, strike, tte, cfg.Scanner.RiskFreeRate, sigma, kind)
			token++
			sim.SetQuote("NFO:"+sym, models.Quote{LTP: fair, OI: 500000, Volume: 100000})
			sim.AddInstrument(models.Instrument{
				Token:    token,
				Symbol:   sym,
				Exchange: models.NFO,
			})
		}
	}
}

func TestScanRanksByMismatch(t *testing.T) {
	cfg := config.Default()
	sim := broker.NewSimBroker()
	sess := session.New(cfg)
	sess.SetSpot(22000)
	sess.SetVIX(15)

	seedChain(t, sim, cfg, 22000, 0.17)

	sc := New(cfg, sim, sess, zerolog.Nop())
	chain, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, chain)

	for i := 1; i < len(chain); i++ {
		assert.GreaterOrEqual(t, chain[i-1].IVMismatch, chain[i].IVMismatch,
			"chain must be sorted descending by mismatch")
	}
	for _, c := range chain {
		assert.NotZero(t, c.Token, "every contract resolves a stream token")
		assert.GreaterOrEqual(t, c.LTP, cfg.Scanner.MinPremium,
			"contracts under the premium floor are skipped")
	}

	// Deterministic: a repeated scan of the same snapshot yields the
	// same ordering.
	again, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(chain), len(again))
	for i := range chain {
		assert.Equal(t, chain[i].Symbol, again[i].Symbol)
	}
}

func TestScanTagsOverpricedContract(t *testing.T) {
	cfg := config.Default()
	sim := broker.NewSimBroker()
	sess := session.New(cfg)
	sess.SetSpot(22000)
	sess.SetVIX(15)

	// Whole chain priced at 19% vol against VIX 15: mismatch 4.0,
	// above the 2.0 threshold.
	seedChain(t, sim, cfg, 22000, 0.19)

	sc := New(cfg, sim, sess, zerolog.Nop())
	chain, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, chain)

	atm := findContract(t, chain, 22000, models.Call)
	assert.InDelta(t, 4.0, atm.IVMismatch, 0.02)
	assert.True(t, atm.Overpriced)
}

func TestScanSkipsIlliquidQuotes(t *testing.T) {
	cfg := config.Default()
	sim := broker.NewSimBroker()
	sess := session.New(cfg)
	sess.SetSpot(22000)
	sess.SetVIX(15)

	seedChain(t, sim, cfg, 22000, 0.17)

	// Force the ATM call below the premium floor.
	now := time.Now().In(utils.IndiaLocation)
	expiry := NearestWeeklyExpiry(now, time.Weekday(cfg.Scanner.ExpiryWeekday))
	sym := models.BuildOptionSymbol(cfg.Trading.Underlying, models.FormatExpiry(expiry), 22000, models.Call)
	sim.SetQuote("NFO:"+sym, models.Quote{LTP: cfg.Scanner.MinPremium - 1})

	sc := New(cfg, sim, sess, zerolog.Nop())
	chain, err := sc.Scan(context.Background())
	require.NoError(t, err)

	for _, c := range chain {
		if c.Strike == 22000 && c.Kind == models.Call {
			t.Fatalf("illiquid contract %s should have been skipped", c.Symbol)
		}
	}
}

func findContract(t *testing.T, chain []*models.ContractQuote, strike float64, kind models.OptionKind) *models.ContractQuote {
	t.Helper()
	for _, c := range chain {
		if c.Strike == strike && c.Kind == kind {
			return c
		}
	}
	t.Fatalf("contract %v %s not in chain", strike, kind)
	return nil
}
