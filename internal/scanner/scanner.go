// Package scanner builds and ranks the weekly option chain around the
// current spot price.
package scanner

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/pricing"
	"shortvol-trader/internal/session"
	"shortvol-trader/pkg/utils"
)

// Scanner fetches quotes for a band of strikes around the money, solves
// Greeks for each contract and ranks the chain by IV mismatch against
// the volatility index.
type Scanner struct {
	cfg    *config.Config
	broker broker.Broker
	sess   *session.Session
	logger zerolog.Logger

	retryCfg utils.RetryConfig
}

// New creates a chain scanner.
func New(cfg *config.Config, b broker.Broker, sess *session.Session, logger zerolog.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg,
		broker:   b,
		sess:     sess,
		logger:   logger.With().Str("component", "scanner").Logger(),
		retryCfg: utils.DefaultRetryConfig(),
	}
}

// NearestWeeklyExpiry returns the next occurrence of the expiry weekday
// strictly after now. If now falls on the expiry weekday the expiry one
// week out is selected, never the same day.
func NearestWeeklyExpiry(now time.Time, weekday time.Weekday) time.Time {
	now = now.In(utils.IndiaLocation)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, utils.IndiaLocation)
	return utils.NextWeekday(day.AddDate(0, 0, 1), weekday)
}

// TimeToExpiry returns the year fraction from now until the market close
// on the expiry date.
func TimeToExpiry(now, expiry time.Time) float64 {
	close := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 15, 30, 0, 0, utils.IndiaLocation)
	hours := close.Sub(now).Hours()
	if hours < 0 {
		hours = 0
	}
	return hours / 24 / 365
}

// StrikeBand generates strikes around the at-the-money point: spot is
// rounded to the nearest step and perSide steps are taken on each side.
// The bounds are inclusive, so the band holds 2*perSide+1 strikes.
func StrikeBand(spot, step float64, perSide int) []float64 {
	atm := math.Round(spot/step) * step
	strikes := make([]float64, 0, 2*perSide+1)
	for i := -perSide; i <= perSide; i++ {
		strikes = append(strikes, atm+float64(i)*step)
	}
	return strikes
}

// HedgeDistance returns the protective-leg width in points for the given
// time of day. Mornings carry more gamma risk, so the buffer is wider
// before the cutoff hour.
func (sc *Scanner) HedgeDistance(now time.Time) float64 {
	if now.In(utils.IndiaLocation).Hour() < sc.cfg.Strategy.HedgeCutoffHour {
		return sc.cfg.Strategy.PreNoonHedgePts
	}
	return sc.cfg.Strategy.PostNoonHedgePts
}

// Scan rebuilds the ranked chain for the nearest weekly expiry. Contracts
// quoting below the minimum premium are skipped as illiquid. The result
// is sorted descending by IV mismatch; ties keep strike/kind enumeration
// order.
func (sc *Scanner) Scan(ctx context.Context) ([]*models.ContractQuote, error) {
	now := time.Now().In(utils.IndiaLocation)
	expiry := NearestWeeklyExpiry(now, time.Weekday(sc.cfg.Scanner.ExpiryWeekday))
	expiryStr := models.FormatExpiry(expiry)
	tte := TimeToExpiry(now, expiry)

	spot := sc.sess.Spot()
	vix := sc.sess.VIX()
	strikes := StrikeBand(spot, sc.cfg.Scanner.StrikeStep, sc.cfg.Scanner.StrikesPerSide)

	type candidate struct {
		symbol string
		strike float64
		kind   models.OptionKind
	}
	candidates := make([]candidate, 0, len(strikes)*2)
	symbols := make([]string, 0, len(strikes)*2)
	for _, strike := range strikes {
		for _, kind := range []models.OptionKind{models.Call, models.Put} {
			sym := models.BuildOptionSymbol(sc.cfg.Trading.Underlying, expiryStr, strike, kind)
			candidates = append(candidates, candidate{symbol: sym, strike: strike, kind: kind})
			symbols = append(symbols, "NFO:"+sym)
		}
	}

	quotes, err := utils.RetryWithResult(ctx, sc.retryCfg, func() (map[string]models.Quote, error) {
		return sc.broker.GetQuotes(ctx, symbols)
	})
	if err != nil {
		return nil, err
	}

	chain := make([]*models.ContractQuote, 0, len(candidates))
	for _, c := range candidates {
		q, ok := quotes["NFO:"+c.symbol]
		if !ok {
			continue
		}
		if q.LTP < sc.cfg.Scanner.MinPremium {
			continue
		}

		greeks := pricing.FullGreeks(spot, c.strike, tte, sc.cfg.Scanner.RiskFreeRate, q.LTP, c.kind)
		mismatch := math.Round((greeks.IV-vix)*100) / 100

		token, err := sc.broker.LookupToken(ctx, c.symbol, models.NFO)
		if err != nil {
			sc.logger.Warn().Err(err).Str("symbol", c.symbol).Msg("token lookup failed, skipping contract")
			continue
		}

		chain = append(chain, &models.ContractQuote{
			Symbol:     c.symbol,
			Token:      token,
			Strike:     c.strike,
			Kind:       c.kind,
			Expiry:     expiryStr,
			LTP:        q.LTP,
			OI:         q.OI,
			Volume:     q.Volume,
			Bid:        q.BidPrice,
			Ask:        q.AskPrice,
			Greeks:     greeks,
			IVMismatch: mismatch,
			Overpriced: mismatch >= sc.cfg.Strategy.IVMismatchThreshold,
		})
	}

	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].IVMismatch > chain[j].IVMismatch
	})

	sc.logger.Debug().
		Int("contracts", len(chain)).
		Str("expiry", expiryStr).
		Float64("spot", spot).
		Float64("vix", vix).
		Msg("chain rescan complete")

	return chain, nil
}
