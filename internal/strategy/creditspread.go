package strategy

import (
	"context"
	"fmt"
	"time"

	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/models"
)

// CreditSpreadName identifies the single-sided credit spread strategy.
const CreditSpreadName = "credit-spread"

// CreditSpread sells the most overpriced liquid contract and hedges it
// with a long contract further out of the money. It exits on premium
// decay, session target or stop loss, and rolls the short leg on a delta
// breach while the roll budget lasts.
type CreditSpread struct {
	base

	shortLeg *models.ContractQuote
	hedgeSym string
}

// NewCreditSpread creates the credit spread strategy.
func NewCreditSpread(deps Deps) *CreditSpread {
	deps.Logger = deps.Logger.With().Str("strategy", CreditSpreadName).Logger()
	return &CreditSpread{base: newBase(deps)}
}

func (s *CreditSpread) Name() string { return CreditSpreadName }

func (s *CreditSpread) State() State { return s.state }

// Reset clears the run context and the shared roll counter.
func (s *CreditSpread) Reset() {
	s.state = StateIdle
	s.shortLeg = nil
	s.hedgeSym = ""
	s.deps.Sess.ResetRolls()
}

// Tick advances the strategy by one second.
func (s *CreditSpread) Tick(ctx context.Context) error {
	if s.checkExits(ctx, s.Reset) {
		return nil
	}

	s.maybeRescan(ctx)

	if s.state == StateIdle && s.deps.Ledger.Count() == 0 {
		return s.enter(ctx)
	}
	if s.state == StateActive && s.shortLeg != nil {
		return s.monitor(ctx)
	}
	return nil
}

// enter sells the top mismatch candidate and buys the protective leg.
// Legs are submitted sequentially: if the hedge fails after the short
// fills, the stray short remains open and the run stays idle.
func (s *CreditSpread) enter(ctx context.Context) error {
	cfg := s.deps.Cfg
	chain := s.deps.Sess.Chain()

	var sell *models.ContractQuote
	for i := range chain {
		c := &chain[i]
		if c.IVMismatch >= cfg.Strategy.IVMismatchThreshold && c.OI > cfg.Strategy.MinOpenInterest {
			sell = c
			break
		}
	}
	if sell == nil {
		return nil
	}

	s.state = StateEntering

	hedgePts := s.deps.Scanner.HedgeDistance(time.Now())
	hedgeStrike := sell.Strike + hedgePts*sell.Kind.StrikeDirection()
	hedgeSym := models.BuildOptionSymbol(cfg.Trading.Underlying, sell.Expiry, hedgeStrike, sell.Kind)
	hedgeLTP := s.quoteLTP(ctx, hedgeSym)

	s.deps.Sess.Log(fmt.Sprintf(
		"IV MISMATCH %s | IV %.2f%% vs fair %.1f%% (+%.2f) | delta %.4f",
		sell.Symbol, sell.Greeks.IV, s.deps.Sess.VIX(), sell.IVMismatch, sell.Greeks.Delta),
		models.EventAlert)
	s.deps.Sess.Log(fmt.Sprintf(
		"ENTERING: SELL %s @ %.2f | BUY %s @ %.2f | net credit %.2f pts",
		sell.Symbol, sell.LTP, hedgeSym, hedgeLTP, sell.LTP-hedgeLTP),
		models.EventTrade)

	shortLeg, err := s.deps.Exec.Place(ctx, executor.PlaceRequest{
		Symbol:     sell.Symbol,
		Token:      sell.Token,
		Side:       models.LegShort,
		Quantity:   cfg.Trading.LotSize,
		LimitPrice: sell.LTP,
		Tag:        "A_SHORT",
	})
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("symbol", sell.Symbol).Msg("short leg entry failed")
		s.state = StateIdle
		return err
	}

	_, err = s.deps.Exec.Place(ctx, executor.PlaceRequest{
		Symbol:     hedgeSym,
		Token:      s.lookupToken(ctx, hedgeSym),
		Side:       models.LegLong,
		Quantity:   cfg.Trading.LotSize,
		LimitPrice: hedgeLTP,
		Tag:        "A_HEDGE",
	})
	if err != nil {
		// The sold leg is live and unhedged. Not auto-corrected: the run
		// stays idle and the stray leg shows in the ledger.
		s.deps.Logger.Error().Err(err).Str("symbol", hedgeSym).Msg("hedge leg entry failed, short leg unhedged")
		s.deps.Sess.Log(fmt.Sprintf("HEDGE FAILED for %s | short leg %s is unhedged", hedgeSym, sell.Symbol),
			models.EventAlert)
		s.state = StateIdle
		return err
	}

	held := *sell
	held.LTP = shortLeg.Entry
	s.shortLeg = &held
	s.hedgeSym = hedgeSym
	s.state = StateActive
	return nil
}

// monitor checks the short leg for premium decay and delta breach.
func (s *CreditSpread) monitor(ctx context.Context) error {
	cfg := s.deps.Cfg

	current, ok := s.deps.Sess.FindQuote(s.shortLeg.Symbol)
	if !ok {
		return nil
	}

	leg, ok := s.deps.Ledger.Find(s.shortLeg.Symbol)
	if !ok {
		return nil
	}

	decay := 0.0
	if leg.Entry > 0 {
		decay = 1 - current.LTP/leg.Entry
	}
	if decay >= cfg.Strategy.DecayTriggerPct {
		s.deps.Sess.Log(fmt.Sprintf("DECAY EXIT (%.0f%%) on %s", decay*100, s.shortLeg.Symbol),
			models.EventTrade)
		s.exitAll(ctx, s.Reset)
		return nil
	}

	if abs(current.Greeks.Delta) > cfg.Strategy.AdjustmentDelta &&
		s.deps.Sess.RollCount() < cfg.Strategy.MaxRolls {
		return s.roll(ctx, &current)
	}
	return nil
}

// roll closes the breached short leg and sells a new one further from
// the money. The hedge leg is left in place.
func (s *CreditSpread) roll(ctx context.Context, current *models.ContractQuote) error {
	cfg := s.deps.Cfg
	s.state = StateRolling

	rolls := s.deps.Sess.IncrementRolls()
	s.deps.Sess.Log(fmt.Sprintf("ROLL %d/%d | delta %.2f breached, rolling %.0f pts",
		rolls, cfg.Strategy.MaxRolls, current.Greeks.Delta, cfg.Strategy.RollStepPts),
		models.EventAlert)

	if leg, ok := s.deps.Ledger.Find(current.Symbol); ok {
		if err := s.deps.Exec.CloseLeg(ctx, leg); err != nil {
			s.deps.Logger.Error().Err(err).Str("symbol", current.Symbol).Msg("roll close failed")
			s.state = StateActive
			return err
		}
	}

	newStrike := current.Strike + cfg.Strategy.RollStepPts*current.Kind.StrikeDirection()
	newSym := models.BuildOptionSymbol(cfg.Trading.Underlying, current.Expiry, newStrike, current.Kind)
	ltp := s.quoteLTP(ctx, newSym)

	newLeg, err := s.deps.Exec.Place(ctx, executor.PlaceRequest{
		Symbol:     newSym,
		Token:      s.lookupToken(ctx, newSym),
		Side:       models.LegShort,
		Quantity:   cfg.Trading.LotSize,
		LimitPrice: ltp,
		Tag:        "A_ROLL",
	})
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("symbol", newSym).Msg("roll re-entry failed")
		s.state = StateActive
		return err
	}

	rolled := *current
	rolled.Strike = newStrike
	rolled.Symbol = newSym
	rolled.LTP = newLeg.Entry
	s.shortLeg = &rolled
	s.state = StateActive
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ Strategy = (*CreditSpread)(nil)
