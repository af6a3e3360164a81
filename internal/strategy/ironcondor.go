package strategy

import (
	"context"
	"fmt"
	"time"

	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/models"
)

// IronCondorName identifies the symmetric two-sided spread strategy.
const IronCondorName = "iron-condor"

// legPause is the gap between sequential leg submissions, a throughput
// and quote-staleness guard rather than a correctness guarantee.
const legPause = 500 * time.Millisecond

// IronCondor sells a call spread and a put spread simultaneously when
// the volatility rank clears the entry gate. Each short leg is monitored
// independently for a delta breach; a breached leg is replaced further
// out of the money against a roll budget shared by both sides.
type IronCondor struct {
	base

	shortCE *models.ContractQuote
	shortPE *models.ContractQuote
}

// NewIronCondor creates the iron condor strategy.
func NewIronCondor(deps Deps) *IronCondor {
	deps.Logger = deps.Logger.With().Str("strategy", IronCondorName).Logger()
	return &IronCondor{base: newBase(deps)}
}

func (s *IronCondor) Name() string { return IronCondorName }

func (s *IronCondor) State() State { return s.state }

// Reset clears the run context and the shared roll counter.
func (s *IronCondor) Reset() {
	s.state = StateIdle
	s.shortCE = nil
	s.shortPE = nil
	s.deps.Sess.ResetRolls()
}

// Tick advances the strategy by one second.
func (s *IronCondor) Tick(ctx context.Context) error {
	if s.checkExits(ctx, s.Reset) {
		return nil
	}

	s.maybeRescan(ctx)

	if s.state == StateIdle {
		cfg := s.deps.Cfg
		if s.deps.Sess.IVRank() >= cfg.Strategy.IVRankEntry {
			return s.enter(ctx)
		}
		// Log the gate once per rescan interval, not every second.
		if n := cfg.Scanner.RescanTicks; n > 0 && s.tickCount%n == 0 {
			s.deps.Sess.Log(fmt.Sprintf("Waiting for IV rank >= %.0f. Current: %.1f",
				cfg.Strategy.IVRankEntry, s.deps.Sess.IVRank()), models.EventInfo)
		}
		return nil
	}

	if s.state == StateActive {
		return s.monitor(ctx)
	}
	return nil
}

// enter sells one call and one put with deltas inside the configured
// band and buys a protective wing on each side. The four legs go out
// sequentially with a short pause between submissions; the run goes
// active only when all four fill. A partial fill leaves the run idle
// with any filled legs stranded in the ledger, a known gap.
func (s *IronCondor) enter(ctx context.Context) error {
	cfg := s.deps.Cfg
	chain := s.deps.Sess.Chain()

	shortCE := s.pickShort(chain, models.Call)
	shortPE := s.pickShort(chain, models.Put)
	if shortCE == nil || shortPE == nil {
		s.deps.Sess.Log("Could not find suitable strikes for iron condor.", models.EventAlert)
		return nil
	}

	s.state = StateEntering

	wing := cfg.Strategy.CondorWingWidth
	longCESym := models.BuildOptionSymbol(cfg.Trading.Underlying, shortCE.Expiry, shortCE.Strike+wing, models.Call)
	longPESym := models.BuildOptionSymbol(cfg.Trading.Underlying, shortPE.Expiry, shortPE.Strike-wing, models.Put)
	longCELTP := s.quoteLTP(ctx, longCESym)
	longPELTP := s.quoteLTP(ctx, longPESym)

	netCredit := shortCE.LTP + shortPE.LTP - longCELTP - longPELTP
	s.deps.Sess.Log(fmt.Sprintf(
		"IRON CONDOR | SELL %s @ %.2f + %s @ %.2f | net credit %.2f pts | IV rank %.0f",
		shortCE.Symbol, shortCE.LTP, shortPE.Symbol, shortPE.LTP, netCredit, s.deps.Sess.IVRank()),
		models.EventTrade)

	legs := []executor.PlaceRequest{
		{Symbol: shortCE.Symbol, Token: shortCE.Token, Side: models.LegShort,
			Quantity: cfg.Trading.LotSize, LimitPrice: shortCE.LTP, Tag: "B_SHORT_CE"},
		{Symbol: longCESym, Token: s.lookupToken(ctx, longCESym), Side: models.LegLong,
			Quantity: cfg.Trading.LotSize, LimitPrice: longCELTP, Tag: "B_LONG_CE"},
		{Symbol: shortPE.Symbol, Token: shortPE.Token, Side: models.LegShort,
			Quantity: cfg.Trading.LotSize, LimitPrice: shortPE.LTP, Tag: "B_SHORT_PE"},
		{Symbol: longPESym, Token: s.lookupToken(ctx, longPESym), Side: models.LegLong,
			Quantity: cfg.Trading.LotSize, LimitPrice: longPELTP, Tag: "B_LONG_PE"},
	}

	for i, req := range legs {
		if i > 0 {
			s.deps.Pause(legPause)
		}
		if _, err := s.deps.Exec.Place(ctx, req); err != nil {
			s.deps.Logger.Error().Err(err).Str("symbol", req.Symbol).
				Int("filled_legs", i).Msg("condor leg failed, aborting entry")
			s.deps.Sess.Log(fmt.Sprintf("CONDOR ENTRY ABORTED at %s | %d leg(s) already filled",
				req.Symbol, i), models.EventAlert)
			s.state = StateIdle
			return err
		}
	}

	ce := *shortCE
	pe := *shortPE
	s.shortCE = &ce
	s.shortPE = &pe
	s.state = StateActive
	return nil
}

// pickShort returns the first chain contract of the given kind whose
// delta magnitude falls inside the configured short-strike band. The
// chain is mismatch-ranked, so the pick favors the richest premium.
func (s *IronCondor) pickShort(chain []models.ContractQuote, kind models.OptionKind) *models.ContractQuote {
	cfg := s.deps.Cfg
	for i := range chain {
		c := &chain[i]
		if c.Kind != kind {
			continue
		}
		d := abs(c.Greeks.Delta)
		if d >= cfg.Strategy.DeltaShortMin && d <= cfg.Strategy.DeltaShortMax {
			return c
		}
	}
	return nil
}

// monitor checks each short leg independently for a delta breach.
func (s *IronCondor) monitor(ctx context.Context) error {
	cfg := s.deps.Cfg

	for _, short := range []**models.ContractQuote{&s.shortCE, &s.shortPE} {
		if *short == nil {
			continue
		}
		current, ok := s.deps.Sess.FindQuote((*short).Symbol)
		if !ok {
			continue
		}
		if abs(current.Greeks.Delta) > cfg.Strategy.AdjustmentDelta &&
			s.deps.Sess.RollCount() < cfg.Strategy.MaxRolls {
			if err := s.adjust(ctx, short, &current); err != nil {
				return err
			}
		}
	}
	return nil
}

// adjust closes the breached short leg and sells a replacement further
// out of the money. Both sides draw on the same roll budget.
func (s *IronCondor) adjust(ctx context.Context, short **models.ContractQuote, current *models.ContractQuote) error {
	cfg := s.deps.Cfg
	s.state = StateRolling

	rolls := s.deps.Sess.IncrementRolls()
	s.deps.Sess.Log(fmt.Sprintf("CONDOR ADJUST %d/%d | %s delta %.2f, moving %.0f pts",
		rolls, cfg.Strategy.MaxRolls, current.Kind, current.Greeks.Delta, cfg.Strategy.RollStepPts),
		models.EventAlert)

	if leg, ok := s.deps.Ledger.Find(current.Symbol); ok {
		if err := s.deps.Exec.CloseLeg(ctx, leg); err != nil {
			s.deps.Logger.Error().Err(err).Str("symbol", current.Symbol).Msg("adjust close failed")
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
		Tag:        "B_ADJUST",
	})
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("symbol", newSym).Msg("adjust re-entry failed")
		s.state = StateActive
		return err
	}

	rolled := *current
	rolled.Strike = newStrike
	rolled.Symbol = newSym
	rolled.LTP = newLeg.Entry
	*short = &rolled
	s.state = StateActive
	return nil
}

var _ Strategy = (*IronCondor)(nil)
