package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
)

const testExpiry = "28NOV24"

type harness struct {
	cfg  *config.Config
	sim  *broker.SimBroker
	sess *session.Session
	deps Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	sim := broker.NewSimBroker()
	sess := session.New(cfg)
	sess.SetSpot(22000)
	sess.SetVIX(15)

	sc := scanner.New(cfg, sim, sess, zerolog.Nop())
	exec := executor.New(cfg, sim, sess.Ledger, nil, zerolog.Nop())

	return &harness{
		cfg:  cfg,
		sim:  sim,
		sess: sess,
		deps: Deps{
			Cfg:     cfg,
			Sess:    sess,
			Broker:  sim,
			Scanner: sc,
			Exec:    exec,
			Ledger:  sess.Ledger,
			Logger:  zerolog.Nop(),
			Pause:   func(time.Duration) {},
		},
	}
}

func contract(strike float64, kind models.OptionKind, ltp, delta, mismatch float64, oi int64, token uint32) *models.ContractQuote {
	return &models.ContractQuote{
		Symbol:     models.BuildOptionSymbol("NIFTY", testExpiry, strike, kind),
		Token:      token,
		Strike:     strike,
		Kind:       kind,
		Expiry:     testExpiry,
		LTP:        ltp,
		OI:         oi,
		Greeks:     models.Greeks{IV: 15 + mismatch, Delta: delta},
		IVMismatch: mismatch,
		Overpriced: mismatch >= 2.0,
	}
}

func countEvents(sess *session.Session, substr string) int {
	n := 0
	for _, e := range sess.Events(200) {
		if strings.Contains(e.Text, substr) {
			n++
		}
	}
	return n
}

func TestCreditSpreadEntersTopCandidate(t *testing.T) {
	h := newHarness(t)
	h.sess.ReplaceChain([]*models.ContractQuote{
		contract(22000, models.Call, 100, 0.35, 4.0, 600_000, 1001),
		contract(22000, models.Put, 90, -0.32, 1.5, 700_000, 1002),
	})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 2, h.sess.Ledger.Count())

	placed := h.sim.PlacedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, models.OrderSideSell, placed[0].Side)
	assert.Equal(t, "NIFTY28NOV2422000CE", placed[0].Symbol)
	assert.Equal(t, models.OrderSideBuy, placed[1].Side, "hedge is a long leg")
	assert.True(t, strings.HasSuffix(placed[1].Symbol, "CE"), "hedge shares the kind")
	assert.Greater(t, placed[1].Symbol, placed[0].Symbol, "call hedge sits further out of the money")

	assert.Equal(t, 1, countEvents(h.sess, "ENTERING: SELL"))
}

func TestCreditSpreadSkipsIlliquidAndFairContracts(t *testing.T) {
	h := newHarness(t)
	h.sess.ReplaceChain([]*models.ContractQuote{
		// Rich but illiquid.
		contract(22000, models.Call, 100, 0.35, 4.0, 100_000, 1001),
		// Liquid but fairly priced.
		contract(21900, models.Put, 90, -0.30, 1.0, 900_000, 1002),
	})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, h.sim.PlacedOrders())
}

func TestCreditSpreadDecayExit(t *testing.T) {
	h := newHarness(t)
	short := contract(22000, models.Call, 100, 0.35, 4.0, 600_000, 1001)
	h.sess.ReplaceChain([]*models.ContractQuote{short})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, StateActive, s.State())

	// Short entered at 100 decays to 45: decay 0.55 >= the 0.50 trigger.
	decayed := *short
	decayed.LTP = 45
	decayed.Greeks.Delta = 0.10
	h.sess.ReplaceChain([]*models.ContractQuote{&decayed})
	h.sess.IncrementRolls()

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, h.sess.Ledger.Count(), "decay exit flattens the book")
	assert.Zero(t, h.sess.RollCount(), "roll counter resets with the run")
	assert.Equal(t, 1, countEvents(h.sess, "DECAY EXIT"))
}

func TestTargetHitFiresOnceAndDeactivates(t *testing.T) {
	h := newHarness(t)
	h.sess.SetActiveStrategy(CreditSpreadName)
	h.sess.ReplaceChain([]*models.ContractQuote{
		contract(22000, models.Call, 100, 0.35, 4.0, 600_000, 1001),
	})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, StateActive, s.State())

	// Capital 500000 at 0.5% => target 2500. The short leg moving from
	// 100 to 48 yields (48-100)*50*(-1) = 2600.
	require.True(t, h.sess.Ledger.ApplyTick(1001, 48))
	require.True(t, h.sess.TargetHit())

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, h.sess.Ledger.Count())
	assert.Empty(t, h.sess.ActiveStrategy(), "target hit deactivates the strategy")
	assert.Equal(t, 1, countEvents(h.sess, "TARGET HIT"))
	assert.False(t, h.sess.TargetHit(), "flattened book cannot re-trigger the target branch")
}

func TestStopLossClosesEverything(t *testing.T) {
	h := newHarness(t)
	h.sess.SetActiveStrategy(CreditSpreadName)
	h.sess.ReplaceChain([]*models.ContractQuote{
		contract(22000, models.Call, 100, 0.35, 4.0, 600_000, 1001),
	})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))

	// Short leg blowing out from 100 to 155: (155-100)*50*(-1) = -2750,
	// through the -2500 stop.
	require.True(t, h.sess.Ledger.ApplyTick(1001, 155))
	require.True(t, h.sess.StopLossHit())

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, h.sess.Ledger.Count())
	assert.Equal(t, 1, countEvents(h.sess, "STOP LOSS"))
}

func TestCreditSpreadRollsOnDeltaBreach(t *testing.T) {
	h := newHarness(t)
	short := contract(22000, models.Call, 100, 0.35, 4.0, 600_000, 1001)
	h.sess.ReplaceChain([]*models.ContractQuote{short})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))
	ordersAfterEntry := len(h.sim.PlacedOrders())

	breached := *short
	breached.Greeks.Delta = 0.52
	h.sess.ReplaceChain([]*models.ContractQuote{&breached})

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 1, h.sess.RollCount())
	assert.Equal(t, 2, h.sess.Ledger.Count(), "new short plus the untouched hedge")

	placed := h.sim.PlacedOrders()
	require.Len(t, placed, ordersAfterEntry+2, "close old short, open new short")
	assert.Equal(t, models.OrderSideBuy, placed[ordersAfterEntry].Side)
	assert.Equal(t, "NIFTY28NOV2422000CE", placed[ordersAfterEntry].Symbol)
	assert.Equal(t, models.OrderSideSell, placed[ordersAfterEntry+1].Side)
	assert.Equal(t, "NIFTY28NOV2422050CE", placed[ordersAfterEntry+1].Symbol,
		"call rolls 50 pts up, away from the money")
	assert.Equal(t, 1, countEvents(h.sess, "ROLL 1/"))
}

func TestCreditSpreadRollBudgetExhausted(t *testing.T) {
	h := newHarness(t)
	short := contract(22000, models.Call, 100, 0.35, 4.0, 600_000, 1001)
	h.sess.ReplaceChain([]*models.ContractQuote{short})

	s := NewCreditSpread(h.deps)
	require.NoError(t, s.Tick(context.Background()))

	for i := 0; i < h.cfg.Strategy.MaxRolls; i++ {
		h.sess.IncrementRolls()
	}
	ordersBefore := len(h.sim.PlacedOrders())

	breached := *short
	breached.Greeks.Delta = 0.60
	h.sess.ReplaceChain([]*models.ContractQuote{&breached})

	require.NoError(t, s.Tick(context.Background()))

	assert.Len(t, h.sim.PlacedOrders(), ordersBefore, "exhausted budget means no further roll")
	assert.Equal(t, h.cfg.Strategy.MaxRolls, h.sess.RollCount())
	assert.Equal(t, StateActive, s.State())
}

func condorChain() []*models.ContractQuote {
	return []*models.ContractQuote{
		contract(22200, models.Call, 80, 0.25, 3.0, 800_000, 2001),
		contract(21800, models.Put, 75, -0.26, 2.8, 750_000, 2002),
		// Too close to the money for the short band.
		contract(22000, models.Call, 140, 0.50, 3.5, 900_000, 2003),
	}
}

func TestIronCondorWaitsForIVRankGate(t *testing.T) {
	h := newHarness(t)
	// VIX 15 in the 10-35 band gives rank 20, below the 60 gate.
	h.sess.ReplaceChain(condorChain())

	s := NewIronCondor(h.deps)
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, h.sim.PlacedOrders())
}

func TestIronCondorEntersAllFourLegs(t *testing.T) {
	h := newHarness(t)
	h.sess.SetVIX(28) // rank 72, above the gate
	h.sess.ReplaceChain(condorChain())

	s := NewIronCondor(h.deps)
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 4, h.sess.Ledger.Count())

	placed := h.sim.PlacedOrders()
	require.Len(t, placed, 4)
	assert.Equal(t, "NIFTY28NOV2422200CE", placed[0].Symbol)
	assert.Equal(t, models.OrderSideSell, placed[0].Side)
	assert.Equal(t, "NIFTY28NOV2422300CE", placed[1].Symbol, "call wing 100 pts further out")
	assert.Equal(t, models.OrderSideBuy, placed[1].Side)
	assert.Equal(t, "NIFTY28NOV2421800PE", placed[2].Symbol)
	assert.Equal(t, models.OrderSideSell, placed[2].Side)
	assert.Equal(t, "NIFTY28NOV2421700PE", placed[3].Symbol, "put wing 100 pts further out")
	assert.Equal(t, models.OrderSideBuy, placed[3].Side)

	assert.Equal(t, 1, countEvents(h.sess, "IRON CONDOR"))
}

func TestIronCondorPartialEntryStaysIdle(t *testing.T) {
	h := newHarness(t)
	h.sess.SetVIX(28)
	h.sess.ReplaceChain(condorChain())
	h.sim.FailPlacement("NIFTY28NOV2422300CE", errors.New("margin check failed"))

	s := NewIronCondor(h.deps)
	err := s.Tick(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateIdle, s.State(), "partial entry never goes active")
	assert.Equal(t, 1, h.sess.Ledger.Count(), "the filled short CE is stranded")
	assert.Equal(t, 1, countEvents(h.sess, "CONDOR ENTRY ABORTED"))
}

func TestIronCondorAdjustsBreachedSide(t *testing.T) {
	h := newHarness(t)
	h.sess.SetVIX(28)
	chain := condorChain()
	h.sess.ReplaceChain(chain)

	s := NewIronCondor(h.deps)
	require.NoError(t, s.Tick(context.Background()))
	ordersAfterEntry := len(h.sim.PlacedOrders())

	breached := *chain[1] // short PE
	breached.Greeks.Delta = -0.55
	h.sess.ReplaceChain([]*models.ContractQuote{chain[0], &breached, chain[2]})

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 1, h.sess.RollCount(), "both sides share one roll budget")
	assert.Equal(t, 4, h.sess.Ledger.Count())

	placed := h.sim.PlacedOrders()
	require.Len(t, placed, ordersAfterEntry+2)
	assert.Equal(t, "NIFTY28NOV2421800PE", placed[ordersAfterEntry].Symbol)
	assert.Equal(t, models.OrderSideBuy, placed[ordersAfterEntry].Side)
	assert.Equal(t, "NIFTY28NOV2421750PE", placed[ordersAfterEntry+1].Symbol,
		"put rolls 50 pts down, away from the money")
	assert.Equal(t, models.OrderSideSell, placed[ordersAfterEntry+1].Side)
	assert.Equal(t, 1, countEvents(h.sess, "CONDOR ADJUST 1/"))
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	h := newHarness(t)
	_, err := New("martingale", h.deps)
	require.Error(t, err)

	s, err := New(CreditSpreadName, h.deps)
	require.NoError(t, err)
	assert.Equal(t, CreditSpreadName, s.Name())

	s, err = New(IronCondorName, h.deps)
	require.NoError(t, err)
	assert.Equal(t, IronCondorName, s.Name())
}
