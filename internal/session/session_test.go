package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortvol-trader/internal/config"
	"shortvol-trader/internal/models"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.Default()
	return New(cfg)
}

func TestIVRankDerivation(t *testing.T) {
	sess := newTestSession(t)

	// Defaults: 52-week range 10-35.
	sess.SetVIX(10)
	assert.Equal(t, 0.0, sess.IVRank())

	sess.SetVIX(22.5)
	assert.Equal(t, 50.0, sess.IVRank())

	sess.SetVIX(35)
	assert.Equal(t, 100.0, sess.IVRank())

	sess.SetVIX(14.2)
	assert.Equal(t, 16.8, sess.IVRank())
}

func TestRollCounter(t *testing.T) {
	sess := newTestSession(t)

	assert.Equal(t, 0, sess.RollCount())
	assert.Equal(t, 1, sess.IncrementRolls())
	assert.Equal(t, 2, sess.IncrementRolls())
	assert.Equal(t, 2, sess.RollCount())

	sess.ResetRolls()
	assert.Equal(t, 0, sess.RollCount())
}

func TestTargetAndStopLoss(t *testing.T) {
	sess := newTestSession(t)

	// Default capital 500000 at 0.5% gives a 2500 target and stop.
	sess.Ledger.Append(models.Leg{
		Symbol: "NIFTY28NOV2422000CE", Token: 1001,
		Side: models.LegShort, Quantity: 50, Entry: 100, LTP: 100,
	})

	assert.False(t, sess.TargetHit())
	assert.False(t, sess.StopLossHit())

	// Short leg gains as price falls: (100-49.9)*50 = 2505.
	sess.Ledger.ApplyTick(1001, 49.9)
	assert.True(t, sess.TargetHit())
	assert.False(t, sess.StopLossHit())

	// And loses as price rises: (100-151)*50 = -2550.
	sess.Ledger.ApplyTick(1001, 151)
	assert.False(t, sess.TargetHit())
	assert.True(t, sess.StopLossHit())
}

func TestChainReplaceAndLookup(t *testing.T) {
	sess := newTestSession(t)

	sess.ReplaceChain([]*models.ContractQuote{
		{Symbol: "NIFTY28NOV2422000CE", Token: 1001, Strike: 22000, Kind: models.Call, LTP: 100},
		{Symbol: "NIFTY28NOV2421900PE", Token: 1002, Strike: 21900, Kind: models.Put, LTP: 80},
	})

	q, ok := sess.FindQuote("NIFTY28NOV2421900PE")
	require.True(t, ok)
	assert.Equal(t, 80.0, q.LTP)

	_, ok = sess.FindQuote("NIFTY28NOV2421800PE")
	assert.False(t, ok)

	ok = sess.UpdateQuote(1001, func(c *models.ContractQuote) { c.LTP = 110 })
	require.True(t, ok)
	q, _ = sess.FindQuote("NIFTY28NOV2422000CE")
	assert.Equal(t, 110.0, q.LTP)

	assert.False(t, sess.UpdateQuote(9999, func(c *models.ContractQuote) {}))

	// Chain returns copies; callers must not see later mutations.
	chain := sess.Chain()
	sess.UpdateQuote(1001, func(c *models.ContractQuote) { c.LTP = 999 })
	assert.Equal(t, 110.0, chain[0].LTP)
}

func TestEventLogBounded(t *testing.T) {
	log := NewEventLog(5)

	for i := 0; i < 8; i++ {
		log.Add(models.Event{Text: fmt.Sprintf("event %d", i), Severity: models.EventInfo})
	}

	assert.Equal(t, 5, log.Len())
	last := log.Last(10)
	require.Len(t, last, 5)
	assert.Equal(t, "event 3", last[0].Text)
	assert.Equal(t, "event 7", last[4].Text)

	last = log.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "event 6", last[0].Text)
}

func TestSnapshotTruncation(t *testing.T) {
	sess := newTestSession(t)
	sess.SetSpot(22000)
	sess.SetVIX(15)
	sess.SetActiveStrategy("credit-spread")

	chain := make([]*models.ContractQuote, 30)
	for i := range chain {
		chain[i] = &models.ContractQuote{
			Symbol: fmt.Sprintf("NIFTY28NOV24%dCE", 21000+i*50),
			Token:  uint32(2000 + i),
			Strike: float64(21000 + i*50),
			Kind:   models.Call,
		}
	}
	sess.ReplaceChain(chain)

	for i := 0; i < 60; i++ {
		sess.Log(fmt.Sprintf("event %d", i), models.EventInfo)
	}

	snap := sess.Snapshot()
	assert.Equal(t, 22000.0, snap.Spot)
	assert.Equal(t, 15.0, snap.VIX)
	assert.Equal(t, "credit-spread", snap.ActiveStrategy)
	assert.Len(t, snap.Chain, 20)
	assert.Len(t, snap.Events, 50)
	assert.Equal(t, "event 59", snap.Events[49].Text)
	assert.Equal(t, 2500.0, snap.Target)
	assert.Equal(t, 2500.0, snap.StopLoss)
}
