package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shortvol-trader/internal/models"
)

func shortLeg(symbol string, token uint32, entry float64, qty int) models.Leg {
	return models.Leg{
		Symbol:   symbol,
		Token:    token,
		Side:     models.LegShort,
		Quantity: qty,
		Entry:    entry,
		LTP:      entry,
	}
}

func TestApplyTickUpdatesLegAndSessionPnL(t *testing.T) {
	l := New()
	l.Append(shortLeg("NIFTY28NOV2422200CE", 101, 100, 50))

	// Short leg: price dropping is profit.
	assert.True(t, l.ApplyTick(101, 80))

	leg, ok := l.Find("NIFTY28NOV2422200CE")
	assert.True(t, ok)
	assert.Equal(t, 80.0, leg.LTP)
	assert.Equal(t, (80.0-100.0)*50*-1, leg.PnL)
	assert.Equal(t, 1000.0, l.SessionPnL())
}

func TestApplyTickLongLeg(t *testing.T) {
	l := New()
	l.Append(models.Leg{
		Symbol: "NIFTY28NOV2422600CE", Token: 102,
		Side: models.LegLong, Quantity: 50, Entry: 10,
	})

	l.ApplyTick(102, 4)
	assert.Equal(t, -300.0, l.SessionPnL())
}

func TestSessionPnLSumsAcrossLegs(t *testing.T) {
	l := New()
	l.Append(shortLeg("A", 1, 100, 50)) // short
	l.Append(models.Leg{Symbol: "B", Token: 2, Side: models.LegLong, Quantity: 50, Entry: 20})

	l.ApplyTick(1, 60) // +2000
	l.ApplyTick(2, 15) // -250
	assert.Equal(t, 1750.0, l.SessionPnL())
}

func TestApplyTickUnknownToken(t *testing.T) {
	l := New()
	l.Append(shortLeg("A", 1, 100, 50))
	assert.False(t, l.ApplyTick(999, 42))
	assert.Equal(t, 0.0, l.SessionPnL())
}

func TestRemoveDropsLegAndPnL(t *testing.T) {
	l := New()
	l.Append(shortLeg("A", 1, 100, 50))
	l.Append(shortLeg("B", 2, 50, 50))
	l.ApplyTick(1, 90) // +500
	l.ApplyTick(2, 40) // +500

	assert.True(t, l.Remove("A"))
	assert.False(t, l.Remove("A"))
	assert.Equal(t, 1, l.Count())
	// Removing at close submission drops the leg's P/L from the session
	// total immediately, understating exposure if the close later fails.
	assert.Equal(t, 500.0, l.SessionPnL())
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New()
	l.Append(shortLeg("A", 1, 100, 50))

	snap := l.Snapshot()
	l.Remove("A")

	assert.Len(t, snap, 1)
	assert.Equal(t, "A", snap[0].Symbol)
	assert.Equal(t, 0, l.Count())
}
