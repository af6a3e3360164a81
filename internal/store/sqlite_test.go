package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalFillRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	fills := []FillRecord{
		{Timestamp: base, Symbol: "NIFTY28NOV2422000CE", Side: "SELL", Action: "open", Quantity: 50, Price: 112.5, OrderID: "X1", Tag: "short-ce"},
		{Timestamp: base.Add(time.Minute), Symbol: "NIFTY28NOV2422400CE", Side: "BUY", Action: "open", Quantity: 50, Price: 18.2, OrderID: "X2", Tag: "hedge-ce"},
		{Timestamp: base.Add(time.Hour), Symbol: "NIFTY28NOV2422000CE", Side: "BUY", Action: "close", Quantity: 50, Price: 51.0, OrderID: "X3"},
	}
	for _, f := range fills {
		require.NoError(t, j.RecordFill(ctx, f))
	}

	got, err := j.Fills(ctx, base)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Oldest first.
	assert.Equal(t, "X1", got[0].OrderID)
	assert.Equal(t, "X3", got[2].OrderID)
	assert.Equal(t, "open", got[0].Action)
	assert.Equal(t, "close", got[2].Action)
	assert.Equal(t, 112.5, got[0].Price)
	assert.Equal(t, "short-ce", got[0].Tag)
	assert.Empty(t, got[2].Tag)

	// Since filter excludes earlier rows.
	later, err := j.Fills(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "X3", later[0].OrderID)
}

func TestJournalMarks(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordMark(ctx, MarkRecord{Timestamp: base, SessionPnL: -150, OpenLegs: 2}))
	require.NoError(t, j.RecordMark(ctx, MarkRecord{Timestamp: base.Add(time.Minute), SessionPnL: 420, OpenLegs: 2}))

	marks, err := j.Marks(ctx, base)
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.Equal(t, -150.0, marks[0].SessionPnL)
	assert.Equal(t, 420.0, marks[1].SessionPnL)
	assert.Equal(t, 2, marks[1].OpenLegs)
}
