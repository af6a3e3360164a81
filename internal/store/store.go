// Package store provides the persistent trade journal.
package store

import (
	"context"
	"time"
)

// FillRecord is one executed order, open or close, as journaled by the
// executor.
type FillRecord struct {
	ID        int64
	Timestamp time.Time
	Symbol    string
	Side      string // BUY / SELL
	Action    string // open / close
	Quantity  int
	Price     float64
	OrderID   string
	Tag       string
}

// MarkRecord is a periodic session P/L mark.
type MarkRecord struct {
	ID         int64
	Timestamp  time.Time
	SessionPnL float64
	OpenLegs   int
}

// Journal defines the trade journal capability.
type Journal interface {
	RecordFill(ctx context.Context, fill FillRecord) error
	RecordMark(ctx context.Context, mark MarkRecord) error
	Fills(ctx context.Context, since time.Time) ([]FillRecord, error)
	Marks(ctx context.Context, since time.Time) ([]MarkRecord, error)
	Close() error
}

// NopJournal discards everything. Used when no journal path is configured
// and in tests that do not assert on persistence.
type NopJournal struct{}

func (NopJournal) RecordFill(ctx context.Context, fill FillRecord) error { return nil }
func (NopJournal) RecordMark(ctx context.Context, mark MarkRecord) error { return nil }
func (NopJournal) Fills(ctx context.Context, since time.Time) ([]FillRecord, error) {
	return nil, nil
}
func (NopJournal) Marks(ctx context.Context, since time.Time) ([]MarkRecord, error) {
	return nil, nil
}
func (NopJournal) Close() error { return nil }

var _ Journal = NopJournal{}
