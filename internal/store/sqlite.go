package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database at dbPath.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes come from the executor's fill path and the scheduler's mark
	// tick; a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		order_id TEXT NOT NULL,
		tag TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_timestamp ON fills(timestamp);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);

	CREATE TABLE IF NOT EXISTS marks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		session_pnl REAL NOT NULL,
		open_legs INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_marks_timestamp ON marks(timestamp);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordFill journals one executed order.
func (j *SQLiteJournal) RecordFill(ctx context.Context, fill FillRecord) error {
	ts := fill.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fills (timestamp, symbol, side, action, quantity, price, order_id, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, fill.Symbol, fill.Side, fill.Action, fill.Quantity, fill.Price, fill.OrderID, fill.Tag)
	if err != nil {
		return fmt.Errorf("failed to record fill: %w", err)
	}
	return nil
}

// RecordMark journals a session P/L mark.
func (j *SQLiteJournal) RecordMark(ctx context.Context, mark MarkRecord) error {
	ts := mark.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO marks (timestamp, session_pnl, open_legs)
		VALUES (?, ?, ?)`,
		ts, mark.SessionPnL, mark.OpenLegs)
	if err != nil {
		return fmt.Errorf("failed to record mark: %w", err)
	}
	return nil
}

// Fills returns journaled fills at or after since, oldest first.
func (j *SQLiteJournal) Fills(ctx context.Context, since time.Time) ([]FillRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, timestamp, symbol, side, action, quantity, price, order_id, tag
		FROM fills WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		var tag sql.NullString
		if err := rows.Scan(&f.ID, &f.Timestamp, &f.Symbol, &f.Side, &f.Action,
			&f.Quantity, &f.Price, &f.OrderID, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Tag = tag.String
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Marks returns journaled P/L marks at or after since, oldest first.
func (j *SQLiteJournal) Marks(ctx context.Context, since time.Time) ([]MarkRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, timestamp, session_pnl, open_legs
		FROM marks WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query marks: %w", err)
	}
	defer rows.Close()

	var marks []MarkRecord
	for rows.Next() {
		var m MarkRecord
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.SessionPnL, &m.OpenLegs); err != nil {
			return nil, fmt.Errorf("failed to scan mark: %w", err)
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// Ensure SQLiteJournal implements Journal interface
var _ Journal = (*SQLiteJournal)(nil)
