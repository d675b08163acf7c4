package results

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq" // postgres driver, registered via sqlx.Connect
)

// SQLSink persists trades and equity snapshots to a Postgres database via
// sqlx, for runs where results need to survive the process and be queried
// by external reporting tools (spec §4.13, optional durable sink).
//
// Expected schema:
//
//	CREATE TABLE trades (
//	    run_id TEXT, symbol TEXT, side TEXT,
//	    entry_bar INT, exit_bar INT,
//	    entry_time TIMESTAMPTZ, exit_time TIMESTAMPTZ,
//	    entry_price DOUBLE PRECISION, exit_price DOUBLE PRECISION,
//	    shares DOUBLE PRECISION, pnl DOUBLE PRECISION, exit_reason TEXT
//	);
//	CREATE TABLE equity_curve (
//	    run_id TEXT, bar INT, ts TIMESTAMPTZ, equity DOUBLE PRECISION
//	);
type SQLSink struct {
	db    *sqlx.DB
	runID string
}

// NewSQLSink opens a Postgres connection using sqlx.Connect and tags every
// row written with runID, so multiple runs can share one results table.
func NewSQLSink(dataSourceName, runID string) (*SQLSink, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("results: connect postgres: %w", err)
	}
	return &SQLSink{db: db, runID: runID}, nil
}

// RecordTrade inserts one completed trade row.
func (s *SQLSink) RecordTrade(ctx context.Context, t Trade) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO trades
			(run_id, symbol, side, entry_bar, exit_bar, entry_time, exit_time,
			 entry_price, exit_price, shares, pnl, exit_reason)
		VALUES
			(:run_id, :symbol, :side, :entry_bar, :exit_bar, :entry_time, :exit_time,
			 :entry_price, :exit_price, :shares, :pnl, :exit_reason)
	`, map[string]interface{}{
		"run_id":      s.runID,
		"symbol":      t.Symbol,
		"side":        t.Side,
		"entry_bar":   t.EntryBar,
		"exit_bar":    t.ExitBar,
		"entry_time":  t.EntryTime,
		"exit_time":   t.ExitTime,
		"entry_price": t.EntryPrice,
		"exit_price":  t.ExitPrice,
		"shares":      t.Shares,
		"pnl":         t.PnL,
		"exit_reason": t.ExitReason,
	})
	if err != nil {
		return fmt.Errorf("results: insert trade: %w", err)
	}
	return nil
}

// RecordEquity inserts one equity-curve row.
func (s *SQLSink) RecordEquity(ctx context.Context, snap EquitySnapshot) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO equity_curve (run_id, bar, ts, equity)
		VALUES (:run_id, :bar, :ts, :equity)
	`, map[string]interface{}{
		"run_id": s.runID,
		"bar":    snap.Bar,
		"ts":     snap.Timestamp,
		"equity": snap.Equity,
	})
	if err != nil {
		return fmt.Errorf("results: insert equity snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database connection pool.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
