// Package results accumulates trade and equity history during a backtest
// or live run and derives the summary statistics reported at the end of a
// run (spec §4.13): win/loss counts, mean return per day, and profit
// factor, computed only over trades closed after a configurable warm-up
// boundary.
package results

import (
	"context"
	"time"
)

// Trade is one completed round-trip position.
type Trade struct {
	Symbol     string
	Side       string
	EntryBar   int
	ExitBar    int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Shares     float64
	PnL        float64
	ExitReason string
}

// EquitySnapshot captures the portfolio's mark-to-market equity at a
// point in time, typically once per trading day.
type EquitySnapshot struct {
	Bar       int
	Timestamp time.Time
	Equity    float64
}

// Sink persists trades and equity snapshots as they occur. Implementations
// must tolerate being called many times per run and must not block the
// engine for long (spec §4.13, "recording must not stall the tick loop").
type Sink interface {
	RecordTrade(ctx context.Context, t Trade) error
	RecordEquity(ctx context.Context, s EquitySnapshot) error
	Close() error
}

// BarsPerDay mirrors the rotation package's trading-day length, used to
// derive a trade's day index from its exit bar.
const BarsPerDay = 390

// Summary holds the derived statistics over a trade set.
type Summary struct {
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	MeanReturnPerDay float64
	TotalPnL     float64
}

// Accumulator collects trades and equity snapshots in memory as a run
// progresses and can summarize them on demand. It also satisfies Sink, so
// it can be used directly as the in-memory results destination.
type Accumulator struct {
	trades  []Trade
	equity  []EquitySnapshot
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// RecordTrade appends a completed trade.
func (a *Accumulator) RecordTrade(ctx context.Context, t Trade) error {
	a.trades = append(a.trades, t)
	return nil
}

// RecordEquity appends an equity snapshot.
func (a *Accumulator) RecordEquity(ctx context.Context, s EquitySnapshot) error {
	a.equity = append(a.equity, s)
	return nil
}

// Close is a no-op for the in-memory accumulator.
func (a *Accumulator) Close() error { return nil }

// Trades returns every recorded trade, oldest first.
func (a *Accumulator) Trades() []Trade {
	out := make([]Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// Equity returns every recorded equity snapshot, oldest first.
func (a *Accumulator) Equity() []EquitySnapshot {
	out := make([]EquitySnapshot, len(a.equity))
	copy(out, a.equity)
	return out
}

// Summarize computes aggregate statistics over trades whose ExitBar is at
// or past testDayStartBar, matching the reference backtester's practice of
// excluding the learning warm-up period from reported performance.
func (a *Accumulator) Summarize(testDayStartBar int) Summary {
	var s Summary
	dayPnL := make(map[int]float64)

	for _, tr := range a.trades {
		if tr.ExitBar < testDayStartBar {
			continue
		}
		s.TotalTrades++
		s.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			s.Wins++
			s.GrossProfit += tr.PnL
		} else if tr.PnL < 0 {
			s.Losses++
			s.GrossLoss += -tr.PnL
		}
		day := tr.ExitBar / BarsPerDay
		dayPnL[day] += tr.PnL
	}

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	} else if s.GrossProfit > 0 {
		s.ProfitFactor = s.GrossProfit // no losing trades: treat as unbounded upside, reported as gross profit
	}

	if len(dayPnL) > 0 {
		total := 0.0
		for _, pnl := range dayPnL {
			total += pnl
		}
		s.MeanReturnPerDay = total / float64(len(dayPnL))
	}

	return s
}
