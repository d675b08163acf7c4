package results

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_SummarizeExcludesTradesBeforeTestStart(t *testing.T) {
	a := NewAccumulator()
	ctx := context.Background()

	require.NoError(t, a.RecordTrade(ctx, Trade{ExitBar: 10, PnL: 100}))  // before test window
	require.NoError(t, a.RecordTrade(ctx, Trade{ExitBar: 500, PnL: 50}))  // in window, win
	require.NoError(t, a.RecordTrade(ctx, Trade{ExitBar: 600, PnL: -20})) // in window, loss

	summary := a.Summarize(100)
	assert.Equal(t, 2, summary.TotalTrades)
	assert.Equal(t, 1, summary.Wins)
	assert.Equal(t, 1, summary.Losses)
	assert.InDelta(t, 0.5, summary.WinRate, 1e-9)
	assert.InDelta(t, 2.5, summary.ProfitFactor, 1e-9)
}

func TestAccumulator_MeanReturnPerDay(t *testing.T) {
	a := NewAccumulator()
	ctx := context.Background()
	require.NoError(t, a.RecordTrade(ctx, Trade{ExitBar: BarsPerDay, PnL: 100}))
	require.NoError(t, a.RecordTrade(ctx, Trade{ExitBar: BarsPerDay*2 + 5, PnL: 50}))

	summary := a.Summarize(0)
	assert.InDelta(t, 75.0, summary.MeanReturnPerDay, 1e-9)
}

func TestAccumulator_EmptySummaryIsZeroValued(t *testing.T) {
	a := NewAccumulator()
	summary := a.Summarize(0)
	assert.Zero(t, summary.TotalTrades)
	assert.Zero(t, summary.WinRate)
	assert.Zero(t, summary.ProfitFactor)
}

func TestAccumulator_RecordEquityAndTradesAreIndependentCopies(t *testing.T) {
	a := NewAccumulator()
	ctx := context.Background()
	require.NoError(t, a.RecordTrade(ctx, Trade{Symbol: "TQQQ"}))
	require.NoError(t, a.RecordEquity(ctx, EquitySnapshot{Equity: 100}))

	trades := a.Trades()
	trades[0].Symbol = "MUTATED"
	assert.Equal(t, "TQQQ", a.Trades()[0].Symbol, "Trades() must return a copy, not internal state")
}
