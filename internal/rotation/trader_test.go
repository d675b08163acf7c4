package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotorun/internal/filter"
)

func newTestTrader(symbols []string) *Trader {
	cfg := DefaultTraderConfig()
	cfg.MaxPositions = 2
	cfg.RotationStrengthDelta = 0.1
	cfg.Location = time.UTC
	f := filter.New(filter.DefaultConfig())
	return New(cfg, DefaultKellyConfig(), f, symbols)
}

func marketTime(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func TestTick_OpensPositionsUpToMaxPositions(t *testing.T) {
	tr := newTestTrader([]string{"A", "B", "C"})
	candidates := []Candidate{
		{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100},
		{Symbol: "B", Prediction: 0.018, Confidence: 0.8, Price: 50},
		{Symbol: "C", Prediction: 0.015, Confidence: 0.7, Price: 20},
	}
	tr.Tick(candidates, 0, marketTime(10, 0))

	assert.Len(t, tr.Positions(), 2)
}

func TestTick_RespectsInversePairDedup(t *testing.T) {
	tr := newTestTrader([]string{"TQQQ", "SQQQ"})
	tr.cfg.MaxPositions = 2
	candidates := []Candidate{
		{Symbol: "TQQQ", Prediction: 0.02, Confidence: 0.9, Price: 50},
		{Symbol: "SQQQ", Prediction: -0.02, Confidence: 0.9, Price: 20},
	}
	tr.Tick(candidates, 0, marketTime(10, 0))

	positions := tr.Positions()
	require.Len(t, positions, 1, "only the stronger leg of an inverse pair should be held")
}

func TestTick_EODLiquidatesAllPositions(t *testing.T) {
	tr := newTestTrader([]string{"A"})
	tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100}}, 0, marketTime(10, 0))
	require.Len(t, tr.Positions(), 1)

	fills := tr.Tick(nil, 1, marketTime(15, 59))
	assert.Empty(t, tr.Positions())
	require.Len(t, fills, 1)
	assert.Equal(t, "eod_liquidation", fills[0].Reason)
}

func TestTick_EntryAllowedBeforeEOD(t *testing.T) {
	tr := newTestTrader([]string{"A"})
	fills := tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100}}, 0, marketTime(15, 58))
	assert.Len(t, fills, 1)
	assert.True(t, fills[0].IsEntry)
}

func TestRankCandidates_DeterministicTiebreakBySymbol(t *testing.T) {
	candidates := []Candidate{
		{Symbol: "B", Prediction: 0.01, Confidence: 1.0},
		{Symbol: "A", Prediction: 0.01, Confidence: 1.0},
	}
	ranked := rankCandidates(candidates)
	assert.Equal(t, "A", ranked[0].Symbol)
	assert.Equal(t, "B", ranked[1].Symbol)
}

func TestKellyFraction_ZeroWhenEdgeIsNegative(t *testing.T) {
	f := KellyFraction(KellyInputs{WinProbability: 0.2, ExpectedWin: 1, ExpectedLoss: 1}, DefaultKellyConfig())
	assert.Zero(t, f)
}

func TestKellyFraction_ClampedToMaxPositionFraction(t *testing.T) {
	cfg := DefaultKellyConfig()
	cfg.MaxPositionFraction = 0.1
	f := KellyFraction(KellyInputs{WinProbability: 0.95, ExpectedWin: 10, ExpectedLoss: 1}, cfg)
	assert.LessOrEqual(t, f, 0.1)
}

func TestOpenPosition_ChargesEntryCostAgainstCapital(t *testing.T) {
	tr := newTestTrader([]string{"A"})
	startCapital := tr.Capital()
	tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100}}, 0, marketTime(10, 0))

	positions := tr.Positions()
	require.Len(t, positions, 1)
	require.Greater(t, positions[0].EntryCost.Total, 0.0)
	assert.Less(t, tr.Capital(), startCapital, "entry cost should be charged against cash immediately")
}

func TestClosePosition_NetsCostOutOfRealizedPnL(t *testing.T) {
	roundTrip := func(withCost bool) float64 {
		tr := newTestTrader([]string{"A"})
		tr.cfg.EnableCostTracking = withCost
		tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100}}, 0, marketTime(10, 0))
		for bar := 1; bar <= 3; bar++ {
			tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100}}, bar, marketTime(10, bar))
		}
		fills := tr.Tick([]Candidate{{Symbol: "A", Prediction: -0.02, Confidence: 0.9, Price: 100}}, 4, marketTime(10, 4))
		require.Len(t, fills, 1, "signal reversal should close the position once the minimum hold period has passed")
		return tr.Capital()
	}

	withCost := roundTrip(true)
	withoutCost := roundTrip(false)
	assert.Less(t, withCost, withoutCost, "a cost-tracked round trip should end with less cash than a cost-free one")
}

func TestProcessPriceBasedExits_TrailingStopClosesLongOnRetracement(t *testing.T) {
	tr := newTestTrader([]string{"A"})
	tr.cfg.EnablePriceBasedExits = true
	tr.cfg.TrailingStopPercentage = 0.05

	tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 100}}, 0, marketTime(10, 1))
	require.Len(t, tr.Positions(), 1)

	tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 120}}, 1, marketTime(10, 2))
	require.Len(t, tr.Positions(), 1, "high water mark should track the rally without exiting")

	fills := tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 112}}, 2, marketTime(10, 3))
	require.Len(t, fills, 1)
	assert.Equal(t, "trailing_stop", fills[0].Reason)
	assert.Empty(t, tr.Positions())
}

func TestProcessPriceBasedExits_MACrossoverClosesLongBelowAverage(t *testing.T) {
	tr := newTestTrader([]string{"A"})
	tr.cfg.EnablePriceBasedExits = true
	tr.cfg.ExitOnMACrossover = true
	tr.cfg.MAExitPeriod = 3

	bar := 0
	for _, price := range []float64{100, 101, 102} {
		tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: price}}, bar, marketTime(10, bar))
		bar++
	}
	require.Len(t, tr.Positions(), 1)

	// Price dips just enough to cross below the 3-bar moving average
	// without tripping the trade filter's own 5% emergency stop.
	fills := tr.Tick([]Candidate{{Symbol: "A", Prediction: 0.02, Confidence: 0.9, Price: 97}}, bar, marketTime(10, bar))
	require.Len(t, fills, 1)
	assert.Equal(t, "ma_crossover", fills[0].Reason)
}

func TestDedupeInversePairs_KeepsStrongerLeg(t *testing.T) {
	ranked := []Candidate{
		{Symbol: "TQQQ", Prediction: 0.03, Confidence: 0.9},
		{Symbol: "SQQQ", Prediction: -0.01, Confidence: 0.5},
	}
	out := dedupeInversePairs(ranked)
	require.Len(t, out, 1)
	assert.Equal(t, "TQQQ", out[0].Symbol)
}
