package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanEnter_AllowsFreshSymbol(t *testing.T) {
	f := New(DefaultConfig())
	d := f.CanEnter("TQQQ", 100, 0.01, 0.8)
	assert.True(t, d.Allowed)
}

func TestCanEnter_BlocksWhileAlreadyInPosition(t *testing.T) {
	f := New(DefaultConfig())
	f.RecordEntry("TQQQ", 0, Long, 50, 0.5, 0.8)
	d := f.CanEnter("TQQQ", 1, 0.01, 0.8)
	assert.False(t, d.Allowed)
	assert.Equal(t, "already_in_position", d.Reason)
}

func TestCanEnter_CooldownAfterExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsBetweenEntries = 10
	f := New(cfg)
	f.RecordEntry("TQQQ", 0, Long, 50, 0.5, 0.8)
	f.RecordExit("TQQQ", 5)

	d := f.CanEnter("TQQQ", 10, 0.01, 0.8)
	assert.False(t, d.Allowed)
	assert.Equal(t, "cooldown", d.Reason)

	d2 := f.CanEnter("TQQQ", 16, 0.01, 0.8)
	assert.True(t, d2.Allowed)
}

func TestCanEnter_DailyFrequencyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTradesPerDay = 2
	cfg.MinBarsBetweenEntries = 0
	f := New(cfg)

	f.RecordEntry("A", 10, Long, 10, 0.5, 0.8)
	f.RecordExit("A", 11)
	f.RecordEntry("B", 12, Long, 10, 0.5, 0.8)
	f.RecordExit("B", 13)

	d := f.CanEnter("C", 14, 0.01, 0.8)
	assert.False(t, d.Allowed)
	assert.Equal(t, "daily_frequency_limit", d.Reason)

	// A new day resets the frequency counter.
	d2 := f.CanEnter("C", BarsPerDay+1, 0.01, 0.8)
	assert.True(t, d2.Allowed)
}

func TestCanEnter_HourlyFrequencyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTradesPerHour = 1
	cfg.MinBarsBetweenEntries = 0
	f := New(cfg)

	f.RecordEntry("A", 0, Long, 10, 0.5, 0.8)
	f.RecordExit("A", 1)

	d := f.CanEnter("B", 2, 0.01, 0.8) // same hour bucket as bar 0
	assert.False(t, d.Allowed)
	assert.Equal(t, "hourly_frequency_limit", d.Reason)

	d2 := f.CanEnter("B", barsPerHour+1, 0.01, 0.8) // next hour bucket
	assert.True(t, d2.Allowed)
}

func TestCanEnter_RejectsBelowEntryThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPredictionForEntry = 0.02
	cfg.MinConfidenceForEntry = 0.5
	f := New(cfg)

	d := f.CanEnter("TQQQ", 100, 0.01, 0.8)
	assert.False(t, d.Allowed)
	assert.Equal(t, "prediction_below_minimum", d.Reason)

	d2 := f.CanEnter("TQQQ", 100, 0.03, 0.4)
	assert.False(t, d2.Allowed)
	assert.Equal(t, "confidence_below_minimum", d2.Reason)

	d3 := f.CanEnter("TQQQ", 100, 0.03, 0.6)
	assert.True(t, d3.Allowed)
}

func TestShouldExit_MinHoldBlocksAllButEmergencyStop(t *testing.T) {
	f := New(DefaultConfig())
	f.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)
	f.AdvanceBar("TQQQ")

	d := f.ShouldExit("TQQQ", 200, -0.8, 0.9) // signal reversal would fire if not blocked
	assert.False(t, d.ShouldExit)
}

func TestShouldExit_EmergencyStopOverridesMinHold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmergencyStopLossPct = 0.05
	f := New(cfg)
	f.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)

	d := f.ShouldExit("TQQQ", 94, 0.8, 0.9) // -6% adverse move
	require.True(t, d.ShouldExit)
	assert.Equal(t, EmergencyStop, d.Reason)
}

func TestShouldExit_MaxHold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBarsHold = 3
	f := New(cfg)
	f.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)
	for i := 0; i < 3; i++ {
		f.AdvanceBar("TQQQ")
	}
	d := f.ShouldExit("TQQQ", 100, 0.8, 0.9)
	assert.True(t, d.ShouldExit)
	assert.Equal(t, MaxHold, d.Reason)
}

func TestShouldExit_SignalReversal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsHold = 0
	f := New(cfg)
	f.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)
	d := f.ShouldExit("TQQQ", 100, -0.8, 0.9)
	assert.True(t, d.ShouldExit)
	assert.Equal(t, SignalReversal, d.Reason)
}

func TestShouldExit_ConfidenceDecayShrinksThresholdOverTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsHold = 0
	cfg.MaxBarsHold = 20
	cfg.TypicalHoldPeriod = 0
	cfg.ConfidenceExitThreshold = 0.4
	cfg.MaxConfidenceDecayFrac = 0.5
	f := New(cfg)

	f.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)
	f.AdvanceBar("TQQQ")
	// threshold = 0.4*(1 - (1/20)*0.5) = 0.39; confidence 0.3 fails it.
	early := f.ShouldExit("TQQQ", 100, 0.8, 0.3)
	assert.True(t, early.ShouldExit)
	assert.Equal(t, ConfidenceDecay, early.Reason)

	f2 := New(cfg)
	f2.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)
	for i := 0; i < 19; i++ {
		f2.AdvanceBar("TQQQ")
	}
	// threshold = 0.4*(1 - (19/20)*0.5) = 0.21; confidence 0.3 now passes.
	late := f2.ShouldExit("TQQQ", 100, 0.8, 0.3)
	assert.False(t, late.ShouldExit)
}

func TestShouldExit_ProfitTargetScalesWithBarsHeld(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsHold = 0
	cfg.ProfitTargetMultiple = 1.0
	f := New(cfg)
	f.RecordEntry("TQQQ", 0, Long, 100, 0.02, 0.9) // entry_prediction = 0.02
	for i := 0; i < 4; i++ {
		f.AdvanceBar("TQQQ")
	}
	// target = 0.02 * 4 * 1.0 = 0.08; an 8% gain should trigger it.
	d := f.ShouldExit("TQQQ", 108, 0.02, 0.9)
	assert.True(t, d.ShouldExit)
	assert.Equal(t, ProfitTarget, d.Reason)

	d2 := f.ShouldExit("TQQQ", 104, 0.02, 0.9) // only a 4% gain
	assert.False(t, d2.ShouldExit)
}

func TestShouldExit_NoExitWhenNotInPosition(t *testing.T) {
	f := New(DefaultConfig())
	d := f.ShouldExit("TQQQ", 100, 0.8, 0.9)
	assert.False(t, d.ShouldExit)
	assert.Equal(t, NoExit, d.Reason)
}

func TestRecordExit_LatestExitRestartsCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsBetweenEntries = 5
	f := New(cfg)

	f.RecordEntry("TQQQ", 0, Long, 100, 0.8, 0.9)
	f.RecordExit("TQQQ", 100) // first exit, sets LastExitBar=100

	f.RecordEntry("TQQQ", 200, Long, 100, 0.8, 0.9)
	f.RecordExit("TQQQ", 205) // second exit restarts the cooldown clock, so LastExitBar updates

	st := f.Position("TQQQ")
	assert.Equal(t, 205, st.LastExitBar)
}
