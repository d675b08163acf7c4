package wrsi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotorun/internal/bar"
)

func flatBars(n int, price float64) []bar.Bar {
	out := make([]bar.Bar, 0, n)
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out = append(out, bar.New(base.Add(time.Duration(i)*time.Minute), "TQQQ", price, price+0.1, price-0.1, price, 1000))
	}
	return out
}

func vShapedBars(n int) []bar.Bar {
	out := make([]bar.Bar, 0, n)
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	price := 100.0
	half := n / 2
	for i := 0; i < n; i++ {
		step := -0.5
		if i > half {
			step = 0.6
		}
		o := price
		c := price + step
		hi := o + 0.2
		lo := o - 0.2
		if c > hi {
			hi = c
		}
		if c < lo {
			lo = c
		}
		out = append(out, bar.New(base.Add(time.Duration(i)*time.Minute), "TQQQ", o, hi, lo, c, 1000))
		price = c
	}
	return out
}

func TestStrategy_NoSignalBeforeWarmup(t *testing.T) {
	s := New(DefaultConfig())
	var ok bool
	for _, b := range flatBars(5, 100) {
		_, ok = s.Update(b)
	}
	assert.False(t, ok)
}

func TestStrategy_FlatMarketNoCross(t *testing.T) {
	s := New(DefaultConfig())
	var sig Signal
	for _, b := range flatBars(60, 100) {
		sig, _ = s.Update(b)
	}
	assert.False(t, sig.IsLong)
	assert.False(t, sig.IsShort)
}

func TestStrategy_VShapeEventuallyProducesSignal(t *testing.T) {
	s := New(DefaultConfig())
	bars := vShapedBars(80)
	var sig Signal
	var ok bool
	for _, b := range bars {
		sig, ok = s.Update(b)
	}
	require.True(t, ok)
	// Not asserting a specific direction (depends on exact band math); just
	// confirm the run completes without long+short both firing.
	assert.False(t, sig.IsLong && sig.IsShort)
}

func TestCrossState_FreshLongOnUpwardCrossOfOversold(t *testing.T) {
	assert.Equal(t, CrossFreshLong, crossState(-85, -70, -80, -20))
}

func TestCrossState_FreshShortOnDownwardCrossOfOverbought(t *testing.T) {
	assert.Equal(t, CrossFreshShort, crossState(-15, -25, -80, -20))
}

func TestCrossState_ApproachingWhenStillBeyondBand(t *testing.T) {
	assert.Equal(t, CrossApproaching, crossState(-90, -85, -80, -20))
}

func TestStrategy_Reset(t *testing.T) {
	s := New(DefaultConfig())
	for _, b := range flatBars(40, 100) {
		s.Update(b)
	}
	s.Reset()
	assert.Equal(t, 0, s.history.Len())
	assert.False(t, s.hasPrev)
}
