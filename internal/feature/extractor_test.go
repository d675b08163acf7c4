package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotorun/internal/bar"
)

func syntheticBars(n int, start float64, step float64) []bar.Bar {
	out := make([]bar.Bar, 0, n)
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		o := price
		c := price + step
		hi := o + 0.5
		lo := o - 0.5
		if c > hi {
			hi = c + 0.1
		}
		if c < lo {
			lo = c - 0.1
		}
		out = append(out, bar.New(base.Add(time.Duration(i)*time.Minute), "TQQQ", o, hi, lo, c, 1000+int64(i)))
		price = c
	}
	return out
}

func TestExtractor_NilBeforeLookback(t *testing.T) {
	e := NewExtractor(false)
	bars := syntheticBars(Lookback-1, 100, 0.1)
	var v Vector
	for _, b := range bars {
		v = e.Extract(b)
	}
	assert.Nil(t, v, "fewer than Lookback bars must produce no feature vector")
}

func TestExtractor_ReturnsBaseVectorAtLookback(t *testing.T) {
	e := NewExtractor(false)
	bars := syntheticBars(Lookback, 100, 0.1)
	var v Vector
	for _, b := range bars {
		v = e.Extract(b)
	}
	require.NotNil(t, v)
	assert.Len(t, v, NumBaseFeatures)
	assert.Equal(t, 1.0, v[NumBaseFeatures-1], "bias term must be 1.0")
}

func TestExtractor_WithRegimeExtendsVector(t *testing.T) {
	e := NewExtractor(true)
	bars := syntheticBars(Lookback, 100, 0.1)
	var v Vector
	for _, b := range bars {
		v = e.Extract(b)
	}
	require.NotNil(t, v)
	assert.Len(t, v, NumFeaturesWithRegime)
}

func TestExtractor_Reset_Idempotent(t *testing.T) {
	bars := syntheticBars(Lookback, 100, 0.1)

	e1 := NewExtractor(false)
	var v1 Vector
	for _, b := range bars {
		v1 = e1.Extract(b)
	}

	e2 := NewExtractor(false)
	for _, b := range bars {
		e2.Extract(b)
	}
	e2.Reset()
	var v2 Vector
	for _, b := range bars {
		v2 = e2.Extract(b)
	}

	require.NotNil(t, v1)
	require.NotNil(t, v2)
	assert.Equal(t, v1, v2, "resetting and replaying the same bars must reproduce identical vectors")
}

func TestExtractor_NoNaNOrInf(t *testing.T) {
	e := NewExtractor(true)
	flat := make([]bar.Bar, 0, Lookback)
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	for i := 0; i < Lookback; i++ {
		flat = append(flat, bar.New(base.Add(time.Duration(i)*time.Minute), "FLAT", 100, 100.01, 99.99, 100, 0))
	}
	var v Vector
	for _, b := range flat {
		v = e.Extract(b)
	}
	require.NotNil(t, v)
	for i, x := range v {
		assert.False(t, isNaNOrInf(x), "position %d is NaN/Inf with zero-volatility input", i)
	}
}

func isNaNOrInf(x float64) bool {
	return x != x || x > 1e308 || x < -1e308
}

func TestRegimeExtractor_ProbabilitiesSumToOne(t *testing.T) {
	r := NewRegimeExtractor()
	bars := syntheticBars(Lookback, 100, 0.05)
	v := r.Extract(bars)
	require.Len(t, v, NumRegimeFeatures)

	retSum := v[0] + v[1] + v[2]
	volSum := v[4] + v[5] + v[6]
	assert.InDelta(t, 1.0, retSum, 1e-6)
	assert.InDelta(t, 1.0, volSum, 1e-6)
}

func TestRegimeExtractor_DurationCapsAt120(t *testing.T) {
	r := NewRegimeExtractor()
	bars := syntheticBars(Lookback, 100, 0.01)

	var v Vector
	for i := 0; i < 200; i++ {
		v = r.Extract(bars)
	}
	require.NotNil(t, v)
	assert.LessOrEqual(t, v[3], 1.0)
	assert.LessOrEqual(t, v[7], 1.0)
}

func TestRegimeExtractor_MicrostructureFeaturesAreBounded(t *testing.T) {
	r := NewRegimeExtractor()
	bars := syntheticBars(Lookback, 100, 0.05)
	v := r.Extract(bars)
	require.Len(t, v, NumRegimeFeatures)

	// positions 8-11: vol ratio, vol z-score, price/volume correlation,
	// volume z-score. The correlation is bounded to [-1,1]; the rest to
	// [-3,3] (spec §4.4).
	assert.GreaterOrEqual(t, v[8], -3.0)
	assert.LessOrEqual(t, v[8], 3.0)
	assert.GreaterOrEqual(t, v[9], -3.0)
	assert.LessOrEqual(t, v[9], 3.0)
	assert.GreaterOrEqual(t, v[10], -1.0)
	assert.LessOrEqual(t, v[10], 1.0)
	assert.GreaterOrEqual(t, v[11], -3.0)
	assert.LessOrEqual(t, v[11], 3.0)
}

func TestRegimeExtractor_Reset(t *testing.T) {
	r := NewRegimeExtractor()
	bars := syntheticBars(Lookback, 100, 0.05)
	r.Extract(bars)
	r.Extract(bars)
	r.Reset()
	assert.Equal(t, 0, r.returnsDur)
	assert.Equal(t, 0, r.volDur)
	assert.False(t, r.initialized)
}
