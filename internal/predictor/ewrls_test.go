package predictor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEWRLS_LearnsLinearRelation(t *testing.T) {
	e := NewEWRLS(2, 0.99, 100.0)

	// Target: y = 2*x0 - 1*x1. Feed a stream of varied inputs so the
	// covariance matrix is excited in both dimensions.
	for i := 0; i < 500; i++ {
		x0 := math.Sin(float64(i) * 0.1)
		x1 := math.Cos(float64(i) * 0.07)
		y := 2*x0 - x1
		e.Update([]float64{x0, x1}, y)
	}

	w := e.Weights()
	assert.InDelta(t, 2.0, w[0], 0.05)
	assert.InDelta(t, -1.0, w[1], 0.05)
}

func TestEWRLS_PredictDoesNotMutateState(t *testing.T) {
	e := NewEWRLS(2, 0.99, 100.0)
	e.Update([]float64{1, 1}, 1.0)
	before := e.Weights()
	_ = e.Predict([]float64{5, -5})
	after := e.Weights()
	assert.Equal(t, before, after)
}

func TestEWRLS_DenominatorFloorDoesNotPanic(t *testing.T) {
	e := NewEWRLS(1, 1.0, 1e-12)
	require.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			e.Update([]float64{0.0}, 0.0)
		}
	})
}

func TestEWRLS_ResetClearsWeights(t *testing.T) {
	e := NewEWRLS(2, 0.99, 100.0)
	e.Update([]float64{1, 1}, 5.0)
	e.Reset(100.0)
	assert.Equal(t, []float64{0, 0}, e.Weights())
}

func TestEWRLS_NonFiniteYLeavesStateUnchanged(t *testing.T) {
	e := NewEWRLS(2, 0.99, 100.0)
	e.Update([]float64{1, 1}, 3.0)
	before := e.Weights()

	for _, y := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		errVal := e.Update([]float64{1, 1}, y)
		assert.Equal(t, 0.0, errVal)
		assert.Equal(t, before, e.Weights())
	}
}

func TestEWRLS_NonFiniteXLeavesStateUnchanged(t *testing.T) {
	e := NewEWRLS(2, 0.99, 100.0)
	e.Update([]float64{1, 1}, 3.0)
	before := e.Weights()

	e.Update([]float64{math.NaN(), 1}, 2.0)
	assert.Equal(t, before, e.Weights())

	e.Update([]float64{math.Inf(1), 1}, 2.0)
	assert.Equal(t, before, e.Weights())
}

func TestMultiHorizon_OnlyHorizon2Implemented(t *testing.T) {
	m := NewMultiHorizonPredictor(2, 0.99, 100.0)
	assert.True(t, m.Implemented(Horizon2))
	assert.False(t, m.Implemented(Horizon1))
	assert.False(t, m.Implemented(Horizon5))
	assert.False(t, m.Implemented(Horizon10))

	_, _, ok := m.Predict(Horizon1, []float64{1, 1})
	assert.False(t, ok)
}

func TestMultiHorizon_ConfidenceImprovesAsErrorShrinks(t *testing.T) {
	m := NewMultiHorizonPredictor(1, 0.99, 100.0)
	x := []float64{1.0}

	_, confBefore, _ := m.Predict(Horizon2, x)
	for i := 0; i < 200; i++ {
		m.Update(Horizon2, x, 3.0)
	}
	_, confAfter, _ := m.Predict(Horizon2, x)

	assert.GreaterOrEqual(t, confAfter, confBefore)
	assert.LessOrEqual(t, confAfter, 1.0)
	assert.Greater(t, confAfter, 0.0)
}
