// Package rotation implements the multi-symbol rotation trader: it ranks
// per-symbol predictions, holds up to K concurrent positions, rotates out
// weaker holdings for stronger candidates, sizes entries with an adaptive
// Kelly fraction, and liquidates everything at the end of the trading day
// (spec §4.11).
package rotation

import (
	"math"
	"time"

	"github.com/sawpanic/rotorun/internal/cost"
)

// Side indicates a position's direction.
type Side int

const (
	Long Side = iota
	Short
)

// Candidate is one symbol's signal for the current bar, as produced by
// its predictor (EWRLS or SIGOR/Williams%R-RSI) for this tick.
type Candidate struct {
	Symbol     string
	Timestamp  time.Time
	Prediction float64 // signed expected return; sign gives direction
	Confidence float64 // in [0,1]
	Price      float64
	ADV        float64 // average daily volume, shares; 0 means "use the trader's configured default"
	Volatility float64 // recent realized volatility, absolute; 0 means "use the trader's configured default"
}

// Strength is the ranking score derived from a Candidate: the raw
// prediction magnitude, independent of confidence (spec §4.11: candidates
// and positions rank and rotate on |prediction| alone; confidence enters
// only Kelly sizing). Candidates are ranked by Strength descending, with
// symbol ascending as a deterministic tiebreak (spec §4.11: "deterministic
// sort").
func (c Candidate) Strength() float64 {
	return math.Abs(c.Prediction)
}

// Position is one open holding in the rotation portfolio.
type Position struct {
	Symbol          string
	Side            Side
	EntryBar        int
	EntryTime       time.Time
	EntryPrice      float64
	Shares          float64
	EntryPrediction float64
	EntryConfidence float64

	// EntryCost is the transaction-cost breakdown charged when the
	// position was opened; ExitCost is populated once the position
	// closes. AccruedBorrowCost mirrors ExitCost.BorrowCost after close
	// (zero for long positions and while still open) (spec §3).
	EntryCost         cost.Breakdown
	ExitCost          cost.Breakdown
	AccruedBorrowCost float64

	// HighWaterMark/LowWaterMark track the most favorable price seen
	// since entry, for the trailing-stop exit layer (spec §4.11 step 6).
	HighWaterMark float64
	LowWaterMark  float64
}

// UnrealizedPnL computes the position's return at currentPrice.
func (p Position) UnrealizedPnL(currentPrice float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	raw := (currentPrice - p.EntryPrice) / p.EntryPrice
	if p.Side == Short {
		return -raw
	}
	return raw
}

// Fill describes one simulated execution produced by a tick, for
// accounting and cost-model consumption.
type Fill struct {
	Symbol    string
	Side      Side
	IsEntry   bool // true for opening a position, false for closing one
	Bar       int
	Timestamp time.Time
	Price     float64
	Shares    float64
	Reason    string
}
