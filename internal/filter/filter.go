// Package filter implements the trade filter: the per-symbol gate that
// decides whether a new position may be entered and whether an existing
// one should be exited, independent of the rotation ranking itself
// (spec §4.10).
package filter

import "math"

// BarsPerDay is the number of one-minute bars in a regular trading
// session, used to derive the calendar day from a bar index.
const BarsPerDay = 390

// TradeHistoryCapacity bounds the global entry-bar history used for
// frequency limiting.
const TradeHistoryCapacity = 500

// ExitReason enumerates exit triggers in strict precedence order; the
// evaluator returns the first one that fires.
type ExitReason int

const (
	NoExit ExitReason = iota
	EmergencyStop
	MaxHold
	ProfitTarget
	SignalReversal
	ConfidenceDecay
)

func (r ExitReason) String() string {
	switch r {
	case NoExit:
		return "no_exit"
	case EmergencyStop:
		return "emergency_stop"
	case MaxHold:
		return "max_hold"
	case ProfitTarget:
		return "profit_target"
	case SignalReversal:
		return "signal_reversal"
	case ConfidenceDecay:
		return "confidence_decay"
	default:
		return "unknown"
	}
}

// Config holds the trade filter's tunable thresholds.
type Config struct {
	MinBarsHold              int
	MaxBarsHold              int
	MinBarsBetweenEntries    int // cooldown after an exit, in bars
	MaxTradesPerDay          int
	MaxTradesPerHour         int
	MinPredictionForEntry    float64 // minimum |prediction| required to admit a new entry
	MinConfidenceForEntry    float64 // minimum confidence required to admit a new entry
	ProfitTargetMultiple     float64 // entry_prediction * bars_held * this multiple is the profit target return
	ConfidenceExitThreshold  float64 // exit when current confidence drops below this
	ExitSignalReversedThreshold float64 // live |prediction| must reach this before a sign flip counts as a reversal
	TypicalHoldPeriod        int     // bars after which the confidence threshold starts decaying
	MaxConfidenceDecayFrac   float64 // fraction the threshold shrinks by as BarsHeld approaches MaxBarsHold
	EmergencyStopLossPct     float64 // adverse return fraction that force-exits regardless of min hold
}

// DefaultConfig mirrors the reference trade filter's defaults.
func DefaultConfig() Config {
	return Config{
		MinBarsHold:             3,
		MaxBarsHold:             60,
		MinBarsBetweenEntries:   5,
		MaxTradesPerDay:         20,
		MaxTradesPerHour:        5,
		MinPredictionForEntry:   0.0,
		MinConfidenceForEntry:   0.0,
		ProfitTargetMultiple:    3.0,
		ConfidenceExitThreshold: 0.3,
		ExitSignalReversedThreshold: 0.0,
		TypicalHoldPeriod:       20,
		MaxConfidenceDecayFrac:  0.3,
		EmergencyStopLossPct:    0.05,
	}
}

// Side indicates the direction of a held position.
type Side int

const (
	Long Side = iota
	Short
)

// PositionState tracks one symbol's open position and cooldown history.
type PositionState struct {
	InPosition      bool
	Side            Side
	EntryBar        int
	EntryPrice      float64
	EntryPrediction float64
	EntryConfidence float64
	BarsHeld        int
	LastExitBar     int // -1 if the symbol has never exited
}

func newPositionState() *PositionState {
	return &PositionState{LastExitBar: -1}
}

// EntryDecision is the result of a CanEnter check.
type EntryDecision struct {
	Allowed bool
	Reason  string
}

// ExitDecision is the result of a ShouldExit check.
type ExitDecision struct {
	ShouldExit bool
	Reason     ExitReason
}

// Filter evaluates entry/exit eligibility across all tracked symbols. It
// is not safe for concurrent use.
type Filter struct {
	cfg       Config
	positions map[string]*PositionState
	tradeBars []int // global entry-bar history, oldest first, capped at TradeHistoryCapacity
}

// New builds a Filter with the given configuration.
func New(cfg Config) *Filter {
	return &Filter{
		cfg:       cfg,
		positions: make(map[string]*PositionState),
	}
}

// Reset clears all position and trade-history state (idempotent-reset
// law, spec §8).
func (f *Filter) Reset() {
	f.positions = make(map[string]*PositionState)
	f.tradeBars = nil
}

func (f *Filter) stateFor(symbol string) *PositionState {
	st, ok := f.positions[symbol]
	if !ok {
		st = newPositionState()
		f.positions[symbol] = st
	}
	return st
}

// barsPerHour is the bucket width used for the hourly trade-frequency
// limit; trades are counted per hour-of-day within a calendar day.
const barsPerHour = 60

// hoursPerDay is the number of hour buckets one trading day spans; the
// session's last partial hour gets a bucket of its own.
const hoursPerDay = (BarsPerDay + barsPerHour - 1) / barsPerHour

// CanEnter reports whether symbol may open a new position at barIndex with
// the given live prediction/confidence, applying the cooldown, the daily
// and hourly frequency limits, and the should_enter admission gate
// (spec §4.10: min_prediction_for_entry / min_confidence_for_entry).
func (f *Filter) CanEnter(symbol string, barIndex int, prediction, confidence float64) EntryDecision {
	st := f.stateFor(symbol)

	if st.InPosition {
		return EntryDecision{Allowed: false, Reason: "already_in_position"}
	}

	if st.LastExitBar >= 0 {
		barsSinceExit := barIndex - st.LastExitBar
		if barsSinceExit < f.cfg.MinBarsBetweenEntries {
			return EntryDecision{Allowed: false, Reason: "cooldown"}
		}
	}

	day := barIndex / BarsPerDay
	if f.tradesOnDay(day) >= f.cfg.MaxTradesPerDay {
		return EntryDecision{Allowed: false, Reason: "daily_frequency_limit"}
	}

	hour := day*hoursPerDay + (barIndex%BarsPerDay)/barsPerHour
	if f.tradesInHour(hour) >= f.cfg.MaxTradesPerHour {
		return EntryDecision{Allowed: false, Reason: "hourly_frequency_limit"}
	}

	if math.Abs(prediction) < f.cfg.MinPredictionForEntry {
		return EntryDecision{Allowed: false, Reason: "prediction_below_minimum"}
	}
	if confidence < f.cfg.MinConfidenceForEntry {
		return EntryDecision{Allowed: false, Reason: "confidence_below_minimum"}
	}

	return EntryDecision{Allowed: true}
}

func (f *Filter) tradesOnDay(day int) int {
	count := 0
	for _, b := range f.tradeBars {
		if b/BarsPerDay == day {
			count++
		}
	}
	return count
}

func (f *Filter) tradesInHour(hour int) int {
	count := 0
	for _, b := range f.tradeBars {
		day := b / BarsPerDay
		h := day*hoursPerDay + (b%BarsPerDay)/barsPerHour
		if h == hour {
			count++
		}
	}
	return count
}

// RecordEntry opens a position and appends to the global trade-bar
// history, evicting the oldest entry once TradeHistoryCapacity is
// exceeded.
func (f *Filter) RecordEntry(symbol string, barIndex int, side Side, price, prediction, confidence float64) {
	st := f.stateFor(symbol)
	st.InPosition = true
	st.Side = side
	st.EntryBar = barIndex
	st.EntryPrice = price
	st.EntryPrediction = prediction
	st.EntryConfidence = confidence
	st.BarsHeld = 0

	f.tradeBars = append(f.tradeBars, barIndex)
	if len(f.tradeBars) > TradeHistoryCapacity {
		f.tradeBars = f.tradeBars[len(f.tradeBars)-TradeHistoryCapacity:]
	}
}

// RecordExit closes a position and starts its cooldown clock at barIndex,
// replacing any earlier exit bar.
func (f *Filter) RecordExit(symbol string, barIndex int) {
	st := f.stateFor(symbol)
	st.InPosition = false
	st.BarsHeld = 0
	st.LastExitBar = barIndex
}

// AdvanceBar increments the held-bar counter for an open position. Callers
// invoke this once per tick for every symbol currently held.
func (f *Filter) AdvanceBar(symbol string) {
	st := f.stateFor(symbol)
	if st.InPosition {
		st.BarsHeld++
	}
}

// ShouldExit evaluates exit conditions for an open position in strict
// precedence order (first trigger wins).
func (f *Filter) ShouldExit(symbol string, currentPrice, currentPrediction, currentConfidence float64) ExitDecision {
	st := f.stateFor(symbol)
	if !st.InPosition {
		return ExitDecision{ShouldExit: false, Reason: NoExit}
	}

	ret := signedReturn(st, currentPrice)

	// 1. Emergency stop overrides the minimum hold period.
	if -ret >= f.cfg.EmergencyStopLossPct {
		return ExitDecision{ShouldExit: true, Reason: EmergencyStop}
	}

	// Minimum hold period blocks every remaining exit rule.
	if st.BarsHeld < f.cfg.MinBarsHold {
		return ExitDecision{ShouldExit: false, Reason: NoExit}
	}

	// 2. Maximum hold period.
	if st.BarsHeld >= f.cfg.MaxBarsHold {
		return ExitDecision{ShouldExit: true, Reason: MaxHold}
	}

	// 3. Profit target: realized return exceeds the entry prediction
	// scaled by bars held and the profit-target multiple, so the target
	// grows with how long the position has been open (spec §4.10).
	target := st.EntryPrediction * float64(st.BarsHeld) * f.cfg.ProfitTargetMultiple
	if target > 0 && ret >= target {
		return ExitDecision{ShouldExit: true, Reason: ProfitTarget}
	}

	// 4. Signal reversal: the live prediction now points the other way
	// with enough conviction (|prediction| past ExitSignalReversedThreshold)
	// to count as a genuine reversal rather than noise near zero.
	if !signAgrees(st.EntryPrediction, currentPrediction) && math.Abs(currentPrediction) >= f.cfg.ExitSignalReversedThreshold {
		return ExitDecision{ShouldExit: true, Reason: SignalReversal}
	}

	// 5. Confidence decay: past TypicalHoldPeriod, the acceptable
	// confidence floor shrinks toward MaxBarsHold by up to
	// MaxConfidenceDecayFrac, making this rule progressively less likely
	// to fire the longer a position is held (spec §4.10).
	threshold := f.cfg.ConfidenceExitThreshold
	span := f.cfg.MaxBarsHold - f.cfg.TypicalHoldPeriod
	if st.BarsHeld > f.cfg.TypicalHoldPeriod && span > 0 {
		progress := float64(st.BarsHeld-f.cfg.TypicalHoldPeriod) / float64(span)
		if progress > 1 {
			progress = 1
		}
		threshold *= 1 - progress*f.cfg.MaxConfidenceDecayFrac
	}
	if currentConfidence < threshold {
		return ExitDecision{ShouldExit: true, Reason: ConfidenceDecay}
	}

	return ExitDecision{ShouldExit: false, Reason: NoExit}
}

// signedReturn computes the position's return from entry to currentPrice,
// positive for a gain regardless of side.
func signedReturn(st *PositionState, currentPrice float64) float64 {
	if st.EntryPrice <= 0 {
		return 0
	}
	raw := (currentPrice - st.EntryPrice) / st.EntryPrice
	if st.Side == Short {
		return -raw
	}
	return raw
}

func signAgrees(a, b float64) bool {
	if a == 0 || b == 0 {
		return true
	}
	return math.Signbit(a) == math.Signbit(b)
}

// Position returns a copy of the current position state for symbol, for
// diagnostics and tests.
func (f *Filter) Position(symbol string) PositionState {
	return *f.stateFor(symbol)
}
