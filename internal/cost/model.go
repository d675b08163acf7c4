// Package cost implements the transaction cost model applied to every
// simulated fill: regulatory fees, slippage, market impact, and short
// borrow cost (spec §6).
package cost

import "math"

const (
	secFeeRate      = 2.78e-5 // SEC Section 31 fee, sells only
	finraTAFRate    = 1.45e-4 // FINRA Trading Activity Fee per share, sells only
	finraTAFCap     = 7.27    // per-order FINRA TAF cap
	baseSlippageBps = 0.5     // baseline slippage in basis points
	slippageADVPct  = 0.001   // 0.1% of ADV: threshold above which size impact kicks in
	volAdjustCap    = 1.5     // slippage volatility multiplier ceiling
	impactMinNotion = 100_000.0
	impactMinADVPct = 0.01 // 1% of ADV
	impactSellMult  = 0.8
	defaultBorrowRate = 0.005 // 0.5% annualized, used when a symbol has no override
	tradingDaysPerYear = 252.0
)

// borrowRateOverrides gives the annualized borrow rate for symbols with a
// published short-interest cost (spec §6.4); symbols not listed here use
// defaultBorrowRate.
var borrowRateOverrides = map[string]float64{
	"TSLA":  0.02,
	"GME":   0.15,
	"AMC":   0.10,
	"RIVN":  0.05,
	"LCID":  0.05,
	"TQQQ":  0.003,
	"SQQQ":  0.003,
	"TNA":   0.003,
	"TZA":   0.003,
	"FAS":   0.003,
	"FAZ":   0.003,
	"UVXY":  0.01,
	"SVXY":  0.008,
}

// Side indicates which direction a fill moves inventory.
type Side int

const (
	Buy Side = iota
	Sell
)

// Inputs describes one simulated fill for cost purposes.
type Inputs struct {
	Symbol       string
	Side         Side
	Price        float64
	Shares       float64
	ADV          float64 // average daily volume, in shares
	Volatility   float64 // recent realized volatility (e.g. 20-bar stdev of returns)
	BaselineVol  float64 // reference volatility used to scale slippage
	IsShort      bool    // true if this fill opens or holds a short position
	HoldDays     float64 // days the short position will be held, for borrow cost
}

// Breakdown itemizes every cost component, all expressed in dollars.
type Breakdown struct {
	SECFee       float64
	FINRATAF     float64
	Slippage     float64
	MarketImpact float64
	BorrowCost   float64
	Total        float64
}

// BorrowRate returns the annualized borrow rate for a symbol, falling back
// to defaultBorrowRate when no override is published.
func BorrowRate(symbol string) float64 {
	if r, ok := borrowRateOverrides[symbol]; ok {
		return r
	}
	return defaultBorrowRate
}

// Compute evaluates every cost component for one fill.
func Compute(in Inputs) Breakdown {
	notional := in.Price * in.Shares

	var secFee, taf float64
	if in.Side == Sell {
		secFee = notional * secFeeRate
		taf = math.Min(in.Shares*finraTAFRate, finraTAFCap)
	}

	slippage := slippageCost(in, notional)
	impact := marketImpactCost(in, notional)
	borrow := borrowCost(in, notional)

	total := secFee + taf + slippage + impact + borrow
	return Breakdown{
		SECFee:       secFee,
		FINRATAF:     taf,
		Slippage:     slippage,
		MarketImpact: impact,
		BorrowCost:   borrow,
		Total:        total,
	}
}

// slippageCost scales a base per-trade slippage by size relative to ADV
// and by current volatility relative to a baseline, capped at
// volAdjustCap.
func slippageCost(in Inputs, notional float64) float64 {
	bps := baseSlippageBps

	if in.ADV > 0 {
		advFraction := in.Shares / in.ADV
		if advFraction > slippageADVPct {
			excess := advFraction - slippageADVPct
			bps += excess * 10000.0 // scale excess ADV fraction into bps
		}
	}

	if in.BaselineVol > 1e-10 {
		volMult := in.Volatility / in.BaselineVol
		if volMult > volAdjustCap {
			volMult = volAdjustCap
		}
		if volMult > 1.0 {
			bps *= volMult
		}
	}

	return notional * bps / 10000.0
}

// marketImpactCost is zero for small fills (below both a dollar notional
// and ADV-fraction floor); above that it grows with the square root of
// size plus a linear component, scaled down on the sell side.
func marketImpactCost(in Inputs, notional float64) float64 {
	advFraction := 0.0
	if in.ADV > 0 {
		advFraction = in.Shares / in.ADV
	}
	if notional < impactMinNotion && advFraction < impactMinADVPct {
		return 0
	}

	bps := 10.0*math.Sqrt(advFraction) + 5.0*advFraction
	cost := notional * bps / 10000.0
	if in.Side == Sell {
		cost *= impactSellMult
	}
	return cost
}

// borrowCost applies an annualized rate prorated by holding days, only
// for short positions.
func borrowCost(in Inputs, notional float64) float64 {
	if !in.IsShort || in.HoldDays <= 0 {
		return 0
	}
	rate := BorrowRate(in.Symbol)
	dailyRate := rate / tradingDaysPerYear
	return notional * dailyRate * in.HoldDays
}
