package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_BuyHasNoSECFeeOrTAF(t *testing.T) {
	b := Compute(Inputs{Symbol: "TQQQ", Side: Buy, Price: 50, Shares: 100, ADV: 1_000_000})
	assert.Zero(t, b.SECFee)
	assert.Zero(t, b.FINRATAF)
}

func TestCompute_SellChargesSECFeeAndTAF(t *testing.T) {
	b := Compute(Inputs{Symbol: "TQQQ", Side: Sell, Price: 50, Shares: 100, ADV: 1_000_000})
	assert.InDelta(t, 50*100*secFeeRate, b.SECFee, 1e-9)
	assert.InDelta(t, 100*finraTAFRate, b.FINRATAF, 1e-9)
}

func TestCompute_FINRATAFIsCapped(t *testing.T) {
	b := Compute(Inputs{Symbol: "TQQQ", Side: Sell, Price: 50, Shares: 10_000_000, ADV: 1_000_000_000})
	assert.Equal(t, finraTAFCap, b.FINRATAF)
}

func TestMarketImpact_ZeroBelowThreshold(t *testing.T) {
	b := Compute(Inputs{Symbol: "TQQQ", Side: Buy, Price: 10, Shares: 100, ADV: 10_000_000})
	assert.Zero(t, b.MarketImpact)
}

func TestMarketImpact_PositiveAboveThreshold(t *testing.T) {
	b := Compute(Inputs{Symbol: "TQQQ", Side: Buy, Price: 50, Shares: 50_000, ADV: 1_000_000})
	assert.Greater(t, b.MarketImpact, 0.0)
}

func TestMarketImpact_SellDiscountedVsBuy(t *testing.T) {
	buy := Compute(Inputs{Symbol: "TQQQ", Side: Buy, Price: 50, Shares: 50_000, ADV: 1_000_000})
	sell := Compute(Inputs{Symbol: "TQQQ", Side: Sell, Price: 50, Shares: 50_000, ADV: 1_000_000})
	assert.Less(t, sell.MarketImpact, buy.MarketImpact)
}

func TestBorrowCost_OnlyAppliesToShorts(t *testing.T) {
	long := Compute(Inputs{Symbol: "TSLA", Side: Buy, Price: 200, Shares: 100, IsShort: false, HoldDays: 5})
	short := Compute(Inputs{Symbol: "TSLA", Side: Sell, Price: 200, Shares: 100, ADV: 1_000_000, IsShort: true, HoldDays: 5})
	assert.Zero(t, long.BorrowCost)
	assert.Greater(t, short.BorrowCost, 0.0)
}

func TestBorrowRate_KnownOverridesAndDefault(t *testing.T) {
	assert.Equal(t, 0.15, BorrowRate("GME"))
	assert.Equal(t, 0.02, BorrowRate("TSLA"))
	assert.Equal(t, defaultBorrowRate, BorrowRate("UNKNOWN_SYMBOL"))
}

func TestBorrowCost_ScalesWithHoldDays(t *testing.T) {
	short5 := Compute(Inputs{Symbol: "GME", Side: Sell, Price: 20, Shares: 1000, ADV: 1_000_000, IsShort: true, HoldDays: 5})
	short10 := Compute(Inputs{Symbol: "GME", Side: Sell, Price: 20, Shares: 1000, ADV: 1_000_000, IsShort: true, HoldDays: 10})
	assert.InDelta(t, short5.BorrowCost*2, short10.BorrowCost, 1e-9)
}

func TestSlippage_IncreasesWithSizeAboveADVThreshold(t *testing.T) {
	small := Compute(Inputs{Symbol: "TQQQ", Side: Buy, Price: 50, Shares: 100, ADV: 1_000_000})
	large := Compute(Inputs{Symbol: "TQQQ", Side: Buy, Price: 50, Shares: 50_000, ADV: 1_000_000})
	assert.Greater(t, large.Slippage/(50*50_000), small.Slippage/(50*100))
}
