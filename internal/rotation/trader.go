package rotation

import (
	"sort"
	"time"

	"github.com/sawpanic/rotorun/internal/cost"
	"github.com/sawpanic/rotorun/internal/filter"
)

// eodHour and eodMinute give the Eastern-time wall clock at which every
// open position is force-liquidated for the day (spec §4.11).
const (
	eodHour   = 15
	eodMinute = 59
)

// priceHistoryCapacity bounds the per-symbol close-price history kept for
// the MA-crossover exit layer.
const priceHistoryCapacity = 500

// TraderConfig holds the rotation trader's tunable parameters.
type TraderConfig struct {
	MaxPositions          int
	RotationStrengthDelta float64 // minimum strength gain required to rotate out a held position
	InitialCapital        float64
	Location              *time.Location // wall clock used for EOD liquidation; defaults to America/New_York

	EnableCostTracking bool    // wires internal/cost into every fill (spec §3, §4.11 step 6)
	DefaultADV         float64 // used for cost.Inputs.ADV when a Candidate leaves ADV at 0
	DefaultVolatility  float64 // used for cost.Inputs.Volatility/KellyInputs.Volatility as a fallback

	// EnablePriceBasedExits and its three siblings configure a price-only
	// exit layer distinct from the trade filter's own exits: a crossover
	// of price below/above its MAExitPeriod-bar moving average, and a
	// trailing stop off each position's high/low water mark since entry
	// (spec §4.11 step 6).
	EnablePriceBasedExits  bool
	MAExitPeriod           int
	ExitOnMACrossover      bool
	TrailingStopPercentage float64
}

// DefaultTraderConfig returns sane defaults; callers should override
// InitialCapital and Location for a real run.
func DefaultTraderConfig() TraderConfig {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return TraderConfig{
		MaxPositions:          3,
		RotationStrengthDelta: 0.15,
		InitialCapital:        100_000,
		Location:              loc,
		EnableCostTracking:    true,
		DefaultADV:            1_000_000,
		DefaultVolatility:     0.02,
		MAExitPeriod:          20,
	}
}

// Trader is the multi-symbol rotation engine. It owns the set of open
// positions and the capital ledger; symbol-level entry/exit gating is
// delegated to filter.Filter.
type Trader struct {
	cfg       TraderConfig
	kellyCfg  KellyConfig
	filter    *filter.Filter
	positions map[string]Position
	capital   float64
	streak    map[string]int        // signed consecutive win/loss count per symbol
	symbols   []string              // declared iteration order, for deterministic liquidation/ranking ties
	prices    map[string][]float64  // rolling close-price history per symbol, for the MA-crossover exit layer
}

// New builds a Trader. symbols is the declared universe in a fixed order;
// it is used whenever the trader must iterate positions deterministically
// (spec §9: "never iterate maps directly").
func New(cfg TraderConfig, kellyCfg KellyConfig, f *filter.Filter, symbols []string) *Trader {
	return &Trader{
		cfg:       cfg,
		kellyCfg:  kellyCfg,
		filter:    f,
		positions: make(map[string]Position),
		capital:   cfg.InitialCapital,
		streak:    make(map[string]int),
		symbols:   append([]string(nil), symbols...),
		prices:    make(map[string][]float64),
	}
}

// Reset clears all open positions, capital, and streak state back to the
// configured initial capital (idempotent-reset law, spec §8).
func (t *Trader) Reset() {
	t.positions = make(map[string]Position)
	t.capital = t.cfg.InitialCapital
	t.streak = make(map[string]int)
	t.prices = make(map[string][]float64)
	t.filter.Reset()
}

// Capital returns the initial capital plus realized P&L, net of every
// charged transaction cost. The notional of open positions is not deducted,
// and open positions are not marked to market.
func (t *Trader) Capital() float64 {
	return t.capital
}

// Positions returns a deterministic, symbol-ordered snapshot of open
// positions.
func (t *Trader) Positions() []Position {
	out := make([]Position, 0, len(t.positions))
	for _, sym := range t.symbols {
		if p, ok := t.positions[sym]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Tick advances the trader by one bar: it evaluates exits (including EOD
// liquidation), performs rotation, and opens new positions into any free
// slots, all in that order (spec §4.11 step ordering). It returns every
// fill generated this bar.
func (t *Trader) Tick(candidates []Candidate, barIndex int, timestamp time.Time) []Fill {
	var fills []Fill

	if t.isEndOfDay(timestamp) {
		fills = append(fills, t.liquidateAll(barIndex, timestamp, "eod_liquidation")...)
		return fills
	}

	candidateBySymbol := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		candidateBySymbol[c.Symbol] = c
		t.recordPrice(c.Symbol, c.Price)
	}

	for _, sym := range t.symbols {
		if _, held := t.positions[sym]; held {
			t.filter.AdvanceBar(sym)
			t.updateWaterMarks(sym, candidateBySymbol)
		}
	}

	fills = append(fills, t.processExits(candidateBySymbol, barIndex, timestamp)...)
	if t.cfg.EnablePriceBasedExits {
		fills = append(fills, t.processPriceBasedExits(candidateBySymbol, barIndex, timestamp)...)
	}

	ranked := rankCandidates(candidates)
	ranked = dedupeInversePairs(ranked)

	fills = append(fills, t.rotate(ranked, barIndex, timestamp)...)
	fills = append(fills, t.enterNewPositions(ranked, barIndex, timestamp)...)

	return fills
}

// recordPrice appends the current close to a symbol's rolling price
// history, capped at priceHistoryCapacity, for the MA-crossover exit layer.
func (t *Trader) recordPrice(symbol string, price float64) {
	hist := append(t.prices[symbol], price)
	if len(hist) > priceHistoryCapacity {
		hist = hist[len(hist)-priceHistoryCapacity:]
	}
	t.prices[symbol] = hist
}

// updateWaterMarks refreshes a held position's high/low water marks from
// the current bar's price, for the trailing-stop exit layer.
func (t *Trader) updateWaterMarks(symbol string, candidateBySymbol map[string]Candidate) {
	c, ok := candidateBySymbol[symbol]
	if !ok {
		return
	}
	pos := t.positions[symbol]
	if pos.HighWaterMark == 0 || c.Price > pos.HighWaterMark {
		pos.HighWaterMark = c.Price
	}
	if pos.LowWaterMark == 0 || c.Price < pos.LowWaterMark {
		pos.LowWaterMark = c.Price
	}
	t.positions[symbol] = pos
}

// movingAverage returns the mean of the last period closes recorded for
// symbol, and false if fewer than period closes have been recorded yet.
func (t *Trader) movingAverage(symbol string, period int) (float64, bool) {
	hist := t.prices[symbol]
	if period <= 0 || len(hist) < period {
		return 0, false
	}
	window := hist[len(hist)-period:]
	sum := 0.0
	for _, p := range window {
		sum += p
	}
	return sum / float64(period), true
}

// processPriceBasedExits applies the MA-crossover and trailing-stop exit
// rules, a price-only layer distinct from the trade filter's own
// prediction/confidence exits (spec §4.11 step 6).
func (t *Trader) processPriceBasedExits(candidateBySymbol map[string]Candidate, barIndex int, ts time.Time) []Fill {
	var fills []Fill
	for _, sym := range t.symbols {
		pos, held := t.positions[sym]
		if !held {
			continue
		}
		c, ok := candidateBySymbol[sym]
		if !ok {
			continue
		}

		if t.cfg.ExitOnMACrossover {
			ma, ready := t.movingAverage(sym, t.cfg.MAExitPeriod)
			if ready {
				crossed := (pos.Side == Long && c.Price < ma) || (pos.Side == Short && c.Price > ma)
				if crossed {
					fills = append(fills, t.closePosition(sym, t.positions[sym], c.Price, barIndex, ts, "ma_crossover"))
					continue
				}
			}
		}

		if t.cfg.TrailingStopPercentage > 0 {
			var retrace float64
			if pos.Side == Long && pos.HighWaterMark > 0 {
				retrace = (pos.HighWaterMark - c.Price) / pos.HighWaterMark
			} else if pos.Side == Short && pos.LowWaterMark > 0 {
				retrace = (c.Price - pos.LowWaterMark) / pos.LowWaterMark
			}
			if retrace >= t.cfg.TrailingStopPercentage {
				fills = append(fills, t.closePosition(sym, t.positions[sym], c.Price, barIndex, ts, "trailing_stop"))
			}
		}
	}
	return fills
}

// rankCandidates sorts by Strength descending, with symbol ascending as a
// deterministic tiebreak (spec §4.11).
func rankCandidates(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Strength(), out[j].Strength()
		if si != sj {
			return si > sj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (t *Trader) isEndOfDay(ts time.Time) bool {
	local := ts.In(t.cfg.Location)
	return local.Hour() > eodHour || (local.Hour() == eodHour && local.Minute() >= eodMinute)
}

func (t *Trader) processExits(candidateBySymbol map[string]Candidate, barIndex int, ts time.Time) []Fill {
	var fills []Fill
	for _, sym := range t.symbols {
		pos, held := t.positions[sym]
		if !held {
			continue
		}
		c, haveSignal := candidateBySymbol[sym]
		price := pos.EntryPrice
		prediction := pos.EntryPrediction
		confidence := pos.EntryConfidence
		if haveSignal {
			price = c.Price
			prediction = c.Prediction
			confidence = c.Confidence
		}

		decision := t.filter.ShouldExit(sym, price, prediction, confidence)
		if decision.ShouldExit {
			fills = append(fills, t.closePosition(sym, pos, price, barIndex, ts, decision.Reason.String()))
		}
	}
	return fills
}

// rotate swaps a held position for a stronger unheld candidate when the
// candidate's strength exceeds the held position's current strength by at
// least RotationStrengthDelta and both point the same direction (spec
// §4.11: rotation requires a same-sign strength delta past the
// threshold).
func (t *Trader) rotate(ranked []Candidate, barIndex int, ts time.Time) []Fill {
	var fills []Fill
	candidateBySymbol := make(map[string]Candidate, len(ranked))
	for _, c := range ranked {
		candidateBySymbol[c.Symbol] = c
	}

	for _, c := range ranked {
		if len(t.positions) == 0 {
			break
		}
		if _, held := t.positions[c.Symbol]; held {
			continue
		}
		entry := t.filter.CanEnter(c.Symbol, barIndex, c.Prediction, c.Confidence)
		if !entry.Allowed {
			continue
		}

		weakestSym, weakestStrength, found := t.weakestHeldPosition(candidateBySymbol)
		if !found {
			continue
		}
		if inv, ok := InverseOf(c.Symbol); ok && inv != weakestSym {
			if _, invHeld := t.positions[inv]; invHeld {
				continue
			}
		}
		pos := t.positions[weakestSym]
		weakPrediction, weakPrice := pos.EntryPrediction, pos.EntryPrice
		if wc, ok := candidateBySymbol[weakestSym]; ok {
			weakPrediction, weakPrice = wc.Prediction, wc.Price
		}
		if sameSign(c.Prediction, weakPrediction) &&
			c.Strength()-weakestStrength >= t.cfg.RotationStrengthDelta {
			fills = append(fills, t.closePosition(weakestSym, pos, weakPrice, barIndex, ts, "rotation_exit"))
			fills = append(fills, t.openPosition(c, barIndex, ts))
		}
	}
	return fills
}

// weakestHeldPosition finds the held symbol with the lowest current
// strength (deriving strength from the matching candidate when present,
// else 0, so a symbol with no live signal is always rotation-eligible;
// rotate then takes its direction from the entry prediction and closes it
// at its entry price).
func (t *Trader) weakestHeldPosition(candidateBySymbol map[string]Candidate) (string, float64, bool) {
	weakestSym := ""
	weakestStrength := 0.0
	found := false
	for _, sym := range t.symbols {
		if _, held := t.positions[sym]; !held {
			continue
		}
		strength := 0.0
		if c, ok := candidateBySymbol[sym]; ok {
			strength = c.Strength()
		}
		if !found || strength < weakestStrength {
			weakestSym, weakestStrength, found = sym, strength, true
		}
	}
	return weakestSym, weakestStrength, found
}

func (t *Trader) enterNewPositions(ranked []Candidate, barIndex int, ts time.Time) []Fill {
	var fills []Fill
	for _, c := range ranked {
		if len(t.positions) >= t.cfg.MaxPositions {
			break
		}
		if _, held := t.positions[c.Symbol]; held {
			continue
		}
		if inv, ok := InverseOf(c.Symbol); ok {
			if _, invHeld := t.positions[inv]; invHeld {
				continue
			}
		}
		entry := t.filter.CanEnter(c.Symbol, barIndex, c.Prediction, c.Confidence)
		if !entry.Allowed {
			continue
		}
		fills = append(fills, t.openPosition(c, barIndex, ts))
	}
	return fills
}

func (t *Trader) openPosition(c Candidate, barIndex int, ts time.Time) Fill {
	side := Long
	if c.Prediction < 0 {
		side = Short
	}

	adv := c.ADV
	if adv <= 0 {
		adv = t.cfg.DefaultADV
	}
	volatility := c.Volatility
	if volatility <= 0 {
		volatility = t.cfg.DefaultVolatility
	}

	winProb := clampProb(0.5+c.Confidence/2.0, t.kellyCfg.MinWinProb, t.kellyCfg.MaxWinProb)
	kellyIn := KellyInputs{
		WinProbability: winProb,
		ExpectedWin:    t.kellyCfg.ExpectedWinPct,
		ExpectedLoss:   t.kellyCfg.ExpectedLossPct,
		Strength:       c.Strength(),
		Volatility:     volatility,
		WinStreak:      t.streak[c.Symbol],
	}
	fraction := KellyFraction(kellyIn, t.kellyCfg)
	shares := SharesForFraction(t.capital, fraction, c.Price)

	filterSide := filter.Long
	if side == Short {
		filterSide = filter.Short
	}
	t.filter.RecordEntry(c.Symbol, barIndex, filterSide, c.Price, c.Prediction, c.Confidence)

	var entryCost cost.Breakdown
	if t.cfg.EnableCostTracking {
		entryCost = cost.Compute(cost.Inputs{
			Symbol:      c.Symbol,
			Side:        costSideForEntry(side),
			Price:       c.Price,
			Shares:      shares,
			ADV:         adv,
			Volatility:  volatility,
			BaselineVol: t.cfg.DefaultVolatility,
			IsShort:     side == Short,
		})
		t.capital -= entryCost.Total
	}

	t.positions[c.Symbol] = Position{
		Symbol:          c.Symbol,
		Side:            side,
		EntryBar:        barIndex,
		EntryTime:       ts,
		EntryPrice:      c.Price,
		Shares:          shares,
		EntryPrediction: c.Prediction,
		EntryConfidence: c.Confidence,
		EntryCost:       entryCost,
		HighWaterMark:   c.Price,
		LowWaterMark:    c.Price,
	}

	return Fill{
		Symbol: c.Symbol, Side: side, IsEntry: true,
		Bar: barIndex, Timestamp: ts, Price: c.Price, Shares: shares, Reason: "entry",
	}
}

// costSideForEntry reports the cost-model side of opening a position:
// going long buys shares, going short sells them.
func costSideForEntry(side Side) cost.Side {
	if side == Short {
		return cost.Sell
	}
	return cost.Buy
}

// costSideForExit reports the cost-model side of closing a position: a
// long is sold off, a short is bought back.
func costSideForExit(side Side) cost.Side {
	if side == Short {
		return cost.Buy
	}
	return cost.Sell
}

func (t *Trader) closePosition(symbol string, pos Position, price float64, barIndex int, ts time.Time, reason string) Fill {
	pnl := pos.UnrealizedPnL(price) * pos.Shares * pos.EntryPrice

	if t.cfg.EnableCostTracking {
		adv := t.cfg.DefaultADV
		volatility := t.cfg.DefaultVolatility
		holdDays := float64(barIndex-pos.EntryBar) / float64(filter.BarsPerDay)
		exitCost := cost.Compute(cost.Inputs{
			Symbol:      symbol,
			Side:        costSideForExit(pos.Side),
			Price:       price,
			Shares:      pos.Shares,
			ADV:         adv,
			Volatility:  volatility,
			BaselineVol: t.cfg.DefaultVolatility,
			IsShort:     pos.Side == Short,
			HoldDays:    holdDays,
		})
		pos.ExitCost = exitCost
		pos.AccruedBorrowCost = exitCost.BorrowCost
		pnl -= pos.EntryCost.Total + exitCost.Total
	}

	t.capital += pnl

	if pnl > 0 {
		if t.streak[symbol] < 0 {
			t.streak[symbol] = 0
		}
		t.streak[symbol]++
	} else if pnl < 0 {
		if t.streak[symbol] > 0 {
			t.streak[symbol] = 0
		}
		t.streak[symbol]--
	}

	t.filter.RecordExit(symbol, barIndex)
	delete(t.positions, symbol)

	return Fill{
		Symbol: symbol, Side: pos.Side, IsEntry: false,
		Bar: barIndex, Timestamp: ts, Price: price, Shares: pos.Shares, Reason: reason,
	}
}

func (t *Trader) liquidateAll(barIndex int, ts time.Time, reason string) []Fill {
	var fills []Fill
	for _, sym := range t.symbols {
		pos, held := t.positions[sym]
		if !held {
			continue
		}
		fills = append(fills, t.closePosition(sym, pos, pos.EntryPrice, barIndex, ts, reason))
	}
	return fills
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0) == (b > 0)
}
