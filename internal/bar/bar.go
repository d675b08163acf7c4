// Package bar defines the immutable OHLCV record that flows through the
// rotation engine, plus the deterministic 64-bit identity scheme used to
// correlate bars for the same wall-clock minute across symbols.
package bar

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Bar is an immutable one-minute OHLCV record for a single symbol.
// Bars are never mutated after creation; the core only ever reads them by
// index out of a Ring.
type Bar struct {
	ID        uint64
	Timestamp time.Time
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Validate checks the OHLC invariant low <= open,close <= high and that
// prices are strictly positive. Bars are treated as authoritative by the
// core (spec §7 kind 4); this check exists for loaders to call explicitly,
// not as an implicit gate inside the core.
func (b Bar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s@%s: non-positive price", b.Symbol, b.Timestamp)
	}
	if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("bar %s@%s: low/high invariant violated (o=%.4f h=%.4f l=%.4f c=%.4f)",
			b.Symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s: negative volume", b.Symbol, b.Timestamp)
	}
	return nil
}

// New builds a Bar and stamps it with its deterministic ID.
func New(ts time.Time, symbol string, open, high, low, close float64, volume int64) Bar {
	b := Bar{
		Timestamp: ts,
		Symbol:    symbol,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
	b.ID = ID(ts.UnixMilli(), symbol)
	return b
}

// symbolHash16 folds a symbol name to a stable 16-bit value, independent of
// Go's map-seed-randomized string hashing. FNV-1a is used because it is
// deterministic across processes and platforms, per spec §4.2.
func symbolHash16(symbol string) uint16 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	sum := h.Sum64()
	// Fold the 64-bit digest down to 16 bits rather than truncating, so all
	// bits of the hash contribute to the final value.
	folded := uint16(sum) ^ uint16(sum>>16) ^ uint16(sum>>32) ^ uint16(sum>>48)
	return folded
}

// ID computes bar_id = hash16(symbol) << 48 | (timestamp_ms & 0xFFFFFFFFFFFF).
func ID(timestampMs int64, symbol string) uint64 {
	tsPart := uint64(timestampMs) & 0xFFFFFFFFFFFF
	symPart := uint64(symbolHash16(symbol)) << 48
	return symPart | tsPart
}

// ExtractTimestampMs returns the lower 48 bits of a bar_id.
func ExtractTimestampMs(id uint64) int64 {
	return int64(id & 0xFFFFFFFFFFFF)
}

// ExtractSymbolHash returns the upper 16 bits of a bar_id.
func ExtractSymbolHash(id uint64) uint16 {
	return uint16(id >> 48)
}

// SameTimestamp reports whether two bar_ids share the same 48-bit
// timestamp component, i.e. they were produced for the same wall-clock
// minute (possibly different symbols).
func SameTimestamp(a, b uint64) bool {
	return ExtractTimestampMs(a) == ExtractTimestampMs(b)
}
