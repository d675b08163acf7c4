// Package loader fetches one-minute bars from an upstream source, caching
// them in Redis and isolating a misbehaving symbol's feed behind a circuit
// breaker so one degraded symbol cannot stall the whole engine (spec §4.12).
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/rotorun/internal/bar"
)

// Source is an upstream bar feed, e.g. a vendor API client or a file-backed
// fixture reader used in backtests.
type Source interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]bar.Bar, error)
}

// Config holds the loader's cache and resilience parameters.
type Config struct {
	CacheTTL          time.Duration
	RatePerSecond     float64
	RateBurst         int
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns the reference loader configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           10 * time.Minute,
		RatePerSecond:      20,
		RateBurst:          40,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// Loader fetches bars for a fixed symbol universe, caching results in
// Redis and gating each symbol's upstream calls through its own circuit
// breaker.
type Loader struct {
	cfg      Config
	source   Source
	cache    *redis.Client
	limiter  *rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds a Loader. cache may be nil to disable caching (e.g. in unit
// tests that only want breaker/rate-limit behavior).
func New(cfg Config, source Source, cache *redis.Client) *Loader {
	return &Loader{
		cfg:      cfg,
		source:   source,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (l *Loader) breakerFor(symbol string) *gobreaker.CircuitBreaker {
	if cb, ok := l.breakers[symbol]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        symbol,
		MaxRequests: 1,
		Timeout:     l.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= l.cfg.BreakerMaxFailures
		},
	})
	l.breakers[symbol] = cb
	return cb
}

// LoadBars returns bars for symbol between from and to (bounds as the
// Source defines them; CSVSource includes both ends), serving from cache
// when present, otherwise calling the upstream Source through the rate
// limiter and the symbol's circuit breaker, then populating the cache.
func (l *Loader) LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]bar.Bar, error) {
	key := cacheKey(symbol, from, to)

	if l.cache != nil {
		if bars, ok := l.readCache(ctx, key); ok {
			return bars, nil
		}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("loader: rate limiter wait for %s: %w", symbol, err)
	}

	cb := l.breakerFor(symbol)
	result, err := cb.Execute(func() (interface{}, error) {
		return l.source.FetchBars(ctx, symbol, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("loader: fetch %s: %w", symbol, err)
	}
	bars := result.([]bar.Bar)

	if l.cache != nil {
		l.writeCache(ctx, key, bars)
	}
	return bars, nil
}

func (l *Loader) readCache(ctx context.Context, key string) ([]bar.Bar, bool) {
	raw, err := l.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var bars []bar.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, false
	}
	return bars, true
}

func (l *Loader) writeCache(ctx context.Context, key string, bars []bar.Bar) {
	raw, err := json.Marshal(bars)
	if err != nil {
		return
	}
	l.cache.Set(ctx, key, raw, l.cfg.CacheTTL)
}

func cacheKey(symbol string, from, to time.Time) string {
	return fmt.Sprintf("rotorun:bars:%s:%d:%d", symbol, from.UnixMilli(), to.UnixMilli())
}

// BreakerState reports the current circuit state for a symbol, for
// telemetry and health checks. Symbols never queried return "closed",
// matching a breaker that has never tripped.
func (l *Loader) BreakerState(symbol string) string {
	cb, ok := l.breakers[symbol]
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
