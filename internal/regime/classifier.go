// Package regime classifies market conditions per symbol and maps the
// regime to strategy weights the engine uses to arbitrate signals.
package regime

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/indicators"
)

// Regime is the combined trend/volatility classification.
type Regime string

const (
	TrendingVolatile Regime = "trending_volatile"
	TrendingStable   Regime = "trending_stable"
	SidewaysVolatile Regime = "sideways_volatile"
	SidewaysStable   Regime = "sideways_stable"
	Unknown          Regime = "unknown"
)

// Trend strength buckets derived from ADX.
type Trend string

const (
	TrendStrong   Trend = "strong"
	TrendModerate Trend = "moderate"
	TrendSideways Trend = "sideways"
)

// Volatility buckets derived from annualized return volatility.
type Volatility string

const (
	VolHigh     Volatility = "high"
	VolModerate Volatility = "moderate"
	VolLow      Volatility = "low"
)

// Classification is a full regime read for one symbol.
type Classification struct {
	Symbol        string     `json:"symbol"`
	Regime        Regime     `json:"regime"`
	Trend         Trend      `json:"trend"`
	Volatility    Volatility `json:"volatility"`
	ADX           float64    `json:"adx"`
	AnnualizedVol float64    `json:"annualizedVol"`
	ClassifiedAt  time.Time  `json:"classifiedAt"`
}

// StrategyWeights maps strategy name to its arbitration weight for a
// regime. Weights are fixed per regime; a weight of 0 disables the
// strategy entirely and one at or below 0.1 skips evaluation.
type StrategyWeights map[string]float64

var regimeWeights = map[Regime]StrategyWeights{
	TrendingVolatile: {"smc": 0.6, "trap": 0.3, "scalp": 0.1},
	TrendingStable:   {"smc": 0.5, "trap": 0.3, "scalp": 0.2},
	SidewaysVolatile: {"trap": 0.6, "smc": 0.2, "scalp": 0.2},
	SidewaysStable:   {"scalp": 0.7, "trap": 0.3, "smc": 0.0},
	Unknown:          {"trap": 0.4, "smc": 0.3, "scalp": 0.3},
}

// Weights returns the weight table for a regime. Unrecognized regimes
// get the default table.
func Weights(r Regime) StrategyWeights {
	if w, ok := regimeWeights[r]; ok {
		return w
	}
	return regimeWeights[Unknown]
}

const (
	minBars        = 20
	adxPeriod      = 14
	cacheTTL       = 5 * time.Minute
	hoursPerYear   = 8760 // hourly klines
	adxStrong      = 40.0
	adxModerate    = 25.0
	volHighCut     = 0.8
	volModerateCut = 0.4
)

// Classifier computes and caches regime classifications.
type Classifier struct {
	logger zerolog.Logger
	clock  func() time.Time

	mu    sync.Mutex
	cache map[string]Classification
}

func NewClassifier(logger zerolog.Logger) *Classifier {
	return &Classifier{
		logger: logger.With().Str("component", "regime").Logger(),
		clock:  time.Now,
		cache:  make(map[string]Classification),
	}
}

// SetClock replaces the time source, used by tests.
func (c *Classifier) SetClock(clock func() time.Time) { c.clock = clock }

// Classify returns the regime for a symbol, cached for five minutes.
// Fewer than 20 bars produce the default (unknown) regime.
func (c *Classifier) Classify(symbol string, klines []binance.Kline) Classification {
	now := c.clock()

	c.mu.Lock()
	if cached, ok := c.cache[symbol]; ok && now.Sub(cached.ClassifiedAt) < cacheTTL {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	result := c.classify(symbol, klines, now)

	c.mu.Lock()
	c.cache[symbol] = result
	c.mu.Unlock()
	return result
}

// Invalidate drops the cached classification for a symbol.
func (c *Classifier) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.cache, symbol)
	c.mu.Unlock()
}

func (c *Classifier) classify(symbol string, klines []binance.Kline, now time.Time) Classification {
	if len(klines) < minBars {
		c.logger.Debug().Str("symbol", symbol).Int("bars", len(klines)).
			Msg("insufficient history, using default regime")
		return Classification{Symbol: symbol, Regime: Unknown, ClassifiedAt: now}
	}

	annVol := annualizedVolatility(klines)
	var adx float64
	if series := indicators.ADX(klines, adxPeriod); len(series) > 0 {
		adx = series[len(series)-1]
	}

	trend := TrendSideways
	switch {
	case adx > adxStrong:
		trend = TrendStrong
	case adx > adxModerate:
		trend = TrendModerate
	}

	vol := VolLow
	switch {
	case annVol > volHighCut:
		vol = VolHigh
	case annVol > volModerateCut:
		vol = VolModerate
	}

	var regime Regime
	trending := trend != TrendSideways
	volatile := vol == VolHigh
	switch {
	case trending && volatile:
		regime = TrendingVolatile
	case trending:
		regime = TrendingStable
	case volatile:
		regime = SidewaysVolatile
	default:
		regime = SidewaysStable
	}

	result := Classification{
		Symbol:        symbol,
		Regime:        regime,
		Trend:         trend,
		Volatility:    vol,
		ADX:           adx,
		AnnualizedVol: annVol,
		ClassifiedAt:  now,
	}
	c.logger.Debug().Str("symbol", symbol).Str("regime", string(regime)).
		Float64("adx", adx).Float64("ann_vol", annVol).Msg("classified")
	return result
}

// annualizedVolatility is the standard deviation of simple close to
// close returns scaled by sqrt of hours per year.
func annualizedVolatility(klines []binance.Kline) float64 {
	returns := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		prev := klines[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (klines[i].Close-prev)/prev)
	}
	return indicators.StdDev(returns) * math.Sqrt(hoursPerYear)
}
