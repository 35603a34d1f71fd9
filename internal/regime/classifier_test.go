package regime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
)

func trendingKlines(n int) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		base := 100 + float64(i)*2
		klines[i] = binance.Kline{Open: base, High: base + 1.5, Low: base - 0.5, Close: base + 1}
	}
	return klines
}

func flatKlines(n int) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		klines[i] = binance.Kline{Open: 100, High: 100.05, Low: 99.95, Close: 100}
	}
	return klines
}

func TestClassifyInsufficientBars(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	cls := c.Classify("BTCUSDT", flatKlines(19))
	if cls.Regime != Unknown {
		t.Errorf("Expected unknown regime under 20 bars, got %s", cls.Regime)
	}
}

func TestClassifyFlatMarketIsSidewaysStable(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	cls := c.Classify("BTCUSDT", flatKlines(60))
	if cls.Regime != SidewaysStable {
		t.Errorf("Expected sideways_stable, got %s (adx %.1f vol %.3f)",
			cls.Regime, cls.ADX, cls.AnnualizedVol)
	}
	if cls.Trend != TrendSideways {
		t.Errorf("Expected sideways trend, got %s", cls.Trend)
	}
}

func TestClassifyStrongTrend(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	cls := c.Classify("BTCUSDT", trendingKlines(60))
	if cls.Trend == TrendSideways {
		t.Errorf("Expected a trending read on a clean uptrend, got %s (adx %.1f)",
			cls.Trend, cls.ADX)
	}
	if cls.Regime != TrendingVolatile && cls.Regime != TrendingStable {
		t.Errorf("Expected a trending regime, got %s", cls.Regime)
	}
}

func TestClassifyCachesForFiveMinutes(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	first := c.Classify("BTCUSDT", trendingKlines(60))
	if first.Regime == Unknown {
		t.Fatal("Expected a classified regime")
	}

	// Inside the TTL the cached result is returned even for new data
	now = now.Add(4 * time.Minute)
	cached := c.Classify("BTCUSDT", flatKlines(60))
	if cached.Regime != first.Regime || !cached.ClassifiedAt.Equal(first.ClassifiedAt) {
		t.Error("Expected cached classification inside the TTL")
	}

	// Past the TTL the new data is classified
	now = now.Add(2 * time.Minute)
	fresh := c.Classify("BTCUSDT", flatKlines(60))
	if fresh.ClassifiedAt.Equal(first.ClassifiedAt) {
		t.Error("Expected recomputation after the TTL")
	}
	if fresh.Regime != SidewaysStable {
		t.Errorf("Expected sideways_stable after recompute, got %s", fresh.Regime)
	}
}

func TestInvalidateDropsCache(t *testing.T) {
	c := NewClassifier(zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Classify("BTCUSDT", trendingKlines(60))
	c.Invalidate("BTCUSDT")

	fresh := c.Classify("BTCUSDT", flatKlines(60))
	if fresh.Regime != SidewaysStable {
		t.Errorf("Expected fresh classification after invalidate, got %s", fresh.Regime)
	}
}

func TestWeightsTables(t *testing.T) {
	cases := []struct {
		regime   Regime
		strategy string
		weight   float64
	}{
		{TrendingVolatile, "smc", 0.6},
		{TrendingStable, "smc", 0.5},
		{SidewaysVolatile, "trap", 0.6},
		{SidewaysStable, "scalp", 0.7},
		{SidewaysStable, "smc", 0.0},
		{Unknown, "trap", 0.4},
	}
	for _, tc := range cases {
		if got := Weights(tc.regime)[tc.strategy]; got != tc.weight {
			t.Errorf("Weights(%s)[%s] = %v, expected %v", tc.regime, tc.strategy, got, tc.weight)
		}
	}
}

func TestWeightsUnknownRegimeFallsBack(t *testing.T) {
	w := Weights(Regime("bogus"))
	if w["trap"] != 0.4 || w["smc"] != 0.3 || w["scalp"] != 0.3 {
		t.Errorf("Expected default table, got %v", w)
	}
}
