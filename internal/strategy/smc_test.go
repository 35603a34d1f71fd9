package strategy

import (
	"testing"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
)

func flatBars(n int) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		klines[i] = binance.Kline{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	return klines
}

func TestDetectOrderBlocksBullishImpulse(t *testing.T) {
	klines := flatBars(10)
	// Impulsive candle: body 10 on a range of 11
	klines[5] = binance.Kline{Open: 100, High: 110.5, Low: 99.5, Close: 110, Volume: 10}
	// Low-body retracements behind it
	klines[6] = binance.Kline{Open: 109.9, High: 112, Low: 108, Close: 110.1, Volume: 10}
	klines[7] = binance.Kline{Open: 110, High: 112, Low: 108, Close: 110.2, Volume: 10}
	klines[8] = binance.Kline{Open: 110.1, High: 112, Low: 108, Close: 110.3, Volume: 10}
	klines[9] = binance.Kline{Open: 110.2, High: 112, Low: 108, Close: 110.4, Volume: 10}

	blocks := DetectOrderBlocks(klines, 5)
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(blocks))
	}
	b := blocks[0]
	if !b.Bullish || b.Index != 5 || b.High != 110.5 || b.Low != 99.5 {
		t.Errorf("Unexpected block: %+v", b)
	}
}

func TestDetectOrderBlocksBearishImpulse(t *testing.T) {
	klines := flatBars(10)
	klines[5] = binance.Kline{Open: 110, High: 110.5, Low: 99.5, Close: 100, Volume: 10}
	klines[6] = binance.Kline{Open: 100.1, High: 102, Low: 98, Close: 100, Volume: 10}
	klines[7] = binance.Kline{Open: 100, High: 102, Low: 98, Close: 100.1, Volume: 10}

	blocks := DetectOrderBlocks(klines, 5)
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(blocks))
	}
	if blocks[0].Bullish {
		t.Error("Expected a bearish block from a down impulse")
	}
}

func TestDetectOrderBlocksNeedsRetracements(t *testing.T) {
	klines := flatBars(10)
	// Impulse on the last bar has no candles behind it to retrace
	klines[9] = binance.Kline{Open: 100, High: 110.5, Low: 99.5, Close: 110, Volume: 10}

	if blocks := DetectOrderBlocks(klines, 5); len(blocks) != 0 {
		t.Errorf("Expected no blocks without retracements, got %d", len(blocks))
	}
}

func TestDetectOrderBlocksShortInput(t *testing.T) {
	if blocks := DetectOrderBlocks(flatBars(4), 5); blocks != nil {
		t.Errorf("Expected nil under the lookback, got %v", blocks)
	}
}

func TestDetectFairValueGaps(t *testing.T) {
	klines := []binance.Kline{
		{High: 100, Low: 99},
		{High: 100, Low: 99},
		{High: 100, Low: 99},  // bullish gap start
		{High: 103, Low: 102}, // bearish gap start
		{High: 104, Low: 101}, // low clears bar 2's high
		{High: 99, Low: 98},   // high falls below bar 3's low
	}

	gaps := DetectFairValueGaps(klines, 2)
	if len(gaps) != 2 {
		t.Fatalf("Expected 2 gaps, got %d", len(gaps))
	}
	if !gaps[0].Bullish || gaps[0].Top != 101 || gaps[0].Bottom != 100 || gaps[0].Index != 2 {
		t.Errorf("Unexpected bullish gap: %+v", gaps[0])
	}
	if gaps[1].Bullish || gaps[1].Top != 102 || gaps[1].Bottom != 99 || gaps[1].Index != 3 {
		t.Errorf("Unexpected bearish gap: %+v", gaps[1])
	}
}

func TestDetectBreakerBlocks(t *testing.T) {
	klines := flatBars(10)
	// Close above the previous high on double volume
	klines[5] = binance.Kline{Open: 101, High: 106, Low: 100, Close: 105, Volume: 20}
	for i := 6; i < 10; i++ {
		klines[i] = binance.Kline{Open: 105, High: 106, Low: 104, Close: 105, Volume: 10}
	}

	breakers := DetectBreakerBlocks(klines, 3)
	if len(breakers) != 1 {
		t.Fatalf("Expected 1 breaker, got %d", len(breakers))
	}
	b := breakers[0]
	if !b.Bullish || b.Level != 101 || b.Index != 5 {
		t.Errorf("Unexpected breaker: %+v", b)
	}
}

func TestDetectBreakerBlocksNeedsVolume(t *testing.T) {
	klines := flatBars(10)
	// Same breakout close but on average volume
	klines[5] = binance.Kline{Open: 101, High: 106, Low: 100, Close: 105, Volume: 10}
	for i := 6; i < 10; i++ {
		klines[i] = binance.Kline{Open: 105, High: 106, Low: 104, Close: 105, Volume: 10}
	}

	if breakers := DetectBreakerBlocks(klines, 3); len(breakers) != 0 {
		t.Errorf("Expected no breaker without a volume push, got %d", len(breakers))
	}
}

// smcKlines builds 60 bars: flat warmup, a bullish impulse with
// retracements, a high volume breakout and a fair value gap, with a
// volume spike on the last bar.
func smcKlines() []binance.Kline {
	klines := flatBars(60)
	klines[50] = binance.Kline{Open: 100, High: 110.5, Low: 99.5, Close: 110, Volume: 10}
	klines[51] = binance.Kline{Open: 109.9, High: 112, Low: 108, Close: 110.1, Volume: 10}
	klines[52] = binance.Kline{Open: 110, High: 112, Low: 108, Close: 110.2, Volume: 10}
	klines[53] = binance.Kline{Open: 110.4, High: 113.5, Low: 110.2, Close: 113.4, Volume: 30}
	klines[54] = binance.Kline{Open: 113, High: 114.5, Low: 112.5, Close: 113.2, Volume: 10}
	klines[55] = binance.Kline{Open: 113.1, High: 114, Low: 112.8, Close: 113.3, Volume: 10}
	klines[56] = binance.Kline{Open: 113.2, High: 115.5, Low: 113, Close: 113.4, Volume: 10}
	klines[57] = binance.Kline{Open: 115.2, High: 116, Low: 115, Close: 115.4, Volume: 10}
	klines[58] = binance.Kline{Open: 115.3, High: 116, Low: 115, Close: 115.5, Volume: 10}
	klines[59] = binance.Kline{Open: 115.4, High: 116, Low: 115.1, Close: 115.5, Volume: 25}
	return klines
}

func TestSMCValidateStructures(t *testing.T) {
	s := NewSMCStrategy(zerolog.Nop())

	passed, conf := s.Validate(&Snapshot{Symbol: "BTCUSDT", Klines: smcKlines(), CurrentPrice: 115.5})
	if !passed {
		t.Fatalf("Expected smc setup to validate, confirmations: %v", conf)
	}
	for _, name := range []string{"order_block", "fvg", "breaker", "volume_confirmation"} {
		if !conf[name] {
			t.Errorf("Expected %s to pass", name)
		}
	}
}

func TestSMCOrderBlockIsMandatory(t *testing.T) {
	s := NewSMCStrategy(zerolog.Nop())

	passed, conf := s.Validate(&Snapshot{Symbol: "BTCUSDT", Klines: flatBars(60), CurrentPrice: 100})
	if passed || conf["order_block"] {
		t.Error("Expected validation to fail without an order block")
	}
}

func TestSMCGenerateDropsLowRiskReward(t *testing.T) {
	s := NewSMCStrategy(zerolog.Nop())

	// The structures line up, but with the stop at 2x ATR and tp1 at
	// 0.7x the candidate fails the risk-reward floor and is dropped.
	sig, err := s.Generate(&Snapshot{Symbol: "BTCUSDT", Klines: smcKlines(), CurrentPrice: 115.5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sig != nil {
		t.Errorf("Expected candidate to be discarded on risk-reward, got %+v", sig)
	}
}
