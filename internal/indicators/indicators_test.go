package indicators

import (
	"math"
	"testing"

	"binance-signal-engine/internal/binance"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEMASeedsWithSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	ema := EMA(prices, 3)

	if len(ema) != 3 {
		t.Fatalf("Expected 3 EMA values, got %d", len(ema))
	}
	// First value is the SMA of the first three prices
	if !almostEqual(ema[0], 2, 1e-9) {
		t.Errorf("Expected seed 2, got %f", ema[0])
	}
	// multiplier = 2/(3+1) = 0.5; next = (4-2)*0.5 + 2 = 3
	if !almostEqual(ema[1], 3, 1e-9) {
		t.Errorf("Expected 3, got %f", ema[1])
	}
	if !almostEqual(ema[2], 4, 1e-9) {
		t.Errorf("Expected 4, got %f", ema[2])
	}
}

func TestEMAShortInputPassthrough(t *testing.T) {
	prices := []float64{10, 20}
	ema := EMA(prices, 5)
	if len(ema) != 2 || ema[0] != 10 || ema[1] != 20 {
		t.Errorf("Expected input passthrough, got %v", ema)
	}
}

func TestSMA(t *testing.T) {
	sma := SMA([]float64{1, 2, 3, 4}, 2)
	expected := []float64{1.5, 2.5, 3.5}
	if len(sma) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(sma))
	}
	for i := range expected {
		if !almostEqual(sma[i], expected[i], 1e-9) {
			t.Errorf("SMA[%d] = %f, expected %f", i, sma[i], expected[i])
		}
	}
}

func TestRSIAllGainsReads100(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	rsi := RSI(prices, 5)
	if len(rsi) == 0 {
		t.Fatal("Expected RSI values")
	}
	for i, v := range rsi {
		if v != 100 {
			t.Errorf("RSI[%d] = %f, expected 100 on monotonic gains", i, v)
		}
	}
}

func TestRSIBalancedReads50(t *testing.T) {
	// Alternating +1/-1 changes give equal average gain and loss
	prices := []float64{10, 11, 10, 11, 10, 11, 10}
	rsi := RSI(prices, 6)
	if len(rsi) != 1 {
		t.Fatalf("Expected 1 RSI value, got %d", len(rsi))
	}
	if !almostEqual(rsi[0], 50, 1e-9) {
		t.Errorf("Expected RSI 50, got %f", rsi[0])
	}
}

func TestRSIShortInput(t *testing.T) {
	if rsi := RSI([]float64{1, 2, 3}, 14); rsi != nil {
		t.Errorf("Expected nil for short input, got %v", rsi)
	}
}

func TestMACDTailAlignment(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	res := MACD(prices, 12, 26, 9)

	if len(res.MACDLine) == 0 || len(res.SignalLine) == 0 {
		t.Fatal("Expected non-empty MACD result")
	}
	if len(res.SignalLine) != len(res.Histogram) {
		t.Errorf("Signal and histogram lengths differ: %d vs %d",
			len(res.SignalLine), len(res.Histogram))
	}
	// On a steady uptrend the MACD line stays positive
	if last := res.MACDLine[len(res.MACDLine)-1]; last <= 0 {
		t.Errorf("Expected positive MACD on uptrend, got %f", last)
	}
}

func TestMACDShortInput(t *testing.T) {
	res := MACD([]float64{1, 2, 3}, 12, 26, 9)
	if len(res.MACDLine) != 0 {
		t.Errorf("Expected empty result, got %d values", len(res.MACDLine))
	}
}

func TestVWAP(t *testing.T) {
	klines := []binance.Kline{
		{High: 12, Low: 8, Close: 10, Volume: 100},
		{High: 22, Low: 18, Close: 20, Volume: 100},
	}
	vwap := VWAP(klines)
	if len(vwap) != 2 {
		t.Fatalf("Expected 2 values, got %d", len(vwap))
	}
	if !almostEqual(vwap[0], 10, 1e-9) {
		t.Errorf("Expected 10, got %f", vwap[0])
	}
	// (10*100 + 20*100) / 200 = 15
	if !almostEqual(vwap[1], 15, 1e-9) {
		t.Errorf("Expected 15, got %f", vwap[1])
	}
}

func TestVWAPZeroVolumeFallsBackToTypical(t *testing.T) {
	klines := []binance.Kline{{High: 12, Low: 8, Close: 10, Volume: 0}}
	vwap := VWAP(klines)
	if !almostEqual(vwap[0], 10, 1e-9) {
		t.Errorf("Expected typical price 10, got %f", vwap[0])
	}
}

func TestATRConstantRange(t *testing.T) {
	// Each bar spans exactly 2 with no gaps, so TR is always 2
	klines := make([]binance.Kline, 20)
	for i := range klines {
		klines[i] = binance.Kline{Open: 10, High: 11, Low: 9, Close: 10}
	}
	atr := ATR(klines, 14)
	if len(atr) == 0 {
		t.Fatal("Expected ATR values")
	}
	for i, v := range atr {
		if !almostEqual(v, 2, 1e-9) {
			t.Errorf("ATR[%d] = %f, expected 2", i, v)
		}
	}
}

func TestBollingerForwardAnchoring(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6}
	bb := Bollinger(prices, 3, 2)

	if len(bb.Middle) != 4 {
		t.Fatalf("Expected 4 windows, got %d", len(bb.Middle))
	}
	// Window 0 covers prices[0:3], so Middle[0] is the mean of 1,2,3
	if !almostEqual(bb.Middle[0], 2, 1e-9) {
		t.Errorf("Expected Middle[0]=2 for window starting at bar 0, got %f", bb.Middle[0])
	}
	if !almostEqual(bb.Middle[3], 5, 1e-9) {
		t.Errorf("Expected Middle[3]=5, got %f", bb.Middle[3])
	}
	if bb.Upper[0] <= bb.Middle[0] || bb.Lower[0] >= bb.Middle[0] {
		t.Error("Bands not symmetric around the middle")
	}
}

func TestStochasticFlatRangeReads50(t *testing.T) {
	klines := make([]binance.Kline, 14)
	for i := range klines {
		klines[i] = binance.Kline{High: 10, Low: 10, Close: 10}
	}
	res := Stochastic(klines, 14, 3)
	if len(res.K) != 1 {
		t.Fatalf("Expected 1 %%K value, got %d", len(res.K))
	}
	if res.K[0] != 50 {
		t.Errorf("Expected %%K 50 on flat range, got %f", res.K[0])
	}
}

func TestADXTrendingMarket(t *testing.T) {
	klines := make([]binance.Kline, 60)
	for i := range klines {
		base := 100 + float64(i)*2
		klines[i] = binance.Kline{Open: base, High: base + 1.5, Low: base - 0.5, Close: base + 1}
	}
	adx := ADX(klines, 14)
	if len(adx) == 0 {
		t.Fatal("Expected ADX values")
	}
	if last := adx[len(adx)-1]; last < 25 {
		t.Errorf("Expected strong ADX on clean uptrend, got %f", last)
	}
}

func TestADXShortInput(t *testing.T) {
	klines := make([]binance.Kline, 20)
	if adx := ADX(klines, 14); adx != nil {
		t.Errorf("Expected nil for under 2*period bars, got %d values", len(adx))
	}
}

func TestAverageVolumeExcludesLastBar(t *testing.T) {
	klines := []binance.Kline{
		{Volume: 10}, {Volume: 20}, {Volume: 30}, {Volume: 1000},
	}
	avg := AverageVolume(klines, 3)
	if !almostEqual(avg, 20, 1e-9) {
		t.Errorf("Expected 20 (last bar excluded), got %f", avg)
	}
}

func TestMomentum(t *testing.T) {
	klines := []binance.Kline{
		{Close: 100}, {Close: 101}, {Close: 102}, {Close: 105},
	}
	m := Momentum(klines, 3)
	if !almostEqual(m, 5, 1e-9) {
		t.Errorf("Expected 5%%, got %f", m)
	}
}

func TestLinearSlope(t *testing.T) {
	if s := LinearSlope([]float64{1, 3, 5, 7}); !almostEqual(s, 2, 1e-9) {
		t.Errorf("Expected slope 2, got %f", s)
	}
	if s := LinearSlope([]float64{5, 5, 5}); !almostEqual(s, 0, 1e-9) {
		t.Errorf("Expected slope 0 on flat values, got %f", s)
	}
	if s := LinearSlope([]float64{7}); s != 0 {
		t.Errorf("Expected 0 for single value, got %f", s)
	}
}

func TestStdDev(t *testing.T) {
	// Population stddev of 2,4,4,4,5,5,7,9 is 2
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if sd := StdDev(values); !almostEqual(sd, 2, 1e-9) {
		t.Errorf("Expected 2, got %f", sd)
	}
}
