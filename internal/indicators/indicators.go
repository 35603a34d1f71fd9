// Package indicators implements the technical indicator math the
// strategies build on. All functions are pure and tolerate short inputs
// by degrading (empty result or input passthrough) instead of panicking.
package indicators

import (
	"math"

	"binance-signal-engine/internal/binance"
)

// ==================== MOVING AVERAGES ====================

// EMA calculates the exponential moving average. The first value is the
// SMA of the first period prices; fewer prices than the period returns
// the input unchanged.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		out := make([]float64, len(prices))
		copy(out, prices)
		return out
	}

	multiplier := 2.0 / float64(period+1)
	ema := make([]float64, 0, len(prices)-period+1)

	var seed float64
	for _, p := range prices[:period] {
		seed += p
	}
	ema = append(ema, seed/float64(period))

	for _, price := range prices[period:] {
		prev := ema[len(ema)-1]
		ema = append(ema, (price-prev)*multiplier+prev)
	}
	return ema
}

// SMA calculates the simple moving average, one value per full window.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	sma := make([]float64, 0, len(prices)-period+1)
	var sum float64
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			sma = append(sma, sum/float64(period))
		}
	}
	return sma
}

// ==================== MACD ====================

// MACDResult holds the three MACD series. The lines are tail-aligned:
// the last element of each series belongs to the last input price.
type MACDResult struct {
	MACDLine   []float64
	SignalLine []float64
	Histogram  []float64
}

// MACD calculates MACD(fast, slow, signal). Fewer prices than the slow
// period yields an empty result.
func MACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(prices) < slowPeriod {
		return MACDResult{}
	}

	emaFast := EMA(prices, fastPeriod)
	emaSlow := EMA(prices, slowPeriod)

	// Align the fast EMA to the slow EMA's length from the tail
	emaFast = emaFast[len(emaFast)-len(emaSlow):]
	macdLine := make([]float64, len(emaSlow))
	for i := range emaSlow {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}

	signalLine := EMA(macdLine, signalPeriod)
	aligned := macdLine[len(macdLine)-len(signalLine):]
	histogram := make([]float64, len(signalLine))
	for i := range signalLine {
		histogram[i] = aligned[i] - signalLine[i]
	}

	return MACDResult{MACDLine: macdLine, SignalLine: signalLine, Histogram: histogram}
}

// ==================== RSI ====================

// RSI calculates the relative strength index over trailing windows of
// simple average gain/loss. A window with zero average loss reads 100.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	changes := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
	}

	rsi := make([]float64, 0, len(changes)-period+1)
	for i := period - 1; i < len(changes); i++ {
		var gain, loss float64
		for _, c := range changes[i-period+1 : i+1] {
			if c > 0 {
				gain += c
			} else {
				loss -= c
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)

		if avgLoss == 0 {
			rsi = append(rsi, 100)
			continue
		}
		rs := avgGain / avgLoss
		rsi = append(rsi, 100-100/(1+rs))
	}
	return rsi
}

// ==================== VWAP ====================

// VWAP calculates the cumulative volume weighted average price series.
func VWAP(klines []binance.Kline) []float64 {
	if len(klines) == 0 {
		return nil
	}
	vwap := make([]float64, len(klines))
	var cumPV, cumVol float64
	for i, k := range klines {
		typical := (k.High + k.Low + k.Close) / 3
		cumPV += typical * k.Volume
		cumVol += k.Volume
		if cumVol == 0 {
			vwap[i] = typical
			continue
		}
		vwap[i] = cumPV / cumVol
	}
	return vwap
}

// ==================== ATR ====================

// ATR calculates the average true range as a trailing mean of the true
// range over the period.
func ATR(klines []binance.Kline, period int) []float64 {
	if period <= 0 || len(klines) < period+1 {
		return nil
	}

	trs := make([]float64, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close
		tr := high - low
		if hc := math.Abs(high - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(low - prevClose); lc > tr {
			tr = lc
		}
		trs[i-1] = tr
	}

	atr := make([]float64, 0, len(trs)-period+1)
	var sum float64
	for i, tr := range trs {
		sum += tr
		if i >= period {
			sum -= trs[i-period]
		}
		if i >= period-1 {
			atr = append(atr, sum/float64(period))
		}
	}
	return atr
}

// ==================== BOLLINGER BANDS ====================

// BollingerBands holds the band series produced by Bollinger.
type BollingerBands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger calculates bands over windows anchored at each start index,
// i.e. window i covers prices[i : i+period]. Band value i therefore
// summarizes the window beginning at bar i, not ending there; consumers
// rely on this anchoring and it must not be changed silently.
func Bollinger(prices []float64, period int, stdDevs float64) BollingerBands {
	if period <= 0 || len(prices) < period {
		return BollingerBands{}
	}

	n := len(prices) - period + 1
	bb := BollingerBands{
		Upper:  make([]float64, n),
		Middle: make([]float64, n),
		Lower:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		window := prices[i : i+period]
		var sum float64
		for _, p := range window {
			sum += p
		}
		mean := sum / float64(period)

		var variance float64
		for _, p := range window {
			variance += (p - mean) * (p - mean)
		}
		std := math.Sqrt(variance / float64(period))

		bb.Middle[i] = mean
		bb.Upper[i] = mean + stdDevs*std
		bb.Lower[i] = mean - stdDevs*std
	}
	return bb
}

// ==================== STOCHASTIC ====================

// StochasticResult holds %K and %D series.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic calculates the stochastic oscillator. A flat high-low
// range reads %K = 50.
func Stochastic(klines []binance.Kline, kPeriod, dPeriod int) StochasticResult {
	if kPeriod <= 0 || len(klines) < kPeriod {
		return StochasticResult{}
	}

	kValues := make([]float64, 0, len(klines)-kPeriod+1)
	for i := kPeriod - 1; i < len(klines); i++ {
		window := klines[i-kPeriod+1 : i+1]
		highest := window[0].High
		lowest := window[0].Low
		for _, k := range window[1:] {
			if k.High > highest {
				highest = k.High
			}
			if k.Low < lowest {
				lowest = k.Low
			}
		}
		if highest == lowest {
			kValues = append(kValues, 50)
			continue
		}
		kValues = append(kValues, (klines[i].Close-lowest)/(highest-lowest)*100)
	}

	return StochasticResult{K: kValues, D: SMA(kValues, dPeriod)}
}

// ==================== ADX ====================

// ADX calculates the average directional index with trailing-mean
// smoothing. Needs at least 2*period klines.
func ADX(klines []binance.Kline, period int) []float64 {
	if period <= 0 || len(klines) < 2*period {
		return nil
	}

	n := len(klines) - 1
	trs := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < len(klines); i++ {
		high, low := klines[i].High, klines[i].Low
		prevHigh, prevLow := klines[i-1].High, klines[i-1].Low
		prevClose := klines[i-1].Close

		tr := high - low
		if hc := math.Abs(high - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(low - prevClose); lc > tr {
			tr = lc
		}
		trs[i-1] = tr

		upMove := high - prevHigh
		downMove := prevLow - low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}

	smoothTR := SMA(trs, period)
	smoothPlus := SMA(plusDM, period)
	smoothMinus := SMA(minusDM, period)

	dx := make([]float64, len(smoothTR))
	for i := range smoothTR {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := smoothPlus[i] / smoothTR[i] * 100
		minusDI := smoothMinus[i] / smoothTR[i] * 100
		if plusDI+minusDI == 0 {
			continue
		}
		dx[i] = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
	}

	return SMA(dx, period)
}

// ==================== VOLUME / MOMENTUM HELPERS ====================

// AverageVolume returns the mean volume of the last n klines, excluding
// the most recent bar.
func AverageVolume(klines []binance.Kline, n int) float64 {
	if len(klines) < 2 {
		return 0
	}
	end := len(klines) - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	window := klines[start:end]
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, k := range window {
		sum += k.Volume
	}
	return sum / float64(len(window))
}

// Momentum returns the percentage price change over the last n bars.
func Momentum(klines []binance.Kline, n int) float64 {
	if len(klines) < n+1 {
		return 0
	}
	prev := klines[len(klines)-1-n].Close
	if prev == 0 {
		return 0
	}
	return (klines[len(klines)-1].Close - prev) / prev * 100
}

// Closes extracts the close series.
func Closes(klines []binance.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// LinearSlope fits a least-squares line through the values and returns
// its slope per bar. Fewer than two values yield 0.
func LinearSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
