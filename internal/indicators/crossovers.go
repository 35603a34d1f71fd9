package indicators

// ==================== CROSSOVER DETECTION ====================

// Crossover marks a bar where the fast line crossed the slow line.
// Index is relative to the tail-aligned pair of series. Strength is the
// signed percent divergence of fast over slow at the crossing bar.
type Crossover struct {
	Index    int
	Bullish  bool
	Strength float64
}

// DetectCrossovers finds every bar where fast crosses slow. The two
// series are tail-aligned first, so differing lengths are fine.
func DetectCrossovers(fast, slow []float64) []Crossover {
	if len(fast) == 0 || len(slow) == 0 {
		return nil
	}
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	fast = fast[len(fast)-n:]
	slow = slow[len(slow)-n:]

	var crosses []Crossover
	for i := 1; i < n; i++ {
		prevDiff := fast[i-1] - slow[i-1]
		diff := fast[i] - slow[i]
		if prevDiff == diff && diff == 0 {
			continue
		}
		var strength float64
		if slow[i] != 0 {
			strength = (fast[i] - slow[i]) / slow[i] * 100
		}
		if prevDiff <= 0 && diff > 0 {
			crosses = append(crosses, Crossover{Index: i, Bullish: true, Strength: strength})
		} else if prevDiff >= 0 && diff < 0 {
			crosses = append(crosses, Crossover{Index: i, Bullish: false, Strength: strength})
		}
	}
	return crosses
}

// LatestCrossoverWithin returns the most recent crossover that happened
// in the last `bars` bars of the aligned series, or nil.
func LatestCrossoverWithin(fast, slow []float64, bars int) *Crossover {
	crosses := DetectCrossovers(fast, slow)
	if len(crosses) == 0 {
		return nil
	}
	last := crosses[len(crosses)-1]
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	if last.Index < n-bars {
		return nil
	}
	return &last
}

// ==================== RSI THRESHOLD SIGNALS ====================

// RSISignal marks a bar where RSI crossed an overbought/oversold
// threshold.
type RSISignal struct {
	Index      int
	Overbought bool // true: crossed above 70, false: crossed below 30
	Value      float64
}

// RSISignals finds the bars where the RSI series crossed 70 upward or
// 30 downward.
func RSISignals(rsi []float64) []RSISignal {
	var signals []RSISignal
	for i := 1; i < len(rsi); i++ {
		if rsi[i-1] <= 70 && rsi[i] > 70 {
			signals = append(signals, RSISignal{Index: i, Overbought: true, Value: rsi[i]})
		} else if rsi[i-1] >= 30 && rsi[i] < 30 {
			signals = append(signals, RSISignal{Index: i, Overbought: false, Value: rsi[i]})
		}
	}
	return signals
}
