package indicators

import "testing"

func TestDetectCrossoversBullishAndBearish(t *testing.T) {
	fast := []float64{1, 3, 2, 0.5}
	slow := []float64{2, 2, 2, 2}

	crosses := DetectCrossovers(fast, slow)
	if len(crosses) != 2 {
		t.Fatalf("Expected 2 crossovers, got %d", len(crosses))
	}

	if !crosses[0].Bullish || crosses[0].Index != 1 {
		t.Errorf("Expected bullish cross at index 1, got %+v", crosses[0])
	}
	if crosses[1].Bullish || crosses[1].Index != 3 {
		t.Errorf("Expected bearish cross at index 3, got %+v", crosses[1])
	}
	// Strength at the bullish cross: (3-2)/2*100 = 50
	if crosses[0].Strength != 50 {
		t.Errorf("Expected strength 50, got %f", crosses[0].Strength)
	}
}

func TestDetectCrossoversTailAlignment(t *testing.T) {
	// fast is longer; only its tail should be compared
	fast := []float64{100, 100, 1, 3}
	slow := []float64{2, 2}

	crosses := DetectCrossovers(fast, slow)
	if len(crosses) != 1 {
		t.Fatalf("Expected 1 crossover, got %d", len(crosses))
	}
	if !crosses[0].Bullish {
		t.Error("Expected bullish crossover")
	}
}

func TestDetectCrossoversNoCross(t *testing.T) {
	fast := []float64{3, 4, 5}
	slow := []float64{1, 1, 1}
	if crosses := DetectCrossovers(fast, slow); len(crosses) != 0 {
		t.Errorf("Expected no crossovers, got %d", len(crosses))
	}
}

func TestLatestCrossoverWithin(t *testing.T) {
	fast := []float64{1, 3, 3, 3, 3, 3}
	slow := []float64{2, 2, 2, 2, 2, 2}

	// Cross happened at index 1, five bars ago
	if c := LatestCrossoverWithin(fast, slow, 2); c != nil {
		t.Errorf("Expected nil outside window, got %+v", c)
	}
	if c := LatestCrossoverWithin(fast, slow, 6); c == nil || !c.Bullish {
		t.Errorf("Expected bullish crossover inside window, got %+v", c)
	}
}

func TestRSISignals(t *testing.T) {
	rsi := []float64{50, 70, 75, 60, 29, 35}
	signals := RSISignals(rsi)

	if len(signals) != 2 {
		t.Fatalf("Expected 2 signals, got %d", len(signals))
	}
	if !signals[0].Overbought || signals[0].Index != 2 {
		t.Errorf("Expected overbought at index 2, got %+v", signals[0])
	}
	if signals[1].Overbought || signals[1].Index != 4 {
		t.Errorf("Expected oversold at index 4, got %+v", signals[1])
	}
}
