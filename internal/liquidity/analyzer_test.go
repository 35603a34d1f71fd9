package liquidity

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
)

func newTestAnalyzer(floor float64) *Analyzer {
	return NewAnalyzer(floor, zerolog.Nop())
}

func TestAnalyzeNilBookDegrades(t *testing.T) {
	a := newTestAnalyzer(0)

	analysis := a.Analyze("BTCUSDT", nil)
	if !analysis.Degraded {
		t.Error("Expected degraded analysis for nil book")
	}
	if len(analysis.Clusters) != 0 || analysis.Imbalance != 0 {
		t.Errorf("Expected empty analysis, got %+v", analysis)
	}
}

func TestAnalyzeEmptyBookDegrades(t *testing.T) {
	a := newTestAnalyzer(0)

	analysis := a.Analyze("BTCUSDT", &binance.OrderBook{Symbol: "BTCUSDT"})
	if !analysis.Degraded {
		t.Error("Expected degraded analysis for empty book")
	}
}

func TestClusterMergingWithinGap(t *testing.T) {
	a := newTestAnalyzer(1000)

	// Mid is 100; levels at 99.9 and 99.95 are 0.05% apart and merge,
	// the level at 90 is far outside the 0.5% gap and stands alone
	book := &binance.OrderBook{
		Symbol: "TESTUSDT",
		Bids: []binance.BookLevel{
			{Price: 99.9, Quantity: 20},  // 1998 USD
			{Price: 99.95, Quantity: 20}, // 1999 USD
			{Price: 90, Quantity: 100},   // 9000 USD
		},
		Asks: []binance.BookLevel{
			{Price: 100.1, Quantity: 5}, // 500.5 USD, below floor
		},
	}

	analysis := a.Analyze("TESTUSDT", book)
	if analysis.Degraded {
		t.Fatal("Expected non-degraded analysis")
	}

	var bidClusters []Cluster
	for _, c := range analysis.Clusters {
		if c.Side == SideBid {
			bidClusters = append(bidClusters, c)
		}
	}
	if len(bidClusters) != 2 {
		t.Fatalf("Expected 2 bid clusters, got %d: %+v", len(bidClusters), bidClusters)
	}

	// The ask level is below the floor and must be dropped
	for _, c := range analysis.Clusters {
		if c.Side == SideAsk {
			t.Errorf("Expected no ask clusters, got %+v", c)
		}
	}
}

func TestClusterRiskLevels(t *testing.T) {
	a := newTestAnalyzer(1000)

	cases := []struct {
		notional float64
		expected RiskLevel
	}{
		{3500, RiskHigh},
		{2500, RiskMedium},
		{1500, RiskLow},
		{500, RiskMinimal},
	}
	for _, tc := range cases {
		if got := a.riskLevel(tc.notional); got != tc.expected {
			t.Errorf("riskLevel(%f) = %s, expected %s", tc.notional, got, tc.expected)
		}
	}
}

func TestImbalance(t *testing.T) {
	a := newTestAnalyzer(0)

	// Bid notional 3000, ask notional 1000 -> (3000-1000)/4000 = 0.5
	book := &binance.OrderBook{
		Symbol: "TESTUSDT",
		Bids:   []binance.BookLevel{{Price: 100, Quantity: 30}},
		Asks:   []binance.BookLevel{{Price: 100, Quantity: 10}},
	}
	analysis := a.Analyze("TESTUSDT", book)
	if math.Abs(analysis.Imbalance-0.5) > 1e-9 {
		t.Errorf("Expected imbalance 0.5, got %f", analysis.Imbalance)
	}
}

func TestCascadeZonesWithinRange(t *testing.T) {
	a := newTestAnalyzer(1000)

	// Mid 100. One large cluster 1% away, one far cluster 10% away.
	book := &binance.OrderBook{
		Symbol: "TESTUSDT",
		Bids: []binance.BookLevel{
			{Price: 99, Quantity: 60}, // 5940 USD, HIGH risk, 1% away
			{Price: 90, Quantity: 60}, // 5400 USD, HIGH risk, 10% away
		},
		Asks: []binance.BookLevel{{Price: 101, Quantity: 1}},
	}

	analysis := a.Analyze("TESTUSDT", book)
	if len(analysis.CascadeZones) != 1 {
		t.Fatalf("Expected 1 cascade zone, got %d", len(analysis.CascadeZones))
	}

	zone := analysis.CascadeZones[0]
	if zone.Price != 99 {
		t.Errorf("Expected zone at 99, got %f", zone.Price)
	}
	// base 0.8 * (1 - 1/5) * min(1, 5940/5000) * 100 = 0.8*0.8*1*100 = 64
	if math.Abs(zone.Probability-64) > 0.5 {
		t.Errorf("Expected probability near 64, got %f", zone.Probability)
	}
}

func TestNearestCluster(t *testing.T) {
	analysis := &Analysis{
		Clusters: []Cluster{
			{Price: 95, Notional: 50_000, Side: SideBid},
			{Price: 99, Notional: 10_000, Side: SideBid},
			{Price: 103, Notional: 80_000, Side: SideAsk},
		},
	}

	// Closest overall
	if c := analysis.NearestCluster(100, 0); c == nil || c.Price != 99 {
		t.Errorf("Expected cluster at 99, got %+v", c)
	}
	// With a notional floor the small cluster is skipped
	if c := analysis.NearestCluster(100, 20_000); c == nil || c.Price != 103 {
		t.Errorf("Expected cluster at 103, got %+v", c)
	}
	// No qualifying cluster
	if c := analysis.NearestCluster(100, 1_000_000); c != nil {
		t.Errorf("Expected nil, got %+v", c)
	}
}
