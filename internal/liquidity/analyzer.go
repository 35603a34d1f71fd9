// Package liquidity analyzes order book depth for liquidation clusters,
// book imbalance and cascade risk zones. The trap strategy and the
// market scanner consume its output.
package liquidity

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
)

// Side labels which side of the book a cluster sits on.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// RiskLevel grades a cluster by notional relative to the floor.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "HIGH"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskLow     RiskLevel = "LOW"
	RiskMinimal RiskLevel = "MINIMAL"
)

// Cluster is a merged group of adjacent book levels.
type Cluster struct {
	Price    float64   `json:"price"`    // volume weighted, rounded to 2 decimals
	Notional float64   `json:"notional"` // USD value of the cluster
	Side     Side      `json:"side"`
	Risk     RiskLevel `json:"risk"`
}

// CascadeZone is a cluster close enough to the mid price to start a
// liquidation cascade, with an estimated trigger probability.
type CascadeZone struct {
	Price       float64   `json:"price"`
	DistancePct float64   `json:"distancePct"`
	Probability float64   `json:"probability"` // 0..100
	Risk        RiskLevel `json:"risk"`
}

// Analysis is the result of one order book pass. A degraded analysis
// (empty or missing book) has zero clusters and zero imbalance.
type Analysis struct {
	Symbol       string        `json:"symbol"`
	MidPrice     float64       `json:"midPrice"`
	Clusters     []Cluster     `json:"clusters"`
	Imbalance    float64       `json:"imbalance"` // (bidVol-askVol)/(bidVol+askVol)
	CascadeZones []CascadeZone `json:"cascadeZones"`
	Degraded     bool          `json:"degraded"`
}

// NearestCluster returns the qualifying cluster closest to the given
// price with notional at least minNotional, or nil.
func (a *Analysis) NearestCluster(price, minNotional float64) *Cluster {
	var best *Cluster
	bestDist := math.MaxFloat64
	for i := range a.Clusters {
		c := &a.Clusters[i]
		if c.Notional < minNotional {
			continue
		}
		if d := math.Abs(c.Price - price); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// Analyzer clusters order book depth. Floor is the minimum cluster
// notional in USD.
type Analyzer struct {
	floor  float64
	logger zerolog.Logger
}

const (
	defaultClusterFloor = 20_000.0
	mergeGapRatio       = 0.005 // merge levels while gap/mid stays under this
	cascadeRangePct     = 5.0   // only zones within 5% of mid can cascade
)

func NewAnalyzer(floor float64, logger zerolog.Logger) *Analyzer {
	if floor <= 0 {
		floor = defaultClusterFloor
	}
	return &Analyzer{
		floor:  floor,
		logger: logger.With().Str("component", "liquidity").Logger(),
	}
}

// Analyze builds the cluster picture for one snapshot. A nil or empty
// book yields a degraded analysis, never an error; the caller's scan
// must not abort because depth was momentarily unavailable.
func (a *Analyzer) Analyze(symbol string, book *binance.OrderBook) *Analysis {
	if book == nil || (len(book.Bids) == 0 && len(book.Asks) == 0) {
		a.logger.Warn().Str("symbol", symbol).Msg("empty order book, returning degraded analysis")
		return &Analysis{Symbol: symbol, Degraded: true}
	}

	mid := book.MidPrice()
	analysis := &Analysis{Symbol: symbol, MidPrice: mid}

	analysis.Clusters = append(analysis.Clusters, a.clusterSide(book.Bids, SideBid, mid)...)
	analysis.Clusters = append(analysis.Clusters, a.clusterSide(book.Asks, SideAsk, mid)...)
	sort.Slice(analysis.Clusters, func(i, j int) bool {
		return analysis.Clusters[i].Notional > analysis.Clusters[j].Notional
	})

	analysis.Imbalance = imbalance(book)
	analysis.CascadeZones = a.cascadeZones(analysis.Clusters, mid)
	return analysis
}

// clusterSide merges adjacent levels while the price gap relative to
// the mid stays within mergeGapRatio, then keeps clusters at or above
// the notional floor.
func (a *Analyzer) clusterSide(levels []binance.BookLevel, side Side, mid float64) []Cluster {
	if len(levels) == 0 || mid <= 0 {
		return nil
	}

	sorted := make([]binance.BookLevel, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var clusters []Cluster
	var curNotional, curWeighted float64
	lastPrice := sorted[0].Price

	flush := func() {
		if curNotional >= a.floor {
			price := math.Round(curWeighted/curNotional*100) / 100
			clusters = append(clusters, Cluster{
				Price:    price,
				Notional: curNotional,
				Side:     side,
				Risk:     a.riskLevel(curNotional),
			})
		}
		curNotional, curWeighted = 0, 0
	}

	for _, lvl := range sorted {
		notional := lvl.Price * lvl.Quantity
		if curNotional > 0 && (lvl.Price-lastPrice)/mid > mergeGapRatio {
			flush()
		}
		curNotional += notional
		curWeighted += lvl.Price * notional
		lastPrice = lvl.Price
	}
	flush()
	return clusters
}

func (a *Analyzer) riskLevel(notional float64) RiskLevel {
	switch {
	case notional >= 3*a.floor:
		return RiskHigh
	case notional >= 2*a.floor:
		return RiskMedium
	case notional >= a.floor:
		return RiskLow
	default:
		return RiskMinimal
	}
}

func imbalance(book *binance.OrderBook) float64 {
	var bidVol, askVol float64
	for _, lvl := range book.Bids {
		bidVol += lvl.Price * lvl.Quantity
	}
	for _, lvl := range book.Asks {
		askVol += lvl.Price * lvl.Quantity
	}
	if bidVol+askVol == 0 {
		return 0
	}
	return (bidVol - askVol) / (bidVol + askVol)
}

// cascadeZones scores clusters within cascadeRangePct of the mid.
// Probability decays linearly with distance and scales with cluster
// size up to 5x the floor.
func (a *Analyzer) cascadeZones(clusters []Cluster, mid float64) []CascadeZone {
	if mid <= 0 {
		return nil
	}
	var zones []CascadeZone
	for _, c := range clusters {
		distPct := math.Abs(c.Price-mid) / mid * 100
		if distPct > cascadeRangePct {
			continue
		}
		base := 0.1
		switch c.Risk {
		case RiskHigh:
			base = 0.8
		case RiskMedium:
			base = 0.5
		case RiskLow:
			base = 0.3
		}
		distanceFactor := math.Max(0, 1-distPct/cascadeRangePct)
		sizeFactor := math.Min(1, c.Notional/(a.floor*5))
		zones = append(zones, CascadeZone{
			Price:       c.Price,
			DistancePct: distPct,
			Probability: base * distanceFactor * sizeFactor * 100,
			Risk:        c.Risk,
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Probability > zones[j].Probability })
	return zones
}
