// Package anomaly scores unusual order flow that public candles alone
// do not show: oversized prints, volume shocks, book gaps and sudden
// depth loss. The score is an additive 0-100 heuristic used by the
// scanner ranking and exposed on the API.
package anomaly

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/indicators"
)

// Store is a shared TTL cache, usually redis backed. A nil Store makes
// the scorer fall back to its in-memory cache only.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Score is the scored anomaly snapshot for one symbol.
type Score struct {
	Symbol    string    `json:"symbol"`
	Value     int       `json:"value"` // 0..100
	Factors   []string  `json:"factors"`
	Degraded  bool      `json:"degraded"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Scorer computes anomaly scores with a short TTL cache so repeated
// scans inside one cycle do not refetch or recompute.
type Scorer struct {
	client binance.MarketDataClient
	store  Store
	logger zerolog.Logger
	clock  func() time.Time

	largeOrderQty float64
	cacheTTL      time.Duration

	mu        sync.Mutex
	memCache  map[string]Score
	lastDepth map[string]float64
}

const (
	defaultLargeOrderQty = 20.0
	defaultCacheTTL      = 30 * time.Second
	cacheKeyPrefix       = "anomaly:"
)

func NewScorer(client binance.MarketDataClient, store Store, logger zerolog.Logger) *Scorer {
	return &Scorer{
		client:        client,
		store:         store,
		logger:        logger.With().Str("component", "anomaly").Logger(),
		clock:         time.Now,
		largeOrderQty: defaultLargeOrderQty,
		cacheTTL:      defaultCacheTTL,
		memCache:      make(map[string]Score),
		lastDepth:     make(map[string]float64),
	}
}

// SetClock replaces the time source, used by tests.
func (s *Scorer) SetClock(clock func() time.Time) { s.clock = clock }

// SetLargeOrderQty overrides the large print threshold in base units.
func (s *Scorer) SetLargeOrderQty(qty float64) { s.largeOrderQty = qty }

// ScoreSymbol returns the cached score when fresh, otherwise recomputes
// it from trades, klines and depth. Missing inputs degrade the score to
// zero for that factor group instead of failing the call.
func (s *Scorer) ScoreSymbol(ctx context.Context, symbol string) Score {
	now := s.clock()

	if cached, ok := s.cachedScore(ctx, symbol, now); ok {
		return cached
	}

	score := Score{Symbol: symbol, CheckedAt: now}

	trades, err := s.client.GetRecentTrades(symbol, 500)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("trades unavailable")
		score.Degraded = true
	} else {
		s.scoreTrades(&score, trades)
	}

	klines, err := s.client.GetKlines(symbol, "1m", 30)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("klines unavailable")
		score.Degraded = true
	} else {
		s.scoreVolume(&score, klines)
		s.scorePrice(&score, klines)
	}

	book, err := s.client.GetOrderBook(symbol, 100)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("order book unavailable")
		score.Degraded = true
	} else {
		s.scoreBook(&score, symbol, book)
	}

	if score.Value > 100 {
		score.Value = 100
	}

	s.cacheScore(ctx, score)
	return score
}

func (s *Scorer) cachedScore(ctx context.Context, symbol string, now time.Time) (Score, bool) {
	s.mu.Lock()
	if cached, ok := s.memCache[symbol]; ok && now.Sub(cached.CheckedAt) < s.cacheTTL {
		s.mu.Unlock()
		return cached, true
	}
	s.mu.Unlock()

	if s.store == nil {
		return Score{}, false
	}
	raw, ok := s.store.Get(ctx, cacheKeyPrefix+symbol)
	if !ok {
		return Score{}, false
	}
	var score Score
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return Score{}, false
	}
	if now.Sub(score.CheckedAt) >= s.cacheTTL {
		return Score{}, false
	}
	return score, true
}

func (s *Scorer) cacheScore(ctx context.Context, score Score) {
	s.mu.Lock()
	s.memCache[score.Symbol] = score
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	raw, err := json.Marshal(score)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, cacheKeyPrefix+score.Symbol, string(raw), s.cacheTTL); err != nil {
		s.logger.Debug().Err(err).Msg("shared cache write failed")
	}
}

// scoreTrades adds up to 30 points for oversized prints.
func (s *Scorer) scoreTrades(score *Score, trades []binance.Trade) {
	var large int
	for _, t := range trades {
		if t.Quantity >= s.largeOrderQty {
			large++
		}
	}
	if large == 0 {
		return
	}
	pts := large * 5
	if pts > 30 {
		pts = 30
	}
	score.Value += pts
	score.Factors = append(score.Factors, "large_orders")
}

// scoreVolume adds points for volume shocks on the 1m series.
func (s *Scorer) scoreVolume(score *Score, klines []binance.Kline) {
	if len(klines) < 10 {
		return
	}
	volumes := make([]float64, len(klines)-1)
	for i := 0; i < len(klines)-1; i++ {
		volumes[i] = klines[i].Volume
	}
	last := klines[len(klines)-1].Volume

	var mean float64
	for _, v := range volumes {
		mean += v
	}
	mean /= float64(len(volumes))
	std := indicators.StdDev(volumes)

	if std > 0 && (last-mean)/std > 2 {
		score.Value += 25
		score.Factors = append(score.Factors, "volume_zscore")
	}
	if mean > 0 {
		switch ratio := last / mean; {
		case ratio >= 3:
			score.Value += 15
			score.Factors = append(score.Factors, "volume_spike")
		case ratio <= 0.3:
			score.Value += 10
			score.Factors = append(score.Factors, "volume_drop")
		}
	}
}

// scorePrice adds points for price shocks and short window volatility.
func (s *Scorer) scorePrice(score *Score, klines []binance.Kline) {
	if len(klines) < 2 {
		return
	}
	last := klines[len(klines)-1].Close
	prev := klines[len(klines)-2].Close
	if prev > 0 && math.Abs(last-prev)/prev > 0.02 {
		score.Value += 25
		score.Factors = append(score.Factors, "price_spike")
	}

	returns := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		if klines[i-1].Close == 0 {
			continue
		}
		returns = append(returns, (klines[i].Close-klines[i-1].Close)/klines[i-1].Close)
	}
	if indicators.StdDev(returns) > 0.05 {
		score.Value += 15
		score.Factors = append(score.Factors, "volatility")
	}
}

// scoreBook adds points for imbalance, price gaps between levels and a
// collapse of total depth versus the previous observation.
func (s *Scorer) scoreBook(score *Score, symbol string, book *binance.OrderBook) {
	var bidVol, askVol float64
	for _, lvl := range book.Bids {
		bidVol += lvl.Price * lvl.Quantity
	}
	for _, lvl := range book.Asks {
		askVol += lvl.Price * lvl.Quantity
	}
	total := bidVol + askVol
	if total > 0 && math.Abs(bidVol-askVol)/total > 0.3 {
		score.Value += 20
		score.Factors = append(score.Factors, "book_imbalance")
	}

	if hasGap(book.Bids) || hasGap(book.Asks) {
		score.Value += 15
		score.Factors = append(score.Factors, "book_gaps")
	}

	s.mu.Lock()
	prev, seen := s.lastDepth[symbol]
	s.lastDepth[symbol] = total
	s.mu.Unlock()
	if seen && prev > 0 && total <= prev*0.1 {
		score.Value += 10
		score.Factors = append(score.Factors, "depth_collapse")
	}
}

func hasGap(levels []binance.BookLevel) bool {
	for i := 1; i < len(levels); i++ {
		prev := levels[i-1].Price
		if prev == 0 {
			continue
		}
		if math.Abs(levels[i].Price-prev)/prev > 0.01 {
			return true
		}
	}
	return false
}
