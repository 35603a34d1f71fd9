// Package scanner filters the futures universe down to tradeable
// markets and ranks them by volatility, technical posture and book
// interest. The bot feeds the top of the ranking into the engine.
package scanner

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/indicators"
)

// Config bounds the scan loop.
type Config struct {
	Interval       time.Duration // time between background scans
	MaxConcurrent  int           // symbol workers per scan
	MinVolumeUSD   float64
	MaxFundingRate float64 // absolute bound
	MaxSpread      float64 // fraction of mid
	KlineInterval  string
	KlineLimit     int
	TopLimit       int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		MaxConcurrent:  4,
		MinVolumeUSD:   1_000_000,
		MaxFundingRate: 0.001,
		MaxSpread:      0.01,
		KlineInterval:  "1h",
		KlineLimit:     100,
		TopLimit:       30,
	}
}

// Market is one ranked scan result.
type Market struct {
	Symbol             string  `json:"symbol"`
	Price              float64 `json:"price"`
	QuoteVolume        float64 `json:"quoteVolume"`
	FundingRate        float64 `json:"fundingRate"`
	Spread             float64 `json:"spread"`
	ATR                float64 `json:"atr"`
	TechnicalScore     float64 `json:"technicalScore"`
	LiquidationDensity float64 `json:"liquidationDensity"`
	CombinedScore      float64 `json:"combinedScore"`
}

// Scanner runs the periodic market scan.
type Scanner struct {
	client binance.MarketDataClient
	cfg    Config
	logger zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	running    bool
	lastResult []Market
	lastScanAt time.Time
}

func New(client binance.MarketDataClient, cfg Config, logger zerolog.Logger) *Scanner {
	if cfg.Interval == 0 {
		cfg = DefaultConfig()
	}
	return &Scanner{
		client:   client,
		cfg:      cfg,
		logger:   logger.With().Str("component", "scanner").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the background scan loop.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		// First scan right away so the bot has markets to work with
		s.runScan(ctx)
		for {
			select {
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runScan(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the current scan to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scanner) runScan(ctx context.Context) {
	markets, err := s.ScanOnce(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scan failed")
		return
	}
	s.mu.Lock()
	s.lastResult = markets
	s.lastScanAt = time.Now()
	s.mu.Unlock()
	s.logger.Info().Int("markets", len(markets)).Msg("scan completed")
}

// ScanOnce filters and ranks the whole universe once. Symbols are
// scanned by a bounded worker pool; individual failures skip the
// symbol only.
func (s *Scanner) ScanOnce(ctx context.Context) ([]Market, error) {
	symbols, err := s.client.GetFuturesSymbols()
	if err != nil {
		return nil, err
	}

	jobs := make(chan string)
	results := make(chan *Market)

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for symbol := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- s.scanSymbol(symbol)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, symbol := range symbols {
			select {
			case <-ctx.Done():
				return
			case jobs <- symbol:
			}
		}
	}()
	go func() {
		workers.Wait()
		close(results)
	}()

	var markets []Market
	for m := range results {
		if m != nil {
			markets = append(markets, *m)
		}
	}
	return rank(markets), ctx.Err()
}

// scanSymbol applies the volume, funding and spread filters and scores
// the survivors. Returns nil when filtered out or data is missing.
func (s *Scanner) scanSymbol(symbol string) *Market {
	ticker, err := s.client.GetTicker24hr(symbol)
	if err != nil || ticker.QuoteVolume < s.cfg.MinVolumeUSD {
		return nil
	}

	var fundingRate float64
	if funding, err := s.client.GetFundingRate(symbol); err == nil {
		fundingRate = funding.LastFundingRate
		if math.Abs(fundingRate) > s.cfg.MaxFundingRate {
			return nil
		}
	}

	book, err := s.client.GetOrderBook(symbol, 20)
	if err != nil {
		return nil
	}
	mid := book.MidPrice()
	if mid <= 0 {
		return nil
	}
	spread := (book.BestAsk() - book.BestBid()) / mid
	if spread > s.cfg.MaxSpread {
		return nil
	}

	klines, err := s.client.GetKlines(symbol, s.cfg.KlineInterval, s.cfg.KlineLimit)
	if err != nil || len(klines) == 0 {
		return nil
	}

	var atr float64
	if series := indicators.ATR(klines, 14); len(series) > 0 {
		atr = series[len(series)-1]
	}

	return &Market{
		Symbol:             symbol,
		Price:              klines[len(klines)-1].Close,
		QuoteVolume:        ticker.QuoteVolume,
		FundingRate:        fundingRate,
		Spread:             spread,
		ATR:                atr,
		TechnicalScore:     technicalScore(klines),
		LiquidationDensity: liquidationDensity(book),
	}
}

// technicalScore blends RSI neutrality, MACD direction and distance
// from VWAP into a 0-100 confluence score.
func technicalScore(klines []binance.Kline) float64 {
	if len(klines) < 26 {
		return 0
	}
	closes := indicators.Closes(klines)
	currentPrice := closes[len(closes)-1]
	if currentPrice == 0 {
		return 0
	}

	var rsi float64 = 100
	if series := indicators.RSI(closes, 14); len(series) > 0 {
		rsi = series[len(series)-1]
	}
	rsiScore := 50 - math.Abs(rsi-50)

	var macdValue float64
	if macd := indicators.MACD(closes, 12, 26, 9); len(macd.MACDLine) > 0 {
		macdValue = macd.MACDLine[len(macd.MACDLine)-1]
	}
	macdScore := 50 + macdValue/currentPrice*1000

	var vwapScore float64 = 50
	if vwap := indicators.VWAP(klines); len(vwap) > 0 {
		v := vwap[len(vwap)-1]
		if v != 0 {
			vwapScore = 50 + (currentPrice-v)/v*100
		}
	}

	score := (rsiScore + macdScore + vwapScore) / 3
	return math.Max(0, math.Min(100, score))
}

// liquidationDensity proxies liquidation interest with the top-of-book
// volume imbalance, scaled to 0-100.
func liquidationDensity(book *binance.OrderBook) float64 {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 50
	}
	depth := 10
	var bidVol, askVol float64
	for i, lvl := range book.Bids {
		if i >= depth {
			break
		}
		bidVol += lvl.Quantity
	}
	for i, lvl := range book.Asks {
		if i >= depth {
			break
		}
		askVol += lvl.Quantity
	}
	max := math.Max(bidVol, askVol)
	if max == 0 {
		return 50
	}
	return math.Min(100, math.Abs(bidVol-askVol)/max*100)
}

// rank normalizes the per-market metrics and combines them with the
// 0.4 volatility / 0.4 technical / 0.2 liquidation weighting.
func rank(markets []Market) []Market {
	if len(markets) == 0 {
		return markets
	}

	var maxATR, maxLiq float64 = 1, 1
	for _, m := range markets {
		if m.ATR > maxATR {
			maxATR = m.ATR
		}
		if m.LiquidationDensity > maxLiq {
			maxLiq = m.LiquidationDensity
		}
	}
	for i := range markets {
		atrNorm := markets[i].ATR / maxATR * 100
		liqNorm := markets[i].LiquidationDensity / maxLiq * 100
		markets[i].CombinedScore = atrNorm*0.4 + markets[i].TechnicalScore*0.4 + liqNorm*0.2
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CombinedScore > markets[j].CombinedScore
	})
	return markets
}

// TopMarkets returns up to n of the best ranked markets from the last
// completed scan.
func (s *Scanner) TopMarkets(n int) []Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.lastResult) {
		n = len(s.lastResult)
	}
	out := make([]Market, n)
	copy(out, s.lastResult[:n])
	return out
}

// LastScanAt reports when the last background scan finished.
func (s *Scanner) LastScanAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScanAt
}
