package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
)

// stubClient serves canned universe data for deterministic scans.
type stubClient struct {
	symbols    []string
	symbolsErr error
	tickers    map[string]binance.Ticker24hr
	funding    map[string]float64
	books      map[string]*binance.OrderBook
	klines     map[string][]binance.Kline
}

var _ binance.MarketDataClient = (*stubClient)(nil)

func (c *stubClient) GetFuturesSymbols() ([]string, error) {
	return c.symbols, c.symbolsErr
}

func (c *stubClient) GetTicker24hr(symbol string) (*binance.Ticker24hr, error) {
	t, ok := c.tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("no ticker for %s", symbol)
	}
	return &t, nil
}

func (c *stubClient) GetFundingRate(symbol string) (*binance.FundingRate, error) {
	rate, ok := c.funding[symbol]
	if !ok {
		return nil, fmt.Errorf("no funding for %s", symbol)
	}
	return &binance.FundingRate{Symbol: symbol, LastFundingRate: rate}, nil
}

func (c *stubClient) GetOrderBook(symbol string, limit int) (*binance.OrderBook, error) {
	book, ok := c.books[symbol]
	if !ok {
		return nil, fmt.Errorf("no book for %s", symbol)
	}
	return book, nil
}

func (c *stubClient) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	klines, ok := c.klines[symbol]
	if !ok {
		return nil, fmt.Errorf("no klines for %s", symbol)
	}
	return klines, nil
}

func (c *stubClient) GetAllTickers24hr() ([]binance.Ticker24hr, error) { return nil, nil }
func (c *stubClient) GetRecentTrades(string, int) ([]binance.Trade, error) {
	return nil, errors.New("not implemented")
}
func (c *stubClient) GetCurrentPrice(string) (float64, error) { return 0, nil }

func rangedKlines(n int, tradingRange float64) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		klines[i] = binance.Kline{
			Open:   100,
			High:   100 + tradingRange/2,
			Low:    100 - tradingRange/2,
			Close:  100,
			Volume: 10,
		}
	}
	return klines
}

func tightBook(symbol string) *binance.OrderBook {
	return &binance.OrderBook{
		Symbol: symbol,
		Bids:   []binance.BookLevel{{Price: 99.9, Quantity: 5}},
		Asks:   []binance.BookLevel{{Price: 100.1, Quantity: 5}},
	}
}

func newStubClient(symbols ...string) *stubClient {
	c := &stubClient{
		symbols: symbols,
		tickers: make(map[string]binance.Ticker24hr),
		funding: make(map[string]float64),
		books:   make(map[string]*binance.OrderBook),
		klines:  make(map[string][]binance.Kline),
	}
	for _, s := range symbols {
		c.tickers[s] = binance.Ticker24hr{Symbol: s, LastPrice: 100, QuoteVolume: 5_000_000}
		c.funding[s] = 0.0001
		c.books[s] = tightBook(s)
		c.klines[s] = rangedKlines(30, 2)
	}
	return c
}

func TestScanOncePassesHealthyMarket(t *testing.T) {
	client := newStubClient("BTCUSDT")
	s := New(client, DefaultConfig(), zerolog.Nop())

	markets, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("Expected 1 market, got %d", len(markets))
	}
	m := markets[0]
	if m.Symbol != "BTCUSDT" || m.Price != 100 {
		t.Errorf("Unexpected market: %+v", m)
	}
	if m.ATR != 2 {
		t.Errorf("Expected ATR 2 on a constant range, got %v", m.ATR)
	}
	if m.CombinedScore <= 0 {
		t.Errorf("Expected a positive combined score, got %v", m.CombinedScore)
	}
}

func TestScanOnceFiltersLowVolume(t *testing.T) {
	client := newStubClient("THINUSDT")
	client.tickers["THINUSDT"] = binance.Ticker24hr{Symbol: "THINUSDT", QuoteVolume: 500_000}
	s := New(client, DefaultConfig(), zerolog.Nop())

	markets, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if len(markets) != 0 {
		t.Errorf("Expected low volume market filtered, got %v", markets)
	}
}

func TestScanOnceFiltersExtremeFunding(t *testing.T) {
	client := newStubClient("HOTUSDT")
	client.funding["HOTUSDT"] = -0.002
	s := New(client, DefaultConfig(), zerolog.Nop())

	markets, _ := s.ScanOnce(context.Background())
	if len(markets) != 0 {
		t.Errorf("Expected extreme funding filtered, got %v", markets)
	}
}

func TestScanOnceFiltersWideSpread(t *testing.T) {
	client := newStubClient("WIDEUSDT")
	client.books["WIDEUSDT"] = &binance.OrderBook{
		Symbol: "WIDEUSDT",
		Bids:   []binance.BookLevel{{Price: 98, Quantity: 5}},
		Asks:   []binance.BookLevel{{Price: 102, Quantity: 5}},
	}
	s := New(client, DefaultConfig(), zerolog.Nop())

	markets, _ := s.ScanOnce(context.Background())
	if len(markets) != 0 {
		t.Errorf("Expected wide spread filtered, got %v", markets)
	}
}

func TestScanOnceSkipsFailingSymbols(t *testing.T) {
	client := newStubClient("BTCUSDT", "BROKEUSDT")
	delete(client.klines, "BROKEUSDT")
	s := New(client, DefaultConfig(), zerolog.Nop())

	markets, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if len(markets) != 1 || markets[0].Symbol != "BTCUSDT" {
		t.Errorf("Expected only the healthy symbol, got %v", markets)
	}
}

func TestScanOnceUniverseFetchFails(t *testing.T) {
	client := newStubClient()
	client.symbolsErr = errors.New("exchange down")
	s := New(client, DefaultConfig(), zerolog.Nop())

	if _, err := s.ScanOnce(context.Background()); err == nil {
		t.Error("Expected error when the universe fetch fails")
	}
}

func TestScanOnceRanksVolatilityFirst(t *testing.T) {
	client := newStubClient("CALMUSDT", "WILDUSDT")
	client.klines["CALMUSDT"] = rangedKlines(30, 0.5)
	client.klines["WILDUSDT"] = rangedKlines(30, 4)
	s := New(client, DefaultConfig(), zerolog.Nop())

	markets, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("Expected 2 markets, got %d", len(markets))
	}
	if markets[0].Symbol != "WILDUSDT" {
		t.Errorf("Expected the volatile market ranked first, got %s", markets[0].Symbol)
	}
	if markets[0].CombinedScore <= markets[1].CombinedScore {
		t.Errorf("Expected descending scores, got %v then %v",
			markets[0].CombinedScore, markets[1].CombinedScore)
	}
}

func TestTechnicalScoreShortInput(t *testing.T) {
	if score := technicalScore(rangedKlines(20, 2)); score != 0 {
		t.Errorf("Expected 0 under 26 bars, got %v", score)
	}
}

func TestTechnicalScoreBounded(t *testing.T) {
	score := technicalScore(rangedKlines(60, 2))
	if score < 0 || score > 100 {
		t.Errorf("Expected score within 0-100, got %v", score)
	}
}

func TestLiquidationDensity(t *testing.T) {
	if d := liquidationDensity(nil); d != 50 {
		t.Errorf("Expected neutral 50 on a nil book, got %v", d)
	}

	balanced := &binance.OrderBook{
		Bids: []binance.BookLevel{{Price: 99, Quantity: 10}},
		Asks: []binance.BookLevel{{Price: 101, Quantity: 10}},
	}
	if d := liquidationDensity(balanced); d != 0 {
		t.Errorf("Expected 0 on a balanced book, got %v", d)
	}

	oneSided := &binance.OrderBook{
		Bids: []binance.BookLevel{{Price: 99, Quantity: 20}},
		Asks: []binance.BookLevel{{Price: 101, Quantity: 10}},
	}
	if d := liquidationDensity(oneSided); d != 50 {
		t.Errorf("Expected 50 on a 2:1 book, got %v", d)
	}
}

func TestRankCombinedWeighting(t *testing.T) {
	markets := rank([]Market{
		{Symbol: "A", ATR: 10, TechnicalScore: 50, LiquidationDensity: 100},
		{Symbol: "B", ATR: 5, TechnicalScore: 50, LiquidationDensity: 50},
	})

	// A: 100*0.4 + 50*0.4 + 100*0.2 = 80; B: 50*0.4 + 50*0.4 + 50*0.2 = 50
	if markets[0].Symbol != "A" || markets[0].CombinedScore != 80 {
		t.Errorf("Unexpected top market: %+v", markets[0])
	}
	if markets[1].CombinedScore != 50 {
		t.Errorf("Expected combined 50 for B, got %v", markets[1].CombinedScore)
	}
}

func TestTopMarketsBeforeAnyScan(t *testing.T) {
	s := New(newStubClient(), DefaultConfig(), zerolog.Nop())
	if got := s.TopMarkets(5); len(got) != 0 {
		t.Errorf("Expected no markets before a scan, got %d", len(got))
	}
	if !s.LastScanAt().IsZero() {
		t.Error("Expected zero last scan time before a scan")
	}
}
