package anomaly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
)

// stubClient returns canned data so scores are deterministic.
type stubClient struct {
	trades    []binance.Trade
	klines    []binance.Kline
	book      *binance.OrderBook
	tradesErr error
	klinesErr error
	bookErr   error
	klineCall int
}

func (s *stubClient) GetRecentTrades(symbol string, limit int) ([]binance.Trade, error) {
	return s.trades, s.tradesErr
}

func (s *stubClient) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	s.klineCall++
	return s.klines, s.klinesErr
}

func (s *stubClient) GetOrderBook(symbol string, limit int) (*binance.OrderBook, error) {
	return s.book, s.bookErr
}

func (s *stubClient) GetTicker24hr(symbol string) (*binance.Ticker24hr, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubClient) GetAllTickers24hr() ([]binance.Ticker24hr, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubClient) GetFundingRate(symbol string) (*binance.FundingRate, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubClient) GetCurrentPrice(symbol string) (float64, error) {
	return 0, fmt.Errorf("not implemented")
}

func (s *stubClient) GetFuturesSymbols() ([]string, error) {
	return nil, fmt.Errorf("not implemented")
}

var _ binance.MarketDataClient = (*stubClient)(nil)

func quietKlines(n int) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		klines[i] = binance.Kline{Open: 100, High: 100.1, Low: 99.9, Close: 100, Volume: 50}
	}
	return klines
}

func balancedBook() *binance.OrderBook {
	return &binance.OrderBook{
		Symbol: "TESTUSDT",
		Bids:   []binance.BookLevel{{Price: 99.99, Quantity: 10}, {Price: 99.98, Quantity: 10}},
		Asks:   []binance.BookLevel{{Price: 100.01, Quantity: 10}, {Price: 100.02, Quantity: 10}},
	}
}

func TestScoreQuietMarketIsZero(t *testing.T) {
	client := &stubClient{
		trades: []binance.Trade{{Quantity: 1}, {Quantity: 2}},
		klines: quietKlines(30),
		book:   balancedBook(),
	}
	s := NewScorer(client, nil, zerolog.Nop())

	score := s.ScoreSymbol(context.Background(), "TESTUSDT")
	if score.Value != 0 {
		t.Errorf("Expected score 0 for a quiet market, got %d (factors %v)", score.Value, score.Factors)
	}
	if score.Degraded {
		t.Error("Expected non-degraded score")
	}
}

func TestScoreLargeOrders(t *testing.T) {
	trades := make([]binance.Trade, 10)
	for i := range trades {
		trades[i] = binance.Trade{Quantity: 25} // above the 20 unit threshold
	}
	client := &stubClient{trades: trades, klines: quietKlines(30), book: balancedBook()}
	s := NewScorer(client, nil, zerolog.Nop())

	score := s.ScoreSymbol(context.Background(), "TESTUSDT")
	// 10 large prints * 5 points capped at 30
	if score.Value != 30 {
		t.Errorf("Expected 30 points, got %d", score.Value)
	}
	if len(score.Factors) != 1 || score.Factors[0] != "large_orders" {
		t.Errorf("Expected large_orders factor, got %v", score.Factors)
	}
}

func TestScorePriceSpike(t *testing.T) {
	klines := quietKlines(30)
	klines[len(klines)-1].Close = 105 // 5% jump over the previous close

	client := &stubClient{klines: klines, book: balancedBook()}
	s := NewScorer(client, nil, zerolog.Nop())

	score := s.ScoreSymbol(context.Background(), "TESTUSDT")
	if !hasFactor(score, "price_spike") {
		t.Errorf("Expected price_spike factor, got %v", score.Factors)
	}
}

func TestScoreBookImbalance(t *testing.T) {
	book := &binance.OrderBook{
		Symbol: "TESTUSDT",
		Bids:   []binance.BookLevel{{Price: 100, Quantity: 100}},
		Asks:   []binance.BookLevel{{Price: 100.01, Quantity: 10}},
	}
	client := &stubClient{klines: quietKlines(30), book: book}
	s := NewScorer(client, nil, zerolog.Nop())

	score := s.ScoreSymbol(context.Background(), "TESTUSDT")
	if !hasFactor(score, "book_imbalance") {
		t.Errorf("Expected book_imbalance factor, got %v", score.Factors)
	}
}

func TestScoreDegradedOnFetchFailure(t *testing.T) {
	client := &stubClient{
		tradesErr: fmt.Errorf("network down"),
		klinesErr: fmt.Errorf("network down"),
		bookErr:   fmt.Errorf("network down"),
	}
	s := NewScorer(client, nil, zerolog.Nop())

	score := s.ScoreSymbol(context.Background(), "TESTUSDT")
	if !score.Degraded {
		t.Error("Expected degraded score when every input fails")
	}
	if score.Value != 0 {
		t.Errorf("Expected score 0, got %d", score.Value)
	}
}

func TestScoreCachedWithinTTL(t *testing.T) {
	client := &stubClient{klines: quietKlines(30), book: balancedBook()}
	s := NewScorer(client, nil, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	s.ScoreSymbol(context.Background(), "TESTUSDT")
	callsAfterFirst := client.klineCall

	// 10 seconds later the cache is still fresh
	now = now.Add(10 * time.Second)
	s.ScoreSymbol(context.Background(), "TESTUSDT")
	if client.klineCall != callsAfterFirst {
		t.Error("Expected cached score, but data was refetched")
	}

	// Past the 30 second TTL the score is recomputed
	now = now.Add(25 * time.Second)
	s.ScoreSymbol(context.Background(), "TESTUSDT")
	if client.klineCall == callsAfterFirst {
		t.Error("Expected recompute after TTL expiry")
	}
}

func hasFactor(score Score, name string) bool {
	for _, f := range score.Factors {
		if f == name {
			return true
		}
	}
	return false
}
