package binance

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient simulates the futures market data API for tests and paper
// mode. Prices follow a seeded random walk unless canned data was
// injected with SetKlines / SetOrderBook.
type MockClient struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	klines map[string][]Kline
	books  map[string]*OrderBook
}

func NewMockClient() *MockClient {
	return &MockClient{
		rng: rand.New(rand.NewSource(42)),
		prices: map[string]float64{
			"BTCUSDT": 43250.50,
			"ETHUSDT": 2280.75,
			"BNBUSDT": 315.20,
			"SOLUSDT": 98.45,
		},
		klines: make(map[string][]Kline),
		books:  make(map[string]*OrderBook),
	}
}

// SetKlines pins the kline series returned for a symbol/interval.
func (m *MockClient) SetKlines(symbol string, klines []Kline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klines[symbol] = klines
	if len(klines) > 0 {
		m.prices[symbol] = klines[len(klines)-1].Close
	}
}

// SetOrderBook pins the depth snapshot returned for a symbol.
func (m *MockClient) SetOrderBook(symbol string, book *OrderBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[symbol] = book
}

// SetPrice pins the current price for a symbol.
func (m *MockClient) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *MockClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if canned, ok := m.klines[symbol]; ok {
		if limit > 0 && limit < len(canned) {
			return canned[len(canned)-limit:], nil
		}
		return canned, nil
	}

	base, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	// Random walk backwards from the current price
	now := time.Now().UnixMilli()
	step := intervalMillis(interval)
	klines := make([]Kline, limit)
	price := base
	for i := limit - 1; i >= 0; i-- {
		change := (m.rng.Float64() - 0.5) * 0.01
		open := price / (1 + change)
		high := math.Max(open, price) * (1 + m.rng.Float64()*0.003)
		low := math.Min(open, price) * (1 - m.rng.Float64()*0.003)
		klines[i] = Kline{
			OpenTime:       now - int64(limit-i)*step,
			Open:           open,
			High:           high,
			Low:            low,
			Close:          price,
			Volume:         1000 + m.rng.Float64()*5000,
			CloseTime:      now - int64(limit-i-1)*step - 1,
			NumberOfTrades: 100 + m.rng.Intn(900),
		}
		price = open
	}
	return klines, nil
}

func (m *MockClient) GetOrderBook(symbol string, limit int) (*OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if book, ok := m.books[symbol]; ok {
		return book, nil
	}

	base, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	book := &OrderBook{Symbol: symbol, LastUpdateID: time.Now().UnixMilli()}
	for i := 0; i < limit; i++ {
		spread := base * 0.0001 * float64(i+1)
		book.Bids = append(book.Bids, BookLevel{Price: base - spread, Quantity: 1 + m.rng.Float64()*10})
		book.Asks = append(book.Asks, BookLevel{Price: base + spread, Quantity: 1 + m.rng.Float64()*10})
	}
	return book, nil
}

func (m *MockClient) GetTicker24hr(symbol string) (*Ticker24hr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}
	return &Ticker24hr{
		Symbol:             symbol,
		LastPrice:          price,
		PriceChangePercent: (m.rng.Float64() - 0.5) * 10,
		Volume:             50000 + m.rng.Float64()*100000,
		QuoteVolume:        price * 50000,
		Count:              120000,
	}, nil
}

func (m *MockClient) GetAllTickers24hr() ([]Ticker24hr, error) {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.prices))
	for s := range m.prices {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()

	tickers := make([]Ticker24hr, 0, len(symbols))
	for _, s := range symbols {
		t, err := m.GetTicker24hr(s)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, *t)
	}
	return tickers, nil
}

func (m *MockClient) GetFundingRate(symbol string) (*FundingRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}
	return &FundingRate{
		Symbol:          symbol,
		MarkPrice:       price,
		LastFundingRate: (m.rng.Float64() - 0.5) * 0.0002,
		NextFundingTime: time.Now().Add(4 * time.Hour).UnixMilli(),
	}, nil
}

func (m *MockClient) GetRecentTrades(symbol string, limit int) ([]Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}
	now := time.Now().UnixMilli()
	trades := make([]Trade, limit)
	for i := range trades {
		qty := m.rng.Float64() * 5
		trades[i] = Trade{
			ID:           int64(i),
			Price:        price * (1 + (m.rng.Float64()-0.5)*0.001),
			Quantity:     qty,
			QuoteQty:     qty * price,
			Time:         now - int64(limit-i)*100,
			IsBuyerMaker: m.rng.Intn(2) == 0,
		}
	}
	return trades, nil
}

func (m *MockClient) GetCurrentPrice(symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown symbol: %s", symbol)
	}
	return price, nil
}

func (m *MockClient) GetFuturesSymbols() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbols := make([]string, 0, len(m.prices))
	for s := range m.prices {
		symbols = append(symbols, s)
	}
	return symbols, nil
}

func intervalMillis(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	case "1d":
		return 86_400_000
	default:
		return 3_600_000
	}
}
