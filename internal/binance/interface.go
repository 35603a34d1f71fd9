package binance

// MarketDataClient is the read-only market data surface the signal
// pipeline consumes. The live Client and the MockClient both satisfy it,
// so every consumer can be tested without network access.
type MarketDataClient interface {
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetOrderBook(symbol string, limit int) (*OrderBook, error)
	GetTicker24hr(symbol string) (*Ticker24hr, error)
	GetAllTickers24hr() ([]Ticker24hr, error)
	GetFundingRate(symbol string) (*FundingRate, error)
	GetRecentTrades(symbol string, limit int) ([]Trade, error)
	GetCurrentPrice(symbol string) (float64, error)
	GetFuturesSymbols() ([]string, error)
}

// Compile-time interface checks
var (
	_ MarketDataClient = (*Client)(nil)
	_ MarketDataClient = (*MockClient)(nil)
)
