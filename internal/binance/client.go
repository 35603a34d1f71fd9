package binance

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultFuturesBaseURL = "https://fapi.binance.com"

	// Fixed pause between consecutive REST calls
	defaultRequestGap = 200 * time.Millisecond
)

// Client talks to the Binance USD-M futures REST API. Only public
// market data endpoints are used; no order placement. An API key is
// optional for these endpoints but raises the per-IP request limits.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *RateLimiter
	retries    int
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultFuturesBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    NewRateLimiter(defaultRequestGap),
		retries:    2,
	}
}

// get performs a GET with simple bounded retry on transport errors and
// 5xx. Every attempt passes through the rate limiter.
func (c *Client) get(endpoint string) ([]byte, error) {
	path := requestPath(endpoint)
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
		c.limiter.Wait(path)

		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("error reading response: %w", err)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, lastErr
}

// GetKlines fetches candlestick data
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(fmt.Sprintf("%s/fapi/v1/klines?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 9 {
			return nil, fmt.Errorf("malformed kline row %d", i)
		}
		klines[i] = Kline{
			OpenTime:         int64(raw[0].(float64)),
			Open:             parseFloat(raw[1]),
			High:             parseFloat(raw[2]),
			Low:              parseFloat(raw[3]),
			Close:            parseFloat(raw[4]),
			Volume:           parseFloat(raw[5]),
			CloseTime:        int64(raw[6].(float64)),
			QuoteAssetVolume: parseFloat(raw[7]),
			NumberOfTrades:   int(raw[8].(float64)),
		}
	}
	return klines, nil
}

// GetOrderBook fetches a depth snapshot. Valid limits: 5, 10, 20, 50,
// 100, 500, 1000.
func (c *Client) GetOrderBook(symbol string, limit int) (*OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(fmt.Sprintf("%s/fapi/v1/depth?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error fetching order book: %w", err)
	}

	var raw struct {
		LastUpdateID int64       `json:"lastUpdateId"`
		Bids         [][2]string `json:"bids"`
		Asks         [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing order book: %w", err)
	}

	book := &OrderBook{
		Symbol:       symbol,
		LastUpdateID: raw.LastUpdateID,
		Bids:         make([]BookLevel, len(raw.Bids)),
		Asks:         make([]BookLevel, len(raw.Asks)),
	}
	for i, lvl := range raw.Bids {
		book.Bids[i] = BookLevel{Price: parseFloatStr(lvl[0]), Quantity: parseFloatStr(lvl[1])}
	}
	for i, lvl := range raw.Asks {
		book.Asks[i] = BookLevel{Price: parseFloatStr(lvl[0]), Quantity: parseFloatStr(lvl[1])}
	}
	return book, nil
}

// GetTicker24hr fetches 24h rolling statistics for one symbol
func (c *Client) GetTicker24hr(symbol string) (*Ticker24hr, error) {
	body, err := c.get(fmt.Sprintf("%s/fapi/v1/ticker/24hr?symbol=%s", c.baseURL, symbol))
	if err != nil {
		return nil, fmt.Errorf("error fetching 24hr ticker: %w", err)
	}
	var ticker Ticker24hr
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, fmt.Errorf("error parsing 24hr ticker: %w", err)
	}
	return &ticker, nil
}

// GetAllTickers24hr fetches 24h statistics for every symbol
func (c *Client) GetAllTickers24hr() ([]Ticker24hr, error) {
	body, err := c.get(fmt.Sprintf("%s/fapi/v1/ticker/24hr", c.baseURL))
	if err != nil {
		return nil, fmt.Errorf("error fetching tickers: %w", err)
	}
	var tickers []Ticker24hr
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("error parsing tickers: %w", err)
	}
	return tickers, nil
}

// GetFundingRate fetches the premium index for one symbol
func (c *Client) GetFundingRate(symbol string) (*FundingRate, error) {
	body, err := c.get(fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", c.baseURL, symbol))
	if err != nil {
		return nil, fmt.Errorf("error fetching funding rate: %w", err)
	}
	var rate FundingRate
	if err := json.Unmarshal(body, &rate); err != nil {
		return nil, fmt.Errorf("error parsing funding rate: %w", err)
	}
	return &rate, nil
}

// GetRecentTrades fetches recent public trades
func (c *Client) GetRecentTrades(symbol string, limit int) ([]Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(fmt.Sprintf("%s/fapi/v1/trades?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error fetching trades: %w", err)
	}
	var trades []Trade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("error parsing trades: %w", err)
	}
	return trades, nil
}

// GetCurrentPrice fetches the last traded price
func (c *Client) GetCurrentPrice(symbol string) (float64, error) {
	body, err := c.get(fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", c.baseURL, symbol))
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	return parseFloatStr(result.Price), nil
}

// GetFuturesSymbols returns all symbols currently trading perpetuals
func (c *Client) GetFuturesSymbols() ([]string, error) {
	body, err := c.get(fmt.Sprintf("%s/fapi/v1/exchangeInfo", c.baseURL))
	if err != nil {
		return nil, fmt.Errorf("error fetching exchange info: %w", err)
	}
	var info struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.ContractType == "PERPETUAL" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		return parseFloatStr(val)
	case float64:
		return val
	default:
		return 0
	}
}

func parseFloatStr(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
