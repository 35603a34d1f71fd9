package binance

// Kline represents a candlestick
type Kline struct {
	OpenTime         int64   `json:"openTime"`
	Open             float64 `json:"open,string"`
	High             float64 `json:"high,string"`
	Low              float64 `json:"low,string"`
	Close            float64 `json:"close,string"`
	Volume           float64 `json:"volume,string"`
	CloseTime        int64   `json:"closeTime"`
	QuoteAssetVolume float64 `json:"quoteAssetVolume,string"`
	NumberOfTrades   int     `json:"numberOfTrades"`
}

// BookLevel is a single price level of the order book
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a depth snapshot for one symbol
type OrderBook struct {
	Symbol       string      `json:"symbol"`
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         []BookLevel `json:"bids"`
	Asks         []BookLevel `json:"asks"`
}

// BestBid returns the top bid price, 0 when the book side is empty.
func (ob *OrderBook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top ask price, 0 when the book side is empty.
func (ob *OrderBook) BestAsk() float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// MidPrice is the bid/ask midpoint; falls back to whichever side exists.
func (ob *OrderBook) MidPrice() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	default:
		return ask
	}
}

// Ticker24hr represents 24hr ticker price change statistics
type Ticker24hr struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
	OpenTime           int64   `json:"openTime"`
	CloseTime          int64   `json:"closeTime"`
	Count              int64   `json:"count"`
}

// FundingRate is the current funding state of a perpetual contract
type FundingRate struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"markPrice,string"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
	NextFundingTime int64   `json:"nextFundingTime"`
}

// Trade is a single public trade
type Trade struct {
	ID           int64   `json:"id"`
	Price        float64 `json:"price,string"`
	Quantity     float64 `json:"qty,string"`
	QuoteQty     float64 `json:"quoteQty,string"`
	Time         int64   `json:"time"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}
