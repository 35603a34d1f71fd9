package binance

import (
	"net/url"
	"sync"
	"time"
)

// Binance USD-M futures allows 2400 request weight per minute per IP.
const maxWeightPerMinute = 2400

// Request weight per endpoint path. Unlisted endpoints count as 1.
// GetAllTickers24hr without a symbol is billed at 40 by the exchange;
// the limiter charges the per-symbol weight and relies on the weight
// headroom to absorb the difference.
var endpointWeights = map[string]int{
	"/fapi/v1/klines":       5,
	"/fapi/v1/depth":        5,
	"/fapi/v1/ticker/24hr":  1,
	"/fapi/v1/ticker/price": 1,
	"/fapi/v1/premiumIndex": 1,
	"/fapi/v1/trades":       5,
	"/fapi/v1/exchangeInfo": 1,
}

func endpointWeight(path string) int {
	if w, ok := endpointWeights[path]; ok {
		return w
	}
	return 1
}

// RateLimiter paces REST calls: a fixed minimum gap between any two
// requests, plus the per-minute weight budget Binance enforces per IP.
// Safe for concurrent use; the scanner's workers all funnel through
// the one limiter their shared client owns.
type RateLimiter struct {
	mu            sync.Mutex
	minGap        time.Duration
	maxWeight     int
	lastRequest   time.Time
	currentWeight int
	weightResetAt time.Time

	// replaced by tests
	clock func() time.Time
	sleep func(time.Duration)
}

func NewRateLimiter(minGap time.Duration) *RateLimiter {
	if minGap < 0 {
		minGap = 0
	}
	return &RateLimiter{
		minGap:    minGap,
		maxWeight: maxWeightPerMinute,
		clock:     time.Now,
		sleep:     time.Sleep,
	}
}

// Wait blocks until the next request to the given endpoint path is
// allowed, then records it against the weight window.
func (r *RateLimiter) Wait(path string) {
	r.mu.Lock()
	now := r.clock()

	var delay time.Duration
	if !r.lastRequest.IsZero() {
		if sinceLast := now.Sub(r.lastRequest); sinceLast < r.minGap {
			delay = r.minGap - sinceLast
		}
	}

	if now.After(r.weightResetAt) {
		r.currentWeight = 0
		r.weightResetAt = now.Add(time.Minute)
	}
	weight := endpointWeight(path)
	if r.currentWeight+weight > r.maxWeight {
		// Budget spent, hold the caller until the window turns over
		if untilReset := r.weightResetAt.Sub(now); untilReset > delay {
			delay = untilReset
		}
		r.currentWeight = 0
		r.weightResetAt = now.Add(delay).Add(time.Minute)
	}
	r.currentWeight += weight
	r.lastRequest = now.Add(delay)
	r.mu.Unlock()

	if delay > 0 {
		r.sleep(delay)
	}
}

// CurrentWeight reports the weight consumed in the active window.
func (r *RateLimiter) CurrentWeight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentWeight
}

// requestPath strips the query so the weight lookup sees a bare path.
func requestPath(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		return u.Path
	}
	return endpoint
}
