// Package sentiment aggregates crypto news headlines into a market
// mood score and a leverage adjustment factor. Polarity comes from a
// keyword lexicon; results are cached for five minutes.
package sentiment

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultFeeds are free public RSS sources.
var defaultFeeds = []string{
	"https://www.coindesk.com/arc/outboundfeeds/rss/",
	"https://cointelegraph.com/rss",
}

var volatilityKeywords = []string{
	"crash", "dump", "pump", "surge", "rally", "moon", "rocket",
	"bear", "bull", "correction", "breakout", "breakdown",
	"fud", "fomo", "panic", "sell-off", "buying spree",
	"regulation", "ban", "adoption", "partnership", "upgrade",
	"fork", "airdrop", "burn", "mint", "liquidation",
}

var bullishKeywords = []string{
	"bullish", "uptrend", "rally", "surge", "moon", "rocket",
	"breakout", "accumulation", "buying", "adoption", "partnership",
	"upgrade", "burn", "positive", "gains", "profit",
}

var bearishKeywords = []string{
	"bearish", "downtrend", "crash", "dump", "correction",
	"breakdown", "distribution", "selling", "fud", "panic",
	"regulation", "ban", "negative", "losses", "decline",
}

// Mood buckets the aggregated volatility score.
type Mood string

const (
	MoodHighVolatility     Mood = "high_volatility"
	MoodModerateVolatility Mood = "moderate_volatility"
	MoodLowVolatility      Mood = "low_volatility"
)

// Summary is the aggregated sentiment read.
type Summary struct {
	OverallSentiment string    `json:"overallSentiment"` // bullish / bearish / neutral
	Score            float64   `json:"score"`            // -1 .. 1
	VolatilityScore  float64   `json:"volatilityScore"`  // 0 .. 100
	Mood             Mood      `json:"mood"`
	TotalArticles    int       `json:"totalArticles"`
	BullishHits      int       `json:"bullishHits"`
	BearishHits      int       `json:"bearishHits"`
	FetchedAt        time.Time `json:"fetchedAt"`
	Degraded         bool      `json:"degraded"`
}

// Analyzer fetches and scores headlines.
type Analyzer struct {
	feeds      []string
	httpClient *http.Client
	logger     zerolog.Logger
	clock      func() time.Time
	cacheTTL   time.Duration

	mu     sync.Mutex
	cached *Summary
}

func NewAnalyzer(feeds []string, logger zerolog.Logger) *Analyzer {
	if len(feeds) == 0 {
		feeds = defaultFeeds
	}
	return &Analyzer{
		feeds:      feeds,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("component", "sentiment").Logger(),
		clock:      time.Now,
		cacheTTL:   5 * time.Minute,
	}
}

// SetClock replaces the time source, used by tests.
func (a *Analyzer) SetClock(clock func() time.Time) { a.clock = clock }

// MarketSentiment returns the cached summary when fresh, otherwise
// refetches every feed. Feed failures degrade to the neutral default
// instead of erroring.
func (a *Analyzer) MarketSentiment(ctx context.Context) Summary {
	now := a.clock()

	a.mu.Lock()
	if a.cached != nil && now.Sub(a.cached.FetchedAt) < a.cacheTTL {
		cached := *a.cached
		a.mu.Unlock()
		return cached
	}
	a.mu.Unlock()

	var titles []string
	for _, feed := range a.feeds {
		fetched, err := a.fetchFeed(ctx, feed)
		if err != nil {
			a.logger.Warn().Err(err).Str("feed", feed).Msg("feed fetch failed")
			continue
		}
		titles = append(titles, fetched...)
	}

	summary := a.scoreTitles(titles, now)

	a.mu.Lock()
	a.cached = &summary
	a.mu.Unlock()
	return summary
}

// LeverageAdjustment maps sentiment and event volatility to a leverage
// factor: base 3.0, scaled up for bullish mood and down for bearish or
// volatile news, clamped to [1, 5].
func LeverageAdjustment(s Summary) float64 {
	const base = 3.0

	sentimentMult := 1.0
	switch {
	case s.Score > 0.3:
		sentimentMult = 1.2
	case s.Score < -0.3:
		sentimentMult = 0.8
	}

	volatilityMult := 1.0
	switch {
	case s.VolatilityScore > 70:
		volatilityMult = 0.7
	case s.VolatilityScore > 40:
		volatilityMult = 0.9
	}

	adjusted := base * sentimentMult * volatilityMult
	adjusted = math.Max(1.0, math.Min(5.0, adjusted))
	return math.Round(adjusted*10) / 10
}

// DefaultSummary is what callers get when no articles were available.
func DefaultSummary(now time.Time) Summary {
	return Summary{
		OverallSentiment: "neutral",
		VolatilityScore:  25,
		Mood:             MoodLowVolatility,
		FetchedAt:        now,
		Degraded:         true,
	}
}

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Description string `xml:"description"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (a *Analyzer) fetchFeed(ctx context.Context, feedURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	titles := make([]string, 0, len(doc.Channel.Items))
	for i, item := range doc.Channel.Items {
		if i >= 20 {
			break
		}
		titles = append(titles, item.Title+" "+item.Description)
	}
	return titles, nil
}

// scoreTitles counts lexicon hits per article and aggregates. Article
// polarity is the bullish/bearish hit balance; the overall score is
// the average polarity doubled and clamped, same shaping as the mood
// thresholds below.
func (a *Analyzer) scoreTitles(titles []string, now time.Time) Summary {
	if len(titles) == 0 {
		return DefaultSummary(now)
	}

	var totalPolarity, totalVolatility float64
	var totalBullish, totalBearish int
	for _, title := range titles {
		text := strings.ToLower(title)

		bullish := countHits(text, bullishKeywords)
		bearish := countHits(text, bearishKeywords)
		volatility := countHits(text, volatilityKeywords)

		totalBullish += bullish
		totalBearish += bearish
		totalVolatility += math.Min(100, float64(volatility)*10)

		if bullish+bearish > 0 {
			totalPolarity += float64(bullish-bearish) / float64(bullish+bearish)
		}
	}

	n := float64(len(titles))
	avgPolarity := totalPolarity / n
	avgVolatility := math.Min(100, totalVolatility/n)

	summary := Summary{
		VolatilityScore: avgVolatility,
		TotalArticles:   len(titles),
		BullishHits:     totalBullish,
		BearishHits:     totalBearish,
		FetchedAt:       now,
	}

	switch {
	case avgPolarity > 0.1:
		summary.OverallSentiment = "bullish"
		summary.Score = math.Min(1.0, avgPolarity*2)
	case avgPolarity < -0.1:
		summary.OverallSentiment = "bearish"
		summary.Score = math.Max(-1.0, avgPolarity*2)
	default:
		summary.OverallSentiment = "neutral"
	}

	switch {
	case avgVolatility > 70:
		summary.Mood = MoodHighVolatility
	case avgVolatility > 40:
		summary.Mood = MoodModerateVolatility
	default:
		summary.Mood = MoodLowVolatility
	}
	return summary
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}
