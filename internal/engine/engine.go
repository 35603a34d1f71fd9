// Package engine arbitrates between the strategy evaluators: it
// prepares per-symbol market data, weighs candidates by market regime,
// enforces validation, cooldown and the daily cap, and emits at most
// one signal per symbol per decision.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/liquidity"
	"binance-signal-engine/internal/regime"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/strategy"
)

// Sizer prices a validated candidate. Satisfied by *risk.Manager.
type Sizer interface {
	PositionSize(entry, stopLoss, volatilityFactor float64) risk.Sizing
}

// Sentinel errors callers branch on. None of them is fatal: cooldown
// and the daily cap are suppressions, insufficient data skips the
// symbol for this cycle.
var (
	ErrCooldownActive   = errors.New("cooldown active for symbol")
	ErrDailyCapReached  = errors.New("daily signal cap reached")
	ErrInsufficientData = errors.New("insufficient market data")
	ErrNoCandidate      = errors.New("no strategy produced a valid candidate")
)

// Config bounds the engine's behavior.
type Config struct {
	Interval          string
	KlineLimit        int
	MinConfidence     int
	MaxDailySignals   int
	Cooldown          time.Duration
	MinStrategyWeight float64
	OrderBookDepth    int
	HistoryLimit      int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          "1h",
		KlineLimit:        100,
		MinConfidence:     4,
		MaxDailySignals:   30,
		Cooldown:          15 * time.Minute,
		MinStrategyWeight: 0.1,
		OrderBookDepth:    100,
		HistoryLimit:      500,
	}
}

// Statistics is the engine state snapshot served by the API.
type Statistics struct {
	TotalSignals  int               `json:"totalSignals"`
	DailySignals  int               `json:"dailySignals"`
	MaxDaily      int               `json:"maxDaily"`
	MinConfidence int               `json:"minConfidence"`
	ByStrategy    map[string]int    `json:"byStrategy"`
	ByRegime      map[string]int    `json:"byRegime"`
	LastSignalAt  *time.Time        `json:"lastSignalAt,omitempty"`
	RecentSignals []strategy.Signal `json:"recentSignals"`
}

// Engine owns all mutable decision state. Access is serialized per
// symbol so a periodic scan and a manual scan of the same symbol can
// never double-emit inside one cooldown window.
type Engine struct {
	client    binance.MarketDataClient
	liquidity *liquidity.Analyzer
	regimes   *regime.Classifier
	// declaration order is the arbitration tie-break: trap, smc, scalp
	strategies []strategy.Strategy
	sizer      Sizer
	bus        *events.Bus
	cfg        Config
	logger     zerolog.Logger
	clock      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu             sync.Mutex
	lastSignalTime map[string]time.Time
	dailyCount     int
	totalCount     int
	byStrategy     map[string]int
	byRegime       map[string]int
	history        []strategy.Signal
	lastSignalAt   *time.Time
}

func New(client binance.MarketDataClient, analyzer *liquidity.Analyzer,
	classifier *regime.Classifier, strategies []strategy.Strategy,
	sizer Sizer, bus *events.Bus, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.KlineLimit == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		client:         client,
		liquidity:      analyzer,
		regimes:        classifier,
		strategies:     strategies,
		sizer:          sizer,
		bus:            bus,
		cfg:            cfg,
		logger:         logger.With().Str("component", "engine").Logger(),
		clock:          time.Now,
		locks:          make(map[string]*sync.Mutex),
		lastSignalTime: make(map[string]time.Time),
		byStrategy:     make(map[string]int),
		byRegime:       make(map[string]int),
	}
}

// SetClock replaces the time source, used by tests.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// symbolLock returns the mutex serializing decisions for one symbol.
func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[symbol] = lock
	}
	return lock
}

// GenerateSignal runs one full decision for a symbol. It returns the
// emitted signal, or nil with a sentinel error describing why nothing
// was emitted.
func (e *Engine) GenerateSignal(ctx context.Context, symbol string) (*strategy.Signal, error) {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, cls, err := e.prepare(symbol)
	if err != nil {
		return nil, err
	}

	best := e.selectCandidate(snap, cls)
	if best == nil {
		return nil, ErrNoCandidate
	}

	// Global re-validation of the selected candidate
	if err := best.Validate(e.cfg.MinConfidence); err != nil {
		e.logger.Debug().Str("symbol", symbol).Err(err).Msg("selected candidate failed validation")
		e.publish(events.EventSignalRejected, map[string]interface{}{
			"symbol": symbol, "reason": err.Error(),
		})
		return nil, ErrNoCandidate
	}

	e.size(best)

	// Suppression gates run after validation so a cooldown never hides
	// a validation problem
	now := e.clock()
	e.mu.Lock()
	if lastAt, ok := e.lastSignalTime[symbol]; ok && now.Sub(lastAt) < e.cfg.Cooldown {
		e.mu.Unlock()
		e.publish(events.EventSignalSuppressed, map[string]interface{}{
			"symbol": symbol, "reason": "cooldown",
		})
		return nil, ErrCooldownActive
	}
	if e.dailyCount >= e.cfg.MaxDailySignals {
		e.mu.Unlock()
		e.publish(events.EventSignalSuppressed, map[string]interface{}{
			"symbol": symbol, "reason": "daily_cap",
		})
		return nil, ErrDailyCapReached
	}

	// Emit
	e.lastSignalTime[symbol] = now
	e.dailyCount++
	e.totalCount++
	e.byStrategy[best.Strategy]++
	e.byRegime[best.Regime]++
	e.lastSignalAt = &now
	e.history = append(e.history, *best)
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = e.history[len(e.history)-e.cfg.HistoryLimit:]
	}
	e.mu.Unlock()

	e.logger.Info().Str("symbol", symbol).Str("side", string(best.Side)).
		Str("strategy", best.Strategy).Float64("entry", best.Entry).
		Int("confidence", best.Confidence).Int("weighted", best.WeightedConfidence).
		Msg("signal emitted")

	e.publish(events.EventSignalGenerated, map[string]interface{}{
		"signal":   best,
		"symbol":   best.Symbol,
		"strategy": best.Strategy,
	})
	return best, nil
}

// DryRun evaluates a symbol without recording state: no cooldown, no
// daily count, no events. Used by the test-signal endpoint.
func (e *Engine) DryRun(ctx context.Context, symbol string) (*strategy.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, cls, err := e.prepare(symbol)
	if err != nil {
		return nil, err
	}

	best := e.selectCandidate(snap, cls)
	if best == nil {
		return nil, ErrNoCandidate
	}
	if err := best.Validate(e.cfg.MinConfidence); err != nil {
		return nil, fmt.Errorf("candidate failed validation: %w", err)
	}
	e.size(best)
	return best, nil
}

// size stamps the candidate with position size, leverage and the
// dollar amount at risk before anything downstream sees it.
func (e *Engine) size(sig *strategy.Signal) {
	if e.sizer == nil {
		return
	}
	sizing := e.sizer.PositionSize(sig.Entry, sig.StopLoss, 1.0)
	sig.PositionSize = sizing.PositionSize
	sig.Leverage = sizing.Leverage
	sig.RiskAmount = sizing.RiskAmount
}

// prepare fetches klines and depth and assembles the snapshot. Kline
// failures make the symbol unusable this cycle; a failed depth fetch
// only degrades the liquidity picture.
func (e *Engine) prepare(symbol string) (*strategy.Snapshot, regime.Classification, error) {
	klines, err := e.client.GetKlines(symbol, e.cfg.Interval, e.cfg.KlineLimit)
	if err != nil {
		e.logger.Warn().Str("symbol", symbol).Err(err).Msg("kline fetch failed, skipping symbol")
		return nil, regime.Classification{}, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}
	if len(klines) == 0 {
		return nil, regime.Classification{}, ErrInsufficientData
	}

	currentPrice := klines[len(klines)-1].Close

	var analysis *liquidity.Analysis
	book, err := e.client.GetOrderBook(symbol, e.cfg.OrderBookDepth)
	if err != nil {
		e.logger.Warn().Str("symbol", symbol).Err(err).Msg("order book fetch failed, degrading liquidity context")
		analysis = e.liquidity.Analyze(symbol, nil)
	} else {
		analysis = e.liquidity.Analyze(symbol, book)
	}

	snap := &strategy.Snapshot{
		Symbol:       symbol,
		Interval:     e.cfg.Interval,
		Klines:       klines,
		CurrentPrice: currentPrice,
		Liquidity:    analysis,
	}
	cls := e.regimes.Classify(symbol, klines)
	return snap, cls, nil
}

// selectCandidate evaluates the weighted strategies and picks the
// candidate with the highest weighted confidence. Ties keep the
// earliest strategy in declaration order.
func (e *Engine) selectCandidate(snap *strategy.Snapshot, cls regime.Classification) *strategy.Signal {
	weights := regime.Weights(cls.Regime)

	var best *strategy.Signal
	for _, strat := range e.strategies {
		weight := weights[strat.Name()]
		if weight <= e.cfg.MinStrategyWeight {
			continue
		}

		candidate, err := strat.Generate(snap)
		if err != nil {
			e.logger.Warn().Str("symbol", snap.Symbol).Str("strategy", strat.Name()).
				Err(err).Msg("strategy evaluation failed")
			continue
		}
		if candidate == nil {
			continue
		}
		if candidate.Confidence < e.cfg.MinConfidence {
			e.logger.Debug().Str("symbol", snap.Symbol).Str("strategy", strat.Name()).
				Int("confidence", candidate.Confidence).Msg("candidate below minimum confidence")
			continue
		}

		candidate.Regime = string(cls.Regime)
		candidate.WeightedConfidence = int(float64(candidate.Confidence) * weight)

		if best == nil || candidate.WeightedConfidence > best.WeightedConfidence {
			best = candidate
		}
	}
	return best
}

// ResetDailyCounters clears the daily counter and the cooldown map.
// The bot calls it at the UTC day rollover.
func (e *Engine) ResetDailyCounters() {
	e.mu.Lock()
	e.dailyCount = 0
	e.lastSignalTime = make(map[string]time.Time)
	e.mu.Unlock()

	e.logger.Info().Msg("daily counters reset")
	e.publish(events.EventDailyReset, nil)
}

// Statistics snapshots engine state.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		TotalSignals:  e.totalCount,
		DailySignals:  e.dailyCount,
		MaxDaily:      e.cfg.MaxDailySignals,
		MinConfidence: e.cfg.MinConfidence,
		ByStrategy:    make(map[string]int, len(e.byStrategy)),
		ByRegime:      make(map[string]int, len(e.byRegime)),
		LastSignalAt:  e.lastSignalAt,
	}
	for k, v := range e.byStrategy {
		stats.ByStrategy[k] = v
	}
	for k, v := range e.byRegime {
		stats.ByRegime[k] = v
	}
	recent := 5
	if len(e.history) < recent {
		recent = len(e.history)
	}
	stats.RecentSignals = append(stats.RecentSignals, e.history[len(e.history)-recent:]...)
	return stats
}

// History returns up to limit most recent signals, newest last.
func (e *Engine) History(limit int) []strategy.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	out := make([]strategy.Signal, limit)
	copy(out, e.history[len(e.history)-limit:])
	return out
}

func (e *Engine) publish(eventType events.EventType, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventType, data)
}
