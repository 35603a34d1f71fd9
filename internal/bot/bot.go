// Package bot orchestrates the scanner, the signal engine and the
// observers around them. It owns the periodic evaluation loop and the
// midnight counter reset.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/anomaly"
	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/database"
	"binance-signal-engine/internal/engine"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/notification"
	"binance-signal-engine/internal/regime"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/scanner"
	"binance-signal-engine/internal/sentiment"
	"binance-signal-engine/internal/strategy"
)

var (
	ErrAlreadyRunning = errors.New("bot already running")
	ErrNotRunning     = errors.New("bot not running")
)

// Config holds orchestrator settings
type Config struct {
	EvaluateInterval time.Duration // how often the top markets are re-evaluated
	TrackInterval    time.Duration // how often open trades are marked to market
	Symbols          []string      // static symbol list; empty means use the scanner
	MaxSymbols       int           // cap on symbols evaluated per cycle
	AnomalyThreshold int           // skip symbols scoring at or above this; 0 disables
}

// DefaultConfig returns the standard orchestrator settings
func DefaultConfig() Config {
	return Config{
		EvaluateInterval: 5 * time.Minute,
		TrackInterval:    30 * time.Second,
		MaxSymbols:       10,
		AnomalyThreshold: 70,
	}
}

// Bot wires the scanner, engine, risk manager and observers together.
type Bot struct {
	cfg        Config
	client     binance.MarketDataClient
	engine     *engine.Engine
	scanner    *scanner.Scanner
	classifier *regime.Classifier
	sentiment  *sentiment.Analyzer
	anomalies  *anomaly.Scorer
	riskMgr    *risk.Manager
	notifier   *notification.Manager // may be nil
	repo       *database.Repository  // may be nil
	bus        *events.Bus
	logger     zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New creates the orchestrator. notifier and repo may be nil when the
// corresponding integrations are disabled.
func New(
	cfg Config,
	client binance.MarketDataClient,
	eng *engine.Engine,
	scn *scanner.Scanner,
	classifier *regime.Classifier,
	sent *sentiment.Analyzer,
	anomalies *anomaly.Scorer,
	riskMgr *risk.Manager,
	notifier *notification.Manager,
	repo *database.Repository,
	bus *events.Bus,
	logger zerolog.Logger,
) *Bot {
	if cfg.EvaluateInterval <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.TrackInterval <= 0 {
		cfg.TrackInterval = 30 * time.Second
	}
	b := &Bot{
		cfg:        cfg,
		client:     client,
		engine:     eng,
		scanner:    scn,
		classifier: classifier,
		sentiment:  sent,
		anomalies:  anomalies,
		riskMgr:    riskMgr,
		notifier:   notifier,
		repo:       repo,
		bus:        bus,
		logger:     logger.With().Str("component", "bot").Logger(),
	}
	b.subscribe()
	return b
}

// subscribe wires notifications and persistence to engine events.
func (b *Bot) subscribe() {
	if b.bus == nil {
		return
	}
	b.bus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		sig, ok := e.Data["signal"].(*strategy.Signal)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if b.notifier != nil {
			b.notifier.SendSignal(ctx, sig)
		}
		if b.repo != nil {
			if err := b.repo.SaveSignal(ctx, sig); err != nil {
				b.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to persist signal")
			}
		}
	})
}

// Start launches the background loops. It is an error to start a
// running bot.
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.stopChan = make(chan struct{})
	b.running = true

	if b.scanner != nil && len(b.cfg.Symbols) == 0 {
		b.scanner.Start(ctx)
	}

	b.wg.Add(3)
	go b.evaluateLoop(ctx)
	go b.trackLoop(ctx)
	go b.dailyResetLoop()

	b.logger.Info().Dur("interval", b.cfg.EvaluateInterval).Msg("Bot started")
	if b.bus != nil {
		b.bus.Publish(events.EventBotStarted, nil)
	}
	return nil
}

// Stop shuts the loops down and waits for them to exit.
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return ErrNotRunning
	}
	b.running = false
	close(b.stopChan)
	b.cancel()
	b.mu.Unlock()

	if b.scanner != nil {
		b.scanner.Stop()
	}
	b.wg.Wait()

	b.logger.Info().Msg("Bot stopped")
	if b.bus != nil {
		b.bus.Publish(events.EventBotStopped, nil)
	}
	return nil
}

// IsRunning reports whether the evaluation loop is active.
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) evaluateLoop(ctx context.Context) {
	defer b.wg.Done()

	// First pass shortly after start so a fresh process is not idle
	// for a full interval
	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			b.evaluateOnce(ctx)
			timer.Reset(b.cfg.EvaluateInterval)
		case <-b.stopChan:
			return
		}
	}
}

// evaluateOnce runs one decision per candidate symbol.
func (b *Bot) evaluateOnce(ctx context.Context) {
	symbols := b.candidateSymbols()
	if len(symbols) == 0 {
		b.logger.Debug().Msg("no candidate symbols to evaluate")
		return
	}

	if b.bus != nil {
		b.bus.Publish(events.EventScanStarted, map[string]interface{}{"symbols": len(symbols)})
	}

	// Sentiment gates how aggressive sizing may be this cycle
	if b.sentiment != nil && b.riskMgr != nil {
		summary := b.sentiment.MarketSentiment(ctx)
		b.riskMgr.SetLeverageCap(sentiment.LeverageAdjustment(summary))
	}

	var emitted int
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if b.anomalies != nil && b.cfg.AnomalyThreshold > 0 {
			if score := b.anomalies.ScoreSymbol(ctx, symbol); score.Value >= b.cfg.AnomalyThreshold {
				b.logger.Info().Str("symbol", symbol).Int("score", score.Value).
					Strs("factors", score.Factors).Msg("skipping anomalous symbol")
				continue
			}
		}
		sig, err := b.engine.GenerateSignal(ctx, symbol)
		switch {
		case err == nil:
			emitted++
			b.trackSignal(sig)
		case errors.Is(err, engine.ErrDailyCapReached):
			b.logger.Info().Msg("daily signal cap reached, stopping cycle")
			return
		case errors.Is(err, engine.ErrNoCandidate),
			errors.Is(err, engine.ErrCooldownActive),
			errors.Is(err, engine.ErrInsufficientData):
			// expected outcomes, nothing to do
		default:
			b.logger.Warn().Err(err).Str("symbol", symbol).Msg("evaluation failed")
		}
	}

	if b.bus != nil {
		b.bus.Publish(events.EventScanCompleted, map[string]interface{}{
			"symbols": len(symbols), "signals": emitted,
		})
	}
}

// trackSignal opens a paper trade for an emitted signal, reusing the
// sizing the engine stamped on it.
func (b *Bot) trackSignal(sig *strategy.Signal) {
	if b.riskMgr == nil {
		return
	}
	sizing := risk.Sizing{
		PositionSize: sig.PositionSize,
		RiskAmount:   sig.RiskAmount,
		Leverage:     sig.Leverage,
		Notional:     sig.PositionSize * sig.Entry,
	}
	if sizing.PositionSize == 0 {
		sizing = b.riskMgr.PositionSize(sig.Entry, sig.StopLoss, 1.0)
	}
	trade := b.riskMgr.OpenTrade(sig, sizing)
	if b.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.repo.SaveTrade(ctx, trade, sig.ID, sig.Strategy); err != nil {
			b.logger.Error().Err(err).Str("trade", trade.ID).Msg("failed to persist trade")
		}
	}
}

// trackLoop marks open paper trades to market on every price tick.
func (b *Bot) trackLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.TrackInterval)
	defer ticker.Stop()

	statuses := make(map[string]risk.TradeStatus)
	for {
		select {
		case <-ticker.C:
			b.updateTrades(ctx, statuses)
		case <-b.stopChan:
			return
		}
	}
}

// updateTrades fetches one price per symbol with open trades, runs the
// TP/SL checks and persists the result. statuses remembers the last
// seen state per trade so transitions are announced exactly once.
func (b *Bot) updateTrades(ctx context.Context, statuses map[string]risk.TradeStatus) {
	if b.riskMgr == nil {
		return
	}
	symbols := make(map[string]bool)
	for _, t := range b.riskMgr.ActiveTrades() {
		symbols[t.Symbol] = true
	}

	for symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		price, err := b.client.GetCurrentPrice(symbol)
		if err != nil {
			b.logger.Warn().Str("symbol", symbol).Err(err).Msg("price fetch failed, trades not updated")
			continue
		}
		for _, trade := range b.riskMgr.UpdatePrice(symbol, price) {
			prev, seen := statuses[trade.ID]
			if !seen {
				prev = risk.TradeActive
			}
			statuses[trade.ID] = trade.Status

			if b.repo != nil {
				updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := b.repo.UpdateTrade(updateCtx, trade.ID, trade.Status, trade.UnrealizedPnL); err != nil {
					b.logger.Error().Err(err).Str("trade", trade.ID).Msg("failed to persist trade update")
				}
				cancel()
			}
			if prev == trade.Status {
				continue
			}
			b.logger.Info().Str("trade", trade.ID).Str("symbol", trade.Symbol).
				Str("status", string(trade.Status)).Float64("pnl", trade.UnrealizedPnL).
				Msg("trade status changed")
			if b.bus != nil {
				b.bus.Publish(events.EventTradeUpdate, map[string]interface{}{
					"trade_id": trade.ID,
					"symbol":   trade.Symbol,
					"status":   string(trade.Status),
					"pnl":      trade.UnrealizedPnL,
				})
			}
			if b.notifier != nil {
				b.notifier.Send(ctx,
					fmt.Sprintf("%s trade %s", trade.Symbol, trade.Status),
					fmt.Sprintf("%s %s is now %s, PnL %.2f%%",
						trade.Symbol, trade.Side, trade.Status, trade.UnrealizedPnL))
			}
		}
	}
}

// candidateSymbols returns the configured symbol list or the scanner's
// current ranking.
func (b *Bot) candidateSymbols() []string {
	if len(b.cfg.Symbols) > 0 {
		return b.cfg.Symbols
	}
	if b.scanner == nil {
		return nil
	}
	markets := b.scanner.TopMarkets(b.cfg.MaxSymbols)
	symbols := make([]string, 0, len(markets))
	for _, m := range markets {
		symbols = append(symbols, m.Symbol)
	}
	return symbols
}

// dailyResetLoop clears the daily counters at midnight UTC.
func (b *Bot) dailyResetLoop() {
	defer b.wg.Done()

	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			b.engine.ResetDailyCounters()
			b.logger.Info().Msg("daily counters reset")
		case <-b.stopChan:
			timer.Stop()
			return
		}
	}
}

// ==================== API SURFACE ====================

// ScanNow triggers one scanner pass followed by an evaluation cycle.
func (b *Bot) ScanNow(ctx context.Context) error {
	if b.scanner != nil {
		if _, err := b.scanner.ScanOnce(ctx); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
	}
	b.evaluateOnce(ctx)
	return nil
}

// Statistics returns the engine's counters.
func (b *Bot) Statistics() engine.Statistics {
	return b.engine.Statistics()
}

// History returns the most recent emitted signals.
func (b *Bot) History(limit int) []strategy.Signal {
	return b.engine.History(limit)
}

// Regime classifies the current market regime for a symbol.
func (b *Bot) Regime(ctx context.Context, symbol string) (regime.Classification, error) {
	klines, err := b.client.GetKlines(symbol, "1h", 100)
	if err != nil {
		return regime.Classification{}, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}
	return b.classifier.Classify(symbol, klines), nil
}

// Sentiment returns the cached market sentiment summary.
func (b *Bot) Sentiment(ctx context.Context) sentiment.Summary {
	if b.sentiment == nil {
		return sentiment.DefaultSummary(time.Now())
	}
	return b.sentiment.MarketSentiment(ctx)
}

// Portfolio returns the paper portfolio summary.
func (b *Bot) Portfolio() risk.PortfolioSummary {
	return b.riskMgr.Summary()
}

// TestSignal runs one decision without touching cooldowns or caps.
func (b *Bot) TestSignal(ctx context.Context, symbol string) (*strategy.Signal, error) {
	return b.engine.DryRun(ctx, symbol)
}

// AnomalyScore returns the current anomaly score for a symbol.
func (b *Bot) AnomalyScore(ctx context.Context, symbol string) anomaly.Score {
	if b.anomalies == nil {
		return anomaly.Score{Symbol: symbol, Degraded: true}
	}
	return b.anomalies.ScoreSymbol(ctx, symbol)
}

// TopMarkets returns the scanner's current ranking.
func (b *Bot) TopMarkets(n int) []scanner.Market {
	if b.scanner == nil {
		return nil
	}
	return b.scanner.TopMarkets(n)
}

// LastScanAt returns when the scanner last completed a pass.
func (b *Bot) LastScanAt() time.Time {
	if b.scanner == nil {
		return time.Time{}
	}
	return b.scanner.LastScanAt()
}
