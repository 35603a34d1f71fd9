// Package risk sizes positions, places ATR-based stops and targets and
// watches portfolio level exposure for the paper trades the engine
// opens from emitted signals.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binance-signal-engine/internal/strategy"
)

// Parameters bound the risk taken per trade and per portfolio.
type Parameters struct {
	AccountBalance      float64
	RiskPercentage      float64 // fraction of balance risked per trade, e.g. 0.02
	MaxLeverage         float64
	MaxPortfolioRisk    float64 // exposure ratio ceiling
	MaxCorrelation      float64
	MaxBeta             float64
	MaxPositionFraction float64 // notional cap as fraction of balance
}

// DefaultParameters mirrors the documented defaults.
func DefaultParameters() Parameters {
	return Parameters{
		AccountBalance:      10_000,
		RiskPercentage:      0.02,
		MaxLeverage:         10,
		MaxPortfolioRisk:    0.15,
		MaxCorrelation:      0.7,
		MaxBeta:             1.2,
		MaxPositionFraction: 0.1,
	}
}

// Targets is a stop plus three take profit levels around an entry.
type Targets struct {
	StopLoss    float64 `json:"stopLoss"`
	TP1         float64 `json:"tp1"`
	TP2         float64 `json:"tp2"`
	TP3         float64 `json:"tp3"`
	ATRDistance float64 `json:"atrDistance"`
}

// Sizing is the computed position size for one candidate.
type Sizing struct {
	PositionSize float64 `json:"positionSize"` // base units
	RiskAmount   float64 `json:"riskAmount"`   // USD at risk
	Leverage     float64 `json:"leverage"`
	Notional     float64 `json:"notional"` // USD value
}

// TradeStatus tracks the lifecycle of a paper trade.
type TradeStatus string

const (
	TradeActive TradeStatus = "ACTIVE"
	TradeTP1Hit TradeStatus = "TP1_HIT"
	TradeTP2Hit TradeStatus = "TP2_HIT"
	TradeTP3Hit TradeStatus = "TP3_HIT"
	TradeSLHit  TradeStatus = "SL_HIT"
)

// Trade is one tracked paper position.
type Trade struct {
	ID            string        `json:"id"`
	Symbol        string        `json:"symbol"`
	Side          strategy.Side `json:"side"`
	Entry         float64       `json:"entry"`
	StopLoss      float64       `json:"stopLoss"`
	TP1           float64       `json:"tp1"`
	TP2           float64       `json:"tp2"`
	TP3           float64       `json:"tp3"`
	PositionSize  float64       `json:"positionSize"`
	Leverage      float64       `json:"leverage"`
	Status        TradeStatus   `json:"status"`
	CurrentPrice  float64       `json:"currentPrice"`
	UnrealizedPnL float64       `json:"unrealizedPnl"` // percent
	OpenedAt      time.Time     `json:"openedAt"`
}

// RiskStatus is the portfolio limit check result.
type RiskStatus struct {
	WithinLimits  bool     `json:"withinLimits"`
	ExposureRatio float64  `json:"exposureRatio"`
	PortfolioBeta float64  `json:"portfolioBeta"`
	Warnings      []string `json:"warnings"`
}

// PortfolioSummary aggregates the tracked positions.
type PortfolioSummary struct {
	ActiveTrades       int        `json:"activeTrades"`
	TotalExposure      float64    `json:"totalExposure"`
	ExposureRatio      float64    `json:"exposureRatio"`
	TotalUnrealizedPnL float64    `json:"totalUnrealizedPnl"`
	PortfolioBeta      float64    `json:"portfolioBeta"`
	AccountBalance     float64    `json:"accountBalance"`
	RiskStatus         RiskStatus `json:"riskStatus"`
}

// Manager owns the risk parameters and the active trade set.
type Manager struct {
	params Parameters
	logger zerolog.Logger
	clock  func() time.Time

	mu          sync.Mutex
	trades      map[string]*Trade
	leverageCap float64 // sentiment driven, 0 means uncapped
}

func NewManager(params Parameters, logger zerolog.Logger) *Manager {
	if params.AccountBalance <= 0 {
		params = DefaultParameters()
	}
	return &Manager{
		params: params,
		logger: logger.With().Str("component", "risk").Logger(),
		clock:  time.Now,
		trades: make(map[string]*Trade),
	}
}

// SetClock replaces the time source, used by tests.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// SetLeverageCap bounds leverage below MaxLeverage. The bot refreshes
// it each cycle from the sentiment read; 0 removes the cap.
func (m *Manager) SetLeverageCap(limit float64) {
	m.mu.Lock()
	m.leverageCap = limit
	m.mu.Unlock()
}

// ATRTargets places SL at 1.5x ATR and the targets at 0.5x, 1.0x and
// 1.5x ATR from entry, scaled by the volatility multiplier.
func (m *Manager) ATRTargets(entry, atr float64, side strategy.Side, volatilityMult float64) Targets {
	if volatilityMult <= 0 {
		volatilityMult = 1
	}
	base := atr * volatilityMult
	t := Targets{ATRDistance: base}
	if side == strategy.SideLong {
		t.StopLoss = entry - base*1.5
		t.TP1 = entry + base*0.5
		t.TP2 = entry + base*1.0
		t.TP3 = entry + base*1.5
	} else {
		t.StopLoss = entry + base*1.5
		t.TP1 = entry - base*0.5
		t.TP2 = entry - base*1.0
		t.TP3 = entry - base*1.5
	}
	return t
}

// PositionSize risks RiskPercentage of the balance between entry and
// stop, shrinks it by the volatility factor, caps the notional at
// MaxPositionFraction of balance and derives leverage from the capped
// notional.
func (m *Manager) PositionSize(entry, stopLoss, volatilityFactor float64) Sizing {
	riskAmount := m.params.AccountBalance * m.params.RiskPercentage
	priceDiff := math.Abs(entry - stopLoss)
	if priceDiff == 0 || entry <= 0 {
		return Sizing{Leverage: 1}
	}
	if volatilityFactor <= 0 {
		volatilityFactor = 1
	}

	size := riskAmount / priceDiff / volatilityFactor

	maxNotional := m.params.AccountBalance * m.params.MaxPositionFraction
	if size*entry > maxNotional {
		size = maxNotional / entry
	}
	notional := size * entry

	leverage := m.params.MaxLeverage
	if notional > 0 {
		leverage = math.Min(m.params.MaxLeverage, m.params.AccountBalance/(notional*0.1))
	}
	m.mu.Lock()
	if m.leverageCap > 0 && leverage > m.leverageCap {
		leverage = m.leverageCap
	}
	m.mu.Unlock()

	return Sizing{
		PositionSize: size,
		RiskAmount:   riskAmount,
		Leverage:     leverage,
		Notional:     notional,
	}
}

// OpenTrade registers a paper trade for an emitted signal.
func (m *Manager) OpenTrade(sig *strategy.Signal, sizing Sizing) *Trade {
	trade := &Trade{
		ID:           uuid.NewString(),
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		Entry:        sig.Entry,
		StopLoss:     sig.StopLoss,
		TP1:          sig.TakeProfit1,
		TP2:          sig.TakeProfit2,
		TP3:          sig.TakeProfit3,
		PositionSize: sizing.PositionSize,
		Leverage:     sizing.Leverage,
		Status:       TradeActive,
		CurrentPrice: sig.Entry,
		OpenedAt:     m.clock(),
	}

	m.mu.Lock()
	m.trades[trade.ID] = trade
	m.mu.Unlock()

	m.logger.Info().Str("trade_id", trade.ID).Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).Float64("size", trade.PositionSize).
		Msg("paper trade opened")
	return trade
}

// UpdatePrice refreshes every trade on the symbol: unrealized PnL plus
// TP/SL hit detection, deepest target first. Returns the touched
// trades.
func (m *Manager) UpdatePrice(symbol string, currentPrice float64) []*Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updated []*Trade
	for _, trade := range m.trades {
		if trade.Symbol != symbol {
			continue
		}
		trade.CurrentPrice = currentPrice
		if trade.Entry != 0 {
			if trade.Side == strategy.SideLong {
				trade.UnrealizedPnL = (currentPrice - trade.Entry) / trade.Entry * 100
			} else {
				trade.UnrealizedPnL = (trade.Entry - currentPrice) / trade.Entry * 100
			}
		}

		if trade.Status == TradeActive || trade.Status == TradeTP1Hit || trade.Status == TradeTP2Hit {
			switch {
			case m.slHit(trade, currentPrice):
				trade.Status = TradeSLHit
			case m.tpHit(trade, currentPrice, trade.TP3):
				trade.Status = TradeTP3Hit
			case m.tpHit(trade, currentPrice, trade.TP2):
				trade.Status = TradeTP2Hit
			case m.tpHit(trade, currentPrice, trade.TP1):
				trade.Status = TradeTP1Hit
			}
		}
		updated = append(updated, trade)
	}
	return updated
}

func (m *Manager) tpHit(trade *Trade, price, tp float64) bool {
	if trade.Side == strategy.SideLong {
		return price >= tp
	}
	return price <= tp
}

func (m *Manager) slHit(trade *Trade, price float64) bool {
	if trade.Side == strategy.SideLong {
		return price <= trade.StopLoss
	}
	return price >= trade.StopLoss
}

// ActiveTrades returns a copy of the tracked trades.
func (m *Manager) ActiveTrades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trade, 0, len(m.trades))
	for _, t := range m.trades {
		out = append(out, *t)
	}
	return out
}

// CloseTrade removes a trade from tracking.
func (m *Manager) CloseTrade(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[id]; !ok {
		return fmt.Errorf("unknown trade %s", id)
	}
	delete(m.trades, id)
	return nil
}

// PortfolioBeta returns the exposure weighted beta. Per-position beta
// is a flat 1.0, a documented simplification until real benchmark
// regressions are wired in.
func (m *Manager) PortfolioBeta() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolioBetaLocked()
}

func (m *Manager) portfolioBetaLocked() float64 {
	var totalBeta, totalExposure float64
	for _, t := range m.trades {
		value := t.PositionSize * t.CurrentPrice
		totalBeta += value * 1.0
		totalExposure += value
	}
	if totalExposure == 0 {
		return 0
	}
	return totalBeta / totalExposure
}

// CorrelationMatrix returns pairwise correlations of the active
// symbols. Off-diagonal values are a flat 0.3 placeholder, same
// simplification as beta.
func (m *Manager) CorrelationMatrix() map[string]map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, t := range m.trades {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
	}

	matrix := make(map[string]map[string]float64, len(symbols))
	for _, s1 := range symbols {
		matrix[s1] = make(map[string]float64, len(symbols))
		for _, s2 := range symbols {
			if s1 == s2 {
				matrix[s1][s2] = 1.0
			} else {
				matrix[s1][s2] = 0.3
			}
		}
	}
	return matrix
}

// CheckRiskLimits verifies exposure, beta and correlation ceilings.
func (m *Manager) CheckRiskLimits() RiskStatus {
	m.mu.Lock()
	var totalExposure float64
	for _, t := range m.trades {
		totalExposure += t.PositionSize * t.CurrentPrice
	}
	beta := m.portfolioBetaLocked()
	m.mu.Unlock()

	status := RiskStatus{WithinLimits: true}
	status.ExposureRatio = totalExposure / m.params.AccountBalance
	status.PortfolioBeta = beta

	if status.ExposureRatio > m.params.MaxPortfolioRisk {
		status.WithinLimits = false
		status.Warnings = append(status.Warnings, fmt.Sprintf(
			"portfolio exposure %.1f%% exceeds limit %.1f%%",
			status.ExposureRatio*100, m.params.MaxPortfolioRisk*100))
	}
	if beta > m.params.MaxBeta {
		status.WithinLimits = false
		status.Warnings = append(status.Warnings, fmt.Sprintf(
			"portfolio beta %.2f exceeds limit %.2f", beta, m.params.MaxBeta))
	}

	var highCorrelation int
	matrix := m.CorrelationMatrix()
	for s1, row := range matrix {
		for s2, corr := range row {
			if s1 != s2 && corr > m.params.MaxCorrelation {
				highCorrelation++
			}
		}
	}
	if highCorrelation > 0 {
		status.Warnings = append(status.Warnings, fmt.Sprintf(
			"high correlation detected in %d pairs", highCorrelation/2))
	}
	return status
}

// Summary aggregates the portfolio for the status API.
func (m *Manager) Summary() PortfolioSummary {
	m.mu.Lock()
	var totalExposure, totalPnL float64
	count := len(m.trades)
	for _, t := range m.trades {
		totalExposure += t.PositionSize * t.CurrentPrice
		totalPnL += t.UnrealizedPnL
	}
	m.mu.Unlock()

	return PortfolioSummary{
		ActiveTrades:       count,
		TotalExposure:      totalExposure,
		ExposureRatio:      totalExposure / m.params.AccountBalance,
		TotalUnrealizedPnL: totalPnL,
		PortfolioBeta:      m.PortfolioBeta(),
		AccountBalance:     m.params.AccountBalance,
		RiskStatus:         m.CheckRiskLimits(),
	}
}
