package strategy

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binance-signal-engine/internal/indicators"
)

// TrapStrategy trades liquidity grab reversals: price sweeping into a
// large liquidation cluster while the order book is heavily one-sided,
// confirmed by momentum indicators.
type TrapStrategy struct {
	logger zerolog.Logger
	clock  func() time.Time
}

const (
	trapGrabMinNotional = 100_000.0 // cluster size needed for a grab
	trapMinImbalance    = 0.3
	trapEntryBufferPct  = 0.001
	trapMinConfirms     = 3

	trapSLMult  = 1.5
	trapTP1Mult = 0.5
	trapTP2Mult = 1.0
	trapTP3Mult = 1.5
)

func NewTrapStrategy(logger zerolog.Logger) *TrapStrategy {
	return &TrapStrategy{
		logger: logger.With().Str("component", "strategy").Str("strategy", "trap").Logger(),
		clock:  time.Now,
	}
}

func (t *TrapStrategy) Name() string { return "trap" }

// SetClock replaces the time source, used by tests.
func (t *TrapStrategy) SetClock(clock func() time.Time) { t.clock = clock }

// Validate runs the five confirmation layers. The liquidity grab is
// mandatory; in total at least three of five must pass.
func (t *TrapStrategy) Validate(snap *Snapshot) (bool, Confirmations) {
	conf := Confirmations{
		"liquidity_grab":      false,
		"ema_confirmation":    false,
		"volume_confirmation": false,
		"rsi_divergence":      false,
		"macd_confirmation":   false,
	}

	conf["liquidity_grab"] = t.detectLiquidityGrab(snap)
	if !conf["liquidity_grab"] {
		return false, conf
	}

	closes := indicators.Closes(snap.Klines)

	// EMA 9/21 cross on the latest bar, either direction
	if len(snap.Klines) >= 21 {
		conf["ema_confirmation"] = crossedOnLastBar(
			indicators.EMA(closes, 9), indicators.EMA(closes, 21))
	}

	// Volume push above 1.5x the trailing ten bar average
	if len(snap.Klines) >= 10 {
		avg := indicators.AverageVolume(snap.Klines, 9)
		conf["volume_confirmation"] = snap.Klines[len(snap.Klines)-1].Volume > avg*1.5
	}

	// Divergence: price and RSI sloping in opposite directions over the
	// last 14 bars
	if len(snap.Klines) >= 14 {
		rsi := indicators.RSI(closes, 14)
		if len(rsi) >= 14 {
			priceSlope := indicators.LinearSlope(closes[len(closes)-14:])
			rsiSlope := indicators.LinearSlope(rsi[len(rsi)-14:])
			conf["rsi_divergence"] = (priceSlope < 0 && rsiSlope > 0) ||
				(priceSlope > 0 && rsiSlope < 0)
		}
	}

	// MACD line crossing its signal line on the latest bar
	if len(snap.Klines) >= 26 {
		macd := indicators.MACD(closes, 12, 26, 9)
		conf["macd_confirmation"] = crossedOnLastBar(macd.MACDLine, macd.SignalLine)
	}

	return conf.Count() >= trapMinConfirms, conf
}

// Generate builds the trap candidate. Entry is the nearest liquidation
// cluster price with a 0.1% buffer on the far side from current price;
// a candidate failing target ordering or the risk-reward floor is
// dropped.
func (t *TrapStrategy) Generate(snap *Snapshot) (*Signal, error) {
	passed, conf := t.Validate(snap)
	if !passed {
		return nil, nil
	}

	closes := indicators.Closes(snap.Klines)
	side := SideShort
	if conf["ema_confirmation"] {
		ema9 := indicators.EMA(closes, 9)
		ema21 := indicators.EMA(closes, 21)
		if last(ema9) > last(ema21) {
			side = SideLong
		}
	}

	entry, ok := t.trapEntry(snap)
	if !ok {
		return nil, nil
	}

	var atr float64
	if series := indicators.ATR(snap.Klines, 14); len(series) > 0 {
		atr = series[len(series)-1]
	}

	sl, tp1, tp2, tp3 := atrTargets(entry, atr, side, trapSLMult, trapTP1Mult, trapTP2Mult, trapTP3Mult)

	signal := &Signal{
		ID:            uuid.NewString(),
		Symbol:        snap.Symbol,
		Side:          side,
		Strategy:      t.Name(),
		Entry:         round6(entry),
		StopLoss:      round6(sl),
		TakeProfit1:   round6(tp1),
		TakeProfit2:   round6(tp2),
		TakeProfit3:   round6(tp3),
		Confidence:    min5(conf.Count()),
		Confirmations: conf,
		Reasons:       passedReasons(conf),
		ATR:           atr,
		CurrentPrice:  snap.CurrentPrice,
		CreatedAt:     t.clock(),
	}

	if err := signal.Validate(1); err != nil {
		t.logger.Debug().Str("symbol", snap.Symbol).Err(err).Msg("candidate discarded")
		return nil, nil
	}
	return signal, nil
}

// detectLiquidityGrab needs both a significant cluster and a one-sided
// book. Degraded liquidity data reads as "no grab", never an error.
func (t *TrapStrategy) detectLiquidityGrab(snap *Snapshot) bool {
	liq := snap.Liquidity
	if liq == nil || liq.Degraded || len(liq.Clusters) == 0 {
		return false
	}
	significant := false
	for _, c := range liq.Clusters {
		if c.Notional > trapGrabMinNotional {
			significant = true
			break
		}
	}
	if !significant {
		return false
	}
	return math.Abs(liq.Imbalance) >= trapMinImbalance
}

// trapEntry picks the cluster nearest to the current price and offsets
// it by the buffer away from where price is now.
func (t *TrapStrategy) trapEntry(snap *Snapshot) (float64, bool) {
	cluster := snap.Liquidity.NearestCluster(snap.CurrentPrice, 0)
	if cluster == nil {
		return 0, false
	}
	buffer := snap.CurrentPrice * trapEntryBufferPct
	if snap.CurrentPrice > cluster.Price {
		return cluster.Price - buffer, true
	}
	return cluster.Price + buffer, true
}
