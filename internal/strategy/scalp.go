package strategy

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binance-signal-engine/internal/indicators"
)

// ScalpStrategy takes quick momentum entries along a steep VWAP with
// tight percent-based stops and targets.
type ScalpStrategy struct {
	logger zerolog.Logger
	clock  func() time.Time
}

const (
	scalpSlopePeriod  = 20
	scalpSlopeMinDeg  = 30.0
	scalpVolumeMult   = 1.5
	scalpRSILow       = 40.0
	scalpRSIHigh      = 60.0
	scalpMomentumBars = 3
	scalpMomentumPct  = 0.2
	scalpMinConfirms  = 4

	scalpSLPct  = 0.003
	scalpTP1Pct = 0.005
	scalpTP2Pct = 0.010
	scalpTP3Pct = 0.015
)

func NewScalpStrategy(logger zerolog.Logger) *ScalpStrategy {
	return &ScalpStrategy{
		logger: logger.With().Str("component", "strategy").Str("strategy", "scalp").Logger(),
		clock:  time.Now,
	}
}

func (s *ScalpStrategy) Name() string { return "scalp" }

// SetClock replaces the time source, used by tests.
func (s *ScalpStrategy) SetClock(clock func() time.Time) { s.clock = clock }

// Validate runs the five confirmation layers; scalping is the
// strictest setup and needs at least four of five.
func (s *ScalpStrategy) Validate(snap *Snapshot) (bool, Confirmations) {
	conf := Confirmations{
		"vwap_slope":       false,
		"volume_spike":     false,
		"rsi_filter":       false,
		"ema_confirmation": false,
		"momentum_filter":  false,
	}

	closes := indicators.Closes(snap.Klines)

	conf["vwap_slope"] = s.vwapSlopeDegrees(snap) > scalpSlopeMinDeg

	if len(snap.Klines) >= 10 {
		avg := indicators.AverageVolume(snap.Klines, 9)
		conf["volume_spike"] = snap.Klines[len(snap.Klines)-1].Volume > avg*scalpVolumeMult
	}

	if rsi := indicators.RSI(closes, 14); len(rsi) > 0 {
		v := last(rsi)
		conf["rsi_filter"] = v >= scalpRSILow && v <= scalpRSIHigh
	}

	if len(snap.Klines) >= 21 {
		conf["ema_confirmation"] = crossedOnLastBar(
			indicators.EMA(closes, 9), indicators.EMA(closes, 21))
	}

	if len(snap.Klines) >= scalpMomentumBars {
		prev := snap.Klines[len(snap.Klines)-scalpMomentumBars].Close
		if prev != 0 {
			change := (snap.Klines[len(snap.Klines)-1].Close - prev) / prev * 100
			conf["momentum_filter"] = math.Abs(change) > scalpMomentumPct
		}
	}

	return conf.Count() >= scalpMinConfirms, conf
}

// Generate builds the scalp candidate. Side follows the sign of the
// VWAP slope and entry is the last close.
func (s *ScalpStrategy) Generate(snap *Snapshot) (*Signal, error) {
	passed, conf := s.Validate(snap)
	if !passed {
		return nil, nil
	}
	if len(snap.Klines) == 0 {
		return nil, nil
	}

	side := SideShort
	if s.vwapSlopeDegrees(snap) > 0 {
		side = SideLong
	}
	entry := snap.Klines[len(snap.Klines)-1].Close

	var atr float64
	if series := indicators.ATR(snap.Klines, 14); len(series) > 0 {
		atr = series[len(series)-1]
	}

	sl, tp1, tp2, tp3 := percentTargets(entry, side, scalpSLPct, scalpTP1Pct, scalpTP2Pct, scalpTP3Pct)

	signal := &Signal{
		ID:            uuid.NewString(),
		Symbol:        snap.Symbol,
		Side:          side,
		Strategy:      s.Name(),
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
		CreatedAt:     s.clock(),
	}

	if err := signal.Validate(1); err != nil {
		s.logger.Debug().Str("symbol", snap.Symbol).Err(err).Msg("candidate discarded")
		return nil, nil
	}
	return signal, nil
}

// vwapSlopeDegrees fits a line through the last 20 VWAP values and
// converts the per-bar slope into degrees relative to the last close.
func (s *ScalpStrategy) vwapSlopeDegrees(snap *Snapshot) float64 {
	if len(snap.Klines) < scalpSlopePeriod {
		return 0
	}
	vwap := indicators.VWAP(snap.Klines)
	slope := indicators.LinearSlope(vwap[len(vwap)-scalpSlopePeriod:])
	lastClose := snap.Klines[len(snap.Klines)-1].Close
	if lastClose == 0 {
		return 0
	}
	return math.Atan(slope/lastClose*100) * 180 / math.Pi
}
