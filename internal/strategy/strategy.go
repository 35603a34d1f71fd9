// Package strategy holds the Signal model, the Strategy interface and
// the three evaluators: trap (liquidity grab reversal), smc (smart
// money concepts) and scalp (VWAP momentum).
package strategy

import (
	"fmt"
	"math"
	"time"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/liquidity"
)

// Side is the trade direction of a signal.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// MinRiskReward is the floor on |tp1-entry| / |entry-sl|. Candidates
// below it are discarded at generation time and again at arbitration.
const MinRiskReward = 1.5

// Confirmations maps confirmation name to whether it passed.
type Confirmations map[string]bool

// Count returns the number of passed confirmations.
func (c Confirmations) Count() int {
	n := 0
	for _, ok := range c {
		if ok {
			n++
		}
	}
	return n
}

// Signal is a fully formed trade candidate.
type Signal struct {
	ID                 string        `json:"id"`
	Symbol             string        `json:"symbol"`
	Side               Side          `json:"side"`
	Strategy           string        `json:"strategy"`
	Entry              float64       `json:"entry"`
	StopLoss           float64       `json:"stopLoss"`
	TakeProfit1        float64       `json:"takeProfit1"`
	TakeProfit2        float64       `json:"takeProfit2"`
	TakeProfit3        float64       `json:"takeProfit3"`
	PositionSize       float64       `json:"positionSize"`       // base units, filled by the engine
	Leverage           float64       `json:"leverage"`
	RiskAmount         float64       `json:"riskAmount"`         // USD at risk
	Confidence         int           `json:"confidence"`         // 1..5, count of confirmations
	WeightedConfidence int           `json:"weightedConfidence"` // floor(confidence * regime weight)
	Confirmations      Confirmations `json:"confirmations"`
	Reasons            []string      `json:"reasons"`
	Regime             string        `json:"regime"`
	ATR                float64       `json:"atr"`
	CurrentPrice       float64       `json:"currentPrice"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// RiskReward returns |tp1-entry| / |entry-sl|, 0 when the stop sits on
// the entry.
func (s *Signal) RiskReward() float64 {
	risk := math.Abs(s.Entry - s.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(s.TakeProfit1-s.Entry) / risk
}

// Validate checks target ordering, the risk-reward floor and the
// confidence range. Both strategies and the arbiter call it; a signal
// that fails here is discarded, never emitted partially valid.
func (s *Signal) Validate(minConfidence int) error {
	if s.Confidence < minConfidence {
		return fmt.Errorf("confidence %d below minimum %d", s.Confidence, minConfidence)
	}
	switch s.Side {
	case SideLong:
		if !(s.StopLoss < s.Entry && s.Entry < s.TakeProfit1 &&
			s.TakeProfit1 < s.TakeProfit2 && s.TakeProfit2 < s.TakeProfit3) {
			return fmt.Errorf("bad LONG target ordering: sl=%v entry=%v tps=%v/%v/%v",
				s.StopLoss, s.Entry, s.TakeProfit1, s.TakeProfit2, s.TakeProfit3)
		}
	case SideShort:
		if !(s.StopLoss > s.Entry && s.Entry > s.TakeProfit1 &&
			s.TakeProfit1 > s.TakeProfit2 && s.TakeProfit2 > s.TakeProfit3) {
			return fmt.Errorf("bad SHORT target ordering: sl=%v entry=%v tps=%v/%v/%v",
				s.StopLoss, s.Entry, s.TakeProfit1, s.TakeProfit2, s.TakeProfit3)
		}
	default:
		return fmt.Errorf("unknown side %q", s.Side)
	}
	if rr := s.RiskReward(); rr < MinRiskReward {
		return fmt.Errorf("risk-reward %.2f below %.1f", rr, MinRiskReward)
	}
	return nil
}

// Snapshot is the per-symbol market state handed to the strategies for
// one decision. Liquidity may be nil or degraded; only the trap
// strategy cares and it treats that as "no grab".
type Snapshot struct {
	Symbol       string
	Interval     string
	Klines       []binance.Kline
	CurrentPrice float64
	Liquidity    *liquidity.Analysis
}

// Strategy is one signal evaluator. Validate reports whether the setup
// passes with the per-confirmation breakdown; Generate returns a fully
// validated candidate or nil.
type Strategy interface {
	Name() string
	Validate(snap *Snapshot) (bool, Confirmations)
	Generate(snap *Snapshot) (*Signal, error)
}

// Compile-time interface checks
var (
	_ Strategy = (*TrapStrategy)(nil)
	_ Strategy = (*SMCStrategy)(nil)
	_ Strategy = (*ScalpStrategy)(nil)
)

// atrTargets places the stop and the three targets around the entry
// using ATR multiples, signed by side.
func atrTargets(entry, atr float64, side Side, slMult, tp1Mult, tp2Mult, tp3Mult float64) (sl, tp1, tp2, tp3 float64) {
	if side == SideLong {
		return entry - atr*slMult, entry + atr*tp1Mult, entry + atr*tp2Mult, entry + atr*tp3Mult
	}
	return entry + atr*slMult, entry - atr*tp1Mult, entry - atr*tp2Mult, entry - atr*tp3Mult
}

// percentTargets places the stop and targets as fractions of the entry.
func percentTargets(entry float64, side Side, slPct, tp1Pct, tp2Pct, tp3Pct float64) (sl, tp1, tp2, tp3 float64) {
	if side == SideLong {
		return entry * (1 - slPct), entry * (1 + tp1Pct), entry * (1 + tp2Pct), entry * (1 + tp3Pct)
	}
	return entry * (1 + slPct), entry * (1 - tp1Pct), entry * (1 - tp2Pct), entry * (1 - tp3Pct)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
