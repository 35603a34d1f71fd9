package strategy

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/indicators"
)

// SMCStrategy trades smart money concept structures: order blocks,
// fair value gaps and breaker blocks, confirmed by trend and volume.
type SMCStrategy struct {
	logger zerolog.Logger
	clock  func() time.Time
}

const (
	smcLookback       = 50
	smcImpulseBody    = 0.7 // body at least this fraction of the range
	smcRetraceBody    = 0.3 // retracement body below this fraction
	smcRetraceWindow  = 4   // candles after the impulse to look in
	smcRetraceMinimum = 2
	smcMinConfirms    = 3

	smcSLMult  = 2.0
	smcTP1Mult = 0.7
	smcTP2Mult = 1.4
	smcTP3Mult = 2.1
)

// OrderBlock is an impulsive candle followed by a low-body retracement.
type OrderBlock struct {
	Bullish bool
	High    float64
	Low     float64
	Index   int
}

// FairValueGap is a three-candle price gap.
type FairValueGap struct {
	Bullish bool
	Top     float64
	Bottom  float64
	Index   int
}

// BreakerBlock is a close beyond the previous extreme on strong volume.
type BreakerBlock struct {
	Bullish bool
	Level   float64
	Index   int
}

func NewSMCStrategy(logger zerolog.Logger) *SMCStrategy {
	return &SMCStrategy{
		logger: logger.With().Str("component", "strategy").Str("strategy", "smc").Logger(),
		clock:  time.Now,
	}
}

func (s *SMCStrategy) Name() string { return "smc" }

// SetClock replaces the time source, used by tests.
func (s *SMCStrategy) SetClock(clock func() time.Time) { s.clock = clock }

// Validate runs the five confirmation layers. An order block is
// mandatory; in total at least three of five must pass.
func (s *SMCStrategy) Validate(snap *Snapshot) (bool, Confirmations) {
	conf := Confirmations{
		"order_block":         false,
		"fvg":                 false,
		"breaker":             false,
		"ema_confirmation":    false,
		"volume_confirmation": false,
	}

	blocks := DetectOrderBlocks(snap.Klines, smcLookback)
	conf["order_block"] = len(blocks) > 0
	if !conf["order_block"] {
		return false, conf
	}

	conf["fvg"] = len(DetectFairValueGaps(snap.Klines, smcLookback)) > 0
	conf["breaker"] = len(DetectBreakerBlocks(snap.Klines, smcLookback)) > 0

	// EMA 20/50 cross on the latest bar
	if len(snap.Klines) >= 50 {
		closes := indicators.Closes(snap.Klines)
		conf["ema_confirmation"] = crossedOnLastBar(
			indicators.EMA(closes, 20), indicators.EMA(closes, 50))
	}

	if len(snap.Klines) >= 10 {
		avg := indicators.AverageVolume(snap.Klines, 9)
		conf["volume_confirmation"] = snap.Klines[len(snap.Klines)-1].Volume > avg*1.5
	}

	return conf.Count() >= smcMinConfirms, conf
}

// Generate builds the smc candidate. Side follows the polarity of the
// latest order block and entry is its retest boundary: the high for a
// bullish block, the low for a bearish one.
func (s *SMCStrategy) Generate(snap *Snapshot) (*Signal, error) {
	passed, conf := s.Validate(snap)
	if !passed {
		return nil, nil
	}

	blocks := DetectOrderBlocks(snap.Klines, smcLookback)
	if len(blocks) == 0 {
		return nil, nil
	}
	latest := blocks[len(blocks)-1]

	side := SideShort
	entry := latest.Low
	if latest.Bullish {
		side = SideLong
		entry = latest.High
	}

	var atr float64
	if series := indicators.ATR(snap.Klines, 14); len(series) > 0 {
		atr = series[len(series)-1]
	}

	sl, tp1, tp2, tp3 := atrTargets(entry, atr, side, smcSLMult, smcTP1Mult, smcTP2Mult, smcTP3Mult)

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

// DetectOrderBlocks scans beyond the lookback offset for impulsive
// candles (body >= 70% of range) followed by at least two small-bodied
// retracement candles within the next four bars.
func DetectOrderBlocks(klines []binance.Kline, lookback int) []OrderBlock {
	if len(klines) < lookback {
		return nil
	}
	var blocks []OrderBlock
	for i := lookback; i < len(klines); i++ {
		body := math.Abs(klines[i].Close - klines[i].Open)
		candleRange := klines[i].High - klines[i].Low
		if candleRange <= 0 || body <= candleRange*smcImpulseBody {
			continue
		}

		retracements := 0
		for j := i + 1; j < len(klines) && j <= i+smcRetraceWindow; j++ {
			rBody := math.Abs(klines[j].Close - klines[j].Open)
			rRange := klines[j].High - klines[j].Low
			if rRange > 0 && rBody < rRange*smcRetraceBody {
				retracements++
			}
		}
		if retracements < smcRetraceMinimum {
			continue
		}

		blocks = append(blocks, OrderBlock{
			Bullish: klines[i].Close > klines[i].Open,
			High:    klines[i].High,
			Low:     klines[i].Low,
			Index:   i,
		})
	}
	return blocks
}

// DetectFairValueGaps finds three-candle gaps: bullish when the low two
// bars later clears the first bar's high, bearish mirrored.
func DetectFairValueGaps(klines []binance.Kline, lookback int) []FairValueGap {
	if len(klines) < lookback+2 {
		return nil
	}
	var gaps []FairValueGap
	for i := lookback; i < len(klines)-2; i++ {
		if klines[i+2].Low > klines[i].High {
			gaps = append(gaps, FairValueGap{
				Bullish: true,
				Top:     klines[i+2].Low,
				Bottom:  klines[i].High,
				Index:   i,
			})
		} else if klines[i+2].High < klines[i].Low {
			gaps = append(gaps, FairValueGap{
				Bullish: false,
				Top:     klines[i].Low,
				Bottom:  klines[i+2].High,
				Index:   i,
			})
		}
	}
	return gaps
}

// DetectBreakerBlocks finds closes beyond the previous bar's extreme
// backed by volume above 1.5x the trailing ten bar average.
func DetectBreakerBlocks(klines []binance.Kline, lookback int) []BreakerBlock {
	if len(klines) < lookback+3 {
		return nil
	}
	var breakers []BreakerBlock
	for i := lookback; i < len(klines)-3; i++ {
		start := i - 10
		if start < 0 {
			start = 0
		}
		window := klines[start:i]
		if len(window) == 0 {
			continue
		}
		var avgVol float64
		for _, k := range window {
			avgVol += k.Volume
		}
		avgVol /= float64(len(window))
		if klines[i].Volume <= avgVol*1.5 {
			continue
		}

		if klines[i].Close > klines[i-1].High {
			breakers = append(breakers, BreakerBlock{Bullish: true, Level: klines[i-1].High, Index: i})
		} else if klines[i].Close < klines[i-1].Low {
			breakers = append(breakers, BreakerBlock{Bullish: false, Level: klines[i-1].Low, Index: i})
		}
	}
	return breakers
}
