package strategy

import (
	"fmt"

	"fractal-trader/internal/analysis"
	"fractal-trader/internal/confidence"
	"fractal-trader/internal/market"
)

const NameLiquiditySweep = "liquidity_sweep"

// LiquiditySweep trades failed breakouts: a wick through a resting
// liquidity level that closes back across it within the reversal
// window. Bias is opposite the breakout direction.
type LiquiditySweep struct {
	cfg Config
}

func NewLiquiditySweep(cfg Config) *LiquiditySweep {
	return &LiquiditySweep{cfg: cfg}
}

func (s *LiquiditySweep) Name() string { return NameLiquiditySweep }

func (s *LiquiditySweep) GenerateSignals(candles []market.Candle) []Signal {
	sc := buildContext(candles, s.cfg)
	if len(candles) == 0 {
		return nil
	}

	lowLevels := analysis.FindEqualLevels(sc.swingLows, s.cfg.TolerancePercent)
	highLevels := analysis.FindEqualLevels(sc.swingHighs, s.cfg.TolerancePercent)
	levels := append(lowLevels, highLevels...)

	sweeps := analysis.DetectLiquiditySweeps(candles, levels, s.cfg.MaxReversalBars)

	var signals []Signal
	for _, sweep := range sweeps {
		sw := sweep
		guard(func() {
			if sig, ok := s.candidate(sc, sw, levels); ok {
				signals = emit(signals, sig, s.cfg.MinRRRatio)
			}
		})
	}
	return signals
}

func (s *LiquiditySweep) candidate(sc seriesContext, sweep analysis.LiquiditySweep, levels []analysis.LiquidityLevel) (Signal, bool) {
	reversal := sc.candles[sweep.ReverseIdx]
	entry := reversal.Close

	direction := Short
	if sweep.Bullish {
		direction = Long
	}

	// Stop beyond the sweep wick with a small buffer.
	breach := sc.candles[sweep.Index]
	var stop float64
	if direction == Long {
		stop = breach.Low * (1 - stopBufferPercent/100)
	} else {
		stop = breach.High * (1 + stopBufferPercent/100)
	}

	var target float64
	if direction == Long {
		target = takeProfitLevel(direction, entry, stop, sc.swingHighs, s.cfg.FallbackRR)
	} else {
		target = takeProfitLevel(direction, entry, stop, sc.swingLows, s.cfg.FallbackRR)
	}

	confluences := 0
	for _, lvl := range levels {
		if lvl.Price == sweep.Level && lvl.Source == analysis.SourceEqualLevel {
			confluences += lvl.Touches - 1
		}
	}
	// Reversal on the breach bar itself is the cleanest form.
	clean := sweep.ReverseIdx == sweep.Index

	score := confidence.Score(sc.factors(direction, confluences, clean), s.cfg.Weights)

	return Signal{
		Direction:  direction,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: score,
		Timestamp:  reversal.Timestamp,
		Strategy:   s.Name(),
		Metadata: map[string]string{
			"level":       fmt.Sprintf("%.8g", sweep.Level),
			"breach_bar":  fmt.Sprintf("%d", sweep.Index),
			"reversal_at": reversal.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		},
	}, true
}

// stopBufferPercent pads stops past the pattern extreme so a retest
// of the exact wick does not knock the position out.
const stopBufferPercent = 0.1
