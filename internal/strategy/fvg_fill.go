package strategy

import (
	"fmt"

	"fractal-trader/internal/analysis"
	"fractal-trader/internal/confidence"
	"fractal-trader/internal/market"
)

const NameFVGFill = "fvg_fill"

// FVGFill trades partial retracements into a fair value gap: when
// price has filled the configured fraction of a fresh gap, entry is
// taken in the direction of the original displacement.
type FVGFill struct {
	cfg Config
}

func NewFVGFill(cfg Config) *FVGFill {
	return &FVGFill{cfg: cfg}
}

func (f *FVGFill) Name() string { return NameFVGFill }

func (f *FVGFill) GenerateSignals(candles []market.Candle) []Signal {
	sc := buildContext(candles, f.cfg)

	gaps := analysis.FindFairValueGaps(candles, analysis.FVGConfig{MinGapPercent: f.cfg.MinGapPercent})

	var signals []Signal
	for _, gap := range gaps {
		g := gap
		guard(func() {
			if sig, ok := f.candidate(sc, g); ok {
				signals = emit(signals, sig, f.cfg.MinRRRatio)
			}
		})
	}
	return signals
}

// candidate replays bars after gap formation to find the bar where
// the fill fraction first crosses the partial-fill threshold. The
// crossing must happen inside the age window, and a bar that fills
// the gap completely consumes the pattern instead of signaling.
func (f *FVGFill) candidate(sc seriesContext, gap analysis.FairValueGap) (Signal, bool) {
	span := gap.Top - gap.Bottom
	if span <= 0 {
		return Signal{}, false
	}

	crossIdx := -1
	deepest := 0.0
	for i := gap.Index + 2; i < len(sc.candles); i++ {
		var depth float64
		if gap.Kind == analysis.BullishFVG {
			depth = gap.Top - sc.candles[i].Low
		} else {
			depth = sc.candles[i].High - gap.Bottom
		}
		if depth > deepest {
			deepest = depth
		}
		fill := deepest / span * 100
		if fill >= f.cfg.PartialFillPercent {
			if fill >= 100 {
				return Signal{}, false
			}
			crossIdx = i
			break
		}
	}
	if crossIdx < 0 || crossIdx-gap.Index > f.cfg.MaxGapAgeBars {
		return Signal{}, false
	}

	bar := sc.candles[crossIdx]
	entry := bar.Close

	direction := Short
	if gap.Kind == analysis.BullishFVG {
		direction = Long
	}

	var stop, target float64
	if direction == Long {
		stop = gap.Bottom * (1 - stopBufferPercent/100)
		target = takeProfitLevel(direction, entry, stop, sc.swingHighs, f.cfg.FallbackRR)
	} else {
		stop = gap.Top * (1 + stopBufferPercent/100)
		target = takeProfitLevel(direction, entry, stop, sc.swingLows, f.cfg.FallbackRR)
	}

	// Confluence when the gap zone overlaps a still-valid order block.
	confluences := 0
	blocks := analysis.FindOrderBlocks(sc.candles, analysis.OrderBlockConfig{
		MinImpulsePercent: f.cfg.MinImpulsePercent,
		ImpulseLookback:   f.cfg.ImpulseLookback,
	})
	for _, ob := range analysis.ActiveBlocks(blocks, len(sc.candles), f.cfg.MaxOBAgeBars) {
		if ob.Low <= gap.Top && ob.High >= gap.Bottom {
			confluences++
		}
	}

	// A gap formed by a large displacement is the cleaner pattern.
	clean := span/gap.Bottom*100 >= f.cfg.MinGapPercent*2

	score := confidence.Score(sc.factors(direction, confluences, clean), f.cfg.Weights)

	return Signal{
		Direction:  direction,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: score,
		Timestamp:  bar.Timestamp,
		Strategy:   f.Name(),
		Metadata: map[string]string{
			"gap_top":    fmt.Sprintf("%.8g", gap.Top),
			"gap_bottom": fmt.Sprintf("%.8g", gap.Bottom),
			"fill_bar":   fmt.Sprintf("%d", crossIdx),
		},
	}, true
}
