package analysis

import (
	"time"

	"fractal-trader/internal/market"
)

// FVGKind is the direction of the imbalance.
type FVGKind string

const (
	BullishFVG FVGKind = "bullish"
	BearishFVG FVGKind = "bearish"
)

// FairValueGap is a three-candle imbalance. Top and Bottom bound the
// unfilled zone at formation; FilledPercent is recomputed against the
// full series on every detection pass.
type FairValueGap struct {
	Index         int       `json:"index"`
	Timestamp     time.Time `json:"timestamp"`
	Top           float64   `json:"top"`
	Bottom        float64   `json:"bottom"`
	Kind          FVGKind   `json:"kind"`
	FilledPercent float64   `json:"filled_percent"`
}

// FVGConfig tunes gap size filtering.
type FVGConfig struct {
	MinGapPercent float64 `json:"min_gap_percent"`
}

// DefaultFVGConfig mirrors the production tuning for 1h bars.
func DefaultFVGConfig() FVGConfig {
	return FVGConfig{MinGapPercent: 0.1}
}

// FindFairValueGaps detects three-candle imbalances: a bullish gap
// when the first candle's high sits below the third candle's low, a
// bearish gap when the first candle's low sits above the third
// candle's high. The gap is anchored at the middle candle. Fill is
// measured from every bar after the third candle.
func FindFairValueGaps(candles []market.Candle, cfg FVGConfig) []FairValueGap {
	if len(candles) < 3 {
		return nil
	}

	var gaps []FairValueGap
	for i := 1; i < len(candles)-1; i++ {
		c1, c2, c3 := candles[i-1], candles[i], candles[i+1]

		if c1.High < c3.Low && c1.High > 0 {
			sizePct := (c3.Low - c1.High) / c1.High * 100
			if sizePct >= cfg.MinGapPercent {
				g := FairValueGap{
					Index:     i,
					Timestamp: c2.Timestamp,
					Top:       c3.Low,
					Bottom:    c1.High,
					Kind:      BullishFVG,
				}
				g.FilledPercent = gapFill(candles, i+2, g)
				gaps = append(gaps, g)
			}
		}

		if c1.Low > c3.High && c3.High > 0 {
			sizePct := (c1.Low - c3.High) / c3.High * 100
			if sizePct >= cfg.MinGapPercent {
				g := FairValueGap{
					Index:     i,
					Timestamp: c2.Timestamp,
					Top:       c1.Low,
					Bottom:    c3.High,
					Kind:      BearishFVG,
				}
				g.FilledPercent = gapFill(candles, i+2, g)
				gaps = append(gaps, g)
			}
		}
	}
	return gaps
}

// gapFill returns the deepest fraction of the gap range reached by
// wicks from `from` onward, clamped to [0, 100].
func gapFill(candles []market.Candle, from int, g FairValueGap) float64 {
	span := g.Top - g.Bottom
	if span <= 0 {
		return 0
	}

	deepest := 0.0
	for i := from; i < len(candles); i++ {
		var depth float64
		if g.Kind == BullishFVG {
			// Price retraces down into the gap; fill grows from the top.
			depth = g.Top - candles[i].Low
		} else {
			// Price retraces up into the gap; fill grows from the bottom.
			depth = candles[i].High - g.Bottom
		}
		if depth > deepest {
			deepest = depth
		}
	}

	pct := deepest / span * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// FreshGaps filters to gaps younger than maxAge bars that have not
// been filled past fullFillPercent.
func FreshGaps(gaps []FairValueGap, seriesLen, maxAgeBars int, fullFillPercent float64) []FairValueGap {
	var out []FairValueGap
	for _, g := range gaps {
		if maxAgeBars > 0 && seriesLen-1-g.Index > maxAgeBars {
			continue
		}
		if g.FilledPercent >= fullFillPercent {
			continue
		}
		out = append(out, g)
	}
	return out
}
