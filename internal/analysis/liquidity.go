package analysis

import (
	"time"

	"fractal-trader/internal/market"
)

// LevelSource records whether a liquidity level came from a single
// swing or a cluster of equal swings.
type LevelSource string

const (
	SourceSwing      LevelSource = "swing"
	SourceEqualLevel LevelSource = "equal_level"
)

// LiquidityLevel is a price where resting orders are assumed to sit.
// Equal-level clusters are stronger than lone swings because stops
// accumulate behind repeatedly tested prices.
type LiquidityLevel struct {
	Price     float64     `json:"price"`
	Kind      SwingKind   `json:"kind"`
	Index     int         `json:"index"`
	Timestamp time.Time   `json:"timestamp"`
	Source    LevelSource `json:"source"`
	Touches   int         `json:"touches"`
}

// LiquiditySweep is a failed breakout through a level: an intrabar
// breach followed by a close back on the original side within the
// reversal window. Directional bias is opposite the breakout.
type LiquiditySweep struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	Level      float64   `json:"level"`
	Kind       SwingKind `json:"kind"`
	Bullish    bool      `json:"bullish"`
	ReverseIdx int       `json:"reverse_index"`
}

// FindEqualLevels clusters swing points of one kind whose prices sit
// within tolerancePercent of each other. The most recent member of a
// cluster is the representative level. A cluster of one stays a plain
// swing level; clusters of two or more are equal levels, which
// replace the swing-only record at that index.
func FindEqualLevels(swings []SwingPoint, tolerancePercent float64) []LiquidityLevel {
	if len(swings) == 0 {
		return nil
	}

	used := make([]bool, len(swings))
	var levels []LiquidityLevel

	for i := range swings {
		if used[i] {
			continue
		}
		cluster := []int{i}
		used[i] = true
		for j := i + 1; j < len(swings); j++ {
			if used[j] {
				continue
			}
			ref := swings[i].Price
			if ref == 0 {
				continue
			}
			diff := abs(swings[j].Price-ref) / ref * 100
			if diff <= tolerancePercent {
				cluster = append(cluster, j)
				used[j] = true
			}
		}

		// Most recent swing in the cluster represents the level.
		rep := cluster[len(cluster)-1]
		source := SourceSwing
		if len(cluster) > 1 {
			source = SourceEqualLevel
		}
		levels = append(levels, LiquidityLevel{
			Price:     swings[rep].Price,
			Kind:      swings[rep].Kind,
			Index:     swings[rep].Index,
			Timestamp: swings[rep].Timestamp,
			Source:    source,
			Touches:   len(cluster),
		})
	}
	return levels
}

// DetectLiquiditySweeps scans forward from each level for at most
// maxReversalBars looking for an intrabar breach that closes back
// across the level within the window. Only the first qualifying
// reversal per level counts.
func DetectLiquiditySweeps(candles []market.Candle, levels []LiquidityLevel, maxReversalBars int) []LiquiditySweep {
	var sweeps []LiquiditySweep

	for _, lvl := range levels {
		if sweep, ok := sweepForLevel(candles, lvl, maxReversalBars); ok {
			sweeps = append(sweeps, sweep)
		}
	}
	return sweeps
}

func sweepForLevel(candles []market.Candle, lvl LiquidityLevel, maxReversalBars int) (LiquiditySweep, bool) {
	for i := lvl.Index + 1; i < len(candles); i++ {
		breached := false
		if lvl.Kind == SwingLow {
			breached = candles[i].Low < lvl.Price
		} else {
			breached = candles[i].High > lvl.Price
		}
		if !breached {
			continue
		}

		// Breach found: look for the close back across the level
		// within the reversal window, the breach bar included.
		end := i + maxReversalBars
		if end > len(candles) {
			end = len(candles)
		}
		for j := i; j < end; j++ {
			var reversed bool
			if lvl.Kind == SwingLow {
				reversed = candles[j].Close > lvl.Price
			} else {
				reversed = candles[j].Close < lvl.Price
			}
			if reversed {
				return LiquiditySweep{
					Index:      i,
					Timestamp:  candles[i].Timestamp,
					Level:      lvl.Price,
					Kind:       lvl.Kind,
					Bullish:    lvl.Kind == SwingLow,
					ReverseIdx: j,
				}, true
			}
		}
		// First breach failed to reverse: the level is taken out,
		// it cannot sweep later.
		return LiquiditySweep{}, false
	}
	return LiquiditySweep{}, false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
