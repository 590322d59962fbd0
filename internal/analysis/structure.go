// Package analysis implements price-structure detection over candle
// series: swing points, trend regime, structural breaks, liquidity
// pools and sweeps, order blocks and fair value gaps. All detectors
// are pure functions of their input series and recompute from scratch
// on every call.
package analysis

import (
	"time"

	"fractal-trader/internal/market"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a confirmed local extremum.
type SwingPoint struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Kind      SwingKind `json:"kind"`
}

// Trend is the structural regime of a series.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendRanging Trend = "ranging"
)

// StructureBreak is a close beyond the most recent opposing swing.
type StructureBreak struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Level     float64   `json:"level"`
	Bullish   bool      `json:"bullish"`
}

// FindSwingPoints returns swing highs and lows using a fixed window:
// a bar is a swing high when its high is the maximum of the window
// bars on each side. When several bars in a window share the extreme
// value, the earliest bar is the swing and the later ones are not.
func FindSwingPoints(candles []market.Candle, window int) (highs, lows []SwingPoint) {
	if window <= 0 || len(candles) < 2*window+1 {
		return nil, nil
	}

	for i := window; i < len(candles)-window; i++ {
		if isSwingHigh(candles, i, window) {
			highs = append(highs, SwingPoint{
				Index:     i,
				Timestamp: candles[i].Timestamp,
				Price:     candles[i].High,
				Kind:      SwingHigh,
			})
		}
		if isSwingLow(candles, i, window) {
			lows = append(lows, SwingPoint{
				Index:     i,
				Timestamp: candles[i].Timestamp,
				Price:     candles[i].Low,
				Kind:      SwingLow,
			})
		}
	}
	return highs, lows
}

func isSwingHigh(candles []market.Candle, i, window int) bool {
	h := candles[i].High
	for j := i - window; j <= i+window; j++ {
		if j == i {
			continue
		}
		if candles[j].High > h {
			return false
		}
		// Equal extreme earlier in the window takes the swing.
		if candles[j].High == h && j < i {
			return false
		}
	}
	return true
}

func isSwingLow(candles []market.Candle, i, window int) bool {
	l := candles[i].Low
	for j := i - window; j <= i+window; j++ {
		if j == i {
			continue
		}
		if candles[j].Low < l {
			return false
		}
		if candles[j].Low == l && j < i {
			return false
		}
	}
	return true
}

// DetermineTrend classifies the regime from the two most recent swing
// highs and lows. Higher highs with higher lows is bullish, lower
// highs with lower lows is bearish, anything else is ranging.
func DetermineTrend(highs, lows []SwingPoint) Trend {
	if len(highs) < 2 || len(lows) < 2 {
		return TrendRanging
	}

	h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
	l1, l2 := lows[len(lows)-2], lows[len(lows)-1]

	switch {
	case h2.Price > h1.Price && l2.Price > l1.Price:
		return TrendBullish
	case h2.Price < h1.Price && l2.Price < l1.Price:
		return TrendBearish
	default:
		return TrendRanging
	}
}

// DetectStructureBreaks returns break-of-structure events: the first
// close beyond the most recent confirmed swing level, gated by trend.
// A bullish regime only breaks above the latest swing high, a bearish
// regime only below the latest swing low, and a ranging regime can
// break either side. Each side produces at most one break.
func DetectStructureBreaks(candles []market.Candle, highs, lows []SwingPoint, trend Trend) []StructureBreak {
	var breaks []StructureBreak

	if trend != TrendBearish && len(highs) > 0 {
		sp := highs[len(highs)-1]
		for i := sp.Index + 1; i < len(candles); i++ {
			if candles[i].Close > sp.Price {
				breaks = append(breaks, StructureBreak{
					Index:     i,
					Timestamp: candles[i].Timestamp,
					Price:     candles[i].Close,
					Level:     sp.Price,
					Bullish:   true,
				})
				break
			}
		}
	}
	if trend != TrendBullish && len(lows) > 0 {
		sp := lows[len(lows)-1]
		for i := sp.Index + 1; i < len(candles); i++ {
			if candles[i].Close < sp.Price {
				breaks = append(breaks, StructureBreak{
					Index:     i,
					Timestamp: candles[i].Timestamp,
					Price:     candles[i].Close,
					Level:     sp.Price,
					Bullish:   false,
				})
				break
			}
		}
	}
	return breaks
}

// LatestBreak returns the most recent structure break, or nil.
func LatestBreak(breaks []StructureBreak) *StructureBreak {
	var latest *StructureBreak
	for i := range breaks {
		if latest == nil || breaks[i].Index > latest.Index {
			latest = &breaks[i]
		}
	}
	return latest
}
