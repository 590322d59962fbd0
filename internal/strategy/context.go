package strategy

import (
	"fractal-trader/internal/analysis"
	"fractal-trader/internal/confidence"
	"fractal-trader/internal/market"
)

// seriesContext is the shared structural read of a candle series that
// every strategy computes before scanning for its own pattern.
type seriesContext struct {
	candles    []market.Candle
	swingHighs []analysis.SwingPoint
	swingLows  []analysis.SwingPoint
	trend      analysis.Trend
	breaks     []analysis.StructureBreak
	volume     analysis.VolumeProfile
	atr        float64
	baseline   float64
}

func buildContext(candles []market.Candle, cfg Config) seriesContext {
	sc := seriesContext{candles: candles}
	sc.swingHighs, sc.swingLows = analysis.FindSwingPoints(candles, cfg.SwingWindow)
	sc.trend = analysis.DetermineTrend(sc.swingHighs, sc.swingLows)
	sc.breaks = analysis.DetectStructureBreaks(candles, sc.swingHighs, sc.swingLows, sc.trend)
	sc.volume = analysis.AnalyzeVolume(candles, analysis.DefaultVolumeConfig())
	sc.atr = market.ATR(candles, 14)
	sc.baseline = market.BaselineATR(candles, 14, 50)
	return sc
}

// trendAligned reports whether the regime supports the direction.
func (sc seriesContext) trendAligned(direction int) bool {
	switch sc.trend {
	case analysis.TrendBullish:
		return direction == Long
	case analysis.TrendBearish:
		return direction == Short
	default:
		return false
	}
}

// lowVolatility is a short ATR relative to its longer baseline.
func (sc seriesContext) lowVolatility() bool {
	return sc.baseline > 0 && sc.atr/sc.baseline < 1.0
}

// structureClean means the latest structural break does not fight
// the prevailing trend.
func (sc seriesContext) structureClean() bool {
	latest := analysis.LatestBreak(sc.breaks)
	if latest == nil {
		return true
	}
	switch sc.trend {
	case analysis.TrendBullish:
		return latest.Bullish
	case analysis.TrendBearish:
		return !latest.Bullish
	default:
		return false
	}
}

// factors assembles the confidence inputs for a candidate.
func (sc seriesContext) factors(direction, confluences int, patternClean bool) confidence.Factors {
	return confidence.Factors{
		HTFTrendAligned:   sc.trendAligned(direction),
		HTFStructureClean: sc.structureClean(),
		PatternClean:      patternClean,
		Confluences:       confluences,
		VolumeSpike:       sc.volume.Spike,
		VolumeDivergence:  sc.volume.Divergence,
		TrendingMarket:    sc.trend != analysis.TrendRanging,
		LowVolatility:     sc.lowVolatility(),
	}
}
