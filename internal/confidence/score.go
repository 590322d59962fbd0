// Package confidence turns corroborating pattern factors into a
// 0-100 score. Scoring is a pure function of its inputs so strategy
// thresholds stay unit-testable.
package confidence

// Factors are the boolean and counted observations a strategy
// gathers around a candidate signal.
type Factors struct {
	HTFTrendAligned   bool `json:"htf_trend_aligned"`
	HTFStructureClean bool `json:"htf_structure_clean"`
	PatternClean      bool `json:"pattern_clean"`
	Confluences       int  `json:"confluences"`
	VolumeSpike       bool `json:"volume_spike"`
	VolumeDivergence  bool `json:"volume_divergence"`
	TrendingMarket    bool `json:"trending_market"`
	LowVolatility     bool `json:"low_volatility"`
}

// Weights are the point contributions per factor. ConfluencePoints is
// applied per confluence up to ConfluenceCap total.
type Weights struct {
	HTFTrendAligned   int `json:"htf_trend_aligned"`
	HTFStructureClean int `json:"htf_structure_clean"`
	PatternClean      int `json:"pattern_clean"`
	ConfluencePoints  int `json:"confluence_points"`
	ConfluenceCap     int `json:"confluence_cap"`
	VolumeSpike       int `json:"volume_spike"`
	VolumeDivergence  int `json:"volume_divergence"`
	TrendingMarket    int `json:"trending_market"`
	LowVolatility     int `json:"low_volatility"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		HTFTrendAligned:   15,
		HTFStructureClean: 15,
		PatternClean:      10,
		ConfluencePoints:  5,
		ConfluenceCap:     20,
		VolumeSpike:       10,
		VolumeDivergence:  10,
		TrendingMarket:    10,
		LowVolatility:     10,
	}
}

// Score sums the weighted factor contributions, clamped to [0, 100].
func Score(f Factors, w Weights) int {
	total := 0

	if f.HTFTrendAligned {
		total += w.HTFTrendAligned
	}
	if f.HTFStructureClean {
		total += w.HTFStructureClean
	}
	if f.PatternClean {
		total += w.PatternClean
	}

	if f.Confluences > 0 {
		pts := f.Confluences * w.ConfluencePoints
		if pts > w.ConfluenceCap {
			pts = w.ConfluenceCap
		}
		total += pts
	}

	if f.VolumeSpike {
		total += w.VolumeSpike
	}
	if f.VolumeDivergence {
		total += w.VolumeDivergence
	}
	if f.TrendingMarket {
		total += w.TrendingMarket
	}
	if f.LowVolatility {
		total += w.LowVolatility
	}

	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

// Grade maps a score to the tier used in reports and dashboards.
func Grade(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 65:
		return "B"
	case score >= 50:
		return "C"
	default:
		return "D"
	}
}
