package analysis

import "fractal-trader/internal/market"

// VolumeProfile summarizes volume behavior at the end of a series.
type VolumeProfile struct {
	Spike      bool    `json:"spike"`
	Divergence bool    `json:"divergence"`
	Ratio      float64 `json:"ratio"`
}

// VolumeConfig tunes spike and divergence detection.
type VolumeConfig struct {
	AveragePeriod   int     `json:"average_period"`
	SpikeMultiplier float64 `json:"spike_multiplier"`
}

func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{AveragePeriod: 20, SpikeMultiplier: 2.0}
}

// AnalyzeVolume reports whether the last bar's volume spikes above
// the rolling average and whether the series shows price/volume
// divergence (new price extreme on declining volume).
func AnalyzeVolume(candles []market.Candle, cfg VolumeConfig) VolumeProfile {
	if len(candles) < cfg.AveragePeriod+1 {
		return VolumeProfile{}
	}

	avg := market.AverageVolume(candles, cfg.AveragePeriod)
	last := candles[len(candles)-1]

	p := VolumeProfile{}
	if avg > 0 {
		p.Ratio = last.Volume / avg
		p.Spike = p.Ratio >= cfg.SpikeMultiplier
	}
	p.Divergence = detectDivergence(candles, cfg.AveragePeriod)
	return p
}

// detectDivergence compares the last bar against the strongest bar of
// the lookback: a fresh high (or low) on below-average volume flags
// exhaustion of the move.
func detectDivergence(candles []market.Candle, period int) bool {
	n := len(candles)
	last := candles[n-1]
	avg := market.AverageVolume(candles, period)
	if avg == 0 {
		return false
	}

	highExtreme, lowExtreme := true, true
	for i := n - 1 - period; i < n-1; i++ {
		if candles[i].High >= last.High {
			highExtreme = false
		}
		if candles[i].Low <= last.Low {
			lowExtreme = false
		}
	}

	return (highExtreme || lowExtreme) && last.Volume < avg
}
