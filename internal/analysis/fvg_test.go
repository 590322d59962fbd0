package analysis

import (
	"testing"

	"fractal-trader/internal/market"
)

func TestFindFairValueGapsBullish(t *testing.T) {
	candles := []market.Candle{
		bar(0, 99.5, 100, 99, 99.8),
		// Displacement candle leaves a gap between bar 0's high (100)
		// and bar 2's low (102).
		bar(1, 99.8, 102.5, 99.7, 102.4),
		bar(2, 102.4, 103, 102, 102.8),
		bar(3, 102.8, 103.2, 102.5, 103),
	}

	gaps := FindFairValueGaps(candles, FVGConfig{MinGapPercent: 0.1})
	if len(gaps) != 1 {
		t.Fatalf("expected one gap, got %d: %+v", len(gaps), gaps)
	}

	g := gaps[0]
	if g.Kind != BullishFVG {
		t.Errorf("expected bullish gap, got %s", g.Kind)
	}
	if g.Bottom != 100 || g.Top != 102 {
		t.Errorf("expected gap zone [100, 102], got [%v, %v]", g.Bottom, g.Top)
	}
	if g.FilledPercent != 0 {
		t.Errorf("expected unfilled gap, got %v%%", g.FilledPercent)
	}
}

func TestFairValueGapFillPercent(t *testing.T) {
	candles := []market.Candle{
		bar(0, 99.5, 100, 99, 99.8),
		bar(1, 99.8, 102.5, 99.7, 102.4),
		bar(2, 102.4, 103, 102, 102.8),
		// Retrace wick reaches 101: half the [100, 102] zone.
		bar(3, 102.8, 103, 101, 102.5),
	}

	gaps := FindFairValueGaps(candles, FVGConfig{MinGapPercent: 0.1})
	if len(gaps) != 1 {
		t.Fatalf("expected one gap, got %d", len(gaps))
	}
	if gaps[0].FilledPercent != 50 {
		t.Errorf("expected 50%% filled, got %v%%", gaps[0].FilledPercent)
	}
}

func TestFairValueGapFillClamped(t *testing.T) {
	candles := []market.Candle{
		bar(0, 99.5, 100, 99, 99.8),
		bar(1, 99.8, 102.5, 99.7, 102.4),
		bar(2, 102.4, 103, 102, 102.8),
		// Retrace blows through the whole zone.
		bar(3, 102.8, 103, 98, 99),
	}

	gaps := FindFairValueGaps(candles, FVGConfig{MinGapPercent: 0.1})
	if len(gaps) != 1 {
		t.Fatalf("expected one gap, got %d", len(gaps))
	}
	if gaps[0].FilledPercent != 100 {
		t.Errorf("expected fill clamped at 100%%, got %v%%", gaps[0].FilledPercent)
	}
}

func TestFindFairValueGapsBearish(t *testing.T) {
	candles := []market.Candle{
		bar(0, 102.5, 103, 102, 102.2),
		bar(1, 102.2, 102.3, 99.5, 99.6),
		bar(2, 99.6, 100, 99, 99.4),
	}

	gaps := FindFairValueGaps(candles, FVGConfig{MinGapPercent: 0.1})
	if len(gaps) != 1 {
		t.Fatalf("expected one gap, got %d: %+v", len(gaps), gaps)
	}
	g := gaps[0]
	if g.Kind != BearishFVG {
		t.Errorf("expected bearish gap, got %s", g.Kind)
	}
	if g.Bottom != 100 || g.Top != 102 {
		t.Errorf("expected gap zone [100, 102], got [%v, %v]", g.Bottom, g.Top)
	}
}

func TestFindFairValueGapsFlatSeries(t *testing.T) {
	if gaps := FindFairValueGaps(flatSeries(10), DefaultFVGConfig()); len(gaps) != 0 {
		t.Errorf("expected no gaps on a flat series, got %d", len(gaps))
	}
}

func TestFindFairValueGapsBelowMinSize(t *testing.T) {
	candles := []market.Candle{
		bar(0, 99.9, 100, 99.8, 99.95),
		bar(1, 99.95, 100.1, 99.9, 100.05),
		bar(2, 100.05, 100.2, 100.04, 100.1),
	}
	// Gap of 0.04% sits below the 0.1% floor.
	if gaps := FindFairValueGaps(candles, FVGConfig{MinGapPercent: 0.1}); len(gaps) != 0 {
		t.Errorf("expected gap filtered by min size, got %+v", gaps)
	}
}

func TestFreshGaps(t *testing.T) {
	gaps := []FairValueGap{
		{Index: 5, FilledPercent: 10},  // too old
		{Index: 90, FilledPercent: 20}, // fresh
		{Index: 95, FilledPercent: 80}, // already filled past threshold
	}

	fresh := FreshGaps(gaps, 100, 20, 75)
	if len(fresh) != 1 || fresh[0].Index != 90 {
		t.Fatalf("expected only the fresh unfilled gap, got %+v", fresh)
	}
}

func TestVolumeSpike(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 25; i++ {
		candles = append(candles, bar(i, 100, 101, 99, 100))
	}
	candles[24].Volume = 5000 // baseline volume is 1000

	p := AnalyzeVolume(candles, DefaultVolumeConfig())
	if !p.Spike {
		t.Error("expected volume spike")
	}
	if p.Ratio != 5 {
		t.Errorf("expected ratio 5, got %v", p.Ratio)
	}
}

func TestVolumeDivergence(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 25; i++ {
		candles = append(candles, bar(i, 100, 101, 99, 100))
	}
	// Fresh high on weak volume.
	candles[24] = bar(24, 100, 103, 99.5, 102)
	candles[24].Volume = 200

	p := AnalyzeVolume(candles, DefaultVolumeConfig())
	if !p.Divergence {
		t.Error("expected price/volume divergence")
	}
	if p.Spike {
		t.Error("weak-volume bar must not register as a spike")
	}
}
