package analysis

import (
	"testing"

	"fractal-trader/internal/market"
)

func TestFindEqualLevels(t *testing.T) {
	swings := []SwingPoint{
		{Index: 5, Price: 100.00, Kind: SwingLow},
		{Index: 12, Price: 100.10, Kind: SwingLow}, // within 0.15% of 100
		{Index: 20, Price: 110.00, Kind: SwingLow}, // isolated
	}

	levels := FindEqualLevels(swings, 0.15)
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d: %+v", len(levels), levels)
	}

	pool := levels[0]
	if pool.Source != SourceEqualLevel {
		t.Errorf("expected equal-level source for the cluster, got %s", pool.Source)
	}
	if pool.Touches != 2 {
		t.Errorf("expected 2 touches, got %d", pool.Touches)
	}
	if pool.Index != 12 {
		t.Errorf("expected most recent swing (index 12) as representative, got %d", pool.Index)
	}
	if pool.Price != 100.10 {
		t.Errorf("expected representative price 100.10, got %v", pool.Price)
	}

	if levels[1].Source != SourceSwing || levels[1].Touches != 1 {
		t.Errorf("expected isolated swing level, got %+v", levels[1])
	}
}

func TestFindEqualLevelsEmpty(t *testing.T) {
	if levels := FindEqualLevels(nil, 0.15); levels != nil {
		t.Errorf("expected nil for no swings, got %v", levels)
	}
}

// Bullish sweep: a swing low near 100 gets wicked to 99.5 and the bar
// closes back above the level.
func TestDetectLiquiditySweepBullish(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 30; i++ {
		candles = append(candles, bar(i, 101, 102, 100.8, 101))
	}
	// Swing low at index 10.
	candles[10] = bar(10, 101, 101.5, 100, 100.8)
	// Sweep at index 20: wick to 99.5, close back above 100.
	candles[20] = bar(20, 100.9, 101.2, 99.5, 100.6)

	sh, sl := FindSwingPoints(candles, 3)
	_ = sh
	levels := FindEqualLevels(sl, 0.15)

	sweeps := DetectLiquiditySweeps(candles, levels, 5)
	var bullish []LiquiditySweep
	for _, s := range sweeps {
		if s.Bullish {
			bullish = append(bullish, s)
		}
	}
	if len(bullish) != 1 {
		t.Fatalf("expected exactly one bullish sweep, got %d: %+v", len(bullish), sweeps)
	}
	if bullish[0].Index != 20 {
		t.Errorf("expected sweep at breach index 20, got %d", bullish[0].Index)
	}
	if bullish[0].Level != 100 {
		t.Errorf("expected swept level 100, got %v", bullish[0].Level)
	}
}

// A breach that keeps closing beyond the level is a breakout, not a
// sweep, and the level never fires afterwards.
func TestDetectLiquiditySweepNoReversal(t *testing.T) {
	var candles []market.Candle
	for i := 0; i < 30; i++ {
		candles = append(candles, bar(i, 101, 102, 100.8, 101))
	}
	candles[10] = bar(10, 101, 101.5, 100, 100.8)
	// Breakdown: breach and every close stays below the level.
	for i := 20; i < 30; i++ {
		candles[i] = bar(i, 99.8, 99.9, 99.0, 99.2)
	}

	_, sl := FindSwingPoints(candles, 3)
	levels := FindEqualLevels(sl, 0.15)

	if sweeps := DetectLiquiditySweeps(candles, levels, 5); len(sweeps) != 0 {
		t.Errorf("expected no sweeps on a clean breakdown, got %+v", sweeps)
	}
}
