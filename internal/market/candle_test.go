package market

import (
	"testing"
	"time"
)

func ts(min int) time.Time {
	return time.Date(2024, 1, 1, 0, min, 0, 0, time.UTC)
}

func TestNormalizeSortsAndDedupes(t *testing.T) {
	candles := []Candle{
		{Timestamp: ts(2), Close: 102},
		{Timestamp: ts(0), Close: 100},
		{Timestamp: ts(1), Close: 101},
		{Timestamp: ts(1), Close: 999}, // duplicate timestamp, last wins
	}

	out := Normalize(candles)
	if len(out) != 3 {
		t.Fatalf("expected 3 candles after dedup, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i-1].Timestamp.Before(out[i].Timestamp) {
			t.Errorf("candles not ascending at index %d", i)
		}
	}
	if out[1].Close != 999 {
		t.Errorf("expected duplicate resolution to keep last candle, got close %v", out[1].Close)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if out := Normalize(nil); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}

func TestATR(t *testing.T) {
	// Constant range of 10 per bar, no gaps: ATR must equal 10.
	var candles []Candle
	for i := 0; i < 20; i++ {
		candles = append(candles, Candle{
			Timestamp: ts(i),
			Open:      100, High: 105, Low: 95, Close: 100,
		})
	}

	atr := ATR(candles, 14)
	if atr != 10 {
		t.Errorf("expected ATR 10, got %v", atr)
	}
}

func TestATRInsufficientHistory(t *testing.T) {
	candles := []Candle{{High: 10, Low: 5}, {High: 11, Low: 6}}
	if atr := ATR(candles, 14); atr != 0 {
		t.Errorf("expected 0 for short series, got %v", atr)
	}
}

func TestTrueRangeUsesGaps(t *testing.T) {
	prev := Candle{Close: 100}
	cur := Candle{High: 112, Low: 108}
	// Gap up: high-prevClose (12) exceeds high-low (4).
	if tr := TrueRange(prev, cur); tr != 12 {
		t.Errorf("expected true range 12, got %v", tr)
	}
}

func TestBaselineATRFallsBack(t *testing.T) {
	var candles []Candle
	for i := 0; i < 16; i++ {
		candles = append(candles, Candle{Timestamp: ts(i), High: 105, Low: 95, Open: 100, Close: 100})
	}

	// 16 bars: enough for ATR(14) but not ATR(50).
	if got := BaselineATR(candles, 14, 50); got != 10 {
		t.Errorf("expected fallback to short ATR 10, got %v", got)
	}
}

func TestAverageVolumeExcludesLastBar(t *testing.T) {
	var candles []Candle
	for i := 0; i < 11; i++ {
		candles = append(candles, Candle{Timestamp: ts(i), Volume: 100})
	}
	candles[10].Volume = 5000 // spike bar must not contaminate the average

	if avg := AverageVolume(candles, 10); avg != 100 {
		t.Errorf("expected average 100, got %v", avg)
	}
}
