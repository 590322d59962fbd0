package strategy

import (
	"testing"
	"time"

	"fractal-trader/internal/market"
)

func bar(i int, o, h, l, c float64) market.Candle {
	return market.Candle{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Open:      o, High: h, Low: l, Close: c,
		Volume: 1000,
	}
}

func flatSeries(n int) []market.Candle {
	var out []market.Candle
	for i := 0; i < n; i++ {
		out = append(out, bar(i, 100, 100, 100, 100))
	}
	return out
}

// sweepSeries is a 30-bar series with a swing low near 100 that gets
// wicked to 99.5 and closes back above the level.
func sweepSeries() []market.Candle {
	var candles []market.Candle
	for i := 0; i < 30; i++ {
		candles = append(candles, bar(i, 101, 102, 100.8, 101))
	}
	candles[10] = bar(10, 101, 101.5, 100, 100.8)
	candles[20] = bar(20, 100.9, 101.2, 99.5, 100.6)
	return candles
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, DefaultConfig())
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("strategy %q reports name %q", name, s.Name())
		}
	}
	if _, err := New("bogus", DefaultConfig()); err == nil {
		t.Error("expected error for unknown strategy name")
	}
}

func TestSignalValid(t *testing.T) {
	tests := []struct {
		name string
		sig  Signal
		want bool
	}{
		{"long ok", Signal{Direction: Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 104}, true},
		{"long stop above entry", Signal{Direction: Long, EntryPrice: 100, StopLoss: 101, TakeProfit: 104}, false},
		{"long stop equals entry", Signal{Direction: Long, EntryPrice: 100, StopLoss: 100, TakeProfit: 104}, false},
		{"short ok", Signal{Direction: Short, EntryPrice: 100, StopLoss: 102, TakeProfit: 96}, true},
		{"short target above entry", Signal{Direction: Short, EntryPrice: 100, StopLoss: 102, TakeProfit: 101}, false},
		{"no direction", Signal{EntryPrice: 100, StopLoss: 98, TakeProfit: 104}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sig.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLiquiditySweepScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SwingWindow = 3
	s := NewLiquiditySweep(cfg)

	signals := s.GenerateSignals(sweepSeries())
	if len(signals) > 1 {
		t.Fatalf("expected at most one signal, got %d", len(signals))
	}
	if len(signals) == 0 {
		t.Fatal("expected one long signal from the sweep")
	}

	sig := signals[0]
	if sig.Direction != Long {
		t.Errorf("expected long, got direction %d", sig.Direction)
	}
	if sig.StopLoss >= 99.5 {
		t.Errorf("expected stop below the sweep wick 99.5, got %v", sig.StopLoss)
	}
	if !sig.Valid() {
		t.Errorf("signal violates stop/target ordering: %+v", sig)
	}
	if rr := sig.RiskReward(); rr < cfg.MinRRRatio {
		t.Errorf("signal below RR floor: %v", rr)
	}
}

func TestRRFilterMonotonic(t *testing.T) {
	series := sweepSeries()
	prev := -1
	for _, minRR := range []float64{3.0, 2.5, 1.5, 0.5} {
		cfg := DefaultConfig()
		cfg.SwingWindow = 3
		cfg.MinRRRatio = minRR
		n := len(NewLiquiditySweep(cfg).GenerateSignals(series))
		if prev >= 0 && n < prev {
			t.Fatalf("lowering min RR to %v removed signals (%d -> %d)", minRR, prev, n)
		}
		prev = n
	}
}

func TestAllStrategiesFlatSeries(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range []int{0, 1, 10, 50} {
			if sigs := s.GenerateSignals(flatSeries(n)); len(sigs) != 0 {
				t.Errorf("%s produced %d signals on a flat %d-bar series", name, len(sigs), n)
			}
		}
	}
}

// fvgSeries forms a bullish gap at index 10 and retraces roughly half
// of it at index 13.
func fvgSeries() []market.Candle {
	var candles []market.Candle
	for i := 0; i < 9; i++ {
		candles = append(candles, bar(i, 100, 100.2, 99.8, 100))
	}
	candles = append(candles,
		bar(9, 100, 100.2, 99.8, 100),
		bar(10, 100, 103, 99.9, 102.9),
		bar(11, 102.9, 103.2, 102.5, 103),
		bar(12, 103, 103.2, 102.5, 103),
		bar(13, 103, 103.1, 101.3, 101.9),
		bar(14, 101.9, 102.5, 101.8, 102.3),
	)
	return candles
}

func TestFVGFillScenario(t *testing.T) {
	s := NewFVGFill(DefaultConfig())

	signals := s.GenerateSignals(fvgSeries())
	if len(signals) != 1 {
		t.Fatalf("expected one signal, got %d: %+v", len(signals), signals)
	}

	sig := signals[0]
	if sig.Direction != Long {
		t.Errorf("expected long off a bullish gap, got %d", sig.Direction)
	}
	if !sig.Valid() {
		t.Errorf("signal violates ordering: %+v", sig)
	}
	if sig.EntryPrice != 101.9 {
		t.Errorf("expected entry at the crossing bar close 101.9, got %v", sig.EntryPrice)
	}
	if sig.StopLoss >= 100.2 {
		t.Errorf("expected stop below the gap bottom 100.2, got %v", sig.StopLoss)
	}
}

func TestFVGAgeWindowMonotonic(t *testing.T) {
	series := fvgSeries()
	prev := -1
	for _, age := range []int{1, 2, 3, 10, 20} {
		cfg := DefaultConfig()
		cfg.MaxGapAgeBars = age
		n := len(NewFVGFill(cfg).GenerateSignals(series))
		if prev >= 0 && n < prev {
			t.Fatalf("widening gap age to %d removed signals (%d -> %d)", age, prev, n)
		}
		prev = n
	}
}

// bosSeries rallies to a swing high at 102, pulls back leaving a
// bullish order block at bar 9, breaks the high at bar 13 and retests
// the block at bar 14.
func bosSeries() []market.Candle {
	return []market.Candle{
		bar(0, 100, 100.3, 99.7, 100),
		bar(1, 100, 100.3, 99.7, 100),
		bar(2, 100, 100.3, 99.7, 100),
		bar(3, 100, 100.3, 99.7, 100),
		bar(4, 100, 100.3, 99.7, 100),
		bar(5, 100, 102, 99.8, 101),
		bar(6, 101, 101.1, 100.3, 100.5),
		bar(7, 100.5, 100.5, 100.1, 100.2),
		bar(8, 100.2, 100.7, 99.8, 100),
		bar(9, 100, 100.1, 99.2, 99.4),
		bar(10, 99.4, 100.6, 99.5, 100.4),
		bar(11, 100.4, 101.1, 100.3, 101),
		bar(12, 101, 101.6, 100.9, 101.5),
		bar(13, 101.5, 102.6, 101.4, 102.3),
		bar(14, 100.9, 101, 100, 100.2),
		bar(15, 100.2, 101.2, 100.1, 101),
		bar(16, 101, 101.5, 100.9, 101.3),
		bar(17, 101.3, 101.7, 101.2, 101.5),
		bar(18, 101.5, 102, 101.4, 101.8),
	}
}

func TestBOSOrderBlockScenario(t *testing.T) {
	s := NewBOSOrderBlock(DefaultConfig())

	signals := s.GenerateSignals(bosSeries())
	if len(signals) != 1 {
		t.Fatalf("expected one signal, got %d: %+v", len(signals), signals)
	}

	sig := signals[0]
	if sig.Direction != Long {
		t.Errorf("expected long continuation, got %d", sig.Direction)
	}
	if !sig.Valid() {
		t.Errorf("signal violates ordering: %+v", sig)
	}
	if sig.StopLoss >= 99.2 {
		t.Errorf("expected stop below the block low 99.2, got %v", sig.StopLoss)
	}
	if sig.TakeProfit != 102 {
		t.Errorf("expected target at the prior swing high 102, got %v", sig.TakeProfit)
	}
}

func TestTakeProfitFallback(t *testing.T) {
	// No swing above entry: fall back to 2R.
	tp := takeProfitLevel(Long, 100, 98, nil, 2.0)
	if tp != 104 {
		t.Errorf("expected fallback target 104, got %v", tp)
	}
	tp = takeProfitLevel(Short, 100, 102, nil, 2.0)
	if tp != 96 {
		t.Errorf("expected fallback target 96, got %v", tp)
	}
}

func TestGuardSwallowsPanic(t *testing.T) {
	ran := false
	guard(func() {
		ran = true
		panic("bad index")
	})
	if !ran {
		t.Error("guard must run the candidate function")
	}
	// Reaching here at all is the assertion: the panic was contained.
}
