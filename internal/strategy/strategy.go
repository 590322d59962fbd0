// Package strategy composes the structure, liquidity, order block and
// gap detectors into entry/stop/target signals. Every strategy is
// stateless across calls and recomputes from the full series on each
// invocation.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"fractal-trader/internal/analysis"
	"fractal-trader/internal/confidence"
	"fractal-trader/internal/market"
)

// Direction of a signal.
const (
	Long  = 1
	Short = -1
)

// Signal is an actionable trade candidate. Immutable once emitted.
type Signal struct {
	Direction  int               `json:"direction"`
	EntryPrice float64           `json:"entry_price"`
	StopLoss   float64           `json:"stop_loss"`
	TakeProfit float64           `json:"take_profit"`
	Confidence int               `json:"confidence"`
	Timestamp  time.Time         `json:"timestamp"`
	Strategy   string            `json:"strategy"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RiskReward returns |tp-entry| / |entry-stop|, or 0 when the stop
// distance is degenerate.
func (s Signal) RiskReward() float64 {
	risk := abs(s.EntryPrice - s.StopLoss)
	if risk == 0 {
		return 0
	}
	return abs(s.TakeProfit-s.EntryPrice) / risk
}

// Valid reports whether stop and target sit strictly on the correct
// sides of entry for the signal's direction.
func (s Signal) Valid() bool {
	switch s.Direction {
	case Long:
		return s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit
	case Short:
		return s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss
	default:
		return false
	}
}

// Strategy generates signals from a candle series.
type Strategy interface {
	Name() string
	GenerateSignals(candles []market.Candle) []Signal
}

// Config carries the detector tuning shared by all strategies.
type Config struct {
	SwingWindow        int     `json:"swing_window"`
	TolerancePercent   float64 `json:"tolerance_percent"`
	MaxReversalBars    int     `json:"max_reversal_bars"`
	MinGapPercent      float64 `json:"min_gap_percent"`
	PartialFillPercent float64 `json:"partial_fill_percent"`
	MaxGapAgeBars      int     `json:"max_gap_age_bars"`
	MinImpulsePercent  float64 `json:"min_impulse_percent"`
	ImpulseLookback    int     `json:"impulse_lookback"`
	MaxOBAgeBars       int     `json:"max_ob_age_bars"`
	MinRRRatio         float64 `json:"min_rr_ratio"`
	FallbackRR         float64 `json:"fallback_rr"`

	Weights confidence.Weights `json:"weights"`
}

// DefaultConfig returns the tuning used in live trading on 1h bars.
func DefaultConfig() Config {
	return Config{
		SwingWindow:        5,
		TolerancePercent:   0.15,
		MaxReversalBars:    5,
		MinGapPercent:      0.1,
		PartialFillPercent: 50,
		MaxGapAgeBars:      20,
		MinImpulsePercent:  1.5,
		ImpulseLookback:    3,
		MaxOBAgeBars:       30,
		MinRRRatio:         1.5,
		FallbackRR:         2.0,
		Weights:            confidence.DefaultWeights(),
	}
}

// Factory builds a strategy from a config.
type Factory func(cfg Config) Strategy

var registry = map[string]Factory{
	NameLiquiditySweep: func(cfg Config) Strategy { return NewLiquiditySweep(cfg) },
	NameFVGFill:        func(cfg Config) Strategy { return NewFVGFill(cfg) },
	NameBOSOrderBlock:  func(cfg Config) Strategy { return NewBOSOrderBlock(cfg) },
}

// New builds a registered strategy by name.
func New(name string, cfg Config) (Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, Names())
	}
	return factory(cfg), nil
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// emit validates a candidate and applies the risk/reward floor.
// Candidates with the stop on the wrong side are dropped silently.
func emit(signals []Signal, s Signal, minRR float64) []Signal {
	if !s.Valid() {
		return signals
	}
	if s.RiskReward() < minRR {
		return signals
	}
	return append(signals, s)
}

// guard runs fn and turns any panic into "no result at this index".
// One bad candidate must never abort the scan.
func guard(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// takeProfitLevel picks the nearest prior opposite-side swing level
// past entry, falling back to a fixed risk multiple of the stop
// distance when no qualifying swing exists.
func takeProfitLevel(direction int, entry, stop float64, swings []analysis.SwingPoint, fallbackRR float64) float64 {
	best := 0.0
	for _, sp := range swings {
		if direction == Long && sp.Price > entry {
			if best == 0 || sp.Price < best {
				best = sp.Price
			}
		}
		if direction == Short && sp.Price < entry {
			if best == 0 || sp.Price > best {
				best = sp.Price
			}
		}
	}
	if best != 0 {
		return best
	}

	risk := abs(entry - stop)
	if direction == Long {
		return entry + fallbackRR*risk
	}
	return entry - fallbackRR*risk
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
