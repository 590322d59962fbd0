package strategy

import (
	"fmt"

	"fractal-trader/internal/analysis"
	"fractal-trader/internal/confidence"
	"fractal-trader/internal/market"
)

const NameBOSOrderBlock = "bos_orderblock"

// BOSOrderBlock trades continuation: a break of structure in the
// trend direction followed by a retest of the order block that
// launched the breaking move.
type BOSOrderBlock struct {
	cfg Config
}

func NewBOSOrderBlock(cfg Config) *BOSOrderBlock {
	return &BOSOrderBlock{cfg: cfg}
}

func (b *BOSOrderBlock) Name() string { return NameBOSOrderBlock }

func (b *BOSOrderBlock) GenerateSignals(candles []market.Candle) []Signal {
	sc := buildContext(candles, b.cfg)

	blocks := analysis.FindOrderBlocks(candles, analysis.OrderBlockConfig{
		MinImpulsePercent: b.cfg.MinImpulsePercent,
		ImpulseLookback:   b.cfg.ImpulseLookback,
	})

	var signals []Signal
	for _, brk := range sc.breaks {
		bk := brk
		guard(func() {
			if sig, ok := b.candidate(sc, bk, blocks); ok {
				signals = emit(signals, sig, b.cfg.MinRRRatio)
			}
		})
	}
	return signals
}

// candidate pairs a structure break with the newest same-direction
// order block formed before it, then waits for the first bar after
// the break whose range re-enters the block.
func (b *BOSOrderBlock) candidate(sc seriesContext, brk analysis.StructureBreak, blocks []analysis.OrderBlock) (Signal, bool) {
	direction := Short
	wantKind := analysis.BearishOB
	if brk.Bullish {
		direction = Long
		wantKind = analysis.BullishOB
	}

	var block *analysis.OrderBlock
	for i := range blocks {
		ob := &blocks[i]
		if ob.Kind != wantKind || ob.Invalidated || ob.Index >= brk.Index {
			continue
		}
		if block == nil || ob.Index > block.Index {
			block = ob
		}
	}
	if block == nil {
		return Signal{}, false
	}
	if b.cfg.MaxOBAgeBars > 0 && len(sc.candles)-1-block.Index > b.cfg.MaxOBAgeBars {
		return Signal{}, false
	}

	// Retest: first post-break bar touching the block without closing
	// through it.
	retest := -1
	for i := brk.Index + 1; i < len(sc.candles); i++ {
		c := sc.candles[i]
		if direction == Long && c.Close < block.Low {
			return Signal{}, false
		}
		if direction == Short && c.Close > block.High {
			return Signal{}, false
		}
		if c.Low <= block.High && c.High >= block.Low {
			retest = i
			break
		}
	}
	if retest < 0 {
		return Signal{}, false
	}

	bar := sc.candles[retest]
	entry := bar.Close

	var stop, target float64
	if direction == Long {
		stop = block.Low * (1 - stopBufferPercent/100)
		target = takeProfitLevel(direction, entry, stop, sc.swingHighs, b.cfg.FallbackRR)
	} else {
		stop = block.High * (1 + stopBufferPercent/100)
		target = takeProfitLevel(direction, entry, stop, sc.swingLows, b.cfg.FallbackRR)
	}

	confluences := block.RetestCount
	if confluences > 3 {
		confluences = 3
	}
	// A break launched directly off the block is the cleanest setup.
	clean := brk.Index-block.Index <= b.cfg.ImpulseLookback*2

	score := confidence.Score(sc.factors(direction, confluences, clean), b.cfg.Weights)

	return Signal{
		Direction:  direction,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: score,
		Timestamp:  bar.Timestamp,
		Strategy:   b.Name(),
		Metadata: map[string]string{
			"break_level": fmt.Sprintf("%.8g", brk.Level),
			"block_low":   fmt.Sprintf("%.8g", block.Low),
			"block_high":  fmt.Sprintf("%.8g", block.High),
			"retest_bar":  fmt.Sprintf("%d", retest),
		},
	}, true
}
