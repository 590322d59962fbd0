package analysis

import (
	"time"

	"fractal-trader/internal/market"
)

// OrderBlockKind is the direction of the impulse that formed a block.
type OrderBlockKind string

const (
	BullishOB OrderBlockKind = "bullish"
	BearishOB OrderBlockKind = "bearish"
)

// OrderBlock is the last opposing candle before an impulsive move.
// Invalidation is sticky: once price closes fully through the range
// the block never becomes valid again. RetestCount counts bars whose
// range re-entered the block without invalidating it.
type OrderBlock struct {
	Index       int            `json:"index"`
	Timestamp   time.Time      `json:"timestamp"`
	High        float64        `json:"high"`
	Low         float64        `json:"low"`
	Kind        OrderBlockKind `json:"kind"`
	Invalidated bool           `json:"invalidated"`
	RetestCount int            `json:"retest_count"`
}

// OrderBlockConfig tunes impulse sensitivity and anchor search depth.
type OrderBlockConfig struct {
	MinImpulsePercent float64 `json:"min_impulse_percent"`
	ImpulseLookback   int     `json:"impulse_lookback"`
}

// DefaultOrderBlockConfig mirrors the production tuning for 1h bars.
func DefaultOrderBlockConfig() OrderBlockConfig {
	return OrderBlockConfig{
		MinImpulsePercent: 1.5,
		ImpulseLookback:   3,
	}
}

// FindOrderBlocks scans for close-to-close impulses exceeding the
// configured percentage over the lookback and anchors each block at
// the last pre-impulse candle whose close direction opposes the move.
// Invalidation and retests are evaluated over every subsequent bar.
func FindOrderBlocks(candles []market.Candle, cfg OrderBlockConfig) []OrderBlock {
	k := cfg.ImpulseLookback
	if k <= 0 || len(candles) < k+2 {
		return nil
	}

	var blocks []OrderBlock
	claimed := make(map[int]bool)

	for i := k; i < len(candles); i++ {
		base := candles[i-k].Close
		if base == 0 {
			continue
		}
		move := (candles[i].Close - base) / base * 100

		if move >= cfg.MinImpulsePercent {
			if ob, ok := anchorBlock(candles, i-k, BullishOB, claimed); ok {
				trackBlock(candles, &ob)
				blocks = append(blocks, ob)
			}
		} else if move <= -cfg.MinImpulsePercent {
			if ob, ok := anchorBlock(candles, i-k, BearishOB, claimed); ok {
				trackBlock(candles, &ob)
				blocks = append(blocks, ob)
			}
		}
	}
	return blocks
}

// anchorBlock walks backwards from the impulse start looking for the
// nearest candle that closed against the impulse direction.
func anchorBlock(candles []market.Candle, start int, kind OrderBlockKind, claimed map[int]bool) (OrderBlock, bool) {
	for i := start; i >= 0 && i >= start-2; i-- {
		c := candles[i]
		opposes := false
		if kind == BullishOB {
			opposes = c.Close < c.Open
		} else {
			opposes = c.Close > c.Open
		}
		if !opposes || claimed[i] {
			continue
		}
		claimed[i] = true
		return OrderBlock{
			Index:     i,
			Timestamp: c.Timestamp,
			High:      c.High,
			Low:       c.Low,
			Kind:      kind,
		}, true
	}
	return OrderBlock{}, false
}

// trackBlock replays bars after formation to accumulate retests and
// detect invalidation. A bullish block dies on a close below its low,
// a bearish block on a close above its high.
func trackBlock(candles []market.Candle, ob *OrderBlock) {
	for i := ob.Index + 1; i < len(candles); i++ {
		c := candles[i]

		if ob.Kind == BullishOB && c.Close < ob.Low {
			ob.Invalidated = true
			return
		}
		if ob.Kind == BearishOB && c.Close > ob.High {
			ob.Invalidated = true
			return
		}

		if c.Low <= ob.High && c.High >= ob.Low {
			ob.RetestCount++
		}
	}
}

// ActiveBlocks filters to blocks still valid and younger than maxAge
// bars relative to the end of the series.
func ActiveBlocks(blocks []OrderBlock, seriesLen, maxAgeBars int) []OrderBlock {
	var out []OrderBlock
	for _, ob := range blocks {
		if ob.Invalidated {
			continue
		}
		if maxAgeBars > 0 && seriesLen-1-ob.Index > maxAgeBars {
			continue
		}
		out = append(out, ob)
	}
	return out
}
