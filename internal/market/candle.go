package market

import (
	"errors"
	"sort"
	"time"
)

// Candle represents a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

var ErrEmptySeries = errors.New("empty candle series")

// Normalize sorts candles ascending by timestamp and drops duplicates,
// keeping the last candle seen for a given timestamp. Detectors assume
// ascending input; fetchers call this before handing data over.
func Normalize(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:1]
	for _, c := range sorted[1:] {
		if c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// TrueRange returns the true range of candle i given its predecessor.
func TrueRange(prev, cur Candle) float64 {
	tr := cur.High - cur.Low
	if d := abs(cur.High - prev.Close); d > tr {
		tr = d
	}
	if d := abs(cur.Low - prev.Close); d > tr {
		tr = d
	}
	return tr
}

// ATR returns the average true range over the last `period` bars.
// Returns 0 when there is not enough history.
func ATR(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += TrueRange(candles[i-1], candles[i])
	}
	return sum / float64(period)
}

// BaselineATR returns a longer-horizon ATR used as the volatility
// reference for position sizing. Falls back to the short ATR when the
// series is too short for the baseline period.
func BaselineATR(candles []Candle, period, baselinePeriod int) float64 {
	if baseline := ATR(candles, baselinePeriod); baseline > 0 {
		return baseline
	}
	return ATR(candles, period)
}

// AverageVolume returns the mean volume over the last `period` bars,
// excluding the final bar (the one usually being tested for a spike).
func AverageVolume(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period - 1; i < len(candles)-1; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
