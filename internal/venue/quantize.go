package venue

import (
	"github.com/shopspring/decimal"
)

// Instrument spec: price tick and size lot the venue accepts.
type Instrument struct {
	TickSize float64 `json:"tick_size"`
	LotSize  float64 `json:"lot_size"`
}

// instruments holds the per-symbol specs for the supported universe.
// Unknown symbols fall back to defaultInstrument.
var instruments = map[string]Instrument{
	"BTC":  {TickSize: 1, LotSize: 0.001},
	"ETH":  {TickSize: 0.1, LotSize: 0.001},
	"SOL":  {TickSize: 0.01, LotSize: 0.1},
	"AVAX": {TickSize: 0.01, LotSize: 0.1},
	"DOGE": {TickSize: 0.00001, LotSize: 1},
}

var defaultInstrument = Instrument{TickSize: 0.01, LotSize: 0.001}

// InstrumentFor returns the instrument spec for a symbol.
func InstrumentFor(symbol string) Instrument {
	if spec, ok := instruments[symbol]; ok {
		return spec
	}
	return defaultInstrument
}

// QuantizePrice snaps a price down to the symbol's tick grid.
// Decimal arithmetic avoids float residue like 100.10000000001
// that venues reject.
func QuantizePrice(symbol string, price float64) float64 {
	return quantize(price, InstrumentFor(symbol).TickSize)
}

// QuantizeSize snaps an order size down to the symbol's lot grid.
func QuantizeSize(symbol string, size float64) float64 {
	return quantize(size, InstrumentFor(symbol).LotSize)
}

func quantize(value, step float64) float64 {
	if step <= 0 || value <= 0 {
		return 0
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	q, _ := v.Div(s).Floor().Mul(s).Float64()
	return q
}
