package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"fractal-trader/internal/market"
)

// PaperVenue simulates fills in memory with a random-walk price per
// symbol. It implements Venue and MarketData so the trading loop and
// backtests run without network access or real funds.
type PaperVenue struct {
	mu        sync.Mutex
	rng       *rand.Rand
	balance   float64
	prices    map[string]float64
	positions map[string]PositionSnapshot
	now       func() time.Time
}

var (
	_ Venue      = (*PaperVenue)(nil)
	_ MarketData = (*PaperVenue)(nil)
)

// NewPaperVenue seeds the simulation with a starting balance and
// reference prices.
func NewPaperVenue(balance float64, seed int64) *PaperVenue {
	return &PaperVenue{
		rng:     rand.New(rand.NewSource(seed)),
		balance: balance,
		prices: map[string]float64{
			"BTC":  65000,
			"ETH":  3200,
			"SOL":  140,
			"AVAX": 35,
			"DOGE": 0.12,
		},
		positions: make(map[string]PositionSnapshot),
		now:       time.Now,
	}
}

// SetPrice pins a symbol's price, mostly for tests.
func (p *PaperVenue) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetClock injects a clock for tests.
func (p *PaperVenue) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = clock
}

// SeedPosition plants a venue-side position, used to exercise startup
// reconciliation.
func (p *PaperVenue) SeedPosition(snap PositionSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[snap.Symbol] = snap
}

func (p *PaperVenue) AccountValue(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// SetAccountValue overrides the simulated balance.
func (p *PaperVenue) SetAccountValue(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = v
}

func (p *PaperVenue) OpenPositions(context.Context) (map[string]PositionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]PositionSnapshot, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out, nil
}

func (p *PaperVenue) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}
	return price, nil
}

// PlaceOrder fills instantly at the limit price. Reduce-only orders
// shrink or remove the tracked position, entries replace it.
func (p *PaperVenue) PlaceOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Size <= 0 || req.LimitPrice <= 0 {
		return OrderResult{}, fmt.Errorf("invalid order: size %v price %v", req.Size, req.LimitPrice)
	}

	direction := -1
	if req.IsBuy {
		direction = 1
	}

	if req.ReduceOnly {
		pos, ok := p.positions[req.Symbol]
		if !ok {
			return OrderResult{}, fmt.Errorf("invalid reduce-only order: no position on %s", req.Symbol)
		}
		closed := req.Size
		if closed >= pos.Size {
			closed = pos.Size
			delete(p.positions, req.Symbol)
		} else {
			pos.Size -= closed
			p.positions[req.Symbol] = pos
		}
		p.balance += float64(pos.Direction) * closed * (req.LimitPrice - pos.EntryPrice)
	} else {
		p.positions[req.Symbol] = PositionSnapshot{
			Symbol:     req.Symbol,
			Size:       req.Size,
			EntryPrice: req.LimitPrice,
			Direction:  direction,
		}
	}

	return OrderResult{
		OrderID:   uuid.NewString(),
		Status:    "FILLED",
		FillPrice: req.LimitPrice,
		Timestamp: p.now().UTC(),
	}, nil
}

// FetchCandles synthesizes a random-walk series ending at the current
// reference price.
func (p *PaperVenue) FetchCandles(_ context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if !validTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeframe, timeframe)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}
	if limit <= 0 {
		limit = 100
	}

	step := timeframeDuration(timeframe)
	end := p.now().UTC().Truncate(step)

	candles := make([]market.Candle, limit)
	price := base
	for i := limit - 1; i >= 0; i-- {
		drift := price * 0.002 * (p.rng.Float64()*2 - 1)
		open := price - drift
		high := maxF(open, price) * (1 + p.rng.Float64()*0.001)
		low := minF(open, price) * (1 - p.rng.Float64()*0.001)
		candles[i] = market.Candle{
			Timestamp: end.Add(-time.Duration(limit-1-i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1000 + p.rng.Float64()*500,
		}
		price = open
	}
	return candles, nil
}

func timeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
