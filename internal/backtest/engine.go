// Package backtest replays a strategy over historical candles with
// the same sizing and exit rules the live loop uses.
package backtest

import (
	"math"
	"time"

	"fractal-trader/internal/market"
	"fractal-trader/internal/risk"
	"fractal-trader/internal/strategy"
)

// minHistory bars are consumed before the first evaluation so the
// detectors have context.
const minHistory = 50

// Engine runs historical strategy validation.
type Engine struct {
	initialCapital float64
	commission     float64
	params         risk.Parameters
}

// Trade is one completed simulated round trip.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Direction  int       `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	Confidence int       `json:"confidence"`
	ExitReason string    `json:"exit_reason"`
}

// EquityPoint is the account balance after a closed trade.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result aggregates backtest performance.
type Result struct {
	TotalTrades   int           `json:"total_trades"`
	WinningTrades int           `json:"winning_trades"`
	LosingTrades  int           `json:"losing_trades"`
	WinRate       float64       `json:"win_rate"`
	NetProfit     float64       `json:"net_profit"`
	ROI           float64       `json:"roi"`
	ProfitFactor  float64       `json:"profit_factor"`
	MaxDrawdown   float64       `json:"max_drawdown"`
	SharpeRatio   float64       `json:"sharpe_ratio"`
	FinalEquity   float64       `json:"final_equity"`
	Trades        []Trade       `json:"trades"`
	EquityCurve   []EquityPoint `json:"equity_curve"`
}

// NewEngine builds a backtest engine. Commission is per side as a
// fraction of notional.
func NewEngine(initialCapital, commission float64, params risk.Parameters) *Engine {
	return &Engine{
		initialCapital: initialCapital,
		commission:     commission,
		params:         params,
	}
}

// Run walks the series bar by bar: at most one open simulated
// position, exits checked before new entries, sizing identical to the
// live loop.
func (e *Engine) Run(candles []market.Candle, strat strategy.Strategy) *Result {
	result := &Result{}
	equity := e.initialCapital

	var open *Trade

	for i := minHistory; i < len(candles); i++ {
		bar := candles[i]

		if open != nil {
			if reason, exitPrice := e.checkExit(open, bar); reason != "" {
				equity = e.closeTrade(result, open, bar.Timestamp, exitPrice, reason, equity)
				open = nil
			}
		}

		if open != nil {
			continue
		}

		// Evaluate on the series as known at this bar.
		window := candles[:i+1]
		sig, ok := latest(strat.GenerateSignals(window))
		if !ok || !sig.Timestamp.Equal(bar.Timestamp) {
			continue
		}

		size := risk.PositionSize(risk.SizeInput{
			PortfolioValue: equity,
			EntryPrice:     sig.EntryPrice,
			StopLossPrice:  sig.StopLoss,
			Confidence:     sig.Confidence,
			CurrentATR:     market.ATR(window, 14),
			BaselineATR:    market.BaselineATR(window, 14, 50),
		}, e.params)
		if size <= 0 {
			continue
		}

		open = &Trade{
			EntryTime:  bar.Timestamp,
			Direction:  sig.Direction,
			EntryPrice: sig.EntryPrice,
			Size:       size,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			Confidence: sig.Confidence,
		}
	}

	if open != nil {
		last := candles[len(candles)-1]
		equity = e.closeTrade(result, open, last.Timestamp, last.Close, "backtest_end", equity)
	}

	e.finalize(result, equity)
	return result
}

// checkExit tests the bar's range against stop and target,
// direction-aware. The stop wins when both sit inside one bar.
func (e *Engine) checkExit(t *Trade, bar market.Candle) (string, float64) {
	if t.Direction == strategy.Long {
		if bar.Low <= t.StopLoss {
			return "stop_loss", t.StopLoss
		}
		if bar.High >= t.TakeProfit {
			return "take_profit", t.TakeProfit
		}
		return "", 0
	}
	if bar.High >= t.StopLoss {
		return "stop_loss", t.StopLoss
	}
	if bar.Low <= t.TakeProfit {
		return "take_profit", t.TakeProfit
	}
	return "", 0
}

func (e *Engine) closeTrade(result *Result, t *Trade, ts time.Time, exitPrice float64, reason string, equity float64) float64 {
	t.ExitTime = ts
	t.ExitPrice = exitPrice
	t.ExitReason = reason

	gross := float64(t.Direction) * t.Size * (exitPrice - t.EntryPrice)
	fees := e.commission * t.Size * (t.EntryPrice + exitPrice)
	t.PnL = gross - fees
	t.PnLPercent = float64(t.Direction) * (exitPrice - t.EntryPrice) / t.EntryPrice * 100

	equity += t.PnL
	result.Trades = append(result.Trades, *t)
	result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: ts, Equity: equity})
	return equity
}

func (e *Engine) finalize(result *Result, equity float64) {
	result.TotalTrades = len(result.Trades)
	result.FinalEquity = equity
	result.NetProfit = equity - e.initialCapital
	if e.initialCapital > 0 {
		result.ROI = result.NetProfit / e.initialCapital * 100
	}

	var profit, loss float64
	for _, t := range result.Trades {
		if t.PnL > 0 {
			result.WinningTrades++
			profit += t.PnL
		} else {
			result.LosingTrades++
			loss += -t.PnL
		}
	}
	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	}
	if loss > 0 {
		result.ProfitFactor = profit / loss
	}
	result.MaxDrawdown = maxDrawdown(e.initialCapital, result.EquityCurve)
	result.SharpeRatio = sharpe(result.Trades)
}

func maxDrawdown(initial float64, curve []EquityPoint) float64 {
	peak := initial
	worst := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe is the per-trade return mean over its standard deviation,
// zero risk-free rate.
func sharpe(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnLPercent
	}
	mean := sum / float64(len(trades))

	var variance float64
	for _, t := range trades {
		d := t.PnLPercent - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(trades)))
	if std == 0 {
		return 0
	}
	return mean / std
}

func latest(signals []strategy.Signal) (strategy.Signal, bool) {
	if len(signals) == 0 {
		return strategy.Signal{}, false
	}
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Timestamp.After(best.Timestamp) {
			best = s
		}
	}
	return best, true
}
