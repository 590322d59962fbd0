package backtest

import (
	"testing"
	"time"

	"fractal-trader/internal/market"
	"fractal-trader/internal/risk"
	"fractal-trader/internal/strategy"
)

// scriptedStrategy fires one long signal at a fixed bar timestamp.
type scriptedStrategy struct {
	at     time.Time
	signal strategy.Signal
}

func (s scriptedStrategy) Name() string { return "scripted" }

func (s scriptedStrategy) GenerateSignals(candles []market.Candle) []strategy.Signal {
	last := candles[len(candles)-1]
	if !last.Timestamp.Equal(s.at) {
		return nil
	}
	sig := s.signal
	sig.Timestamp = last.Timestamp
	return []strategy.Signal{sig}
}

func ts(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
}

func series(n int, closeAt map[int]market.Candle) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = market.Candle{Timestamp: ts(i), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}
		if c, ok := closeAt[i]; ok {
			c.Timestamp = ts(i)
			out[i] = c
		}
	}
	return out
}

func TestRunTakeProfit(t *testing.T) {
	// Entry at bar 60, target 104 touched at bar 65.
	candles := series(70, map[int]market.Candle{
		65: {Open: 100, High: 105, Low: 100, Close: 104.5, Volume: 1000},
	})
	strat := scriptedStrategy{
		at: ts(60),
		signal: strategy.Signal{
			Direction: strategy.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 104, Confidence: 80,
		},
	}

	engine := NewEngine(100000, 0, risk.DefaultParameters())
	result := engine.Run(candles, strat)

	if result.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", result.TotalTrades)
	}
	trade := result.Trades[0]
	if trade.ExitReason != "take_profit" || trade.ExitPrice != 104 {
		t.Errorf("expected take-profit exit at 104, got %+v", trade)
	}
	if trade.PnL <= 0 {
		t.Errorf("expected winning trade, got pnl %v", trade.PnL)
	}
	if result.WinRate != 100 {
		t.Errorf("expected 100%% win rate, got %v", result.WinRate)
	}
	if result.FinalEquity <= 100000 {
		t.Errorf("expected equity growth, got %v", result.FinalEquity)
	}
}

func TestRunStopLoss(t *testing.T) {
	candles := series(70, map[int]market.Candle{
		63: {Open: 100, High: 100.5, Low: 97.5, Close: 98.2, Volume: 1000},
	})
	strat := scriptedStrategy{
		at: ts(60),
		signal: strategy.Signal{
			Direction: strategy.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 104, Confidence: 80,
		},
	}

	result := NewEngine(100000, 0, risk.DefaultParameters()).Run(candles, strat)

	if result.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", result.TotalTrades)
	}
	trade := result.Trades[0]
	if trade.ExitReason != "stop_loss" || trade.ExitPrice != 98 {
		t.Errorf("expected stop exit at 98, got %+v", trade)
	}
	if trade.PnL >= 0 {
		t.Errorf("expected losing trade, got pnl %v", trade.PnL)
	}
	if result.MaxDrawdown <= 0 {
		t.Errorf("expected non-zero drawdown, got %v", result.MaxDrawdown)
	}
}

func TestRunOpenTradeClosedAtEnd(t *testing.T) {
	// Neither stop nor target is reached: closed at the final bar.
	candles := series(70, nil)
	strat := scriptedStrategy{
		at: ts(60),
		signal: strategy.Signal{
			Direction: strategy.Long, EntryPrice: 100, StopLoss: 90, TakeProfit: 120, Confidence: 80,
		},
	}

	result := NewEngine(100000, 0, risk.DefaultParameters()).Run(candles, strat)

	if result.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", result.TotalTrades)
	}
	if result.Trades[0].ExitReason != "backtest_end" {
		t.Errorf("expected backtest_end exit, got %s", result.Trades[0].ExitReason)
	}
}

func TestRunLowConfidenceSkipped(t *testing.T) {
	candles := series(70, nil)
	strat := scriptedStrategy{
		at: ts(60),
		signal: strategy.Signal{
			Direction: strategy.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 104, Confidence: 20,
		},
	}

	result := NewEngine(100000, 0, risk.DefaultParameters()).Run(candles, strat)
	if result.TotalTrades != 0 {
		t.Errorf("expected no trades below min confidence, got %d", result.TotalTrades)
	}
}

func TestCommissionReducesPnL(t *testing.T) {
	candles := series(70, map[int]market.Candle{
		65: {Open: 100, High: 105, Low: 100, Close: 104.5, Volume: 1000},
	})
	strat := scriptedStrategy{
		at: ts(60),
		signal: strategy.Signal{
			Direction: strategy.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 104, Confidence: 80,
		},
	}

	free := NewEngine(100000, 0, risk.DefaultParameters()).Run(candles, strat)
	paid := NewEngine(100000, 0.001, risk.DefaultParameters()).Run(candles, strat)

	if paid.NetProfit >= free.NetProfit {
		t.Errorf("expected commission to reduce profit: free %v, paid %v", free.NetProfit, paid.NetProfit)
	}
}
