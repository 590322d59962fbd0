package trader

import (
	"context"

	"fractal-trader/internal/state"
)

// Summary aggregates the session's results for shutdown logging and
// the dashboard.
type Summary struct {
	Venue           string   `json:"venue"`
	Strategy        string   `json:"strategy"`
	TotalTrades     int      `json:"total_trades"`
	ClosedTrades    int      `json:"closed_trades"`
	Wins            int      `json:"wins"`
	Losses          int      `json:"losses"`
	RealizedPnL     float64  `json:"realized_pnl"`
	ProfitFactor    float64  `json:"profit_factor"`
	MaxDrawdown     float64  `json:"max_drawdown"`
	StartingBalance float64  `json:"starting_balance"`
	FinalBalance    float64  `json:"final_balance"`
	OpenSymbols     []string `json:"open_symbols"`
}

// WinRate returns wins over closed trades, 0 when none closed.
func (s Summary) WinRate() float64 {
	if s.ClosedTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.ClosedTrades)
}

// Summarize builds a summary from the current persisted state.
func Summarize(snapshot state.TradingState, venueName, strategyName string, finalBalance float64) Summary {
	s := Summary{
		Venue:           venueName,
		Strategy:        strategyName,
		TotalTrades:     len(snapshot.TradeHistory),
		StartingBalance: snapshot.StartingBalance,
		FinalBalance:    finalBalance,
	}
	var grossWin, grossLoss float64
	var equity, peak, worst float64
	for _, tr := range snapshot.TradeHistory {
		if tr.Status != state.StatusClosed {
			continue
		}
		s.ClosedTrades++
		if tr.PnL != nil {
			s.RealizedPnL += *tr.PnL
			if *tr.PnL > 0 {
				s.Wins++
				grossWin += *tr.PnL
			} else {
				s.Losses++
				grossLoss += -*tr.PnL
			}
			equity += *tr.PnL
			if equity > peak {
				peak = equity
			}
			if dd := peak - equity; dd > worst {
				worst = dd
			}
		}
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}
	s.MaxDrawdown = worst
	for symbol := range snapshot.OpenPositions {
		s.OpenSymbols = append(s.OpenSymbols, symbol)
	}
	return s
}

// Summary returns the loop's current session summary.
func (l *Loop) Summary(ctx context.Context) Summary {
	balance, err := l.venue.AccountValue(ctx)
	if err != nil {
		balance = 0
	}
	return Summarize(l.store.Snapshot(), l.profile.Name, l.strat.Name(), balance)
}

func (l *Loop) logSummary(ctx context.Context) {
	s := l.Summary(ctx)
	if l.bus != nil {
		l.bus.PublishSessionSummary(s.ClosedTrades, s.Wins, s.Losses, s.RealizedPnL, s.FinalBalance)
	}
	l.logger.Info().
		Int("trades", s.TotalTrades).
		Int("closed", s.ClosedTrades).
		Int("wins", s.Wins).
		Int("losses", s.Losses).
		Float64("realized_pnl", s.RealizedPnL).
		Float64("profit_factor", s.ProfitFactor).
		Float64("max_drawdown", s.MaxDrawdown).
		Float64("starting_balance", s.StartingBalance).
		Float64("final_balance", s.FinalBalance).
		Strs("open_positions", s.OpenSymbols).
		Msg("session summary")
}
