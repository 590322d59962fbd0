package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"fractal-trader/internal/state"
	"fractal-trader/internal/trader"
)

// balance fetches the current account value, falling back to the
// recorded starting balance when the venue is unreachable.
func (s *Server) balance(ctx context.Context) float64 {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	v, err := s.venue.AccountValue(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("account value unavailable, using starting balance")
		return s.store.StartingBalance()
	}
	return v
}

func (s *Server) handleStatus(c *gin.Context) {
	tripped, reason, trades := s.breaker.Status()
	positions := s.store.Positions()

	successResponse(c, gin.H{
		"venue":            s.profile.Name,
		"real_funds":       s.profile.RealFunds,
		"strategy":         s.strategyName,
		"balance":          s.balance(c.Request.Context()),
		"starting_balance": s.store.StartingBalance(),
		"open_positions":   len(positions),
		"trades_today":     trades,
		"breaker_tripped":  tripped,
		"breaker_reason":   reason,
		"clients":          s.hub.ClientCount(),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions := s.store.Positions()

	out := make([]state.Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	successResponse(c, out)
}

// handleTrades returns the trade history, newest first. An optional
// status query filters open or closed rows.
func (s *Server) handleTrades(c *gin.Context) {
	status := c.Query("status")
	if status != "" && status != state.StatusOpen && status != state.StatusClosed {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "status must be open or closed",
		})
		return
	}

	history := s.store.History()
	out := make([]state.Trade, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if status != "" && history[i].Status != status {
			continue
		}
		out = append(out, history[i])
	}

	successResponse(c, out)
}

func (s *Server) handlePerformance(c *gin.Context) {
	summary := trader.Summarize(
		s.store.Snapshot(),
		s.profile.Name,
		s.strategyName,
		s.balance(c.Request.Context()),
	)

	successResponse(c, gin.H{
		"summary":  summary,
		"win_rate": summary.WinRate(),
	})
}

func (s *Server) handleBreaker(c *gin.Context) {
	tripped, reason, trades := s.breaker.Status()
	successResponse(c, gin.H{
		"tripped":            tripped,
		"reason":             reason,
		"trades_today":       trades,
		"max_daily_trades":   s.profile.MaxDailyTrades,
		"max_daily_drawdown": s.profile.MaxDailyDrawdown,
	})
}
