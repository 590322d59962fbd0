// Package risk sizes positions under hard portfolio caps.
package risk

import (
	"fmt"
)

// Parameters bound how much of the portfolio a single trade may risk.
type Parameters struct {
	BaseRiskPercent    float64 `json:"base_risk_percent"`
	MaxPositionPercent float64 `json:"max_position_percent"`
	MinConfidence      int     `json:"min_confidence"`
}

// DefaultParameters returns the live-trading risk tuning.
func DefaultParameters() Parameters {
	return Parameters{
		BaseRiskPercent:    0.02,
		MaxPositionPercent: 0.05,
		MinConfidence:      50,
	}
}

// Validate rejects account-destroying settings before the loop starts.
func (p Parameters) Validate() error {
	if p.BaseRiskPercent <= 0 || p.BaseRiskPercent > 0.05 {
		return fmt.Errorf("base_risk_percent %.4f outside (0, 0.05]", p.BaseRiskPercent)
	}
	if p.MaxPositionPercent <= 0 || p.MaxPositionPercent > 0.1 {
		return fmt.Errorf("max_position_percent %.4f outside (0, 0.1]", p.MaxPositionPercent)
	}
	if p.MinConfidence < 0 || p.MinConfidence > 100 {
		return fmt.Errorf("min_confidence %d outside [0, 100]", p.MinConfidence)
	}
	return nil
}

// SizeInput carries everything the sizer considers for one trade.
type SizeInput struct {
	PortfolioValue    float64
	EntryPrice        float64
	StopLossPrice     float64
	Confidence        int
	CurrentATR        float64
	BaselineATR       float64
	ConsecutiveWins   int
	ConsecutiveLosses int
}

// PositionSize returns the trade size in units of the instrument, or
// 0 when no trade should be taken. Risk capital scales down with
// elevated volatility and with an active losing streak, and the
// resulting notional never exceeds the max-position cap.
func PositionSize(in SizeInput, params Parameters) float64 {
	if in.Confidence < params.MinConfidence {
		return 0
	}
	if in.PortfolioValue <= 0 || in.EntryPrice <= 0 {
		return 0
	}

	stopDistance := in.EntryPrice - in.StopLossPrice
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	if stopDistance == 0 {
		return 0
	}

	riskAmount := in.PortfolioValue * params.BaseRiskPercent

	// Inverse volatility: in rough conditions risk less per trade.
	if in.BaselineATR > 0 && in.CurrentATR > in.BaselineATR {
		riskAmount *= in.BaselineATR / in.CurrentATR
	}

	riskAmount *= streakFactor(in.ConsecutiveLosses)

	size := riskAmount / stopDistance
	maxSize := in.PortfolioValue * params.MaxPositionPercent / in.EntryPrice
	if size > maxSize {
		size = maxSize
	}
	if size < 0 {
		return 0
	}
	return size
}

// streakFactor halves risk after three straight losses and quarters
// it after five. Wins do not scale risk back up.
func streakFactor(losses int) float64 {
	switch {
	case losses >= 5:
		return 0.25
	case losses >= 3:
		return 0.5
	default:
		return 1.0
	}
}
