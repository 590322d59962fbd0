// Package state persists positions and trade history across process
// restarts: atomic saves with a rotating backup chain, a lock file
// against concurrent writers, and corruption recovery on load.
package state

import (
	"time"

	"github.com/google/uuid"

	"fractal-trader/internal/strategy"
)

// Position is an open exposure on one symbol. At most one position
// per symbol exists at a time.
type Position struct {
	Symbol         string           `json:"symbol"`
	Size           float64          `json:"size"`
	EntryPrice     float64          `json:"entry_price"`
	StopLoss       float64          `json:"stop_loss"`
	TakeProfit     float64          `json:"take_profit"`
	Direction      int              `json:"direction"`
	OpenedAt       time.Time        `json:"opened_at"`
	UnrealizedPnL  float64          `json:"unrealized_pnl"`
	Signal         *strategy.Signal `json:"signal,omitempty"`
	NeedsAttention bool             `json:"needs_attention,omitempty"`
}

// Trade close reasons.
const (
	CloseStopLoss   = "stop_loss"
	CloseTakeProfit = "take_profit"
	CloseManual     = "manual"
)

// Trade statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Trade is one row of append-only history. A trade transitions from
// open to closed exactly once.
type Trade struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	Direction   int       `json:"direction"`
	Size        float64   `json:"size"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   *float64  `json:"exit_price,omitempty"`
	PnL         *float64  `json:"pnl,omitempty"`
	Confidence  int       `json:"confidence"`
	Status      string    `json:"status"`
	CloseReason string    `json:"close_reason,omitempty"`
}

// NewTradeID returns a fresh unique trade identifier.
func NewTradeID() string {
	return uuid.NewString()
}

// TradingState is the aggregate persisted document.
type TradingState struct {
	OpenPositions   map[string]Position `json:"open_positions"`
	TradeHistory    []Trade             `json:"trade_history"`
	StartingBalance float64             `json:"starting_balance"`
	SessionStart    time.Time           `json:"session_start"`
	LastUpdated     time.Time           `json:"last_updated"`
	Metadata        map[string]string   `json:"metadata,omitempty"`
}

func newTradingState(now time.Time) TradingState {
	return TradingState{
		OpenPositions: make(map[string]Position),
		SessionStart:  now,
		LastUpdated:   now,
		Metadata:      make(map[string]string),
	}
}

func (s TradingState) clone() TradingState {
	out := s
	out.OpenPositions = make(map[string]Position, len(s.OpenPositions))
	for k, v := range s.OpenPositions {
		if v.Signal != nil {
			sig := *v.Signal
			if sig.Metadata != nil {
				md := make(map[string]string, len(sig.Metadata))
				for mk, mv := range sig.Metadata {
					md[mk] = mv
				}
				sig.Metadata = md
			}
			v.Signal = &sig
		}
		out.OpenPositions[k] = v
	}
	out.TradeHistory = make([]Trade, len(s.TradeHistory))
	for i, tr := range s.TradeHistory {
		if tr.ExitPrice != nil {
			ep := *tr.ExitPrice
			tr.ExitPrice = &ep
		}
		if tr.PnL != nil {
			p := *tr.PnL
			tr.PnL = &p
		}
		out.TradeHistory[i] = tr
	}
	out.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return out
}
