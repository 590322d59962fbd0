// Package venue defines the trading venue and market data contracts
// plus the live REST and paper implementations.
package venue

import (
	"context"
	"time"

	"fractal-trader/internal/market"
)

// MarketData supplies candle history. Implementations return series
// sorted ascending by time with duplicates removed.
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error)
}

// PositionSnapshot is the venue's view of an open position.
type PositionSnapshot struct {
	Symbol     string  `json:"symbol"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	Direction  int     `json:"direction"`
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol      string  `json:"symbol"`
	IsBuy       bool    `json:"is_buy"`
	Size        float64 `json:"size"`
	LimitPrice  float64 `json:"limit_price"`
	TimeInForce string  `json:"time_in_force"`
	ReduceOnly  bool    `json:"reduce_only"`
	ClientID    string  `json:"client_id"`
}

// OrderResult reports the venue's response to an order.
type OrderResult struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	FillPrice float64   `json:"fill_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Venue is the trading side of an exchange.
type Venue interface {
	AccountValue(ctx context.Context) (float64, error)
	OpenPositions(ctx context.Context) (map[string]PositionSnapshot, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Profile selects a venue environment and the safety posture that
// goes with it. Real-funds profiles require an explicit confirmation
// gate before the loop starts.
type Profile struct {
	Name             string  `json:"name"`
	BaseURL          string  `json:"base_url"`
	RealFunds        bool    `json:"real_funds"`
	Simulated        bool    `json:"simulated"`
	MaxDailyDrawdown float64 `json:"max_daily_drawdown"`
	MaxDailyTrades   int     `json:"max_daily_trades"`
	BackupCount      int     `json:"backup_count"`
}

// TestnetProfile is the default development environment.
func TestnetProfile() Profile {
	return Profile{
		Name:             "testnet",
		BaseURL:          "https://testnet.exchange-gateway.io",
		MaxDailyDrawdown: 0.20,
		MaxDailyTrades:   50,
		BackupCount:      5,
	}
}

// MainnetProfile trades real funds under tighter breakers.
func MainnetProfile() Profile {
	return Profile{
		Name:             "mainnet",
		BaseURL:          "https://api.exchange-gateway.io",
		RealFunds:        true,
		MaxDailyDrawdown: 0.10,
		MaxDailyTrades:   20,
		BackupCount:      10,
	}
}

// PaperProfile runs fully simulated fills with no network I/O.
func PaperProfile() Profile {
	return Profile{
		Name:             "paper",
		Simulated:        true,
		MaxDailyDrawdown: 0.20,
		MaxDailyTrades:   50,
		BackupCount:      5,
	}
}

// ProfileByName resolves a profile from configuration.
func ProfileByName(name string) (Profile, bool) {
	switch name {
	case "testnet":
		return TestnetProfile(), true
	case "mainnet":
		return MainnetProfile(), true
	case "paper":
		return PaperProfile(), true
	default:
		return Profile{}, false
	}
}
