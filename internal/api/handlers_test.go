package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fractal-trader/internal/circuit"
	"fractal-trader/internal/state"
	"fractal-trader/internal/venue"
)

func testServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.SetStartingBalance(100000); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	profile := venue.PaperProfile()
	breaker := circuit.New(circuit.Limits{
		MaxDailyDrawdown: profile.MaxDailyDrawdown,
		MaxDailyTrades:   profile.MaxDailyTrades,
	}, nil)

	s := NewServer(DefaultConfig(), Deps{
		Store:        store,
		Breaker:      breaker,
		Venue:        venue.NewPaperVenue(100000, 1),
		Profile:      profile,
		StrategyName: "liquidity_sweep",
		Logger:       zerolog.Nop(),
	})
	t.Cleanup(func() { s.hub.Close() })
	return s, store
}

func doGET(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(w, req)

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return w, body
}

func openFixture(t *testing.T, store *state.Store) {
	t.Helper()
	err := store.OpenPosition(state.Position{
		Symbol:     "BTC",
		Size:       0.5,
		EntryPrice: 64000,
		StopLoss:   62000,
		TakeProfit: 68000,
		Direction:  1,
		OpenedAt:   time.Now(),
	}, state.Trade{
		ID:         state.NewTradeID(),
		Timestamp:  time.Now(),
		Symbol:     "BTC",
		Direction:  1,
		Size:       0.5,
		EntryPrice: 64000,
		Confidence: 75,
		Status:     state.StatusOpen,
	})
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	w, body := doGET(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status string
	json.Unmarshal(body["status"], &status)
	if status != "healthy" {
		t.Errorf("expected healthy, got %q", status)
	}
}

func TestStatus(t *testing.T) {
	s, store := testServer(t)
	openFixture(t, store)

	w, body := doGET(t, s, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var data struct {
		Venue          string  `json:"venue"`
		RealFunds      bool    `json:"real_funds"`
		Strategy       string  `json:"strategy"`
		OpenPositions  int     `json:"open_positions"`
		Starting       float64 `json:"starting_balance"`
		BreakerTripped bool    `json:"breaker_tripped"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	if data.Venue != "paper" || data.RealFunds {
		t.Errorf("expected simulated paper venue, got %+v", data)
	}
	if data.OpenPositions != 1 {
		t.Errorf("expected 1 open position, got %d", data.OpenPositions)
	}
	if data.Starting != 100000 {
		t.Errorf("expected starting balance 100000, got %v", data.Starting)
	}
	if data.BreakerTripped {
		t.Error("breaker should not be tripped")
	}
}

func TestPositions(t *testing.T) {
	s, store := testServer(t)
	openFixture(t, store)

	_, body := doGET(t, s, "/api/positions")
	var positions []state.Position
	if err := json.Unmarshal(body["data"], &positions); err != nil {
		t.Fatalf("decode positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "BTC" {
		t.Fatalf("expected one BTC position, got %+v", positions)
	}
	if positions[0].StopLoss != 62000 {
		t.Errorf("expected stop 62000, got %v", positions[0].StopLoss)
	}
}

func TestTradesFilter(t *testing.T) {
	s, store := testServer(t)
	openFixture(t, store)
	if err := store.ClosePosition("BTC", 68000, 2000, state.CloseTakeProfit); err != nil {
		t.Fatalf("close: %v", err)
	}
	openFixture(t, store)

	_, body := doGET(t, s, "/api/trades?status=closed")
	var trades []state.Trade
	if err := json.Unmarshal(body["data"], &trades); err != nil {
		t.Fatalf("decode trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Status != state.StatusClosed {
		t.Fatalf("expected one closed trade, got %+v", trades)
	}
	if trades[0].PnL == nil || *trades[0].PnL != 2000 {
		t.Errorf("expected pnl 2000, got %+v", trades[0].PnL)
	}

	w, _ := doGET(t, s, "/api/trades?status=bogus")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad status filter, got %d", w.Code)
	}
}

func TestPerformance(t *testing.T) {
	s, store := testServer(t)
	openFixture(t, store)
	if err := store.ClosePosition("BTC", 68000, 2000, state.CloseTakeProfit); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, body := doGET(t, s, "/api/performance")
	var data struct {
		Summary struct {
			ClosedTrades int     `json:"closed_trades"`
			Wins         int     `json:"wins"`
			RealizedPnL  float64 `json:"realized_pnl"`
		} `json:"summary"`
		WinRate float64 `json:"win_rate"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode performance: %v", err)
	}
	if data.Summary.ClosedTrades != 1 || data.Summary.Wins != 1 {
		t.Errorf("expected one winning closed trade, got %+v", data.Summary)
	}
	if data.Summary.RealizedPnL != 2000 {
		t.Errorf("expected realized pnl 2000, got %v", data.Summary.RealizedPnL)
	}
	if data.WinRate != 1 {
		t.Errorf("expected win rate 1, got %v", data.WinRate)
	}
}

func TestBreakerEndpoint(t *testing.T) {
	s, _ := testServer(t)

	_, body := doGET(t, s, "/api/breaker")
	var data struct {
		Tripped        bool `json:"tripped"`
		MaxDailyTrades int  `json:"max_daily_trades"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode breaker: %v", err)
	}
	if data.Tripped {
		t.Error("fresh breaker should not be tripped")
	}
	if data.MaxDailyTrades != s.profile.MaxDailyTrades {
		t.Errorf("expected limit %d, got %d", s.profile.MaxDailyTrades, data.MaxDailyTrades)
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	s, _ := testServer(t)

	_, body := doGET(t, s, "/api/strategies")
	var data struct {
		Active     string   `json:"active"`
		Registered []string `json:"registered"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode strategies: %v", err)
	}
	if data.Active != "liquidity_sweep" {
		t.Errorf("expected active liquidity_sweep, got %q", data.Active)
	}
	if len(data.Registered) != 3 {
		t.Errorf("expected 3 registered strategies, got %v", data.Registered)
	}
}
