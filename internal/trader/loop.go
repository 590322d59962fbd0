// Package trader runs the trading loop: monitor open positions, turn
// fresh signals into sized orders, enforce circuit breakers, and keep
// every mutation durable before it counts.
package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fractal-trader/internal/circuit"
	"fractal-trader/internal/events"
	"fractal-trader/internal/market"
	"fractal-trader/internal/risk"
	"fractal-trader/internal/state"
	"fractal-trader/internal/strategy"
	"fractal-trader/internal/venue"
)

// Config tunes one trading loop instance.
type Config struct {
	Symbols            []string      `json:"symbols"`
	Timeframe          string        `json:"timeframe"`
	CandleLimit        int           `json:"candle_limit"`
	Interval           time.Duration `json:"interval"`
	MaxOpenPositions   int           `json:"max_open_positions"`
	LimitOffsetPercent float64       `json:"limit_offset_percent"`
}

// DefaultConfig returns the live defaults for 1h bars.
func DefaultConfig() Config {
	return Config{
		Symbols:            []string{"BTC"},
		Timeframe:          "1h",
		CandleLimit:        200,
		Interval:           60 * time.Second,
		MaxOpenPositions:   3,
		LimitOffsetPercent: 0.1,
	}
}

// Validate rejects configs that cannot run.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("no symbols configured")
	}
	if c.CandleLimit <= 0 {
		return fmt.Errorf("candle_limit %d must be positive", c.CandleLimit)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval %s must be positive", c.Interval)
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions %d must be positive", c.MaxOpenPositions)
	}
	if c.LimitOffsetPercent < 0 || c.LimitOffsetPercent > 5 {
		return fmt.Errorf("limit_offset_percent %.2f outside [0, 5]", c.LimitOffsetPercent)
	}
	return nil
}

// TradeArchiver mirrors trade rows into long-term storage.
type TradeArchiver interface {
	ArchiveTrade(ctx context.Context, tr state.Trade) error
}

// Loop is the top-level stateful driver. Ticks are sequential: one
// tick fully completes, including persistence, before the next runs.
type Loop struct {
	cfg     Config
	profile venue.Profile
	venue   venue.Venue
	data    venue.MarketData
	strat   strategy.Strategy
	store   *state.Store
	breaker *circuit.Breaker
	params  risk.Parameters
	bus     *events.Bus
	archive TradeArchiver
	logger  zerolog.Logger
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	// haltNotified suppresses repeat breaker events while tripped.
	haltNotified bool

	// extraWait delays the next tick after unknown-class errors.
	extraWait time.Duration
}

// Deps wires a loop's collaborators.
type Deps struct {
	Profile venue.Profile
	Venue   venue.Venue
	Data    venue.MarketData
	Strat   strategy.Strategy
	Store   *state.Store
	Breaker *circuit.Breaker
	Params  risk.Parameters
	Bus     *events.Bus   // optional
	Archive TradeArchiver // optional
	Logger  zerolog.Logger
	Clock   func() time.Time
}

// New builds a trading loop. A nil clock uses time.Now.
func New(cfg Config, d Deps) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := d.Params.Validate(); err != nil {
		return nil, err
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Loop{
		cfg:     cfg,
		profile: d.Profile,
		venue:   d.Venue,
		data:    d.Data,
		strat:   d.Strat,
		store:   d.Store,
		breaker: d.Breaker,
		params:  d.Params,
		bus:     d.Bus,
		archive: d.Archive,
		logger:  d.Logger.With().Str("component", "TradingLoop").Str("venue", d.Profile.Name).Logger(),
		now:     clock,
		stopCh:  make(chan struct{}),
	}, nil
}

// Stop requests a cooperative shutdown. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run reconciles against the venue, then ticks until stopped or a
// critical error. State is flushed and a session summary logged on
// every exit path.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Reconcile(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}
	l.seedBreaker()

	if l.store.StartingBalance() == 0 {
		balance, err := l.venue.AccountValue(ctx)
		if err != nil {
			return fmt.Errorf("fetch starting balance: %w", err)
		}
		if err := l.store.SetStartingBalance(balance); err != nil {
			return err
		}
		l.logger.Info().Float64("balance", balance).Msg("session starting balance recorded")
		if balance == 0 && !l.profile.Simulated {
			l.logger.Warn().Msg("venue reports zero balance; consider the paper profile for simulation")
		}
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	defer l.shutdown(ctx)

	for {
		if err := l.Tick(ctx); err != nil {
			if l.bus != nil {
				l.bus.PublishError("trading_loop", err)
			}
			if venue.Classify(err) == venue.ClassCritical {
				l.logger.Error().Err(err).Msg("critical error, stopping loop")
				return err
			}
			l.logger.Warn().Err(err).Msg("tick failed, continuing")
		}

		wait := l.extraWait
		l.extraWait = 0

		select {
		case <-ctx.Done():
			return nil
		case <-l.stopCh:
			return nil
		case <-ticker.C:
			if wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-l.stopCh:
					return nil
				case <-time.After(wait):
				}
			}
		}
	}
}

func (l *Loop) shutdown(ctx context.Context) {
	if err := l.store.Save(); err != nil {
		l.logger.Error().Err(err).Msg("final state flush failed")
	}
	l.logSummary(ctx)
}

// Tick runs one iteration: monitor exits first so a close this tick
// is visible before a new entry is considered, then evaluate entries
// unless a breaker is tripped.
func (l *Loop) Tick(ctx context.Context) error {
	balance, err := l.venue.AccountValue(ctx)
	if err != nil {
		return l.operational(err, "fetch account value")
	}

	if l.bus != nil {
		l.bus.PublishBalance(balance)
	}

	canTrade, reason := l.breaker.CanTrade(l.store.StartingBalance(), balance)
	if !canTrade {
		l.logger.Warn().Str("reason", reason).Msg("circuit breaker tripped, entries halted")
		if l.bus != nil && !l.haltNotified {
			l.bus.PublishBreakerTripped(reason)
		}
		l.haltNotified = true
	} else {
		l.haltNotified = false
	}

	// Open risk is managed even while breakers are tripped.
	if err := l.monitorPositions(ctx); err != nil {
		return err
	}

	if !canTrade {
		return nil
	}

	for _, symbol := range l.cfg.Symbols {
		if err := l.evaluateSymbol(ctx, symbol, balance); err != nil {
			if venue.Classify(err) == venue.ClassCritical {
				return err
			}
			l.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol evaluation failed")
		}
	}
	return nil
}

// monitorPositions closes positions whose stop or target is crossed
// and refreshes unrealized PnL in simulation mode.
func (l *Loop) monitorPositions(ctx context.Context) error {
	for symbol, pos := range l.store.Positions() {
		price, err := l.venue.CurrentPrice(ctx, symbol)
		if err != nil {
			if venue.Classify(err) == venue.ClassCritical {
				return err
			}
			l.logger.Warn().Err(err).Str("symbol", symbol).Msg("price check failed")
			continue
		}

		reason := exitReason(pos, price)
		if reason != "" {
			if err := l.closePosition(ctx, pos, price, reason); err != nil {
				if venue.Classify(err) == venue.ClassCritical {
					return err
				}
				l.logger.Warn().Err(err).Str("symbol", symbol).Msg("close failed, will retry next tick")
			}
			continue
		}

		if l.profile.Simulated {
			pos.UnrealizedPnL = float64(pos.Direction) * pos.Size * (price - pos.EntryPrice)
			if err := l.store.UpsertPosition(pos); err != nil {
				return err
			}
		}
	}
	return nil
}

// exitReason returns the close reason when price has crossed the
// position's stop or target, direction-aware.
func exitReason(pos state.Position, price float64) string {
	if pos.Direction == 1 {
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return state.CloseStopLoss
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return state.CloseTakeProfit
		}
		return ""
	}
	if pos.StopLoss > 0 && price >= pos.StopLoss {
		return state.CloseStopLoss
	}
	if pos.TakeProfit > 0 && price <= pos.TakeProfit {
		return state.CloseTakeProfit
	}
	return ""
}

func (l *Loop) closePosition(ctx context.Context, pos state.Position, price float64, reason string) error {
	res, err := l.venue.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:      pos.Symbol,
		IsBuy:       pos.Direction == -1,
		Size:        pos.Size,
		LimitPrice:  venue.QuantizePrice(pos.Symbol, price),
		TimeInForce: "Ioc",
		ReduceOnly:  true,
	})
	if err != nil {
		return err
	}

	exit := res.FillPrice
	if exit == 0 {
		exit = price
	}
	pnl := float64(pos.Direction) * pos.Size * (exit - pos.EntryPrice)

	if err := l.store.ClosePosition(pos.Symbol, exit, pnl, reason); err != nil {
		// Position gone from venue but bookkeeping failed: surface it,
		// the next tick re-reads persisted state.
		return err
	}

	if l.bus != nil {
		l.bus.PublishPositionClosed(pos.Symbol, reason, exit, pnl)
	}
	l.archiveLatest(ctx, pos.Symbol)
	l.logger.Info().
		Str("symbol", pos.Symbol).
		Str("reason", reason).
		Float64("exit", exit).
		Float64("pnl", pnl).
		Msg("position closed")
	return nil
}

// evaluateSymbol fetches candles, asks the strategy for its latest
// signal, applies the entry gates and places the order.
func (l *Loop) evaluateSymbol(ctx context.Context, symbol string, balance float64) error {
	candles, err := l.data.FetchCandles(ctx, symbol, l.cfg.Timeframe, l.cfg.CandleLimit)
	if err != nil {
		return l.operational(err, "fetch candles")
	}
	if len(candles) == 0 {
		return nil
	}

	sig, ok := latestSignal(l.strat.GenerateSignals(candles))
	if !ok {
		return nil
	}
	if l.bus != nil {
		l.bus.PublishSignal(symbol, sig.Strategy, sig.Direction, sig.EntryPrice, sig.Confidence)
	}

	positions := l.store.Positions()
	if sig.Confidence < l.params.MinConfidence {
		return nil
	}
	if _, open := positions[symbol]; open {
		return nil
	}
	if len(positions) >= l.cfg.MaxOpenPositions {
		l.logger.Debug().Str("symbol", symbol).Msg("max open positions reached, skipping entry")
		return nil
	}

	wins, losses := l.store.Streaks()
	size := risk.PositionSize(risk.SizeInput{
		PortfolioValue:    balance,
		EntryPrice:        sig.EntryPrice,
		StopLossPrice:     sig.StopLoss,
		Confidence:        sig.Confidence,
		CurrentATR:        market.ATR(candles, 14),
		BaselineATR:       market.BaselineATR(candles, 14, 50),
		ConsecutiveWins:   wins,
		ConsecutiveLosses: losses,
	}, l.params)
	if size <= 0 {
		return nil
	}

	price, err := l.venue.CurrentPrice(ctx, symbol)
	if err != nil {
		return l.operational(err, "fetch price")
	}

	// Favorable limit offset: buy below market, sell above.
	limit := price * (1 - l.cfg.LimitOffsetPercent/100)
	if sig.Direction == strategy.Short {
		limit = price * (1 + l.cfg.LimitOffsetPercent/100)
	}
	limit = venue.QuantizePrice(symbol, limit)
	size = venue.QuantizeSize(symbol, size)
	if size <= 0 || limit <= 0 {
		return nil
	}

	res, err := l.venue.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:      symbol,
		IsBuy:       sig.Direction == strategy.Long,
		Size:        size,
		LimitPrice:  limit,
		TimeInForce: "Gtc",
	})
	if err != nil {
		return l.operational(err, "place order")
	}
	if l.bus != nil {
		l.bus.PublishOrderPlaced(symbol, sig.Strategy, sig.Direction, limit, size, sig.Confidence)
	}

	entry := res.FillPrice
	if entry == 0 {
		entry = limit
	}

	sigCopy := sig
	pos := state.Position{
		Symbol:     symbol,
		Size:       size,
		EntryPrice: entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Direction:  sig.Direction,
		OpenedAt:   l.now(),
		Signal:     &sigCopy,
	}
	trade := state.Trade{
		ID:         state.NewTradeID(),
		Timestamp:  l.now(),
		Symbol:     symbol,
		Direction:  sig.Direction,
		Size:       size,
		EntryPrice: entry,
		Confidence: sig.Confidence,
		Status:     state.StatusOpen,
	}
	// Durability before the position counts as open.
	if err := l.store.OpenPosition(pos, trade); err != nil {
		return err
	}
	l.breaker.RecordTrade()

	if l.bus != nil {
		l.bus.PublishPositionOpened(symbol, sig.Strategy, sig.Direction, entry, size, sig.Confidence)
	}
	if l.archive != nil {
		if err := l.archive.ArchiveTrade(ctx, trade); err != nil {
			l.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("trade archive write failed")
		}
	}
	l.logger.Info().
		Str("symbol", symbol).
		Str("strategy", sig.Strategy).
		Int("direction", sig.Direction).
		Float64("entry", entry).
		Float64("stop", sig.StopLoss).
		Float64("target", sig.TakeProfit).
		Float64("size", size).
		Int("confidence", sig.Confidence).
		Msg("position opened")
	return nil
}

// seedBreaker replays today's durable trade history into the breaker
// so a restart mid-day does not reset the daily trade cap.
func (l *Loop) seedBreaker() {
	y, m, d := l.now().Local().Date()
	count := 0
	for _, tr := range l.store.History() {
		ty, tm, td := tr.Timestamp.Local().Date()
		if ty == y && tm == m && td == d {
			count++
		}
	}
	if count > 0 {
		l.breaker.Seed(count)
		l.logger.Info().Int("trades_today", count).Msg("breaker seeded from trade history")
	}
}

// archiveLatest mirrors the symbol's most recent closed trade into the
// archive, best effort.
func (l *Loop) archiveLatest(ctx context.Context, symbol string) {
	if l.archive == nil {
		return
	}
	history := l.store.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Symbol != symbol || history[i].Status != state.StatusClosed {
			continue
		}
		if err := l.archive.ArchiveTrade(ctx, history[i]); err != nil {
			l.logger.Warn().Err(err).Str("trade_id", history[i].ID).Msg("trade archive write failed")
		}
		return
	}
}

// latestSignal picks the most recent signal by timestamp.
func latestSignal(signals []strategy.Signal) (strategy.Signal, bool) {
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

// operational classifies a venue error: unknown-class errors earn a
// longer wait before the next tick, transient ones just surface.
func (l *Loop) operational(err error, what string) error {
	wrapped := fmt.Errorf("%s: %w", what, err)
	if venue.Classify(wrapped) == venue.ClassUnknown {
		l.extraWait = 2 * l.cfg.Interval
	}
	return wrapped
}
