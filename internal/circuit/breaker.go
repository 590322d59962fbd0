// Package circuit halts new position entries when daily risk limits
// are hit. Breakers gate entries only: open positions keep being
// monitored while a breaker is tripped.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// Limits configures the daily breakers.
type Limits struct {
	MaxDailyDrawdown float64 `json:"max_daily_drawdown"`
	MaxDailyTrades   int     `json:"max_daily_trades"`
}

// Validate rejects limits that could never trip or trip instantly.
func (l Limits) Validate() error {
	if l.MaxDailyDrawdown <= 0 || l.MaxDailyDrawdown >= 1 {
		return fmt.Errorf("max_daily_drawdown %.3f outside (0, 1)", l.MaxDailyDrawdown)
	}
	if l.MaxDailyTrades <= 0 {
		return fmt.Errorf("max_daily_trades %d must be positive", l.MaxDailyTrades)
	}
	return nil
}

// Breaker tracks drawdown and trade count per calendar day. Counters
// reset at local midnight. Safe for concurrent use.
type Breaker struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time

	day        time.Time
	tradeCount int
	tripped    bool
	reason     string
}

// New builds a breaker. A nil clock uses time.Now.
func New(limits Limits, clock func() time.Time) *Breaker {
	if clock == nil {
		clock = time.Now
	}
	b := &Breaker{limits: limits, now: clock}
	b.day = dayOf(clock())
	return b
}

// Seed sets today's trade count from durable history so a restart
// mid-day does not reset the cap.
func (b *Breaker) Seed(tradesToday int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	if tradesToday > b.tradeCount {
		b.tradeCount = tradesToday
	}
}

// RecordTrade counts one opened trade against today's cap.
func (b *Breaker) RecordTrade() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	b.tradeCount++
}

// TradesToday returns today's trade count.
func (b *Breaker) TradesToday() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.tradeCount
}

// CanTrade evaluates both breakers against the supplied balances and
// returns whether new entries are allowed, with the trip reason when
// they are not.
func (b *Breaker) CanTrade(startingBalance, currentBalance float64) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	if startingBalance > 0 {
		drawdown := (startingBalance - currentBalance) / startingBalance
		if drawdown >= b.limits.MaxDailyDrawdown {
			b.trip(fmt.Sprintf("daily drawdown %.1f%% >= limit %.1f%%",
				drawdown*100, b.limits.MaxDailyDrawdown*100))
			return false, b.reason
		}
	}

	if b.tradeCount >= b.limits.MaxDailyTrades {
		b.trip(fmt.Sprintf("daily trade count %d >= limit %d",
			b.tradeCount, b.limits.MaxDailyTrades))
		return false, b.reason
	}

	if b.tripped {
		return false, b.reason
	}
	return true, ""
}

// Tripped reports whether a breaker is currently latched.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.tripped
}

// Status reports the latch, its reason and today's trade count in one
// consistent read.
func (b *Breaker) Status() (tripped bool, reason string, tradesToday int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.tripped, b.reason, b.tradeCount
}

func (b *Breaker) trip(reason string) {
	if !b.tripped {
		b.tripped = true
		b.reason = reason
	}
}

// rollover clears counters and latches at local midnight. Callers
// hold the mutex.
func (b *Breaker) rollover() {
	today := dayOf(b.now())
	if today.Equal(b.day) {
		return
	}
	b.day = today
	b.tradeCount = 0
	b.tripped = false
	b.reason = ""
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
