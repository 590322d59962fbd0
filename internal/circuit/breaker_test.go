package circuit

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCanTradeUnderLimits(t *testing.T) {
	b := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 50}, nil)
	ok, reason := b.CanTrade(100000, 95000)
	if !ok {
		t.Fatalf("expected trading allowed, got trip: %s", reason)
	}
}

func TestDrawdownBreaker(t *testing.T) {
	b := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 50}, nil)

	// 30% down on a 20% limit.
	ok, reason := b.CanTrade(100000, 70000)
	if ok {
		t.Fatal("expected drawdown breaker to trip")
	}
	if reason == "" {
		t.Error("expected a trip reason")
	}

	// The breaker latches for the day even if balance recovers.
	if ok, _ := b.CanTrade(100000, 99000); ok {
		t.Error("expected breaker to stay tripped after balance recovery")
	}
}

func TestTradeCountBreaker(t *testing.T) {
	b := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 3}, nil)

	for i := 0; i < 3; i++ {
		if ok, _ := b.CanTrade(100000, 100000); !ok {
			t.Fatalf("trade %d should be allowed", i)
		}
		b.RecordTrade()
	}

	if ok, _ := b.CanTrade(100000, 100000); ok {
		t.Error("expected trade-count breaker to trip at the cap")
	}
	if b.TradesToday() != 3 {
		t.Errorf("expected 3 trades today, got %d", b.TradesToday())
	}
}

func TestMidnightReset(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 0, 0, 0, time.Local)
	b := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 2}, func() time.Time { return now })

	b.RecordTrade()
	b.RecordTrade()
	if ok, _ := b.CanTrade(100000, 100000); ok {
		t.Fatal("expected trip at trade cap")
	}

	// Roll past local midnight: counters and latch clear.
	now = now.Add(2 * time.Hour)
	if b.TradesToday() != 0 {
		t.Errorf("expected counter reset after midnight, got %d", b.TradesToday())
	}
	if ok, _ := b.CanTrade(100000, 100000); !ok {
		t.Error("expected trading allowed after daily reset")
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := (Limits{MaxDailyDrawdown: 0.2, MaxDailyTrades: 50}).Validate(); err != nil {
		t.Fatalf("valid limits rejected: %v", err)
	}
	bad := []Limits{
		{MaxDailyDrawdown: 0, MaxDailyTrades: 50},
		{MaxDailyDrawdown: 1.5, MaxDailyTrades: 50},
		{MaxDailyDrawdown: 0.2, MaxDailyTrades: 0},
	}
	for i, l := range bad {
		if err := l.Validate(); err == nil {
			t.Errorf("case %d: expected error for %+v", i, l)
		}
	}
}

func TestSeedRestoresDailyCount(t *testing.T) {
	b := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 3}, nil)

	b.Seed(3)
	if got := b.TradesToday(); got != 3 {
		t.Fatalf("expected seeded count 3, got %d", got)
	}
	if ok, reason := b.CanTrade(100000, 99000); ok || reason == "" {
		t.Error("expected trade cap to trip after seeding at the limit")
	}

	// Seeding never lowers a count already accumulated.
	b2 := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 10}, nil)
	b2.RecordTrade()
	b2.RecordTrade()
	b2.Seed(1)
	if got := b2.TradesToday(); got != 2 {
		t.Errorf("expected count to stay at 2, got %d", got)
	}
}

func TestSeedRollsOverFirst(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	b := New(Limits{MaxDailyDrawdown: 0.20, MaxDailyTrades: 5}, clock)
	b.RecordTrade()

	// Yesterday's count is discarded before the seed applies.
	now = now.Add(2 * time.Hour)
	b.Seed(2)
	if got := b.TradesToday(); got != 2 {
		t.Errorf("expected 2 after midnight rollover and seed, got %d", got)
	}
}
