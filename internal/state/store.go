package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrLockTimeout  = errors.New("state file lock timed out")
	ErrNoOpenTrade  = errors.New("no open trade for symbol")
	ErrPositionOpen = errors.New("position already open for symbol")
)

// Store owns the persisted TradingState. All mutators persist
// synchronously: a mutation is not committed until the file hit disk.
// The mutex makes the store safe to share between the trading loop and
// dashboard request goroutines; the lock file only covers other
// processes.
type Store struct {
	path        string
	backupCount int
	lockWait    time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu    sync.RWMutex
	state TradingState
}

// Option tunes a Store.
type Option func(*Store)

// WithBackupCount sets how many numbered backups to keep.
func WithBackupCount(n int) Option {
	return func(s *Store) { s.backupCount = n }
}

// WithLockWait bounds how long Load/Save wait for the lock file.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.now = clock }
}

// NewStore builds a store over the given file path and loads existing
// state, falling back through the backup chain on corruption. A
// missing file starts a fresh session.
func NewStore(path string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		backupCount: 5,
		lockWait:    10 * time.Second,
		now:         time.Now,
		logger:      logger.With().Str("component", "StateStore").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the primary file, then each backup from most to least
// recent. If nothing parses, it starts empty: that means trade
// history was lost, so it is logged at error level.
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if err == nil {
		var st TradingState
		if jerr := json.Unmarshal(data, &st); jerr == nil {
			s.adopt(st)
			return nil
		}
		s.logger.Warn().Str("path", s.path).Msg("primary state file corrupt, trying backups")
	} else if os.IsNotExist(err) {
		s.state = newTradingState(s.now())
		return nil
	} else {
		return fmt.Errorf("read state file: %w", err)
	}

	for i := 1; i <= s.backupCount; i++ {
		bak := s.backupPath(i)
		data, err := os.ReadFile(bak)
		if err != nil {
			continue
		}
		var st TradingState
		if jerr := json.Unmarshal(data, &st); jerr != nil {
			s.logger.Warn().Str("path", bak).Msg("backup unreadable, trying next")
			continue
		}
		s.adopt(st)
		s.logger.Warn().Str("recovered_from", bak).Msg("state recovered from backup")
		// Restore the backup as the new primary.
		return s.writeLocked()
	}

	s.logger.Error().Str("path", s.path).
		Msg("state file and all backups corrupt, starting with empty state; trade history lost")
	s.state = newTradingState(s.now())
	return nil
}

func (s *Store) adopt(st TradingState) {
	if st.OpenPositions == nil {
		st.OpenPositions = make(map[string]Position)
	}
	if st.Metadata == nil {
		st.Metadata = make(map[string]string)
	}
	s.state = st
}

// Save persists the current state under the lock, rotating the
// previous file into the backup chain first.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// persist takes the file lock and writes. Callers hold s.mu.
func (s *Store) persist() error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	s.state.LastUpdated = s.now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	s.rotateBackups()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// rotateBackups shifts bak1..bakN-1 up by one and moves the current
// primary into bak1. Rotation failures are non-fatal: the fresh save
// still goes through.
func (s *Store) rotateBackups() {
	if s.backupCount <= 0 {
		return
	}
	for i := s.backupCount - 1; i >= 1; i-- {
		src := s.backupPath(i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, s.backupPath(i+1))
		}
	}
	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.backupPath(1)); err != nil {
			s.logger.Warn().Err(err).Msg("backup rotation failed")
		}
	}
}

func (s *Store) backupPath(i int) string {
	return fmt.Sprintf("%s.bak%d", s.path, i)
}

// lock creates the sibling lock file exclusively, waiting up to
// lockWait for a competing holder to release it.
func (s *Store) lock() (func(), error) {
	lockPath := s.path + ".lock"
	deadline := time.Now().Add(s.lockWait)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Snapshot returns a deep copy of the full state.
func (s *Store) Snapshot() TradingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Positions returns a deep copy of the open positions map.
func (s *Store) Positions() map[string]Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone().OpenPositions
}

// History returns a deep copy of the trade history.
func (s *Store) History() []Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone().TradeHistory
}

// StartingBalance returns the session's starting balance.
func (s *Store) StartingBalance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.StartingBalance
}

// SetStartingBalance records the session baseline and persists.
func (s *Store) SetStartingBalance(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StartingBalance = v
	return s.persist()
}

// SetMetadata records a metadata key and persists.
func (s *Store) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Metadata[key] = value
	return s.persist()
}

// OpenPosition adds a position and its open trade record atomically
// and persists before returning.
func (s *Store) OpenPosition(pos Position, trade Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.OpenPositions[pos.Symbol]; exists {
		return fmt.Errorf("%w: %s", ErrPositionOpen, pos.Symbol)
	}
	s.state.OpenPositions[pos.Symbol] = pos
	s.state.TradeHistory = append(s.state.TradeHistory, trade)
	return s.persist()
}

// UpsertPosition replaces a position record (reconciliation, PnL
// updates) and persists.
func (s *Store) UpsertPosition(pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.OpenPositions[pos.Symbol] = pos
	return s.persist()
}

// RemovePosition drops a position without touching trade history
// (used when the venue no longer knows the position).
func (s *Store) RemovePosition(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.OpenPositions, symbol)
	return s.persist()
}

// ClosePosition removes the position and closes the newest open trade
// for the symbol in place, recording exit price, realized PnL and the
// close reason. Persists before returning.
func (s *Store) ClosePosition(symbol string, exitPrice, pnl float64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := len(s.state.TradeHistory) - 1; i >= 0; i-- {
		if s.state.TradeHistory[i].Symbol == symbol && s.state.TradeHistory[i].Status == StatusOpen {
			idx = i
			break
		}
	}

	delete(s.state.OpenPositions, symbol)
	if idx < 0 {
		// Keep the position removal durable even without a matching
		// trade row.
		if err := s.persist(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNoOpenTrade, symbol)
	}

	tr := &s.state.TradeHistory[idx]
	tr.Status = StatusClosed
	tr.ExitPrice = &exitPrice
	tr.PnL = &pnl
	tr.CloseReason = reason
	return s.persist()
}

// Streaks counts consecutive wins and losses from the most recent
// closed trades backwards. Exactly one of the two is non-zero.
func (s *Store) Streaks() (wins, losses int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.state.TradeHistory) - 1; i >= 0; i-- {
		tr := s.state.TradeHistory[i]
		if tr.Status != StatusClosed || tr.PnL == nil {
			continue
		}
		if *tr.PnL > 0 {
			if losses > 0 {
				return
			}
			wins++
		} else {
			if wins > 0 {
				return
			}
			losses++
		}
	}
	return
}
