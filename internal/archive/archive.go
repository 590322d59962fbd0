// Package archive mirrors closed trades into PostgreSQL for long-term
// analysis. The JSON state store stays the source of truth; the
// archive is optional and enabled only when a DSN is configured.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"fractal-trader/internal/state"
)

// Store writes trade rows through a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects, verifies the connection and runs the migration.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}
	poolConfig.MaxConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create archive pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}

	s := &Store{
		pool:   pool,
		logger: logger.With().Str("component", "TradeArchive").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info().Msg("trade archive connected")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS archived_trades (
			trade_id     TEXT PRIMARY KEY,
			opened_at    TIMESTAMPTZ NOT NULL,
			symbol       VARCHAR(20) NOT NULL,
			direction    SMALLINT NOT NULL,
			size         DECIMAL(20, 8) NOT NULL,
			entry_price  DECIMAL(20, 8) NOT NULL,
			exit_price   DECIMAL(20, 8),
			pnl          DECIMAL(20, 8),
			confidence   SMALLINT NOT NULL,
			status       VARCHAR(10) NOT NULL,
			close_reason VARCHAR(20),
			archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate archived_trades: %w", err)
	}
	return nil
}

// ArchiveTrade upserts one trade row. Re-archiving the same trade
// after it closes updates the exit columns in place.
func (s *Store) ArchiveTrade(ctx context.Context, tr state.Trade) error {
	query := `
		INSERT INTO archived_trades
			(trade_id, opened_at, symbol, direction, size, entry_price, exit_price, pnl, confidence, status, close_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (trade_id) DO UPDATE SET
			exit_price = EXCLUDED.exit_price,
			pnl = EXCLUDED.pnl,
			status = EXCLUDED.status,
			close_reason = EXCLUDED.close_reason
	`
	_, err := s.pool.Exec(ctx, query,
		tr.ID, tr.Timestamp, tr.Symbol, tr.Direction, tr.Size, tr.EntryPrice,
		tr.ExitPrice, tr.PnL, tr.Confidence, tr.Status, nullable(tr.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("archive trade %s: %w", tr.ID, err)
	}
	return nil
}

// RecentTrades returns the newest archived rows, most recent first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]state.Trade, error) {
	query := `
		SELECT trade_id, opened_at, symbol, direction, size, entry_price, exit_price, pnl, confidence, status, COALESCE(close_reason, '')
		FROM archived_trades
		ORDER BY opened_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query archived trades: %w", err)
	}
	defer rows.Close()

	var out []state.Trade
	for rows.Next() {
		var tr state.Trade
		if err := rows.Scan(
			&tr.ID, &tr.Timestamp, &tr.Symbol, &tr.Direction, &tr.Size,
			&tr.EntryPrice, &tr.ExitPrice, &tr.PnL, &tr.Confidence,
			&tr.Status, &tr.CloseReason,
		); err != nil {
			return nil, fmt.Errorf("scan archived trade: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
