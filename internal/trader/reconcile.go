package trader

import (
	"context"
	"fmt"

	"fractal-trader/internal/state"
)

// Reconcile aligns persisted local state with the venue's account
// before the first tick. The venue is the source of truth: missing
// positions are adopted, stale ones dropped, sizes corrected.
func (l *Loop) Reconcile(ctx context.Context) error {
	remote, err := l.venue.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch venue positions: %w", err)
	}
	local := l.store.Positions()

	// Venue positions missing locally: adopt with no stop or target
	// known and flag them for manual attention.
	for symbol, snap := range remote {
		pos, known := local[symbol]
		if !known {
			adopted := state.Position{
				Symbol:         symbol,
				Size:           snap.Size,
				EntryPrice:     snap.EntryPrice,
				Direction:      snap.Direction,
				OpenedAt:       l.now(),
				NeedsAttention: true,
			}
			trade := state.Trade{
				ID:         state.NewTradeID(),
				Timestamp:  l.now(),
				Symbol:     symbol,
				Direction:  snap.Direction,
				Size:       snap.Size,
				EntryPrice: snap.EntryPrice,
				Status:     state.StatusOpen,
			}
			if err := l.store.OpenPosition(adopted, trade); err != nil {
				return err
			}
			l.logger.Warn().Str("symbol", symbol).Float64("size", snap.Size).
				Msg("adopted venue position with no stop or target, needs manual attention")
			continue
		}

		if pos.Size != snap.Size {
			l.logger.Warn().Str("symbol", symbol).
				Float64("local_size", pos.Size).
				Float64("venue_size", snap.Size).
				Msg("correcting position size to venue")
			pos.Size = snap.Size
			if err := l.store.UpsertPosition(pos); err != nil {
				return err
			}
		}
	}

	// Local positions the venue no longer has: close their trade rows
	// at entry price and drop them.
	for symbol, pos := range local {
		if _, exists := remote[symbol]; exists {
			continue
		}
		l.logger.Warn().Str("symbol", symbol).Msg("dropping position absent on venue")
		if err := l.store.ClosePosition(symbol, pos.EntryPrice, 0, state.CloseManual); err != nil {
			l.logger.Warn().Err(err).Str("symbol", symbol).Msg("no trade row for dropped position")
		}
	}

	l.logger.Info().Int("venue_positions", len(remote)).Msg("reconciliation complete")
	return nil
}
