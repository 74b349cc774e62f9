package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ChainRepository handles the insert-only chain event log and the
// singleton replay cursor.
type ChainRepository struct {
	client *Client
}

// NewChainRepository creates a new chain repository.
func NewChainRepository(client *Client) *ChainRepository {
	return &ChainRepository{client: client}
}

// RecordEvent inserts a decoded chain event. Re-ingesting the same
// (block_number, event_index) is a no-op: the primary key makes
// ingestion idempotent across restarts and reconnects.
func (r *ChainRepository) RecordEvent(ctx context.Context, ev *ChainEvent) error {
	var correlationID interface{}
	if ev.CorrelationID != "" {
		correlationID = ev.CorrelationID
	}

	_, err := r.client.ExecContext(ctx, `
		INSERT INTO chain_events (block_number, event_index, pallet, variant, payload, correlation_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (block_number, event_index) DO NOTHING`,
		ev.BlockNumber, ev.EventIndex, ev.Pallet, ev.Variant, ev.Payload, correlationID,
	)
	if err != nil {
		return fmt.Errorf("failed to record chain event: %w", err)
	}
	return nil
}

// FindEventByCorrelationID locates the most recent chain event carrying
// a given correlation id: when more than one event shares it, backfill
// wants the latest state, not the first observation.
func (r *ChainRepository) FindEventByCorrelationID(ctx context.Context, correlationID string) (*ChainEvent, error) {
	ev := &ChainEvent{}
	var corr sql.NullString
	err := r.client.QueryRowContext(ctx, `
		SELECT block_number, event_index, pallet, variant, payload, correlation_id, recorded_at
		FROM chain_events WHERE correlation_id = $1
		ORDER BY block_number DESC, event_index DESC
		LIMIT 1`,
		correlationID,
	).Scan(&ev.BlockNumber, &ev.EventIndex, &ev.Pallet, &ev.Variant, &ev.Payload, &corr, &ev.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chain event by correlation id: %w", err)
	}
	ev.CorrelationID = corr.String
	return ev, nil
}

// LastCursor returns the last persisted replay cursor. If the singleton
// row does not yet exist (first run), it returns the zero cursor and no
// error: replay starts from the chain's genesis/subscription point.
func (r *ChainRepository) LastCursor(ctx context.Context) (Cursor, error) {
	var c Cursor
	err := r.client.QueryRowContext(ctx, `
		SELECT block_number, event_index FROM chain_cursors WHERE id = 1`,
	).Scan(&c.BlockNumber, &c.EventIndex)
	if err == sql.ErrNoRows {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("failed to read cursor: %w", err)
	}
	return c, nil
}

// AdvanceCursor persists a new cursor position, but only if it strictly
// exceeds the stored one. This enforces the replay invariant that the
// cursor never moves backward, even if the caller is handed a stale
// position after a reconnect race.
func (r *ChainRepository) AdvanceCursor(ctx context.Context, next Cursor) error {
	current, err := r.LastCursor(ctx)
	if err != nil {
		return err
	}
	if !current.Less(next) {
		return ErrCursorNotAdvancing
	}

	_, err = r.client.ExecContext(ctx, `
		INSERT INTO chain_cursors (id, block_number, event_index, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET block_number = EXCLUDED.block_number,
			event_index = EXCLUDED.event_index,
			updated_at = now()
		WHERE chain_cursors.block_number < EXCLUDED.block_number
			OR (chain_cursors.block_number = EXCLUDED.block_number AND chain_cursors.event_index < EXCLUDED.event_index)`,
		next.BlockNumber, next.EventIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}
