package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxRepository handles the outbox table: enqueueing submission intents
// and claiming them for the submitter workers.
type OutboxRepository struct {
	client *Client
}

// NewOutboxRepository creates a new outbox repository.
func NewOutboxRepository(client *Client) *OutboxRepository {
	return &OutboxRepository{client: client}
}

// Enqueue inserts a new pending outbox row. correlationID is generated by
// the caller (outbox.Enqueue, after validation) and is returned to the
// HTTP client once the insert has succeeded.
func (r *OutboxRepository) Enqueue(ctx context.Context, correlationID uuid.UUID, pallet, call, payload string) (*OutboxRow, error) {
	row := &OutboxRow{
		CorrelationID: correlationID,
		Pallet:        pallet,
		Call:          call,
		Payload:       payload,
		Status:        OutboxPending,
		CreatedAt:     time.Now(),
	}

	query := `
		INSERT INTO outbox (correlation_id, pallet, call, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		RETURNING created_at`

	err := r.client.QueryRowContext(ctx, query,
		row.CorrelationID, row.Pallet, row.Call, row.Payload, row.Status, row.CreatedAt,
	).Scan(&row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue outbox row: %w", err)
	}

	return row, nil
}

// ClaimNextPending claims a single pending (or retry-eligible failed) row
// for submission, using FOR UPDATE SKIP LOCKED so concurrent submitter
// workers never race on the same row. Returns ErrNoPendingWork if nothing
// is claimable.
func (r *OutboxRepository) ClaimNextPending(ctx context.Context) (*OutboxRow, error) {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT correlation_id, pallet, call, payload, status, retry_count,
			COALESCE(last_error, ''), COALESCE(tx_hash, ''), chain_task_id, chain_agent_id,
			created_at, processed_at
		FROM outbox
		WHERE status IN ('pending', 'failed')
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	row := &OutboxRow{}
	err = tx.Tx().QueryRowContext(ctx, query).Scan(
		&row.CorrelationID, &row.Pallet, &row.Call, &row.Payload, &row.Status, &row.RetryCount,
		&row.LastError, &row.TxHash, &row.ChainTaskID, &row.ChainAgentID,
		&row.CreatedAt, &row.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNoPendingWork
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox row: %w", err)
	}

	// Move a claimed 'failed' row back to 'pending'. retry_count is not
	// changed here; MarkFailed writes the new count.
	if _, err := tx.Tx().ExecContext(ctx,
		`UPDATE outbox SET status = 'pending' WHERE correlation_id = $1`, row.CorrelationID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark outbox row in flight: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim tx: %w", err)
	}

	return row, nil
}

// MarkFinalized records that an extrinsic was included in a finalized
// block. This is a terminal state; the row is never reclaimed again.
func (r *OutboxRepository) MarkFinalized(ctx context.Context, correlationID uuid.UUID, txHash string) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'finalized', tx_hash = $2, processed_at = now()
		WHERE correlation_id = $1`,
		correlationID, txHash,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row finalized: %w", err)
	}
	return checkRowsAffected(res)
}

// MarkFailed records a submission failure. If retryCount exceeds
// maxRetries the row is dead-lettered instead of left retryable.
func (r *OutboxRepository) MarkFailed(ctx context.Context, correlationID uuid.UUID, errMsg string, retryCount, maxRetries int) error {
	status := OutboxFailed
	if retryCount > maxRetries {
		status = OutboxDead
	}

	// Stored error text is capped to avoid unbounded growth
	// from verbose RPC error payloads.
	const maxErrLen = 512
	if len(errMsg) > maxErrLen {
		errMsg = errMsg[:maxErrLen]
	}

	res, err := r.client.ExecContext(ctx, `
		UPDATE outbox
		SET status = $2, retry_count = $3, last_error = $4,
			processed_at = CASE WHEN $2 = 'dead' THEN now() ELSE processed_at END
		WHERE correlation_id = $1`,
		correlationID, status, retryCount, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row failed: %w", err)
	}
	return checkRowsAffected(res)
}

// Get returns a single outbox row by correlation id.
func (r *OutboxRepository) Get(ctx context.Context, correlationID uuid.UUID) (*OutboxRow, error) {
	row := &OutboxRow{}
	err := r.client.QueryRowContext(ctx, `
		SELECT correlation_id, pallet, call, payload, status, retry_count,
			COALESCE(last_error, ''), COALESCE(tx_hash, ''), chain_task_id, chain_agent_id,
			created_at, processed_at
		FROM outbox WHERE correlation_id = $1`,
		correlationID,
	).Scan(
		&row.CorrelationID, &row.Pallet, &row.Call, &row.Payload, &row.Status, &row.RetryCount,
		&row.LastError, &row.TxHash, &row.ChainTaskID, &row.ChainAgentID,
		&row.CreatedAt, &row.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox row: %w", err)
	}
	return row, nil
}

// List returns a page of outbox rows, optionally filtered by status,
// newest first.
func (r *OutboxRepository) List(ctx context.Context, status OutboxStatus, limit, offset int) ([]*OutboxRow, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = r.client.QueryContext(ctx, `
			SELECT correlation_id, pallet, call, payload, status, retry_count,
				COALESCE(last_error, ''), COALESCE(tx_hash, ''), chain_task_id, chain_agent_id,
				created_at, processed_at
			FROM outbox WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			status, limit, offset,
		)
	} else {
		rows, err = r.client.QueryContext(ctx, `
			SELECT correlation_id, pallet, call, payload, status, retry_count,
				COALESCE(last_error, ''), COALESCE(tx_hash, ''), chain_task_id, chain_agent_id,
				created_at, processed_at
			FROM outbox
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox rows: %w", err)
	}
	defer rows.Close()

	var out []*OutboxRow
	for rows.Next() {
		row := &OutboxRow{}
		if err := rows.Scan(
			&row.CorrelationID, &row.Pallet, &row.Call, &row.Payload, &row.Status, &row.RetryCount,
			&row.LastError, &row.TxHash, &row.ChainTaskID, &row.ChainAgentID,
			&row.CreatedAt, &row.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// StampChainIDs records chain_task_id and/or chain_agent_id onto a
// single outbox row once those ids are known, e.g. once the Ingester
// observes the corresponding chain event or the backfill pass resolves
// them. Either id may be nil; only non-nil ids are stamped, and only
// into columns that are still unset (NULL or 0), so a stamp never clobbers an
// id resolved by a different path.
func (r *OutboxRepository) StampChainIDs(ctx context.Context, correlationID uuid.UUID, chainTaskID, chainAgentID *int64) error {
	if chainTaskID == nil && chainAgentID == nil {
		return nil
	}

	if chainTaskID != nil {
		if _, err := r.client.ExecContext(ctx, `
			UPDATE outbox SET chain_task_id = $2
			WHERE correlation_id = $1 AND (chain_task_id IS NULL OR chain_task_id = 0)`,
			correlationID, *chainTaskID,
		); err != nil {
			return fmt.Errorf("failed to patch chain_task_id: %w", err)
		}
	}

	if chainAgentID != nil {
		if _, err := r.client.ExecContext(ctx, `
			UPDATE outbox SET chain_agent_id = $2
			WHERE correlation_id = $1 AND (chain_agent_id IS NULL OR chain_agent_id = 0)`,
			correlationID, *chainAgentID,
		); err != nil {
			return fmt.Errorf("failed to patch chain_agent_id: %w", err)
		}
	}

	return nil
}

// PatchPendingPayloads rewrites the JSON payload text of still-pending
// outbox rows, substituting task_id/agent_id placeholders of 0 with the
// now-known real chain id. This is distinct from StampChainIDs: it lets
// a bid or reveal enqueued before its task or agent existed on-chain be
// retried with real identifiers once those become known. Either id may
// be nil; each patch is independent and only touches rows that both
// carry the corresponding placeholder field and are still pending.
func (r *OutboxRepository) PatchPendingPayloads(ctx context.Context, chainTaskID, chainAgentID *int64) error {
	if chainTaskID != nil {
		if _, err := r.client.ExecContext(ctx, `
			UPDATE outbox
			SET payload = jsonb_set(payload::jsonb, '{task_id}', to_jsonb($1::bigint))::text
			WHERE status = 'pending'
				AND payload::jsonb ? 'task_id'
				AND (payload::jsonb ->> 'task_id')::bigint = 0`,
			*chainTaskID,
		); err != nil {
			return fmt.Errorf("failed to patch pending task_id payloads: %w", err)
		}
	}

	if chainAgentID != nil {
		if _, err := r.client.ExecContext(ctx, `
			UPDATE outbox
			SET payload = jsonb_set(payload::jsonb, '{agent_id}', to_jsonb($1::bigint))::text
			WHERE status = 'pending'
				AND payload::jsonb ? 'agent_id'
				AND (payload::jsonb ->> 'agent_id')::bigint = 0`,
			*chainAgentID,
		); err != nil {
			return fmt.Errorf("failed to patch pending agent_id payloads: %w", err)
		}
	}

	return nil
}

// FindByTxHash locates an outbox row by its submitted transaction hash,
// used by the Ingester to find the outbox row a chain event's extrinsic
// hash belongs to.
func (r *OutboxRepository) FindByTxHash(ctx context.Context, txHash string) (*OutboxRow, error) {
	row := &OutboxRow{}
	err := r.client.QueryRowContext(ctx, `
		SELECT correlation_id, pallet, call, payload, status, retry_count,
			COALESCE(last_error, ''), COALESCE(tx_hash, ''), chain_task_id, chain_agent_id,
			created_at, processed_at
		FROM outbox WHERE tx_hash = $1
		LIMIT 1`,
		txHash,
	).Scan(
		&row.CorrelationID, &row.Pallet, &row.Call, &row.Payload, &row.Status, &row.RetryCount,
		&row.LastError, &row.TxHash, &row.ChainTaskID, &row.ChainAgentID,
		&row.CreatedAt, &row.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox row by tx_hash: %w", err)
	}
	return row, nil
}

// NeedingBackfill returns rows whose chain ids are still unresolved,
// across statuses where a late-arriving chain event can still stamp
// them.
func (r *OutboxRepository) NeedingBackfill(ctx context.Context, limit int) ([]*OutboxRow, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT correlation_id, pallet, call, payload, status, retry_count,
			COALESCE(last_error, ''), COALESCE(tx_hash, ''), chain_task_id, chain_agent_id,
			created_at, processed_at
		FROM outbox
		WHERE status IN ('pending', 'failed', 'finalized')
			AND (chain_task_id IS NULL OR chain_agent_id IS NULL)
		ORDER BY created_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows needing backfill: %w", err)
	}
	defer rows.Close()

	var out []*OutboxRow
	for rows.Next() {
		row := &OutboxRow{}
		if err := rows.Scan(
			&row.CorrelationID, &row.Pallet, &row.Call, &row.Payload, &row.Status, &row.RetryCount,
			&row.LastError, &row.TxHash, &row.ChainTaskID, &row.ChainAgentID,
			&row.CreatedAt, &row.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
