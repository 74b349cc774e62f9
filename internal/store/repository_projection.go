package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ProjectionRepository maintains the chain-annotated marketplace
// projections (tasks, agents, bids, results) that the Ingester updates
// as chain events arrive. Writes here are idempotent upserts: the same event replayed
// twice leaves the same row.
type ProjectionRepository struct {
	client *Client
}

// NewProjectionRepository creates a new projection repository.
func NewProjectionRepository(client *Client) *ProjectionRepository {
	return &ProjectionRepository{client: client}
}

// UpsertTask creates or updates the chain_task_id on a task. taskID is
// the marketplace-internal id carried in the outbox payload; chainTaskID
// is assigned by the chain once TaskMarket::create_task executes.
func (r *ProjectionRepository) UpsertTask(ctx context.Context, taskID uuid.UUID, chainTaskID int64) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO tasks (id, chain_task_id, status, created_at, updated_at)
		VALUES ($1, $2, 'pending', now(), now())
		ON CONFLICT (id) DO UPDATE
		SET chain_task_id = EXCLUDED.chain_task_id, updated_at = now()`,
		taskID, chainTaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// UpsertTaskByChainID records a TaskCreated event for a task the bridge
// has no prior row for: it stamps chainTaskID onto the oldest existing
// projection still missing one (an API-originated task awaiting its
// on-chain counterpart), or creates a fresh projection if none is
// waiting.
func (r *ProjectionRepository) UpsertTaskByChainID(ctx context.Context, chainTaskID int64) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE tasks SET chain_task_id = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM tasks WHERE chain_task_id IS NULL
			ORDER BY created_at ASC LIMIT 1
		)`,
		chainTaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to adopt pending task projection: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = r.client.ExecContext(ctx, `
		INSERT INTO tasks (id, chain_task_id, status, created_at, updated_at)
		VALUES ($1, $2, 'pending', now(), now())
		ON CONFLICT (chain_task_id) DO NOTHING`,
		uuid.New(), chainTaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to create task projection: %w", err)
	}
	return nil
}

// UpsertAgentByChainID records an AgentRegistered event: it upserts the
// canonical did:ainur:<chain_agent_id> projection, then backfills any
// other agent projection that shares accountAddress but has no chain id
// yet (an API-originated registration now confirmed on-chain).
func (r *ProjectionRepository) UpsertAgentByChainID(ctx context.Context, chainAgentID int64, accountAddress string) error {
	did := fmt.Sprintf("did:ainur:%d", chainAgentID)

	if err := r.UpsertAgent(ctx, did, chainAgentID, accountAddress, did); err != nil {
		return err
	}

	_, err := r.client.ExecContext(ctx, `
		UPDATE agents SET chain_agent_id = $1, updated_at = now()
		WHERE account_address = $2 AND chain_agent_id IS NULL`,
		chainAgentID, accountAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to backfill agent projections by account address: %w", err)
	}
	return nil
}

// FindAgentByChainID locates an agent projection by its chain-assigned
// id.
func (r *ProjectionRepository) FindAgentByChainID(ctx context.Context, chainAgentID int64) (*AgentProjection, error) {
	a := &AgentProjection{}
	var cid sql.NullInt64
	err := r.client.QueryRowContext(ctx, `
		SELECT id, chain_agent_id, COALESCE(account_address, ''), label, created_at, updated_at
		FROM agents WHERE chain_agent_id = $1`,
		chainAgentID,
	).Scan(&a.ID, &cid, &a.AccountAddress, &a.Label, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find agent by chain id: %w", err)
	}
	if cid.Valid {
		a.ChainAgentID = &cid.Int64
	}
	return a, nil
}

// RecordBid inserts a bid projection. Duplicate (task, agent, commitment)
// triples are ignored, matching reveal_bid's replay behavior.
func (r *ProjectionRepository) RecordBid(ctx context.Context, taskID uuid.UUID, agentID, commitment string) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO bids (id, task_id, agent_id, commitment, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (task_id, agent_id, commitment) DO NOTHING`,
		uuid.New(), taskID, agentID, commitment,
	)
	if err != nil {
		return fmt.Errorf("failed to record bid: %w", err)
	}
	return nil
}

// MarkAllocated records the agent a task was allocated to.
func (r *ProjectionRepository) MarkAllocated(ctx context.Context, taskID uuid.UUID, agentID string) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE tasks SET matched_agent = $2, updated_at = now() WHERE id = $1`,
		taskID, agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task allocated: %w", err)
	}
	return checkRowsAffected(res)
}

// RecordResult marks a task completed and stores its result.
func (r *ProjectionRepository) RecordResult(ctx context.Context, taskID uuid.UUID, output, proof, resultHash string) error {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin result tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO results (task_id, output, proof, completed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (task_id) DO UPDATE
		SET output = EXCLUDED.output, proof = EXCLUDED.proof, completed_at = now()`,
		taskID, output, proof,
	); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	if _, err := tx.Tx().ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', result_hash = $2, updated_at = now() WHERE id = $1`,
		taskID, resultHash,
	); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	return tx.Commit()
}

// UpsertAgent creates or updates the chain_agent_id and account address
// for an agent once AgentRegistry::register_agent finalizes.
func (r *ProjectionRepository) UpsertAgent(ctx context.Context, agentID string, chainAgentID int64, accountAddress, label string) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO agents (id, chain_agent_id, account_address, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET chain_agent_id = EXCLUDED.chain_agent_id,
			account_address = EXCLUDED.account_address,
			label = EXCLUDED.label,
			updated_at = now()`,
		agentID, chainAgentID, accountAddress, label,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

// GetTask returns a task projection by its marketplace id.
func (r *ProjectionRepository) GetTask(ctx context.Context, taskID uuid.UUID) (*TaskProjection, error) {
	t := &TaskProjection{}
	var chainTaskID sql.NullInt64
	var matchedAgent, resultHash sql.NullString
	err := r.client.QueryRowContext(ctx, `
		SELECT id, chain_task_id, status, COALESCE(matched_agent, ''), COALESCE(result_hash, ''), created_at, updated_at
		FROM tasks WHERE id = $1`,
		taskID,
	).Scan(&t.ID, &chainTaskID, &t.Status, &matchedAgent, &resultHash, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if chainTaskID.Valid {
		t.ChainTaskID = &chainTaskID.Int64
	}
	t.MatchedAgent = matchedAgent.String
	t.ResultHash = resultHash.String
	return t, nil
}

// FindTaskByChainID locates a task by its chain-assigned id, used by the
// Ingester to resolve the projection an event's bare on-chain task
// number refers to.
func (r *ProjectionRepository) FindTaskByChainID(ctx context.Context, chainTaskID int64) (*TaskProjection, error) {
	t := &TaskProjection{}
	var matchedAgent, resultHash sql.NullString
	var ctid sql.NullInt64
	err := r.client.QueryRowContext(ctx, `
		SELECT id, chain_task_id, status, COALESCE(matched_agent, ''), COALESCE(result_hash, ''), created_at, updated_at
		FROM tasks WHERE chain_task_id = $1`,
		chainTaskID,
	).Scan(&t.ID, &ctid, &t.Status, &matchedAgent, &resultHash, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by chain id: %w", err)
	}
	if ctid.Valid {
		t.ChainTaskID = &ctid.Int64
	}
	t.MatchedAgent = matchedAgent.String
	t.ResultHash = resultHash.String
	return t, nil
}
