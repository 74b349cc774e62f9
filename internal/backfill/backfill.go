// Package backfill periodically reconciles outbox rows that are still
// missing a chain_task_id or chain_agent_id against the chain event log,
// covering the case where the Ingester resolved the id from an event the
// row's own submission raced with.
package backfill

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ainur-net/chain-bridge/internal/metrics"
	"github.com/ainur-net/chain-bridge/internal/store"
)

// DefaultInterval is the default pass cadence.
const DefaultInterval = 10 * time.Second

// BatchSize bounds how many rows a single pass inspects.
const BatchSize = 100

// Backfill runs the periodic reconciliation pass.
type Backfill struct {
	outbox   *store.OutboxRepository
	chain    *store.ChainRepository
	interval time.Duration
	metrics  *metrics.Registry
	logger   *log.Logger
}

// New builds a Backfill pass with the given interval (DefaultInterval if
// zero).
func New(outbox *store.OutboxRepository, chainRepo *store.ChainRepository, interval time.Duration, reg *metrics.Registry) *Backfill {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Backfill{
		outbox:   outbox,
		chain:    chainRepo,
		interval: interval,
		metrics:  reg,
		logger:   log.New(log.Writer(), "[backfill] ", log.LstdFlags),
	}
}

// Run drives the periodic pass until ctx is canceled.
func (b *Backfill) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.RunOnce(ctx); err != nil {
				b.logger.Printf("backfill pass failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single reconciliation pass: for every outbox row
// still missing a chain task or agent id, it looks up the most recent
// chain event whose correlation id equals the row's tx hash (rows with
// no tx hash yet are skipped) and stamps whatever ids that event's
// payload carries.
func (b *Backfill) RunOnce(ctx context.Context) error {
	rows, err := b.outbox.NeedingBackfill(ctx, BatchSize)
	if err != nil {
		return err
	}

	var newTaskID, newAgentID *int64

	for _, row := range rows {
		if row.TxHash == "" {
			continue
		}

		ev, err := b.chain.FindEventByCorrelationID(ctx, row.TxHash)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			b.logger.Printf("failed to look up event for row %s: %v", row.CorrelationID, err)
			continue
		}

		taskID, agentID, ok := extractIDs(row, ev.Payload)
		if !ok {
			continue
		}

		if err := b.outbox.StampChainIDs(ctx, row.CorrelationID, taskID, agentID); err != nil {
			b.logger.Printf("failed to stamp row %s: %v", row.CorrelationID, err)
			continue
		}

		if b.metrics != nil {
			b.metrics.BackfillPatched.Inc()
		}
		if taskID != nil {
			newTaskID = taskID
		}
		if agentID != nil {
			newAgentID = agentID
		}
	}

	if newTaskID != nil || newAgentID != nil {
		if err := b.outbox.PatchPendingPayloads(ctx, newTaskID, newAgentID); err != nil {
			b.logger.Printf("failed to patch pending payloads: %v", err)
		}
	}

	if len(rows) == BatchSize {
		b.logger.Printf("backfill batch saturated at %d rows; more work may remain", BatchSize)
	}

	return nil
}

// extractIDs pulls whatever ids are still missing on row out of a chain
// event's debug-style payload, assuming a (task_id, agent_id) or single
// task_id field order depending on which fields row is missing.
func extractIDs(row *store.OutboxRow, payload string) (*int64, *int64, bool) {
	fields := splitPayloadFields(payload)
	if len(fields) == 0 {
		return nil, nil, false
	}

	var taskID, agentID *int64

	if row.ChainTaskID == nil {
		if v, ok := parseInt64Field(fields[0]); ok {
			taskID = &v
		}
	}
	if row.ChainAgentID == nil && len(fields) > 1 {
		if v, ok := parseInt64Field(fields[1]); ok {
			agentID = &v
		}
	}

	if taskID == nil && agentID == nil {
		return nil, nil, false
	}
	return taskID, agentID, true
}

func splitPayloadFields(payload string) []string {
	trimmed := strings.TrimSpace(payload)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseInt64Field(field string) (int64, bool) {
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
