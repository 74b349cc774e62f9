// Package ingest is the bridge's Event Replay Ingester: it subscribes
// to finalized blocks, mirrors supported events into the chain event
// log, applies their marketplace projection side effects, and advances
// the durable replay cursor.
package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ainur-net/chain-bridge/internal/chain"
	"github.com/ainur-net/chain-bridge/internal/metrics"
	"github.com/ainur-net/chain-bridge/internal/store"
)

// reconnectDelay is the fixed pause before retrying a broken block
// subscription.
const reconnectDelay = 3 * time.Second

// isSupported is the closed (pallet, variant) whitelist the ingester
// understands; anything else is recorded nowhere.
func isSupported(pallet, variant string) bool {
	switch pallet {
	case "AgentRegistry":
		switch variant {
		case "AgentRegistered", "AgentUpdated", "AgentRetired", "AgentStatusForced":
			return true
		}
	case "TaskMarket":
		switch variant {
		case "TaskCreated", "BidSubmitted", "BidRevealed", "TaskAllocated", "TaskCompleted", "TaskFailed", "TaskMatched":
			return true
		}
	case "Commitments":
		switch variant {
		case "CommitmentProposed", "CommitmentSigned", "CommitmentFinalized", "CommitmentDisputed", "CommitmentCancelled":
			return true
		}
	}
	return false
}

// Ingester runs the single, singleton replay loop. Running more than
// one concurrently is unsupported: the cursor is a process-wide
// singleton row.
type Ingester struct {
	chainRepo   *store.ChainRepository
	projections *store.ProjectionRepository
	outbox      *store.OutboxRepository
	client      chain.Client
	metrics     *metrics.Registry
	logger      *log.Logger
}

// NewIngester builds an Ingester.
func NewIngester(chainRepo *store.ChainRepository, projections *store.ProjectionRepository, outbox *store.OutboxRepository, client chain.Client, reg *metrics.Registry) *Ingester {
	return &Ingester{
		chainRepo:   chainRepo,
		projections: projections,
		outbox:      outbox,
		client:      client,
		metrics:     reg,
		logger:      log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}
}

// Run drives the replay loop until ctx is canceled, reconnecting with a
// fixed delay on any subscription error.
func (in *Ingester) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := in.runOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			in.logger.Printf("subscription error: %v; reconnecting in %s", err, reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (in *Ingester) runOnce(ctx context.Context) error {
	cursor, err := in.chainRepo.LastCursor(ctx)
	if err != nil {
		return err
	}

	blocks, errs := in.client.SubscribeFinalizedBlocks(ctx)

	for block := range blocks {
		maxCursor := cursor
		for _, ev := range block.Events {
			evCursor := store.Cursor{BlockNumber: block.Number, EventIndex: uint32(ev.Index)}
			if !cursor.Less(evCursor) {
				continue
			}
			if !isSupported(ev.Pallet, ev.Variant) {
				continue
			}

			if err := in.applyEvent(ctx, block.Number, ev); err != nil {
				in.logger.Printf("failed to apply event %s::%s at block %d index %d: %v",
					ev.Pallet, ev.Variant, block.Number, ev.Index, err)
				continue
			}

			if maxCursor.Less(evCursor) {
				maxCursor = evCursor
			}
			if in.metrics != nil {
				in.metrics.EventsIngested.Inc()
			}
		}

		if cursor.Less(maxCursor) {
			if err := in.chainRepo.AdvanceCursor(ctx, maxCursor); err != nil && !errors.Is(err, store.ErrCursorNotAdvancing) {
				in.logger.Printf("failed to advance cursor to %+v: %v", maxCursor, err)
			} else {
				cursor = maxCursor
			}
		}
	}

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// applyEvent records the event and runs its projection side effect.
func (in *Ingester) applyEvent(ctx context.Context, blockNumber uint64, ev chain.Event) error {
	if err := in.chainRepo.RecordEvent(ctx, &store.ChainEvent{
		BlockNumber:   blockNumber,
		EventIndex:    ev.Index,
		Pallet:        ev.Pallet,
		Variant:       ev.Variant,
		Payload:       ev.Payload,
		CorrelationID: ev.CorrelationID,
	}); err != nil {
		return err
	}

	switch {
	case ev.Pallet == "AgentRegistry" && ev.Variant == "AgentRegistered":
		return in.onAgentRegistered(ctx, ev)
	case ev.Pallet == "TaskMarket" && ev.Variant == "TaskCreated":
		return in.onTaskCreated(ctx, ev)
	case ev.Pallet == "TaskMarket" && ev.Variant == "BidSubmitted":
		return in.onBidSubmitted(ctx, ev)
	case ev.Pallet == "TaskMarket" && ev.Variant == "TaskCompleted":
		return in.onTaskCompleted(ctx, ev)
	case ev.Pallet == "TaskMarket" && ev.Variant == "TaskMatched":
		return in.onTaskMatched(ctx, ev)
	default:
		// Recorded as a ChainEvent only; no projection side effect.
		return nil
	}
}

// stampOutbox finds the outbox row matching ev's extrinsic hash, if any,
// and stamps the now-known chain ids onto it. When finalize is set the
// row is also marked finalized with that same hash as its tx_hash: a
// Submitter and the Ingester may both try to finalize the same row, and
// both MarkFinalized and StampChainIDs are idempotent, so racing with
// the Submitter's own post-submit write is harmless.
func (in *Ingester) stampOutbox(ctx context.Context, ev chain.Event, chainTaskID, chainAgentID *int64, finalize bool) {
	if ev.CorrelationID == "" {
		return
	}
	row, err := in.outbox.FindByTxHash(ctx, ev.CorrelationID)
	if err != nil {
		return
	}
	if finalize {
		if err := in.outbox.MarkFinalized(ctx, row.CorrelationID, ev.CorrelationID); err != nil {
			in.logger.Printf("failed to finalize outbox row %s: %v", row.CorrelationID, err)
		}
	}
	if err := in.outbox.StampChainIDs(ctx, row.CorrelationID, chainTaskID, chainAgentID); err != nil {
		in.logger.Printf("failed to stamp outbox row %s: %v", row.CorrelationID, err)
	}
}

func (in *Ingester) onAgentRegistered(ctx context.Context, ev chain.Event) error {
	agentID, accountAddress, ok := extractTwoIdentifiers(ev.Payload)
	if !ok {
		return nil
	}

	if err := in.projections.UpsertAgentByChainID(ctx, int64(agentID), accountAddress); err != nil {
		return err
	}

	id := int64(agentID)
	in.stampOutbox(ctx, ev, nil, &id, true)
	return nil
}

func (in *Ingester) onTaskCreated(ctx context.Context, ev chain.Event) error {
	taskID, ok := extractFirstU64(ev.Payload)
	if !ok {
		return nil
	}

	if err := in.projections.UpsertTaskByChainID(ctx, int64(taskID)); err != nil {
		return err
	}

	id := int64(taskID)
	in.stampOutbox(ctx, ev, &id, nil, false)
	return nil
}

func (in *Ingester) onBidSubmitted(ctx context.Context, ev chain.Event) error {
	taskID, agentID, ok := extractTwoU64(ev.Payload)
	if !ok {
		return nil
	}

	task, err := in.projections.FindTaskByChainID(ctx, int64(taskID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	agentDID := didFromChainAgentID(int64(agentID))
	if agent, err := in.projections.FindAgentByChainID(ctx, int64(agentID)); err == nil {
		agentDID = agent.ID
	}

	if err := in.projections.RecordBid(ctx, task.ID, agentDID, ""); err != nil {
		return err
	}

	tid, aid := int64(taskID), int64(agentID)
	in.stampOutbox(ctx, ev, &tid, &aid, false)
	return nil
}

func (in *Ingester) onTaskCompleted(ctx context.Context, ev chain.Event) error {
	taskID, agentID, ok := extractTwoU64(ev.Payload)
	if !ok {
		return nil
	}

	task, err := in.projections.FindTaskByChainID(ctx, int64(taskID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := in.projections.RecordResult(ctx, task.ID, "", "", ""); err != nil {
		return err
	}

	tid, aid := int64(taskID), int64(agentID)
	in.stampOutbox(ctx, ev, &tid, &aid, false)
	return in.outboxPatch(ctx, &tid, &aid)
}

func (in *Ingester) onTaskMatched(ctx context.Context, ev chain.Event) error {
	taskID, agentID, ok := extractTwoU64(ev.Payload)
	if !ok {
		return nil
	}

	task, err := in.projections.FindTaskByChainID(ctx, int64(taskID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	agentDID := didFromChainAgentID(int64(agentID))
	if agent, err := in.projections.FindAgentByChainID(ctx, int64(agentID)); err == nil {
		agentDID = agent.ID
	}

	if err := in.projections.MarkAllocated(ctx, task.ID, agentDID); err != nil {
		return err
	}

	tid, aid := int64(taskID), int64(agentID)
	return in.outboxPatch(ctx, &tid, &aid)
}

func (in *Ingester) outboxPatch(ctx context.Context, chainTaskID, chainAgentID *int64) error {
	if err := in.outbox.PatchPendingPayloads(ctx, chainTaskID, chainAgentID); err != nil {
		in.logger.Printf("failed to patch pending payloads: %v", err)
	}
	return nil
}

func didFromChainAgentID(chainAgentID int64) string {
	return "did:ainur:" + itoa(chainAgentID)
}
