package store

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the lifecycle state of an OutboxRow.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxFailed    OutboxStatus = "failed"
	OutboxFinalized OutboxStatus = "finalized"
	OutboxDead      OutboxStatus = "dead"
)

// Terminal reports whether the status can never be revisited: finalized
// and dead rows are never reverted.
func (s OutboxStatus) Terminal() bool {
	return s == OutboxFinalized || s == OutboxDead
}

// OutboxRow is an intent to submit an extrinsic to the chain.
type OutboxRow struct {
	CorrelationID uuid.UUID
	Pallet        string
	Call          string
	Payload       string // JSON text
	Status        OutboxStatus
	RetryCount    int
	LastError     string
	TxHash        string
	ChainTaskID   *int64
	ChainAgentID  *int64
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// ChainEvent is an insert-only record of a decoded, supported chain event.
type ChainEvent struct {
	BlockNumber   uint64
	EventIndex    uint32
	Pallet        string
	Variant       string
	Payload       string
	CorrelationID string // "" if the event had no ApplyExtrinsic phase
	RecordedAt    time.Time
}

// Cursor marks the last event ingested, ordered lexicographically on
// (BlockNumber, EventIndex).
type Cursor struct {
	BlockNumber uint64
	EventIndex  uint32
}

// Less reports whether c is strictly less than other, lexicographically.
func (c Cursor) Less(other Cursor) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber < other.BlockNumber
	}
	return c.EventIndex < other.EventIndex
}

// TaskStatus is the projection-facing lifecycle of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// TaskProjection is the denormalized, chain-annotated view of a task.
type TaskProjection struct {
	ID            uuid.UUID
	ChainTaskID   *int64
	Status        TaskStatus
	MatchedAgent  string
	ResultHash    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AgentProjection is the denormalized, chain-annotated view of an agent.
type AgentProjection struct {
	ID             string // did string, e.g. "did:ainur:<chain_agent_id>"
	ChainAgentID   *int64
	AccountAddress string
	Label          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BidProjection links an agent's bid to a task.
type BidProjection struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	AgentID    string
	Commitment string
	CreatedAt  time.Time
}

// ResultProjection is the (at most one) recorded result for a task.
type ResultProjection struct {
	TaskID      uuid.UUID
	Output      string
	Proof       string
	CompletedAt time.Time
}
