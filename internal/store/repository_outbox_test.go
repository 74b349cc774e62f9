package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/ainur-net/chain-bridge/internal/config"
	"github.com/google/uuid"
)

// Integration tests run against a real Postgres only when
// CHAIN_BRIDGE_TEST_DB is set; otherwise they are skipped rather than
// faked, since the behavior under test (FOR UPDATE SKIP LOCKED, cursor
// upsert guards) depends on real transactional semantics.
var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("CHAIN_BRIDGE_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = NewClient(&config.Config{
		DatabaseURL:         connStr,
		DatabaseMaxConns:    5,
		DatabaseConnTimeout: 5_000_000_000,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	if err := testClient.MigrateUp(context.Background()); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func truncateOutbox(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE outbox, chain_events, chain_cursors"); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func TestOutboxEnqueueAndClaim(t *testing.T) {
	repo := NewOutboxRepository(testClient)
	truncateOutbox(t, testClient.DB())

	id := uuid.New()
	if _, err := repo.Enqueue(context.Background(), id, "TaskMarket", "create_task", `{"budget":1}`); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	row, err := repo.ClaimNextPending(context.Background())
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if row.CorrelationID != id {
		t.Errorf("claimed wrong row: got %s, want %s", row.CorrelationID, id)
	}

	if _, err := repo.ClaimNextPending(context.Background()); err == nil {
		t.Errorf("expected no further pending work, got a row")
	}
}

func TestOutboxMarkFinalizedIsIdempotent(t *testing.T) {
	repo := NewOutboxRepository(testClient)
	truncateOutbox(t, testClient.DB())

	id := uuid.New()
	if _, err := repo.Enqueue(context.Background(), id, "TaskMarket", "allocate_task", `{"task_id":1}`); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkFinalized(context.Background(), id, "0xabc"); err != nil {
		t.Fatalf("first MarkFinalized failed: %v", err)
	}
	if err := repo.MarkFinalized(context.Background(), id, "0xdef"); err != nil {
		t.Fatalf("second MarkFinalized failed: %v", err)
	}

	row, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if row.Status != OutboxFinalized {
		t.Errorf("expected finalized status, got %s", row.Status)
	}
}

func TestOutboxMarkFailedDeadLetters(t *testing.T) {
	repo := NewOutboxRepository(testClient)
	truncateOutbox(t, testClient.DB())

	id := uuid.New()
	if _, err := repo.Enqueue(context.Background(), id, "TaskMarket", "allocate_task", `{"task_id":1}`); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkFailed(context.Background(), id, "boom", 6, 5); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	row, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if row.Status != OutboxDead {
		t.Errorf("expected dead status after exceeding max retries, got %s", row.Status)
	}
}

func TestCursorMonotonicity(t *testing.T) {
	repo := NewChainRepository(testClient)
	truncateOutbox(t, testClient.DB())

	if err := repo.AdvanceCursor(context.Background(), Cursor{BlockNumber: 10, EventIndex: 0}); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if err := repo.AdvanceCursor(context.Background(), Cursor{BlockNumber: 5, EventIndex: 0}); err != ErrCursorNotAdvancing {
		t.Errorf("expected ErrCursorNotAdvancing for a backward move, got %v", err)
	}

	cur, err := repo.LastCursor(context.Background())
	if err != nil {
		t.Fatalf("last cursor failed: %v", err)
	}
	if cur.BlockNumber != 10 {
		t.Errorf("cursor regressed: got block %d, want 10", cur.BlockNumber)
	}
}
