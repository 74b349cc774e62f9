package backfill

import (
	"testing"

	"github.com/ainur-net/chain-bridge/internal/store"
)

func TestExtractIDsBothMissing(t *testing.T) {
	row := &store.OutboxRow{}
	taskID, agentID, ok := extractIDs(row, "[10, 20]")
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	if taskID == nil || *taskID != 10 {
		t.Errorf("expected task id 10, got %v", taskID)
	}
	if agentID == nil || *agentID != 20 {
		t.Errorf("expected agent id 20, got %v", agentID)
	}
}

func TestExtractIDsTaskAlreadyKnown(t *testing.T) {
	known := int64(99)
	row := &store.OutboxRow{ChainTaskID: &known}
	taskID, agentID, ok := extractIDs(row, "[10, 20]")
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	if taskID != nil {
		t.Errorf("expected task id to stay nil when already known, got %v", taskID)
	}
	if agentID == nil || *agentID != 20 {
		t.Errorf("expected agent id 20, got %v", agentID)
	}
}

func TestExtractIDsEmptyPayload(t *testing.T) {
	row := &store.OutboxRow{}
	if _, _, ok := extractIDs(row, "[]"); ok {
		t.Errorf("expected empty payload to fail extraction")
	}
}
