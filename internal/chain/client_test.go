package chain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("read tcp: Connection reset by peer"), true},
		{errors.New("websocket: close 1006 (abnormal closure): unexpected EOF, connection closed"), true},
		{errors.New("client disconnected unexpectedly"), true},
		{errors.New("extrinsic invalid: BadOrigin"), false},
		{nil, false},
	}

	for _, tc := range cases {
		if got := IsConnectionError(tc.err); got != tc.want {
			t.Errorf("IsConnectionError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestFakeClientSubmitAndWatch(t *testing.T) {
	c := NewFakeClient()
	defer c.Close()

	res, err := c.SubmitAndWatch(context.Background(), "TaskMarket", "create_task", []byte(`{}`))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.TxHash == "" {
		t.Errorf("expected a non-empty synthetic tx hash")
	}
}

func TestFakeClientEmitAndSubscribe(t *testing.T) {
	c := NewFakeClient()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocks, _ := c.SubscribeFinalizedBlocks(ctx)
	c.Emit(Block{Number: 1, Events: []Event{{Index: 0, Pallet: "TaskMarket", Variant: "TaskCreated"}}})

	select {
	case b := <-blocks:
		if b.Number != 1 {
			t.Errorf("unexpected block number: %d", b.Number)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted block")
	}
}
