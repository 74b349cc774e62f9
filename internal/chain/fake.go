package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakeClient is a deterministic, in-process Client used in tests:
// nothing is actually submitted to a chain. It finalizes every
// submission immediately with a synthetic hash and never emits blocks
// on its own; tests drive blocks via Emit.
type FakeClient struct {
	mu       sync.Mutex
	blockCh  chan Block
	errCh    chan error
	closed   bool
	submitSeq atomic.Uint64
}

// NewFakeClient returns a ready-to-use FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		blockCh: make(chan Block, 16),
		errCh:   make(chan error, 1),
	}
}

// SubscribeFinalizedBlocks returns the channel Emit publishes to.
func (f *FakeClient) SubscribeFinalizedBlocks(ctx context.Context) (<-chan Block, <-chan error) {
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.closed {
			f.closed = true
			close(f.blockCh)
		}
	}()
	return f.blockCh, f.errCh
}

// Emit pushes a synthetic finalized block to any active subscriber. It
// is a no-op after Close.
func (f *FakeClient) Emit(b Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.blockCh <- b:
	default:
	}
}

// SubmitAndWatch deterministically "finalizes" every call by hashing
// the call shape, so repeated test runs are reproducible.
func (f *FakeClient) SubmitAndWatch(ctx context.Context, pallet, call string, payload []byte) (*SubmitResult, error) {
	seq := f.submitSeq.Add(1)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%s:%d:%s", pallet, call, seq, payload)))
	return &SubmitResult{TxHash: "0x" + hex.EncodeToString(sum[:])}, nil
}

// Close marks the fake as shut down; it is safe to call multiple times.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.blockCh)
	}
	return nil
}

var _ Client = (*FakeClient)(nil)
