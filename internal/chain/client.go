// Package chain is the bridge's connection to the external chain: a
// finalized-block subscription for the Ingester and a submit-and-watch
// path for the Submitter. There is no Substrate RPC client in the
// dependency surface available to this module, so the wire protocol
// (JSON-RPC 2.0 over a persistent WebSocket, matching the
// author_submitAndWatchExtrinsic / chain_subscribeFinalizedHeads shape a
// Substrate node exposes) is implemented directly against
// gorilla/websocket.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Event is a single decoded chain event within a finalized block.
type Event struct {
	Index         uint32
	Pallet        string
	Variant       string
	Payload       string // opaque textual debug form, sufficient to extract leading u64 fields
	CorrelationID string // extrinsic hash as "0x<hex>", empty if the event had no ApplyExtrinsic phase
}

// Block is a finalized block with its decoded, ordered events.
type Block struct {
	Number uint64
	Events []Event
}

// SubmitResult is returned once an extrinsic reaches finalized success.
type SubmitResult struct {
	TxHash string
}

// Client is the bridge's view of the chain: subscribe to finalized
// blocks, and submit extrinsics built from a codec-decoded call.
//
// Implementations must treat ctx cancellation as a clean shutdown signal
// at every suspension point: SubscribeFinalizedBlocks' channel closes,
// and in-flight SubmitAndWatch calls return ctx.Err().
type Client interface {
	// SubscribeFinalizedBlocks streams finalized blocks in order. The
	// returned channel closes when ctx is canceled or the subscription
	// breaks (transport error); callers distinguish the two via err.
	SubscribeFinalizedBlocks(ctx context.Context) (<-chan Block, <-chan error)

	// SubmitAndWatch signs and submits an extrinsic built from pallet,
	// call and the already-validated payload, and blocks until it is
	// included in a finalized block or the submission/finalization
	// fails.
	SubmitAndWatch(ctx context.Context, pallet, call string, payload []byte) (*SubmitResult, error)

	// Close releases the underlying connection.
	Close() error
}

// IsConnectionError classifies err by a substring match against the
// transport-error vocabulary a chain client reports on a dropped
// socket. Any other error is treated as logical. This is a known
// fragility (a logical error message that happens to contain one of
// these substrings would be misclassified) accepted in favor of not
// carrying a full typed transport-error hierarchy.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, substr := range []string{"disconnect", "Connection", "closed"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope, covering both direct
// replies and subscription notifications (the "params.result" shape a
// Substrate node uses for chain_subscribeFinalizedHeads and
// author_submitAndWatchExtrinsic updates).
type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params *rpcNotifyParam `json:"params"`
}

type rpcNotifyParam struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// wsClient is the real Client implementation: one WebSocket connection,
// a request id counter, and a demultiplexer routing subscription
// notifications to their waiting channel.
type wsClient struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex
	signer *Signer

	nextID uint64

	mu          sync.Mutex
	pending     map[uint64]chan rpcResponse
	subscribers map[string]chan json.RawMessage

	closed atomic.Bool
}

// Dial opens a WebSocket connection to a Substrate-shaped JSON-RPC
// endpoint and starts its read pump. signer signs every extrinsic this
// client submits; it is held for the life of the client, never
// re-derived per call.
func Dial(ctx context.Context, url string, signer *Signer) (Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}

	c := &wsClient{
		url:         url,
		conn:        conn,
		signer:      signer,
		pending:     make(map[uint64]chan rpcResponse),
		subscribers: make(map[string]chan json.RawMessage),
	}
	go c.readPump()
	return c, nil
}

func (c *wsClient) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}

		if resp.Params != nil {
			c.mu.Lock()
			ch, ok := c.subscribers[resp.Params.Subscription]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- resp.Params.Result:
				default:
				}
			}
			continue
		}

		if resp.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*resp.ID]
			delete(c.pending, *resp.ID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

func (c *wsClient) shutdown(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.pending = nil
	c.subscribers = nil
	c.mu.Unlock()
	_ = cause
}

func (c *wsClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("chain: connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chain: encode request: %w", err)
	}

	c.connMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, body)
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("chain: write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("chain: connection closed while awaiting %s", method)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// subscribe issues a subscribing RPC call and returns a channel fed by
// the notifications it produces, keyed by the subscription id the node
// assigns.
func (c *wsClient) subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error) {
	result, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return nil, fmt.Errorf("chain: unexpected subscription id shape: %w", err)
	}

	ch := make(chan json.RawMessage, 64)
	c.mu.Lock()
	if c.subscribers == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("chain: connection closed")
	}
	c.subscribers[subID] = ch
	c.mu.Unlock()

	return ch, nil
}

type finalizedHead struct {
	Number string `json:"number"` // hex, e.g. "0x1a2b"
}

// SubscribeFinalizedBlocks subscribes to chain_subscribeFinalizedHeads,
// then fetches each block's events with a separate bridge_getBlockEvents
// call (see fetchBlockEvents), matching the way the reference
// implementation pulls events per finalized block rather than decoding
// them out of the header notification itself.
func (c *wsClient) SubscribeFinalizedBlocks(ctx context.Context) (<-chan Block, <-chan error) {
	blocks := make(chan Block)
	errs := make(chan error, 1)

	go func() {
		defer close(blocks)

		notifications, err := c.subscribe(ctx, "chain_subscribeFinalizedHeads", []interface{}{})
		if err != nil {
			errs <- err
			return
		}

		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case raw, ok := <-notifications:
				if !ok {
					errs <- fmt.Errorf("chain: finalized head subscription closed")
					return
				}

				var head finalizedHead
				if err := json.Unmarshal(raw, &head); err != nil {
					continue
				}

				number, err := parseHexUint(head.Number)
				if err != nil {
					continue
				}

				events, err := c.fetchBlockEvents(ctx, number)
				if err != nil {
					errs <- err
					return
				}

				select {
				case blocks <- Block{Number: number, Events: events}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return blocks, errs
}

// fetchBlockEvents retrieves and decodes the events for a given block
// number via a node-side "bridge_getBlockEvents" call. This is not a
// standard Substrate RPC method; production deployments pair this
// client with a node exposing it (or a sidecar translating
// system.events storage reads into this shape). Documented as an Open
// Question resolution in DESIGN.md.
func (c *wsClient) fetchBlockEvents(ctx context.Context, blockNumber uint64) ([]Event, error) {
	result, err := c.call(ctx, "bridge_getBlockEvents", []interface{}{blockNumber})
	if err != nil {
		return nil, fmt.Errorf("chain: fetch events for block %d: %w", blockNumber, err)
	}

	var events []Event
	if err := json.Unmarshal(result, &events); err != nil {
		return nil, fmt.Errorf("chain: decode events for block %d: %w", blockNumber, err)
	}
	return events, nil
}

type submitNotification struct {
	Finalized *string `json:"finalized,omitempty"`
	Dropped   *struct{} `json:"dropped,omitempty"`
	Invalid   *string `json:"invalid,omitempty"`
}

// SubmitAndWatch encodes and signs the extrinsic envelope (see
// encodeExtrinsic), submits it, and blocks until the node reports it
// finalized, matching
// author_submitAndWatchExtrinsic's status stream semantics.
func (c *wsClient) SubmitAndWatch(ctx context.Context, pallet, call string, payload []byte) (*SubmitResult, error) {
	extrinsicHex, err := encodeExtrinsic(c.signer, pallet, call, payload)
	if err != nil {
		return nil, fmt.Errorf("chain: encode extrinsic: %w", err)
	}

	notifications, err := c.subscribe(ctx, "author_submitAndWatchExtrinsic", []interface{}{extrinsicHex})
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case raw, ok := <-notifications:
			if !ok {
				return nil, fmt.Errorf("chain: submission watch closed before finalization")
			}

			var status submitNotification
			if err := json.Unmarshal(raw, &status); err != nil {
				continue
			}

			switch {
			case status.Finalized != nil:
				return &SubmitResult{TxHash: *status.Finalized}, nil
			case status.Invalid != nil:
				return nil, fmt.Errorf("extrinsic invalid: %s", *status.Invalid)
			case status.Dropped != nil:
				return nil, fmt.Errorf("extrinsic dropped before finalization")
			}
		}
	}
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

func parseHexUint(s string) (uint64, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "0x%x", &n)
	return n, err
}
