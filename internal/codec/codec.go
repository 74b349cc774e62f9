// Package codec is the pure translation layer between the orchestrator's
// loosely-typed JSON outbox payloads and the chain's typed call
// arguments. Decode performs the same bounds checks the chain itself
// would reject on, so the API boundary and the Submitter can share one
// validation pass.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// VerificationLevel is the closed enum accepted by AgentRegistry and
// TaskMarket calls that carry a verification policy.
type VerificationLevel string

const (
	BestEffort VerificationLevel = "best_effort"
	Optimistic VerificationLevel = "optimistic"
	TEE        VerificationLevel = "tee"
	ZkSnark    VerificationLevel = "zksnark"
	Redundant  VerificationLevel = "redundant"
)

func parseVerificationLevel(raw string) (VerificationLevel, error) {
	if raw == "" {
		raw = string(BestEffort)
	}
	switch VerificationLevel(strings.ToLower(raw)) {
	case BestEffort, Optimistic, TEE, ZkSnark, Redundant:
		return VerificationLevel(strings.ToLower(raw)), nil
	default:
		return "", fmt.Errorf("invalid verification_level %q", raw)
	}
}

// Call identifies a supported (pallet, call) pair.
type Call struct {
	Pallet string
	Name   string
}

func (c Call) String() string {
	return c.Pallet + "::" + c.Name
}

// The closed set of calls the bridge understands.
var (
	CallRegisterAgent      = Call{"AgentRegistry", "register_agent"}
	CallCreateTask         = Call{"TaskMarket", "create_task"}
	CallSubmitBid          = Call{"TaskMarket", "submit_bid"}
	CallRevealBid          = Call{"TaskMarket", "reveal_bid"}
	CallAllocateTask       = Call{"TaskMarket", "allocate_task"}
	CallSubmitResult       = Call{"TaskMarket", "submit_result"}
	CallTransferAllowDeath = Call{"Balances", "transfer_allow_death"}
)

var supportedCalls = map[Call]bool{
	CallRegisterAgent:      true,
	CallCreateTask:         true,
	CallSubmitBid:          true,
	CallRevealBid:          true,
	CallAllocateTask:       true,
	CallSubmitResult:       true,
	CallTransferAllowDeath: true,
}

// IsSupported reports whether (pallet, call) is in the closed whitelist.
func IsSupported(pallet, call string) bool {
	return supportedCalls[Call{pallet, call}]
}

// RegisterAgentArgs is the decoded, validated argument set for
// AgentRegistry::register_agent.
type RegisterAgentArgs struct {
	DID               string
	Capabilities      []string
	Metadata          string
	Attestation       string
	VerificationLevel VerificationLevel
}

// CreateTaskArgs is the decoded, validated argument set for
// TaskMarket::create_task.
type CreateTaskArgs struct {
	SpecHash          [32]byte
	Budget            uint64
	Deadline          uint32
	VerificationLevel VerificationLevel
}

// SubmitBidArgs is the decoded, validated argument set for
// TaskMarket::submit_bid.
type SubmitBidArgs struct {
	TaskID             uint64
	AgentID            uint64
	Commitment         [32]byte
	EstimatedDuration  uint32
}

// RevealBidArgs is the decoded, validated argument set for
// TaskMarket::reveal_bid.
type RevealBidArgs struct {
	TaskID  uint64
	AgentID uint64
	Cost    uint64
	Nonce   [32]byte
}

// AllocateTaskArgs is the decoded, validated argument set for
// TaskMarket::allocate_task.
type AllocateTaskArgs struct {
	TaskID uint64
}

// SubmitResultArgs is the decoded, validated argument set for
// TaskMarket::submit_result.
type SubmitResultArgs struct {
	TaskID     uint64
	AgentID    uint64
	ResultHash [32]byte
	Proof      string
}

// TransferArgs is the decoded, validated argument set for
// Balances::transfer_allow_death.
type TransferArgs struct {
	Address string
	Amount  uint64
}

// Decode parses and validates a JSON payload for the given (pallet,
// call), returning the typed argument struct as an interface{}. It
// performs exactly the bounds checks the chain itself would reject the
// extrinsic on, so that a payload rejected here would also be rejected
// at submission. Decode never mutates its input and has no side
// effects: calling it twice with the same arguments yields the same
// result, which is what lets Validate reuse it as a pure pass/fail
// check.
func Decode(pallet, call string, payload []byte) (interface{}, error) {
	if !IsSupported(pallet, call) {
		return nil, fmt.Errorf("unsupported pallet/call: %s::%s", pallet, call)
	}

	var raw map[string]json.RawMessage
	if len(payload) == 0 {
		raw = map[string]json.RawMessage{}
	} else if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("payload json decode: %w", err)
	}

	switch (Call{pallet, call}) {
	case CallRegisterAgent:
		return decodeRegisterAgent(raw)
	case CallCreateTask:
		return decodeCreateTask(raw)
	case CallSubmitBid:
		return decodeSubmitBid(raw)
	case CallRevealBid:
		return decodeRevealBid(raw)
	case CallAllocateTask:
		return decodeAllocateTask(raw)
	case CallSubmitResult:
		return decodeSubmitResult(raw)
	case CallTransferAllowDeath:
		return decodeTransfer(raw)
	default:
		return nil, fmt.Errorf("unsupported pallet/call: %s::%s", pallet, call)
	}
}

// Validate runs Decode and discards the result, for callers (the API
// boundary) that only need a pass/fail verdict.
func Validate(pallet, call string, payload []byte) error {
	_, err := Decode(pallet, call, payload)
	return err
}

func getString(raw map[string]json.RawMessage, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func getUint64(raw map[string]json.RawMessage, key string) (uint64, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	var n uint64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

func getStringSlice(raw map[string]json.RawMessage, key string) ([]string, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	var s []string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, false
	}
	return s, true
}

func requireString(raw map[string]json.RawMessage, key string, maxLen int) (string, error) {
	s, ok := getString(raw, key)
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	if len(s) > maxLen {
		return "", fmt.Errorf("%s exceeds %d chars", key, maxLen)
	}
	return s, nil
}

func requireUint64(raw map[string]json.RawMessage, key string, max uint64) (uint64, error) {
	n, ok := getUint64(raw, key)
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	if n > max {
		return 0, fmt.Errorf("%s exceeds max %d", key, max)
	}
	return n, nil
}

func requireHash32(raw map[string]json.RawMessage, key string) ([32]byte, error) {
	var out [32]byte
	s, ok := getString(raw, key)
	if !ok {
		return out, fmt.Errorf("missing %s", key)
	}
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("%s: expected 32-byte hex", key)
	}
	b := common.FromHex("0x" + s)
	if len(b) != 32 {
		return out, fmt.Errorf("%s: expected 32-byte hex", key)
	}
	copy(out[:], b)
	return out, nil
}

func decodeRegisterAgent(raw map[string]json.RawMessage) (*RegisterAgentArgs, error) {
	did, err := requireString(raw, "did", 128)
	if err != nil {
		return nil, err
	}

	caps, ok := getStringSlice(raw, "capabilities")
	if !ok {
		return nil, fmt.Errorf("missing capabilities")
	}
	for _, c := range caps {
		if len(c) > 256 {
			return nil, fmt.Errorf("capability exceeds 256 chars")
		}
	}

	var metadata string
	if m, ok := getString(raw, "metadata"); ok {
		if len(m) > 1024 {
			return nil, fmt.Errorf("metadata exceeds 1024 chars")
		}
		metadata = m
	}

	attestation, _ := getString(raw, "attestation")

	levelRaw, _ := getString(raw, "verification_level")
	level, err := parseVerificationLevel(levelRaw)
	if err != nil {
		return nil, err
	}

	return &RegisterAgentArgs{
		DID:               did,
		Capabilities:      caps,
		Metadata:          metadata,
		Attestation:       attestation,
		VerificationLevel: level,
	}, nil
}

func decodeCreateTask(raw map[string]json.RawMessage) (*CreateTaskArgs, error) {
	specHash, err := requireHash32(raw, "spec_hash")
	if err != nil {
		return nil, err
	}
	budget, err := requireUint64(raw, "budget", ^uint64(0))
	if err != nil {
		return nil, err
	}
	deadline, err := requireUint64(raw, "deadline", uint64(^uint32(0)))
	if err != nil {
		return nil, err
	}
	levelRaw, ok := getString(raw, "verification_level")
	if !ok {
		return nil, fmt.Errorf("missing verification_level")
	}
	level, err := parseVerificationLevel(levelRaw)
	if err != nil {
		return nil, err
	}

	return &CreateTaskArgs{
		SpecHash:          specHash,
		Budget:            budget,
		Deadline:          uint32(deadline),
		VerificationLevel: level,
	}, nil
}

func decodeSubmitBid(raw map[string]json.RawMessage) (*SubmitBidArgs, error) {
	taskID, err := requireUint64(raw, "task_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	agentID, err := requireUint64(raw, "agent_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	commitment, err := requireHash32(raw, "commitment")
	if err != nil {
		return nil, err
	}
	estimatedDuration, err := requireUint64(raw, "estimated_duration", uint64(^uint32(0)))
	if err != nil {
		return nil, err
	}

	return &SubmitBidArgs{
		TaskID:            taskID,
		AgentID:           agentID,
		Commitment:        commitment,
		EstimatedDuration: uint32(estimatedDuration),
	}, nil
}

func decodeRevealBid(raw map[string]json.RawMessage) (*RevealBidArgs, error) {
	taskID, err := requireUint64(raw, "task_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	agentID, err := requireUint64(raw, "agent_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	cost, err := requireUint64(raw, "cost", ^uint64(0))
	if err != nil {
		return nil, err
	}
	nonce, err := requireHash32(raw, "nonce")
	if err != nil {
		return nil, err
	}

	return &RevealBidArgs{TaskID: taskID, AgentID: agentID, Cost: cost, Nonce: nonce}, nil
}

func decodeAllocateTask(raw map[string]json.RawMessage) (*AllocateTaskArgs, error) {
	taskID, err := requireUint64(raw, "task_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	return &AllocateTaskArgs{TaskID: taskID}, nil
}

func decodeSubmitResult(raw map[string]json.RawMessage) (*SubmitResultArgs, error) {
	taskID, err := requireUint64(raw, "task_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	agentID, err := requireUint64(raw, "agent_id", ^uint64(0))
	if err != nil {
		return nil, err
	}
	resultHash, err := requireHash32(raw, "result_hash")
	if err != nil {
		return nil, err
	}

	var proof string
	if p, ok := getString(raw, "proof"); ok {
		if len(p) > 4096 {
			return nil, fmt.Errorf("proof exceeds 4096 chars")
		}
		proof = p
	}

	return &SubmitResultArgs{
		TaskID:     taskID,
		AgentID:    agentID,
		ResultHash: resultHash,
		Proof:      proof,
	}, nil
}

func decodeTransfer(raw map[string]json.RawMessage) (*TransferArgs, error) {
	address, err := requireString(raw, "address", 128)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) && !isLikelySS58(address) {
		return nil, fmt.Errorf("address is not a recognizable ss58 or hex account")
	}
	amount, err := requireUint64(raw, "amount", ^uint64(0))
	if err != nil {
		return nil, err
	}
	return &TransferArgs{Address: address, Amount: amount}, nil
}

// isLikelySS58 applies a cheap shape check (base58 alphabet, plausible
// length) rather than a full checksum verification, since the bridge
// does not carry an SS58 codec dependency; the chain itself performs
// the authoritative validation at submission time.
func isLikelySS58(s string) bool {
	if len(s) < 32 || len(s) > 128 {
		return false
	}
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
