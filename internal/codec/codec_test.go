package codec

import (
	"strings"
	"testing"
)

func TestIsSupported(t *testing.T) {
	if !IsSupported("TaskMarket", "create_task") {
		t.Errorf("expected TaskMarket::create_task to be supported")
	}
	if IsSupported("TaskMarket", "nonexistent_call") {
		t.Errorf("expected unknown call to be unsupported")
	}
}

func TestDecodeRegisterAgent(t *testing.T) {
	payload := []byte(`{"did":"did:ainur:1","capabilities":["infer","train"],"verification_level":"TEE"}`)
	out, err := Decode("AgentRegistry", "register_agent", payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	args := out.(*RegisterAgentArgs)
	if args.DID != "did:ainur:1" {
		t.Errorf("did mismatch: got %q", args.DID)
	}
	if args.VerificationLevel != TEE {
		t.Errorf("verification_level mismatch: got %q, want tee", args.VerificationLevel)
	}
}

func TestDecodeRegisterAgentDefaultsVerification(t *testing.T) {
	payload := []byte(`{"did":"did:ainur:1","capabilities":[]}`)
	out, err := Decode("AgentRegistry", "register_agent", payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.(*RegisterAgentArgs).VerificationLevel != BestEffort {
		t.Errorf("expected default best_effort verification level")
	}
}

func TestDecodeRegisterAgentRejectsOversizedDID(t *testing.T) {
	payload := []byte(`{"did":"` + strings.Repeat("a", 129) + `","capabilities":[]}`)
	if _, err := Decode("AgentRegistry", "register_agent", payload); err == nil {
		t.Fatalf("expected rejection of did exceeding 128 chars")
	}
}

func TestDecodeRegisterAgentRejectsOversizedCapability(t *testing.T) {
	payload := []byte(`{"did":"x","capabilities":["` + strings.Repeat("c", 257) + `"]}`)
	if _, err := Decode("AgentRegistry", "register_agent", payload); err == nil {
		t.Fatalf("expected rejection of capability exceeding 256 chars")
	}
}

func TestDecodeCreateTask(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	payload := []byte(`{"spec_hash":"` + hash + `","budget":100,"deadline":500,"verification_level":"zksnark"}`)
	out, err := Decode("TaskMarket", "create_task", payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	args := out.(*CreateTaskArgs)
	if args.Budget != 100 || args.Deadline != 500 {
		t.Errorf("unexpected args: %+v", args)
	}
	if args.VerificationLevel != ZkSnark {
		t.Errorf("expected zksnark, got %q", args.VerificationLevel)
	}
}

func TestDecodeCreateTaskRejectsBadHash(t *testing.T) {
	payload := []byte(`{"spec_hash":"0xdead","budget":1,"deadline":1}`)
	if _, err := Decode("TaskMarket", "create_task", payload); err == nil {
		t.Fatalf("expected rejection of malformed spec_hash")
	}
}

func TestDecodeCreateTaskRejectsUnknownVerificationLevel(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	payload := []byte(`{"spec_hash":"` + hash + `","budget":1,"deadline":1,"verification_level":"quantum"}`)
	if _, err := Decode("TaskMarket", "create_task", payload); err == nil {
		t.Fatalf("expected rejection of unknown verification_level")
	}
}

func TestDecodeUnsupportedCall(t *testing.T) {
	if _, err := Decode("TaskMarket", "cancel_task", []byte(`{}`)); err == nil {
		t.Fatalf("expected rejection of unsupported call")
	}
}

func TestDecodeSubmitResultProofBound(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	oversized := strings.Repeat("p", 4097)
	payload := []byte(`{"task_id":1,"agent_id":2,"result_hash":"` + hash + `","proof":"` + oversized + `"}`)
	if _, err := Decode("TaskMarket", "submit_result", payload); err == nil {
		t.Fatalf("expected rejection of proof exceeding 4096 chars")
	}
}

func TestValidateSubmitMatchParity(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	payload := []byte(`{"task_id":1,"agent_id":2,"result_hash":"` + hash + `"}`)

	validateErr := Validate("TaskMarket", "submit_result", payload)
	_, decodeErr := Decode("TaskMarket", "submit_result", payload)

	if (validateErr == nil) != (decodeErr == nil) {
		t.Fatalf("validate/decode parity violated: validate=%v decode=%v", validateErr, decodeErr)
	}
}
