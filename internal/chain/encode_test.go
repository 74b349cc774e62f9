package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := LoadSigner(filepath.Join(t.TempDir(), "signer_key.hex"))
	if err != nil {
		t.Fatalf("LoadSigner: %v", err)
	}
	return s
}

func TestEncodeExtrinsicProducesVerifiableSignature(t *testing.T) {
	signer := testSigner(t)

	hexEnv, err := encodeExtrinsic(signer, "TaskMarket", "create_task", []byte(`{"budget":10}`))
	if err != nil {
		t.Fatalf("encodeExtrinsic: %v", err)
	}

	body, err := hex.DecodeString(hexEnv[2:]) // strip "0x"
	if err != nil {
		t.Fatalf("decode envelope hex: %v", err)
	}

	var env extrinsicEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	pub, err := hex.DecodeString(env.PublicKey)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	signed := env.Pallet + "::" + env.Call + ":" + string(env.Payload)
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(signed), sig) {
		t.Fatal("signature does not verify against the envelope's own fields")
	}
}

func TestLoadSignerPersistsAcrossReload(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "signer_key.hex")

	s1, err := LoadSigner(keyPath)
	if err != nil {
		t.Fatalf("LoadSigner (generate): %v", err)
	}

	s2, err := LoadSigner(keyPath)
	if err != nil {
		t.Fatalf("LoadSigner (reload): %v", err)
	}

	if s1.PublicKeyHex() != s2.PublicKeyHex() {
		t.Fatal("reloading the signer from the same path produced a different key")
	}
}
