package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Signer is the bridge's single configured signer. No sr25519
// implementation is available in this module's dependency surface, so
// an ed25519 keypair stands in. It is a process-wide resource with an
// explicit init (Load) / teardown (Close) lifecycle and is not
// re-entrantly configurable: one Signer is constructed at startup and
// held by the Submitter worker(s) for the life of the process.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// LoadSigner loads the signer's keypair from keyPath, generating and
// persisting a new one on first run rather than accepting a key inline
// on the command line, so the signer survives process restarts without
// an operator re-supplying it every time.
func LoadSigner(keyPath string) (*Signer, error) {
	if keyPath == "" {
		keyPath = "./data/signer_key.hex"
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("chain: create signer key directory: %w", err)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("chain: generate signer key: %w", err)
		}
		if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
			return nil, fmt.Errorf("chain: save signer key to %s: %w", keyPath, err)
		}
		return newSigner(priv), nil
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("chain: read signer key from %s: %w", keyPath, err)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("chain: decode signer key from %s: %w", keyPath, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("chain: invalid signer key size: expected %d, got %d", ed25519.PrivateKeySize, len(raw))
	}

	return newSigner(ed25519.PrivateKey(raw)), nil
}

func newSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{
		private: priv,
		public:  priv.Public().(ed25519.PublicKey),
	}
}

// Sign signs payload with the held private key.
func (s *Signer) Sign(payload []byte) []byte {
	return ed25519.Sign(s.private, payload)
}

// PublicKeyHex is the signer's public key, hex-encoded for inclusion
// in an extrinsic envelope.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.public)
}

// Close is the signer's teardown: it drops the in-memory key material.
// Safe to call once at process shutdown.
func (s *Signer) Close() error {
	for i := range s.private {
		s.private[i] = 0
	}
	return nil
}
